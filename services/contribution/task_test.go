package contribution

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"rewards-pipeline/pkg/errutil"
)

func TestNewRetryTaskPayload(t *testing.T) {
	task, err := NewRetryTask("contribution-1")
	require.NoError(t, err)
	require.Equal(t, TypeContributionRetry, task.Type())

	var payload RetryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "contribution-1", payload.ContributionID)
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	p := newTestPipeline(t)
	handler := NewHandler(HandlerParams{Controller: p.controller})

	badTask := asynq.NewTask(TypeContributionRetry, []byte("not json"))
	err := handler.ProcessTask(context.Background(), badTask)
	require.Error(t, err)
	require.True(t, errutil.IsPermanent(err))
}

func TestHandlerRunsRetry(t *testing.T) {
	p := newTestPipeline(t)
	handler := NewHandler(HandlerParams{Controller: p.controller})
	ctx := context.Background()

	c := newContribution(0.5)
	require.NoError(t, p.controller.Create(ctx, c))

	task, err := NewRetryTask(c.ID)
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(ctx, task))
	require.Equal(t, StepCompleted, p.contribution(t, c.ID).Step)
}
