package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"rewards-pipeline/pkg/config"
)

type enqueuerMock struct {
	tasks []*asynq.Task
}

func (m *enqueuerMock) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func newTaskHandler(t *testing.T, adsEnabled bool, client ConfirmationClient) (*Handler, *enqueuerMock) {
	t.Helper()

	issuer := newIssuerStub(t)
	redeemer, _ := newTestRedeemer(t, adsEnabled, issuer, client)

	cfg := &config.Config{}
	cfg.Contribution.BaseDelay = 15 * time.Second
	cfg.Contribution.MaxDelay = time.Hour

	enqueuer := &enqueuerMock{}
	handler := NewHandler(HandlerParams{
		Config:   cfg,
		Redeemer: redeemer,
		Enqueuer: enqueuer,
	})
	return handler, enqueuer
}

func TestProcessTaskRequeuesWhenTokenNotReady(t *testing.T) {
	client := &clientMock{
		fetchFunc: func(ctx context.Context, c *Confirmation) (string, int, error) { return "", 404, nil },
	}
	handler, enqueuer := newTaskHandler(t, true, client)

	task, err := NewRedeemTask(&Confirmation{ID: "confirmation-1"}, 0)
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Len(t, enqueuer.tasks, 1)
	require.Equal(t, TypeRedeemConfirmation, enqueuer.tasks[0].Type())
}

func TestProcessTaskDropsPermanentFailures(t *testing.T) {
	client := &clientMock{
		createFunc: func(ctx context.Context, c *Confirmation) (int, error) { return 409, nil },
	}
	handler, enqueuer := newTaskHandler(t, false, client)

	task, err := NewRedeemTask(&Confirmation{ID: "confirmation-1"}, 0)
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Empty(t, enqueuer.tasks)
}

func TestProcessTaskRejectsMalformedPayload(t *testing.T) {
	handler, _ := newTaskHandler(t, false, &clientMock{})

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TypeRedeemConfirmation, []byte("not json")))
	require.Error(t, err)
}
