package asynq

import (
	"time"

	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
)

// RetryDelayFunc maps the error taxonomy onto retry delays: backoff-class
// failures get exponential delays, everything else a flat fast-retry delay.
func RetryDelayFunc(cfg *config.Config) func(n int, err error, t *asynq.Task) time.Duration {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if !errutil.ShouldBackoff(err) {
			return cfg.Contribution.BaseDelay
		}
		return Delay(cfg.Contribution.BaseDelay, cfg.Contribution.MaxDelay, n)
	}
}

// Delay computes the nth exponential backoff delay within [base, max].
func Delay(base, max time.Duration, n int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.RandomizationFactor = 0.1
	bo.MaxElapsedTime = 0

	d := bo.NextBackOff()
	for i := 0; i < n; i++ {
		d = bo.NextBackOff()
	}
	if d > max {
		d = max
	}
	return d
}
