package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewards-pipeline/pkg/asynq"
	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/db"
	"rewards-pipeline/pkg/gen"
	"rewards-pipeline/pkg/logger"
	"rewards-pipeline/pkg/redis"
	"rewards-pipeline/pkg/task"
	"rewards-pipeline/services/adevents"
	"rewards-pipeline/services/bootstrap"
	"rewards-pipeline/services/confirmation"
	"rewards-pipeline/services/contribution"
	"rewards-pipeline/services/credentials"
	"rewards-pipeline/services/eligibility"
	"rewards-pipeline/services/order"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		asynq.Client,
		asynq.Server,
		task.Module,
		bootstrap.Module,
		adevents.Module,
		eligibility.Module,
		order.Module,
		credentials.Module,
		contribution.Module,
		confirmation.Module,
		fx.Invoke(db.Otel, db.Metric),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
