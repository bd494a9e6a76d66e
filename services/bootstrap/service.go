package bootstrap

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-pipeline/services/adevents"
	"rewards-pipeline/services/contribution"
	"rewards-pipeline/services/credentials"
	"rewards-pipeline/services/order"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Migrate creates or updates the pipeline tables.
func (s *Service) Migrate() error {
	err := s.db.AutoMigrate(
		&adevents.AdEvent{},
		&order.SKUOrder{},
		&order.SKUOrderItem{},
		&credentials.CredsBatch{},
		&credentials.UnblindedToken{},
		&contribution.Contribution{},
	)
	if err != nil {
		zap.L().Error("failed to run migrations", zap.Error(err))
		return err
	}

	zap.L().Info("database migrations applied")
	return nil
}
