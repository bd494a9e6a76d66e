package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"rewards-pipeline/pkg/db/option"
)

// Repository is a generic gorm-backed store. Query structs are matched by
// their non-zero fields; rows are keyed by a string "id" primary column.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) apply(db *gorm.DB, opts []option.QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var results []*T
	db := s.apply(s.db.WithContext(ctx).Where(query), opts)
	if err := db.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindOne returns (nil, nil) when no row matches.
func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	db := s.apply(s.db.WithContext(ctx).Where(query), opts)
	if err := db.First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, 100).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	for _, resource := range resources {
		if err := s.db.WithContext(ctx).Save(resource).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(new(T)).Where(query).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
