package option

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before execution.
type QueryOption func(*gorm.DB) *gorm.DB

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

type Operator string

const (
	EQ  Operator = "="
	NE  Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := sort.SortBy
		if column == "" {
			column = "created_at"
		}
		if sort.Allow != nil && !sort.Allow[column] {
			return db
		}
		order := "ASC"
		if sort.OrderBy == "desc" || sort.OrderBy == "DESC" {
			order = "DESC"
		}
		return db.Order(column + " " + order)
	}
}

func ApplyOperator(cond Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(cond.Field+" "+string(cond.Operator)+" ?", cond.Value)
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

// WithLockingUpdate acquires a row-level lock for the running transaction.
func WithLockingUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

// LockingUpdate is the scope form of WithLockingUpdate, usable with
// db.Scopes inside a transaction.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
