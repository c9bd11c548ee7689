package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codingric/moneyman/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// DateLayout is the calendar date format used on the wire and in filters.
const DateLayout = "2006-01-02"

var ErrInvalidFilter = errors.New("invalid filter")

// Transaction is one prediction record in the transactions table.
type Transaction struct {
	ID                uint      `gorm:"primaryKey"`
	UserID            string    `gorm:"column:user_id;index"`
	Description       string    `gorm:"column:description"`
	Amount            float64   `gorm:"column:amount"`
	PredictedCategory string    `gorm:"column:predicted_category"`
	Date              time.Time `gorm:"column:date;type:date"`
	Confidence        float64   `gorm:"column:confidence"`
}

func (Transaction) TableName() string { return "transactions" }

// Filter narrows a listing, e.g. amount__gt=10 becomes {"amount", "gt", "10"}.
type Filter struct {
	Field string
	Op    string
	Value string
}

var operators = map[string]string{
	"eq":   "=",
	"ne":   "!=",
	"gt":   ">",
	"ge":   ">=",
	"lt":   "<",
	"le":   "<=",
	"like": "LIKE",
}

type kind int

const (
	text kind = iota
	number
	date
)

// filterable columns; anything else is rejected so field names never reach
// SQL unchecked.
var columns = map[string]kind{
	"description":        text,
	"predicted_category": text,
	"amount":             number,
	"confidence":         number,
	"date":               date,
}

// ParseFilter splits a `field__op` query key. A key without an operator
// means eq.
func ParseFilter(key, value string) (Filter, error) {
	f := Filter{Field: key, Op: "eq", Value: value}
	if p := strings.SplitN(key, "__", 2); len(p) == 2 {
		f.Field, f.Op = p[0], p[1]
	}
	if _, ok := columns[f.Field]; !ok {
		return f, fmt.Errorf("%w: unknown field %s", ErrInvalidFilter, f.Field)
	}
	if _, ok := operators[f.Op]; !ok {
		return f, fmt.Errorf("%w: invalid operator %s", ErrInvalidFilter, f.Op)
	}
	return f, nil
}

func (f Filter) apply(query *gorm.DB) (*gorm.DB, error) {
	op, ok := operators[f.Op]
	if !ok {
		return nil, fmt.Errorf("%w: invalid operator %s", ErrInvalidFilter, f.Op)
	}
	k, ok := columns[f.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %s", ErrInvalidFilter, f.Field)
	}

	var val interface{} = f.Value
	switch {
	case f.Op == "like":
		if k != text {
			return nil, fmt.Errorf("%w: like is only supported on text fields", ErrInvalidFilter)
		}
		val = "%" + f.Value + "%"
	case k == number:
		n, err := strconv.ParseFloat(f.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", ErrInvalidFilter, f.Value)
		}
		val = n
	case k == date:
		d, err := time.Parse(DateLayout, f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a date", ErrInvalidFilter, f.Value)
		}
		val = d
	}
	return query.Where(f.Field+" "+op+" ?", val), nil
}

// TransactionStore persists prediction records.
type TransactionStore interface {
	Insert(ctx context.Context, t *Transaction) error
	List(ctx context.Context, userID string, filters []Filter) ([]Transaction, error)
	Ping(ctx context.Context) error
}

type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Insert writes t inside its own database transaction; on failure nothing is
// committed.
func (s *Store) Insert(ctx context.Context, t *Transaction) error {
	ctx, span := tracing.NewSpan("models.insert", ctx)
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", t.UserID),
		attribute.String("predicted_category", t.PredictedCategory),
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// List returns a user's transactions, newest first.
func (s *Store) List(ctx context.Context, userID string, filters []Filter) ([]Transaction, error) {
	ctx, span := tracing.NewSpan("models.list", ctx)
	defer span.End()

	query := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	for _, f := range filters {
		var err error
		if query, err = f.apply(query); err != nil {
			return nil, err
		}
	}

	transactions := []Transaction{}
	if err := query.Order("date DESC").Order("id DESC").Find(&transactions).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	return transactions, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
