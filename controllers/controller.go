// Package controllers holds the gin handlers of the prediction service.
package controllers

import (
	"context"
	"time"

	"github.com/codingric/moneyman/classifier"
	"github.com/codingric/moneyman/models"
	"github.com/go-redis/redis/v8"
)

// Controller carries the collaborators shared by all handlers.
type Controller struct {
	Predictor classifier.Predictor
	Store     models.TransactionStore
	Redis     *redis.Client

	// Now is the clock used to default a missing date.
	Now           func() time.Time
	InsertTimeout time.Duration
	MaxBatch      int
}

func New(p classifier.Predictor, s models.TransactionStore) *Controller {
	return &Controller{
		Predictor:     p,
		Store:         s,
		Now:           time.Now,
		InsertTimeout: 5 * time.Second,
		MaxBatch:      500,
	}
}

func (ctl *Controller) today() time.Time {
	now := time.Now
	if ctl.Now != nil {
		now = ctl.Now
	}
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (ctl *Controller) insertContext(parent context.Context) (context.Context, context.CancelFunc) {
	if ctl.InsertTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, ctl.InsertTimeout)
}
