package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mateoreyes/ordercore-backend/pkg/logger"
	"github.com/mateoreyes/ordercore-backend/pkg/metrics"
)

const expiryBatchSize = 200

// orderExpirer is the slice of the order service the expiry job needs.
type orderExpirer interface {
	ExpireDueOrders(ctx context.Context, now time.Time, limit int) (int, error)
}

// OrderExpiryJobParams configure the payment window sweeper.
type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Orders  orderExpirer
	Metrics *metrics.CronJobMetrics
}

// NewOrderExpiryJob builds the job that cancels orders whose payment window
// closed without a settlement.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	orders  orderExpirer
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	expired, err := j.orders.ExpireDueOrders(ctx, j.now().UTC(), expiryBatchSize)
	if expired > 0 && j.metrics != nil {
		j.metrics.AddExpiredOrders(j.Name(), expired)
	}
	if err != nil {
		return fmt.Errorf("expire due orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": expired})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return nil
}
