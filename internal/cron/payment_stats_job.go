package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type paymentStatsSource interface {
	Stats(ctx context.Context) (*payments.Stats, error)
}

// NewPaymentStatsJob refreshes the payment gauges from the payments table so
// dashboards stay current even when nobody calls the admin stats endpoint.
func NewPaymentStatsJob(logg *logger.Logger, source paymentStatsSource) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if source == nil {
		return nil, fmt.Errorf("payment stats source required")
	}
	return &paymentStatsJob{logg: logg, source: source}, nil
}

type paymentStatsJob struct {
	logg   *logger.Logger
	source paymentStatsSource
}

func (j *paymentStatsJob) Name() string { return "payment-stats" }

func (j *paymentStatsJob) Run(ctx context.Context) error {
	stats, err := j.source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("payment stats: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"total":        stats.Total,
		"successful":   stats.Successful,
		"failed":       stats.Failed,
		"pending":      stats.Pending,
		"success_rate": stats.SuccessRate,
	}), "payment stats refreshed")
	return nil
}
