package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Stats summarises payment attempts by outcome.
type Stats struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// buildStats derives the success rate as a percentage rounded to two places.
// No payments means a rate of zero.
func buildStats(counts map[enums.PaymentStatus]int64) Stats {
	stats := Stats{
		Successful: counts[enums.PaymentStatusSuccess],
		Failed:     counts[enums.PaymentStatusFailed],
		Pending:    counts[enums.PaymentStatusPending],
	}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Total > 0 {
		rate := decimal.NewFromInt(stats.Successful).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(stats.Total)).
			Round(2)
		stats.SuccessRate = rate.InexactFloat64()
	}
	return stats
}

type statsMetrics interface {
	SetPaymentStats(total, successful, failed, pending int64, successRate float64)
}

// StatsReader computes payment statistics without touching the gateway. The
// cron worker uses it to refresh the payment gauges.
type StatsReader struct {
	repo    Repository
	metrics statsMetrics
}

func NewStatsReader(repo Repository, m statsMetrics) *StatsReader {
	return &StatsReader{repo: repo, metrics: m}
}

// Stats counts payments by status and refreshes the payment gauges.
func (r *StatsReader) Stats(ctx context.Context) (*Stats, error) {
	counts, err := r.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
	}
	stats := buildStats(counts)
	if r.metrics != nil {
		r.metrics.SetPaymentStats(stats.Total, stats.Successful, stats.Failed, stats.Pending, stats.SuccessRate)
	}
	return &stats, nil
}
