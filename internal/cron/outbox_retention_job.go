package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetentionDays      = 30
	defaultRetentionBatch     = 500
	maxRetentionBatchesPerRun = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settledEventDeleter interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository settledEventDeleter
	// Retention is the age in days after which settled rows go.
	Retention int
	// TerminalAttempts must match the relay's max attempts: rows at that
	// count were dead-lettered and are safe to drop.
	TerminalAttempts int
	BatchSize        int
}

// NewOutboxRetentionJob prunes outbox rows that no longer need publishing
// once they pass the retention window. Each batch commits on its own so a
// large backlog never holds one long transaction.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.TerminalAttempts <= 0:
		return nil, errors.New("terminal attempts must be positive")
	}
	job := &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		retention:        params.Retention,
		terminalAttempts: params.TerminalAttempts,
		batch:            params.BatchSize,
		now:              time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultRetentionDays
	}
	if job.batch <= 0 {
		job.batch = defaultRetentionBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	repo             settledEventDeleter
	retention        int
	terminalAttempts int
	batch            int
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	batches := 0
	for ; batches < maxRetentionBatchesPerRun; batches++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.DeleteSettledBefore(ctx, tx, cutoff, j.terminalAttempts, j.batch)
			deleted = n
			return err
		})
		if err != nil {
			return err
		}
		total += deleted
		if deleted < int64(j.batch) {
			batches++
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"batches":        batches,
		"rows_deleted":   total,
	}), "outbox retention cleanup complete")
	return nil
}
