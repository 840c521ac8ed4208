// Package audit records who did what to orders and payments. Writes happen
// after the business transaction commits and never fail the caller.
package audit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	ModelOrder   = "Order"
	ModelPayment = "Payment"
)

// Entry describes one audited action.
type Entry struct {
	UserID    *uuid.UUID
	Action    enums.AuditAction
	ModelName string
	ObjectID  uuid.UUID
	Details   map[string]any
}

// Recorder is the surface domain services depend on.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

type repository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type Service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Record stores the entry together with the request metadata found on ctx.
// Failures are logged and dropped.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if s == nil || s.repo == nil {
		return
	}
	if !entry.Action.IsValid() {
		s.warn(ctx, "audit entry with unknown action dropped", nil)
		return
	}

	row := &models.AuditLog{
		UserID:    entry.UserID,
		Action:    entry.Action,
		ModelName: entry.ModelName,
		ObjectID:  entry.ObjectID.String(),
	}
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			s.warn(ctx, "audit details not serialisable", err)
		} else {
			row.Details = raw
		}
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		row.IPAddress = optional(meta.IPAddress)
		row.UserAgent = optional(meta.UserAgent)
		row.RequestID = optional(meta.RequestID)
	}

	// The request may already be finished; the row should still land.
	if err := s.repo.Create(context.WithoutCancel(ctx), row); err != nil {
		s.warn(ctx, "audit log write failed", err)
	}
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	if err != nil {
		ctx = s.logg.WithField(ctx, "error", err.Error())
	}
	s.logg.Warn(ctx, msg)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
