// Package audit writes and queries the append-only audit trail.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// DefaultLimit caps queries that do not set a limit.
const DefaultLimit = 100

// Logger appends audit entries through a repository. Bind it to a transaction's
// repository to make the entry part of that transaction.
type Logger struct {
	repo domain.Repository
	now  func() time.Time
}

// New creates a Logger on repo.
func New(repo domain.Repository) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// Append validates and writes one entry. The caller's entry gets its ID and CreatedAt filled in.
func (l *Logger) Append(ctx context.Context, e *domain.AuditLogEntry) error {
	if !e.ActionType.Valid() {
		return fmt.Errorf("%w: unknown audit action %q", domain.ErrValidation, e.ActionType)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: audit description is required", domain.ErrValidation)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if err := l.repo.AppendAuditLog(ctx, e); err != nil {
		return fmt.Errorf("failed to append %s audit entry: %w", e.ActionType, err)
	}
	return nil
}

// Merchant records an action on a merchant.
func (l *Logger) Merchant(ctx context.Context, action domain.AuditAction, merchantID, description string, prev, next map[string]any, meta domain.RequestMeta) (*domain.AuditLogEntry, error) {
	e := &domain.AuditLogEntry{
		ActionType:    action,
		MerchantID:    merchantID,
		Description:   description,
		PreviousValue: prev,
		NewValue:      next,
		RequestMeta:   meta,
	}
	return e, l.Append(ctx, e)
}

// ConfigChange records a write to a configuration key.
func (l *Logger) ConfigChange(ctx context.Context, key string, prev, next map[string]any, meta domain.RequestMeta) (*domain.AuditLogEntry, error) {
	e := &domain.AuditLogEntry{
		ActionType:    domain.ActionConfigChange,
		ConfigKey:     key,
		Description:   fmt.Sprintf("Updated %s", key),
		PreviousValue: prev,
		NewValue:      next,
		RequestMeta:   meta,
	}
	return e, l.Append(ctx, e)
}

// MerchantTrail returns every entry for a merchant, newest first.
func (l *Logger) MerchantTrail(ctx context.Context, merchantID string, limit int) ([]*domain.AuditLogEntry, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchant id is required", domain.ErrValidation)
	}
	return l.repo.ListAuditLogs(ctx, domain.AuditFilter{MerchantID: merchantID, Limit: clamp(limit)})
}

// Recent returns entries from the last hours, optionally restricted to one action type.
func (l *Logger) Recent(ctx context.Context, action domain.AuditAction, hours, limit int) ([]*domain.AuditLogEntry, error) {
	if action != "" && !action.Valid() {
		return nil, fmt.Errorf("%w: unknown audit action %q", domain.ErrValidation, action)
	}
	if hours <= 0 {
		hours = 24
	}
	return l.repo.ListAuditLogs(ctx, domain.AuditFilter{
		ActionType: action,
		Since:      l.now().Add(-time.Duration(hours) * time.Hour),
		Limit:      clamp(limit),
	})
}

// ConfigHistory returns CONFIG_CHANGE entries, optionally for one key, newest first.
func (l *Logger) ConfigHistory(ctx context.Context, key string, limit int) ([]*domain.AuditLogEntry, error) {
	return l.repo.ListAuditLogs(ctx, domain.AuditFilter{
		ActionType: domain.ActionConfigChange,
		ConfigKey:  key,
		Limit:      clamp(limit),
	})
}

func clamp(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, 1000)
}
