// Package domain defines the core types and interfaces of the merchant risk engine.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Assessments and audit entries are append-only: there is no update or delete path for them.
type Repository interface {
	// InTx runs fn inside a single transaction. The Repository passed to fn
	// is bound to that transaction; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// Merchant registry
	CreateMerchant(ctx context.Context, m *Merchant) error
	UpdateMerchant(ctx context.Context, m *Merchant) error
	GetMerchant(ctx context.Context, merchantID string) (*Merchant, error)
	ListMerchants(ctx context.Context, filter MerchantFilter) ([]*Merchant, error)
	ListMerchantIDs(ctx context.Context) ([]string, error)
	DeleteMerchant(ctx context.Context, merchantID string) error

	// Assessment history
	SaveAssessment(ctx context.Context, a *AssessmentRecord) error
	GetAssessment(ctx context.Context, assessmentID string) (*AssessmentRecord, error)
	ListAssessments(ctx context.Context, merchantID string, limit int) ([]*AssessmentRecord, error)

	// Alerts
	SaveAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
	// ResolveAlert closes an open alert. It returns ErrConflict when the alert is
	// already resolved and ErrNotFound when it does not exist.
	ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string, at time.Time) (*Alert, error)

	// Risk configuration overrides
	GetRiskConfig(ctx context.Context, key string) (*RiskConfigEntry, error)
	SaveRiskConfig(ctx context.Context, entry *RiskConfigEntry) error

	// Audit log
	AppendAuditLog(ctx context.Context, entry *AuditLogEntry) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLogEntry, error)

	// Dashboard
	DashboardStats(ctx context.Context, since time.Time) (*DashboardStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
