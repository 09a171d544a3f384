package repository

// Schema definitions for the merchant risk database.
// Compatible with both SQLite and PostgreSQL. Booleans are stored as INTEGER 0/1
// and structured values as JSON text.

const schemaMerchants = `
CREATE TABLE IF NOT EXISTS merchants (
    merchant_id TEXT PRIMARY KEY,
    business_name TEXT NOT NULL,
    owner_name TEXT NOT NULL,
    country TEXT NOT NULL,
    industry TEXT NOT NULL,
    mcc_code TEXT NOT NULL DEFAULT '',
    annual_volume TEXT NOT NULL,
    monthly_tx_count INTEGER NOT NULL DEFAULT 0,
    owner_pep INTEGER NOT NULL DEFAULT 0,
    owner_sanctioned INTEGER NOT NULL DEFAULT 0,
    years_in_business INTEGER NOT NULL DEFAULT 0,
    offshore_structure INTEGER NOT NULL DEFAULT 0,
    cash_intensive INTEGER NOT NULL DEFAULT 0,
    complex_ownership INTEGER NOT NULL DEFAULT 0,
    refund_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    chargeback_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    volume_change_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    risk_score INTEGER NOT NULL DEFAULT 0,
    risk_level TEXT NOT NULL,
    last_risk_assessment TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merchants_level ON merchants(risk_level);
CREATE INDEX IF NOT EXISTS idx_merchants_status ON merchants(status);
CREATE INDEX IF NOT EXISTS idx_merchants_score ON merchants(risk_score);
`

// schemaAssessments has no foreign key to merchants: history outlives a deleted merchant.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS risk_assessments (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    reasons TEXT NOT NULL,
    applied_rules TEXT NOT NULL,
    input_data TEXT NOT NULL,
    weights_used TEXT NOT NULL,
    thresholds_used TEXT NOT NULL,
    lists_used TEXT NOT NULL,
    is_override INTEGER NOT NULL DEFAULT 0,
    override_reason TEXT NOT NULL DEFAULT '',
    override_by TEXT NOT NULL DEFAULT '',
    assessed_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_merchant ON risk_assessments(merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON risk_assessments(risk_level, created_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    assessment_id TEXT NOT NULL DEFAULT '',
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    is_resolved INTEGER NOT NULL DEFAULT 0,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at TIMESTAMP,
    resolution_notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_merchant ON alerts(merchant_id);
CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts(is_resolved, created_at);
`

const schemaRiskConfigurations = `
CREATE TABLE IF NOT EXISTS risk_configurations (
    config_key TEXT PRIMARY KEY,
    config_value TEXT NOT NULL,
    config_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    updated_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaAuditLogs is append-only; the repository exposes no update or delete for it.
const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    action_type TEXT NOT NULL,
    merchant_id TEXT NOT NULL DEFAULT '',
    config_key TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    previous_value TEXT,
    new_value TEXT,
    ip_address TEXT NOT NULL DEFAULT '',
    endpoint TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_merchant ON audit_logs(merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_logs(action_type, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_config_key ON audit_logs(config_key, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMerchants,
		schemaAssessments,
		schemaAlerts,
		schemaRiskConfigurations,
		schemaAuditLogs,
	}
}
