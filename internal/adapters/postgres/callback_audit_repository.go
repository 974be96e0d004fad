package postgres

import (
	"context"
	"fmt"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

// CallbackAuditRepository reads the provider callback allowlist and writes
// the callback audit log
type CallbackAuditRepository struct {
	db ports.DBTX
}

// NewCallbackAuditRepository creates a new callback audit repository
func NewCallbackAuditRepository(db ports.DBTX) *CallbackAuditRepository {
	return &CallbackAuditRepository{db: db}
}

var _ ports.CallbackAuditStore = (*CallbackAuditRepository)(nil)

func (r *CallbackAuditRepository) ListAllowedCIDRs(ctx context.Context, provider string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cidr FROM callback_allowed_ips WHERE provider = $1 AND is_active ORDER BY id`,
		provider,
	)
	if err != nil {
		return nil, fmt.Errorf("list callback allowlist: %w", err)
	}
	defer rows.Close()

	var cidrs []string
	for rows.Next() {
		var cidr string
		if err := rows.Scan(&cidr); err != nil {
			return nil, fmt.Errorf("scan callback allowlist: %w", err)
		}
		cidrs = append(cidrs, cidr)
	}
	return cidrs, rows.Err()
}

func (r *CallbackAuditRepository) RecordCallback(ctx context.Context, entry domain.CallbackAudit) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO callback_audit_log (provider, source_ip, reference_id, authorized, failure_reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Provider, entry.SourceIP, nullText(entry.ReferenceID), entry.Authorized, nullText(entry.FailureReason),
	)
	if err != nil {
		return fmt.Errorf("record callback audit: %w", err)
	}
	return nil
}
