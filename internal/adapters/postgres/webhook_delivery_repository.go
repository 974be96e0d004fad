package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

// WebhookDeliveryRepository stores merchant webhook delivery rows
type WebhookDeliveryRepository struct {
	db ports.DBTX
}

// NewWebhookDeliveryRepository creates a new webhook delivery repository
func NewWebhookDeliveryRepository(db ports.DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

var _ ports.WebhookDeliveryStore = (*WebhookDeliveryRepository)(nil)

func (r *WebhookDeliveryRepository) CreateDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.WebhookPending
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO webhook_deliveries (id, reference_id, merchant_id, url, payload, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		d.ID, d.ReferenceID, d.MerchantID, d.URL, d.Payload, string(d.Status),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookDeliveryRepository) UpdateDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	httpStatus := pgtype.Int4{Int32: int32(d.HTTPStatus), Valid: d.HTTPStatus != 0}
	var deliveredAt pgtype.Timestamptz
	if d.DeliveredAt != nil {
		deliveredAt = pgtype.Timestamptz{Time: *d.DeliveredAt, Valid: true}
	}

	err := r.db.QueryRow(ctx,
		`UPDATE webhook_deliveries
		 SET status = $2, attempts = $3, http_status = $4, last_error = $5, delivered_at = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		d.ID, string(d.Status), d.Attempts, httpStatus, nullText(d.LastError), deliveredAt,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns deliveries for a reference, oldest first
func (r *WebhookDeliveryRepository) ListDeliveries(ctx context.Context, referenceID string) ([]*domain.WebhookDelivery, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, reference_id, merchant_id, url, payload, status, attempts, http_status, last_error,
		        delivered_at, created_at, updated_at
		 FROM webhook_deliveries
		 WHERE reference_id = $1
		 ORDER BY created_at`,
		referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookDelivery
	for rows.Next() {
		var (
			d           domain.WebhookDelivery
			id          uuid.UUID
			status      string
			httpStatus  pgtype.Int4
			lastError   pgtype.Text
			deliveredAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&id, &d.ReferenceID, &d.MerchantID, &d.URL, &d.Payload, &status, &d.Attempts, &httpStatus, &lastError,
			&deliveredAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		d.ID = id.String()
		d.Status = domain.WebhookDeliveryStatus(status)
		d.HTTPStatus = int(httpStatus.Int32)
		d.LastError = lastError.String
		if deliveredAt.Valid {
			t := deliveredAt.Time
			d.DeliveredAt = &t
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
