// Package mongostore is the document mirror of transactions. It is the
// source of truth for transaction status.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

// CollectionTransactions holds one document per reference_id
const CollectionTransactions = "transactions"

// RecordStore implements ports.RecordStore on a mongo collection keyed by
// reference_id, so uniqueness comes from _id.
type RecordStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
	now    func() time.Time
}

// NewRecordStore creates a new record store over db
func NewRecordStore(db *mongo.Database, logger *zap.Logger) *RecordStore {
	return &RecordStore{
		coll:   db.Collection(CollectionTransactions),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.RecordStore = (*RecordStore)(nil)

// EnsureIndexes creates the secondary indexes. Safe to call on every start.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_transaction_id"),
		},
		{
			Keys:    bson.D{{Key: "merchant_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("merchant_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("status_updated"),
		},
	})
	if err != nil {
		return fmt.Errorf("create transaction indexes: %w", err)
	}
	return nil
}

func (s *RecordStore) Create(ctx context.Context, txn *domain.Transaction) error {
	now := s.now()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now

	doc, err := toDoc(txn)
	if err != nil {
		return err
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.WrapError(domain.ErrorCodeDuplicateReference, "reference_id already exists", err).
				WithDetail("reference_id", txn.ReferenceID)
		}
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

func (s *RecordStore) findOne(ctx context.Context, field, value string) (*domain.Transaction, error) {
	var doc transactionDoc
	err := s.coll.FindOne(ctx, bson.M{field: value}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTxnNotFound.WithDetail("lookup", value)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction record: %w", err)
	}
	return doc.toDomain()
}

// Get returns ErrTxnNotFound when no record exists
func (s *RecordStore) Get(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	return s.findOne(ctx, "_id", referenceID)
}

func (s *RecordStore) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.findOne(ctx, "transaction_id", transactionID)
}

// UpdateStatus is a conditional write: it only matches while the stored
// status is a legal predecessor of status, so terminal records never move.
func (s *RecordStore) UpdateStatus(ctx context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error) {
	preds := domain.Predecessors(status)
	if len(preds) == 0 {
		return false, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}
	from := make([]string, 0, len(preds))
	for _, p := range preds {
		from = append(from, string(p))
	}

	set := bson.M{
		"status":     string(status),
		"updated_at": s.now(),
	}
	// Keep earlier gateway fields when the new response leaves them blank
	for field, value := range map[string]string{
		"gateway_response.code":               gw.Code,
		"gateway_response.message":            gw.Message,
		"gateway_response.utr":                gw.UTR,
		"gateway_response.provider_reference": gw.ProviderReference,
		"gateway_response.qr_payload":         gw.QRPayload,
		"gateway_response.raw":                gw.Raw,
	} {
		if value != "" {
			set[field] = value
		}
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": referenceID, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	if res.MatchedCount == 0 {
		return false, nil
	}

	s.logger.Debug("Transaction record status updated",
		zap.String("reference_id", referenceID),
		zap.String("status", string(status)),
	)
	return true, nil
}

// AppendAttempt records a dispatch attempt
func (s *RecordStore) AppendAttempt(ctx context.Context, referenceID string, attempt domain.DispatchAttempt) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": referenceID},
		bson.M{
			"$push": bson.M{"attempts": attemptToDoc(attempt)},
			"$set":  bson.M{"updated_at": s.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("append dispatch attempt: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	return nil
}

// SetBalance copies the ledger's balance snapshot onto the record
func (s *RecordStore) SetBalance(ctx context.Context, referenceID string, balance domain.BalanceSnapshot) error {
	doc, err := balanceToDoc(&balance)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": referenceID},
		bson.M{"$set": bson.M{"balance": doc, "updated_at": s.now()}},
	)
	if err != nil {
		return fmt.Errorf("set transaction balance: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	return nil
}

// DeleteAbandoned compensates a failed intake. It only removes the record the
// same intake created and only before any worker touched it.
func (s *RecordStore) DeleteAbandoned(ctx context.Context, referenceID, lineage string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{
		"_id":            referenceID,
		"intake_lineage": lineage,
		"status":         string(domain.StatusPending),
		"attempts":       bson.M{"$size": 0},
	})
	if err != nil {
		return false, fmt.Errorf("delete abandoned transaction record: %w", err)
	}
	if res.DeletedCount == 1 {
		s.logger.Warn("Abandoned transaction record removed",
			zap.String("reference_id", referenceID),
		)
	}
	return res.DeletedCount == 1, nil
}
