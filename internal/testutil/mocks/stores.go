// Package mocks provides in-memory implementations of the store ports for
// service and handler tests.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-gateway/internal/domain"
	"github.com/kevin07696/payment-gateway/internal/domain/ports"
)

func cloneTxn(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.Payer != nil {
		p := *t.Payer
		c.Payer = &p
	}
	if t.Beneficiary != nil {
		b := *t.Beneficiary
		c.Beneficiary = &b
	}
	if t.Balance != nil {
		b := *t.Balance
		c.Balance = &b
	}
	c.Attempts = append([]domain.DispatchAttempt(nil), t.Attempts...)
	return &c
}

// MerchantDirectory is a static ports.MerchantDirectory
type MerchantDirectory struct {
	mu        sync.RWMutex
	merchants map[string]*domain.Merchant
	brackets  map[string][]domain.ChargeBracket
	platform  *domain.PlatformFeeConfig
}

// NewMerchantDirectory creates an empty directory
func NewMerchantDirectory() *MerchantDirectory {
	return &MerchantDirectory{
		merchants: make(map[string]*domain.Merchant),
		brackets:  make(map[string][]domain.ChargeBracket),
	}
}

var _ ports.MerchantDirectory = (*MerchantDirectory)(nil)

// AddMerchant registers m with the same brackets for both transaction types
func (d *MerchantDirectory) AddMerchant(m *domain.Merchant, brackets []domain.ChargeBracket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.merchants[m.ID] = m
	d.brackets[bracketKey(m.ID, domain.TransactionTypePayin)] = brackets
	d.brackets[bracketKey(m.ID, domain.TransactionTypePayout)] = brackets
}

// SetPlatformFee sets the active platform fee (nil clears it)
func (d *MerchantDirectory) SetPlatformFee(cfg *domain.PlatformFeeConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.platform = cfg
}

func bracketKey(merchantID string, txnType domain.TransactionType) string {
	return merchantID + "/" + string(txnType)
}

func (d *MerchantDirectory) GetMerchant(_ context.Context, merchantID string) (*domain.Merchant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.merchants[merchantID]
	if !ok {
		return nil, domain.ErrMerchantNotFound.WithDetail("merchant_id", merchantID)
	}
	copied := *m
	return &copied, nil
}

func (d *MerchantDirectory) ListBrackets(_ context.Context, merchantID string, txnType domain.TransactionType) ([]domain.ChargeBracket, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.ChargeBracket(nil), d.brackets[bracketKey(merchantID, txnType)]...), nil
}

func (d *MerchantDirectory) GetActivePlatformFee(context.Context) (*domain.PlatformFeeConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.platform, nil
}

// Ledger is an in-memory ports.TransactionLedger with the same at-most-once
// entry and non-negative debit rules as the PostgreSQL adapter.
type Ledger struct {
	mu       sync.Mutex
	rows     map[string]*domain.Transaction
	balances map[string]*domain.FinancialDetail
	entries  map[string]*domain.BalanceSnapshot

	// FinalizeErr, when set, is returned by Finalize without changing anything
	FinalizeErr error
	// FinalizeCalls counts Finalize invocations
	FinalizeCalls int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		rows:     make(map[string]*domain.Transaction),
		balances: make(map[string]*domain.FinancialDetail),
		entries:  make(map[string]*domain.BalanceSnapshot),
	}
}

var _ ports.TransactionLedger = (*Ledger)(nil)

// SetBalances seeds a merchant's wallet and settlement
func (l *Ledger) SetBalances(merchantID string, wallet, settlement decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[merchantID] = &domain.FinancialDetail{
		MerchantID: merchantID,
		Wallet:     wallet,
		Settlement: settlement,
		UpdatedAt:  time.Now(),
	}
}

// Entries returns how many ledger entries were recorded
func (l *Ledger) Entries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) CreatePending(_ context.Context, txn *domain.Transaction, reserve *domain.LedgerDelta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.rows[txn.ReferenceID]; ok {
		return domain.ErrDuplicateReference.WithDetail("reference_id", txn.ReferenceID)
	}

	row := cloneTxn(txn)
	row.Status = domain.StatusPending
	if reserve != nil {
		snapshot, err := l.apply(reserve)
		if err != nil {
			return err
		}
		row.Balance = snapshot
		txn.Balance = snapshot
	}
	row.UpdatedAt = time.Now()
	l.rows[txn.ReferenceID] = row
	return nil
}

func (l *Ledger) GetByReference(_ context.Context, referenceID string) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[referenceID]
	if !ok {
		return nil, domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	return cloneTxn(row), nil
}

func (l *Ledger) MarkDispatched(_ context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error) {
	if !status.IsDispatched() {
		return false, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[referenceID]
	if !ok || row.Status != domain.StatusPending {
		return false, nil
	}
	row.Status = status
	mergeGateway(&row.Gateway, gw)
	row.UpdatedAt = time.Now()
	return true, nil
}

func (l *Ledger) Finalize(
	_ context.Context,
	referenceID string,
	status domain.TransactionStatus,
	gw domain.GatewayResponse,
	delta *domain.LedgerDelta,
) (*domain.FinalizeResult, error) {
	if !status.IsTerminal() {
		return nil, domain.ErrTxnInvalidState.WithDetail("status", string(status))
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.FinalizeCalls++
	if l.FinalizeErr != nil {
		return nil, l.FinalizeErr
	}

	row, ok := l.rows[referenceID]
	if !ok {
		return nil, domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	if row.Status.IsTerminal() {
		return &domain.FinalizeResult{Status: row.Status}, nil
	}
	if !domain.CanTransition(row.Status, status) {
		return nil, domain.ErrTxnInvalidState.WithDetail("from", string(row.Status)).WithDetail("to", string(status))
	}

	result := &domain.FinalizeResult{Status: status, Applied: true}
	if delta != nil {
		snapshot, err := l.apply(delta)
		if err != nil {
			return nil, err
		}
		row.Balance = snapshot
		result.Balance = snapshot
	}
	row.Status = status
	mergeGateway(&row.Gateway, gw)
	row.UpdatedAt = time.Now()
	return result, nil
}

// apply must be called with l.mu held
func (l *Ledger) apply(delta *domain.LedgerDelta) (*domain.BalanceSnapshot, error) {
	key := delta.ReferenceID + "/" + string(delta.EntryType)
	if snapshot, ok := l.entries[key]; ok {
		copied := *snapshot
		return &copied, nil
	}

	fd, ok := l.balances[delta.MerchantID]
	if !ok {
		fd = &domain.FinancialDetail{MerchantID: delta.MerchantID}
		l.balances[delta.MerchantID] = fd
	}

	before := fd.Balance(delta.Account)
	after := before.Add(delta.Amount)
	if delta.Amount.IsNegative() && after.IsNegative() {
		return nil, domain.ErrInsufficientFunds.
			WithDetail("merchant_id", delta.MerchantID).
			WithDetail("required", delta.Amount.Neg().String())
	}
	if delta.Account == domain.AccountSettlement {
		fd.Settlement = after
	} else {
		fd.Wallet = after
	}
	fd.UpdatedAt = time.Now()

	snapshot := &domain.BalanceSnapshot{Account: delta.Account, Before: before, After: after}
	stored := *snapshot
	l.entries[key] = &stored
	return snapshot, nil
}

func (l *Ledger) GetFinancialDetail(_ context.Context, merchantID string) (*domain.FinancialDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fd, ok := l.balances[merchantID]
	if !ok {
		return nil, domain.ErrMerchantNotFound.WithDetail("merchant_id", merchantID)
	}
	copied := *fd
	return &copied, nil
}

func (l *Ledger) ListStale(_ context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Transaction
	for _, row := range l.rows {
		if row.Status.IsTerminal() || row.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, cloneTxn(row))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Age moves a row's updated_at into the past so ListStale picks it up
func (l *Ledger) Age(referenceID string, by time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[referenceID]; ok {
		row.UpdatedAt = row.UpdatedAt.Add(-by)
	}
}

func mergeGateway(dst *domain.GatewayResponse, src domain.GatewayResponse) {
	if src.Code != "" {
		dst.Code = src.Code
	}
	if src.Message != "" {
		dst.Message = src.Message
	}
	if src.UTR != "" {
		dst.UTR = src.UTR
	}
	if src.ProviderReference != "" {
		dst.ProviderReference = src.ProviderReference
	}
	if src.QRPayload != "" {
		dst.QRPayload = src.QRPayload
	}
	if src.Raw != "" {
		dst.Raw = src.Raw
	}
}

// RecordStore is an in-memory ports.RecordStore
type RecordStore struct {
	mu   sync.Mutex
	docs map[string]*domain.Transaction

	// UpdateErr, when set, is returned by UpdateStatus
	UpdateErr error
}

// NewRecordStore creates an empty record store
func NewRecordStore() *RecordStore {
	return &RecordStore{docs: make(map[string]*domain.Transaction)}
}

var _ ports.RecordStore = (*RecordStore)(nil)

func (s *RecordStore) Create(_ context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[txn.ReferenceID]; ok {
		return domain.ErrDuplicateReference.WithDetail("reference_id", txn.ReferenceID)
	}
	s.docs[txn.ReferenceID] = cloneTxn(txn)
	return nil
}

func (s *RecordStore) Get(_ context.Context, referenceID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[referenceID]
	if !ok {
		return nil, domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	return cloneTxn(doc), nil
}

func (s *RecordStore) GetByTransactionID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.ID == transactionID {
			return cloneTxn(doc), nil
		}
	}
	return nil, domain.ErrTxnNotFound.WithDetail("transaction_id", transactionID)
}

func (s *RecordStore) UpdateStatus(_ context.Context, referenceID string, status domain.TransactionStatus, gw domain.GatewayResponse) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	doc, ok := s.docs[referenceID]
	if !ok || !domain.CanTransition(doc.Status, status) {
		return false, nil
	}
	doc.Status = status
	mergeGateway(&doc.Gateway, gw)
	doc.UpdatedAt = time.Now()
	return true, nil
}

func (s *RecordStore) AppendAttempt(_ context.Context, referenceID string, attempt domain.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[referenceID]
	if !ok {
		return domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	doc.Attempts = append(doc.Attempts, attempt)
	return nil
}

func (s *RecordStore) SetBalance(_ context.Context, referenceID string, balance domain.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[referenceID]
	if !ok {
		return domain.ErrTxnNotFound.WithDetail("reference_id", referenceID)
	}
	doc.Balance = &balance
	return nil
}

func (s *RecordStore) DeleteAbandoned(_ context.Context, referenceID, lineage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[referenceID]
	if !ok || doc.Status != domain.StatusPending || len(doc.Attempts) > 0 || doc.IntakeLineage != lineage {
		return false, nil
	}
	delete(s.docs, referenceID)
	return true, nil
}

// WebhookStore is an in-memory ports.WebhookDeliveryStore
type WebhookStore struct {
	mu         sync.Mutex
	deliveries []*domain.WebhookDelivery
	seq        int
}

// NewWebhookStore creates an empty delivery store
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{}
}

var _ ports.WebhookDeliveryStore = (*WebhookStore)(nil)

func (s *WebhookStore) CreateDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if d.ID == "" {
		d.ID = fmt.Sprintf("wh-%d", s.seq)
	}
	if d.Status == "" {
		d.Status = domain.WebhookPending
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	copied := *d
	s.deliveries = append(s.deliveries, &copied)
	return nil
}

func (s *WebhookStore) UpdateDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.deliveries {
		if existing.ID == d.ID {
			d.UpdatedAt = time.Now()
			copied := *d
			s.deliveries[i] = &copied
			return nil
		}
	}
	return domain.NewDomainError(domain.ErrorCodeInternalError, "webhook delivery not found")
}

func (s *WebhookStore) ListDeliveries(_ context.Context, referenceID string) ([]*domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WebhookDelivery
	for _, d := range s.deliveries {
		if d.ReferenceID == referenceID {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

// CallbackAudit is an in-memory ports.CallbackAuditStore
type CallbackAudit struct {
	mu      sync.Mutex
	allowed map[string][]string
	records []domain.CallbackAudit
}

// NewCallbackAudit creates an audit store with the given allowlist per provider
func NewCallbackAudit(allowed map[string][]string) *CallbackAudit {
	if allowed == nil {
		allowed = make(map[string][]string)
	}
	return &CallbackAudit{allowed: allowed}
}

var _ ports.CallbackAuditStore = (*CallbackAudit)(nil)

func (a *CallbackAudit) ListAllowedCIDRs(_ context.Context, provider string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.allowed[provider]...), nil
}

func (a *CallbackAudit) RecordCallback(_ context.Context, entry domain.CallbackAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, entry)
	return nil
}

// Records returns the audit trail so far
func (a *CallbackAudit) Records() []domain.CallbackAudit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.CallbackAudit(nil), a.records...)
}
