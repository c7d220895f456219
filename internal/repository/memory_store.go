package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"blendpos-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memoryData holds the tables. Methods on it never lock; callers do.
type memoryData struct {
	ledgers    map[string]model.BillLedger
	payments   []model.Payment
	paymentIdx map[uuid.UUID]int
	refunds    []model.Refund
	audit      []model.AuditLogEntry
	sessions   []model.CajaSession
	sessionIdx map[uuid.UUID]int
}

// memoryStore is a Store for development and unit tests. One mutex serialises
// every transaction across all bills, so it is only correct for a single
// process. Writes are rolled back through an undo log.
type memoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{data: &memoryData{
		ledgers:    make(map[string]model.BillLedger),
		paymentIdx: make(map[uuid.UUID]int),
		sessionIdx: make(map[uuid.UUID]int),
	}}
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{memoryData: s.data}
	err := fn(tx)
	if err == nil {
		// a transaction whose deadline passed before commit does not commit
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
	}
	return err
}

func (s *memoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// ── Reader (locked) ─────────────────────────────────────────────────────────

func (s *memoryStore) FindLedger(ctx context.Context, billingID string) (*model.BillLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindLedger(ctx, billingID)
}

func (s *memoryStore) ListLedgersUpdatedSince(ctx context.Context, since time.Time, limit int) ([]model.BillLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListLedgersUpdatedSince(ctx, since, limit)
}

func (s *memoryStore) FindPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPayment(ctx, id)
}

func (s *memoryStore) ListPaymentsByBilling(ctx context.Context, billingID string) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListPaymentsByBilling(ctx, billingID)
}

func (s *memoryStore) CountPaymentsByIdempotencyKey(ctx context.Context, billingID, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CountPaymentsByIdempotencyKey(ctx, billingID, key)
}

func (s *memoryStore) SumBillingTotals(ctx context.Context, billingID string) (BillingTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SumBillingTotals(ctx, billingID)
}

func (s *memoryStore) SumPaymentsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SumPaymentsByMethod(ctx, cajaSessionID)
}

func (s *memoryStore) SumRefundsByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SumRefundsByPayment(ctx, paymentID)
}

func (s *memoryStore) ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRefundsByPayment(ctx, paymentID)
}

func (s *memoryStore) ListRefundsByBilling(ctx context.Context, billingID string) ([]model.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRefundsByBilling(ctx, billingID)
}

func (s *memoryStore) SumRefundsByMethod(ctx context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SumRefundsByMethod(ctx, cajaSessionID)
}

func (s *memoryStore) ListAuditLogs(ctx context.Context, billingID string, offset, limit int) ([]model.AuditLogEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListAuditLogs(ctx, billingID, offset, limit)
}

func (s *memoryStore) FindOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindOpenCajaSession(ctx, scope)
}

func (s *memoryStore) FindCajaSession(ctx context.Context, id uuid.UUID) (*model.CajaSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindCajaSession(ctx, id)
}

func (s *memoryStore) ListCajaSessions(ctx context.Context, scope string, offset, limit int) ([]model.CajaSession, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListCajaSessions(ctx, scope, offset, limit)
}

// ── Reader (unlocked) ───────────────────────────────────────────────────────

func (d *memoryData) FindLedger(_ context.Context, billingID string) (*model.BillLedger, error) {
	l, ok := d.ledgers[billingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (d *memoryData) ListLedgersUpdatedSince(_ context.Context, since time.Time, limit int) ([]model.BillLedger, error) {
	out := make([]model.BillLedger, 0)
	for _, l := range d.ledgers {
		if !l.UpdatedAt.Before(since) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memoryData) FindPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	i, ok := d.paymentIdx[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := d.payments[i]
	return &p, nil
}

func (d *memoryData) ListPaymentsByBilling(_ context.Context, billingID string) ([]model.Payment, error) {
	out := make([]model.Payment, 0)
	for _, p := range d.payments {
		if p.BillingID == billingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *memoryData) CountPaymentsByIdempotencyKey(_ context.Context, billingID, key string) (int64, error) {
	var n int64
	for _, p := range d.payments {
		if p.BillingID == billingID && p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			n++
		}
	}
	return n, nil
}

func (d *memoryData) SumBillingTotals(_ context.Context, billingID string) (BillingTotals, error) {
	t := BillingTotals{Paid: decimal.Zero, Discount: decimal.Zero, Tip: decimal.Zero, Refunded: decimal.Zero}
	for _, p := range d.payments {
		if p.BillingID != billingID {
			continue
		}
		t.Paid = t.Paid.Add(p.AmountPaid)
		t.Discount = t.Discount.Add(p.DiscountAmount)
		t.Tip = t.Tip.Add(p.TipAmount)
	}
	for _, r := range d.refunds {
		if r.BillingID == billingID {
			t.Refunded = t.Refunded.Add(r.Amount)
		}
	}
	return t, nil
}

func (d *memoryData) SumPaymentsByMethod(_ context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	acc := newMethodAccumulator()
	for _, p := range d.payments {
		if p.PaymentMethod == model.MethodDiscount || !attributedTo(p.CajaSessionID, cajaSessionID) {
			continue
		}
		acc.add(p.PaymentMethod, p.AmountPaid)
	}
	return acc.summaries(), nil
}

func (d *memoryData) SumRefundsByPayment(_ context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range d.refunds {
		if r.PaymentID == paymentID {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (d *memoryData) ListRefundsByPayment(_ context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	out := make([]model.Refund, 0)
	for _, r := range d.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memoryData) ListRefundsByBilling(_ context.Context, billingID string) ([]model.Refund, error) {
	out := make([]model.Refund, 0)
	for _, r := range d.refunds {
		if r.BillingID == billingID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memoryData) SumRefundsByMethod(_ context.Context, cajaSessionID uuid.UUID) ([]MethodSummary, error) {
	acc := newMethodAccumulator()
	for _, r := range d.refunds {
		if attributedTo(r.CajaSessionID, cajaSessionID) {
			acc.add(r.Method, r.Amount)
		}
	}
	return acc.summaries(), nil
}

func (d *memoryData) ListAuditLogs(_ context.Context, billingID string, offset, limit int) ([]model.AuditLogEntry, int64, error) {
	matched := make([]model.AuditLogEntry, 0)
	for i := len(d.audit) - 1; i >= 0; i-- {
		if d.audit[i].BillingID == billingID {
			matched = append(matched, d.audit[i])
		}
	}
	// newest first; equal timestamps keep reverse insertion order
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	return page(matched, offset, limit), total, nil
}

func (d *memoryData) FindOpenCajaSession(_ context.Context, scope string) (*model.CajaSession, error) {
	for _, s := range d.sessions {
		if s.Scope == scope && s.Status == model.CajaOpen {
			out := s
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memoryData) FindCajaSession(_ context.Context, id uuid.UUID) (*model.CajaSession, error) {
	i, ok := d.sessionIdx[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := d.sessions[i]
	return &s, nil
}

func (d *memoryData) ListCajaSessions(_ context.Context, scope string, offset, limit int) ([]model.CajaSession, int64, error) {
	matched := make([]model.CajaSession, 0)
	for _, s := range d.sessions {
		if scope == "" || s.Scope == scope {
			matched = append(matched, s)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].OpenedAt.After(matched[j].OpenedAt) })
	total := int64(len(matched))
	return page(matched, offset, limit), total, nil
}

// ── Tx ──────────────────────────────────────────────────────────────────────

type memoryTx struct {
	*memoryData
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) LockLedger(_ context.Context, billingID string, seed *model.BillLedger) (*model.BillLedger, error) {
	if l, ok := t.ledgers[billingID]; ok {
		return &l, nil
	}
	if seed == nil {
		return nil, ErrNotFound
	}
	l := *seed
	now := time.Now()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	t.ledgers[billingID] = l
	t.undo = append(t.undo, func() { delete(t.ledgers, billingID) })
	return &l, nil
}

func (t *memoryTx) SaveLedger(_ context.Context, l *model.BillLedger) error {
	prev, ok := t.ledgers[l.BillingID]
	if !ok {
		return ErrNotFound
	}
	t.ledgers[l.BillingID] = *l
	t.undo = append(t.undo, func() { t.ledgers[prev.BillingID] = prev })
	return nil
}

func (t *memoryTx) CreatePayments(_ context.Context, payments []model.Payment) error {
	for i := range payments {
		if payments[i].ID == uuid.Nil {
			payments[i].ID = uuid.New()
		}
		p := payments[i]
		n := len(t.payments)
		t.payments = append(t.payments, p)
		t.paymentIdx[p.ID] = n
		t.undo = append(t.undo, func() {
			t.payments = t.payments[:n]
			delete(t.paymentIdx, p.ID)
		})
	}
	return nil
}

func (t *memoryTx) LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return t.FindPayment(ctx, id)
}

func (t *memoryTx) CreateRefund(_ context.Context, r *model.Refund) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	n := len(t.refunds)
	t.refunds = append(t.refunds, *r)
	t.undo = append(t.undo, func() { t.refunds = t.refunds[:n] })
	return nil
}

func (t *memoryTx) AppendAuditLog(_ context.Context, e *model.AuditLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	n := len(t.audit)
	t.audit = append(t.audit, *e)
	t.undo = append(t.undo, func() { t.audit = t.audit[:n] })
	return nil
}

func (t *memoryTx) CreateCajaSession(_ context.Context, s *model.CajaSession) error {
	if s.Status == model.CajaOpen {
		for _, existing := range t.sessions {
			if existing.Scope == s.Scope && existing.Status == model.CajaOpen {
				return ErrConflict
			}
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	n := len(t.sessions)
	t.sessions = append(t.sessions, *s)
	t.sessionIdx[s.ID] = n
	id := s.ID
	t.undo = append(t.undo, func() {
		t.sessions = t.sessions[:n]
		delete(t.sessionIdx, id)
	})
	return nil
}

func (t *memoryTx) LockOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	return t.FindOpenCajaSession(ctx, scope)
}

// ShareOpenCajaSession needs no lock of its own: the store mutex already
// serialises the transaction against closes.
func (t *memoryTx) ShareOpenCajaSession(ctx context.Context, scope string) (*model.CajaSession, error) {
	return t.FindOpenCajaSession(ctx, scope)
}

func (t *memoryTx) UpdateCajaSession(_ context.Context, s *model.CajaSession) error {
	i, ok := t.sessionIdx[s.ID]
	if !ok {
		return ErrNotFound
	}
	prev := t.sessions[i]
	t.sessions[i] = *s
	t.undo = append(t.undo, func() { t.sessions[i] = prev })
	return nil
}

// ── helpers ─────────────────────────────────────────────────────────────────

func attributedTo(rowSession *uuid.UUID, id uuid.UUID) bool {
	return rowSession != nil && *rowSession == id
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

type methodAccumulator struct {
	byMethod map[string]*MethodSummary
}

func newMethodAccumulator() *methodAccumulator {
	return &methodAccumulator{byMethod: make(map[string]*MethodSummary)}
}

func (a *methodAccumulator) add(method string, amount decimal.Decimal) {
	m, ok := a.byMethod[method]
	if !ok {
		m = &MethodSummary{Method: method, Total: decimal.Zero}
		a.byMethod[method] = m
	}
	m.Total = m.Total.Add(amount)
	m.Count++
}

func (a *methodAccumulator) summaries() []MethodSummary {
	out := make([]MethodSummary, 0, len(a.byMethod))
	for _, m := range a.byMethod {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
