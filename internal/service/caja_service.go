package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/model"
	"blendpos-ledger/internal/repository"
	"blendpos-ledger/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxExportRows       = 5000
)

type CajaService interface {
	OpenCaja(ctx context.Context, actorID string, req dto.OpenCajaRequest) (*dto.CajaSessionResponse, error)
	CloseCaja(ctx context.Context, actorID string, req dto.CloseCajaRequest) (*dto.SessionReportResponse, error)
	GetActiveSession(ctx context.Context, scope string) (*dto.CajaSessionResponse, error)
	GetSessionReport(ctx context.Context, sessionID uuid.UUID) (*dto.SessionReportResponse, error)
	GetSessionsHistory(ctx context.Context, scope string, page, limit int) (*dto.SessionHistoryResponse, error)

	WriteSessionReportPDF(ctx context.Context, sessionID uuid.UUID, w io.Writer) error
	ExportSessionsHistory(ctx context.Context, scope string, w io.Writer) error
}

type cajaService struct {
	store      repository.Store
	audit      AuditService
	dispatcher *worker.Dispatcher // nil when Redis is not configured

	txTimeout              time.Duration
	warnPct                decimal.Decimal
	criticalPct            decimal.Decimal
	requireNotesOnCritical bool
}

func NewCajaService(store repository.Store, audit AuditService, dispatcher *worker.Dispatcher, cfg *config.Config) CajaService {
	return &cajaService{
		store:                  store,
		audit:                  audit,
		dispatcher:             dispatcher,
		txTimeout:              cfg.TxTimeout(),
		warnPct:                decimal.NewFromFloat(cfg.VarianceWarnPct),
		criticalPct:            decimal.NewFromFloat(cfg.VarianceCriticalPct),
		requireNotesOnCritical: cfg.CajaRequireNotesOnCritical,
	}
}

// ── OpenCaja ──────────────────────────────────────────────────────────────────
// One open session per scope. Two concurrent opens race on the unique index
// (or the memory store mutex); the loser gets CAJA_ALREADY_OPEN.

func (s *cajaService) OpenCaja(ctx context.Context, actorID string, req dto.OpenCajaRequest) (*dto.CajaSessionResponse, error) {
	fields := map[string]string{}
	scope := externalID("scope", req.Scope, fields)
	actor := externalID("actor_id", actorID, fields)
	if req.OpeningBalance.IsNegative() {
		fields["opening_balance"] = "must be greater than or equal to 0"
	}
	checkAmount("opening_balance", req.OpeningBalance, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}

	session := &model.CajaSession{
		ID:             uuid.New(),
		Scope:          scope,
		OpenedBy:       actor,
		OpenedAt:       time.Now(),
		OpeningBalance: req.OpeningBalance,
		Status:         model.CajaOpen,
	}
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreateCajaSession(ctx, session); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return alreadyOpen()
			}
			return err
		}
		return s.audit.Append(ctx, tx, "", session.ID.String(), model.ActionOpenCaja,
			nil, toSessionResponse(session), actor)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("scope", scope).Str("session_id", session.ID.String()).Msg("caja: opened")
	resp := toSessionResponse(session)
	return &resp, nil
}

func alreadyOpen() error {
	return apierror.Conflict(apierror.CodeCajaAlreadyOpen, "a caja session is already open for this scope")
}

// ── CloseCaja ─────────────────────────────────────────────────────────────────
// Blind count: the expected balance is computed after the counted one is
// received. expected = opening + Σ cash payments − Σ cash refunds attributed
// to the session. The exclusive lock on the session row waits for payments
// and refunds still holding their shared lock, so none of them is missed.

func (s *cajaService) CloseCaja(ctx context.Context, actorID string, req dto.CloseCajaRequest) (*dto.SessionReportResponse, error) {
	fields := map[string]string{}
	scope := externalID("scope", req.Scope, fields)
	actor := externalID("actor_id", actorID, fields)
	if req.CountedBalance.IsNegative() {
		fields["counted_balance"] = "must be greater than or equal to 0"
	}
	checkAmount("counted_balance", req.CountedBalance, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}
	notes := optionalString(req.Notes)

	var report dto.SessionReportResponse
	err := runTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx repository.Tx) error {
		session, err := tx.LockOpenCajaSession(ctx, scope)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apierror.Conflict(apierror.CodeCajaCannotClose, "no open caja session for this scope")
			}
			return err
		}
		before := toSessionResponse(session)

		closedAt := time.Now()
		payments, err := tx.SumPaymentsByMethod(ctx, session.ID)
		if err != nil {
			return err
		}
		refunds, err := tx.SumRefundsByMethod(ctx, session.ID)
		if err != nil {
			return err
		}

		expected := expectedCash(session.OpeningBalance, payments, refunds)
		counted := req.CountedBalance
		variance := counted.Sub(expected)
		pct := variancePct(variance, expected)
		class := s.classifyVariance(pct)

		if class == model.VarianceCritical && s.requireNotesOnCritical && notes == nil {
			return apierror.InvalidField("notes", "required when the variance is critical")
		}

		session.Status = model.CajaClosed
		session.ClosedAt = &closedAt
		session.ClosedBy = &actor
		session.ClosingBalanceCounted = &counted
		session.ClosingBalanceExpected = &expected
		session.Variance = &variance
		session.VariancePct = &pct
		session.VarianceClass = &class
		session.Notes = notes
		if err := tx.UpdateCajaSession(ctx, session); err != nil {
			return err
		}

		report = buildReport(session, payments, refunds, closedAt)
		return s.audit.Append(ctx, tx, "", session.ID.String(), model.ActionCloseCaja,
			before, report.Session, actor)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("scope", scope).
		Str("session_id", report.Session.ID).
		Str("variance", report.Session.Variance.Amount.String()).
		Str("class", report.Session.Variance.Classification).
		Msg("caja: closed")

	// Report delivery is best effort and never undoes the close.
	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueCajaReport(ctx, worker.CajaReportPayload{Report: report}); err != nil {
			log.Warn().Err(err).Str("session_id", report.Session.ID).Msg("caja: failed to enqueue report job")
		}
	}
	return &report, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *cajaService) GetActiveSession(ctx context.Context, scope string) (*dto.CajaSessionResponse, error) {
	fields := map[string]string{}
	scope = externalID("scope", scope, fields)
	if len(fields) > 0 {
		return nil, validationFailed(fields)
	}
	session, err := s.store.FindOpenCajaSession(ctx, scope)
	if err != nil {
		return nil, notFoundAs(err, apierror.CodeSessionNotFound, "no open caja session for this scope")
	}
	resp := toSessionResponse(session)
	return &resp, nil
}

func (s *cajaService) GetSessionReport(ctx context.Context, sessionID uuid.UUID) (*dto.SessionReportResponse, error) {
	session, err := s.store.FindCajaSession(ctx, sessionID)
	if err != nil {
		return nil, notFoundAs(err, apierror.CodeSessionNotFound, "caja session not found")
	}

	end := session.WindowEnd(time.Now())
	payments, err := s.store.SumPaymentsByMethod(ctx, session.ID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	refunds, err := s.store.SumRefundsByMethod(ctx, session.ID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	report := buildReport(session, payments, refunds, end)
	return &report, nil
}

func (s *cajaService) GetSessionsHistory(ctx context.Context, scope string, page, limit int) (*dto.SessionHistoryResponse, error) {
	scope = strings.TrimSpace(scope)
	page, limit, offset := pageBounds(page, limit, defaultHistoryLimit, maxHistoryLimit)
	sessions, total, err := s.store.ListCajaSessions(ctx, scope, offset, limit)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	data := make([]dto.CajaSessionResponse, 0, len(sessions))
	for i := range sessions {
		data = append(data, toSessionResponse(&sessions[i]))
	}
	return &dto.SessionHistoryResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ── Exports ───────────────────────────────────────────────────────────────────

func (s *cajaService) WriteSessionReportPDF(ctx context.Context, sessionID uuid.UUID, w io.Writer) error {
	report, err := s.GetSessionReport(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := infra.WriteSessionReportPDF(w, *report); err != nil {
		return apierror.Internal(err)
	}
	return nil
}

func (s *cajaService) ExportSessionsHistory(ctx context.Context, scope string, w io.Writer) error {
	sessions, _, err := s.store.ListCajaSessions(ctx, strings.TrimSpace(scope), 0, maxExportRows)
	if err != nil {
		return apierror.Internal(err)
	}
	rows := make([]dto.CajaSessionResponse, 0, len(sessions))
	for i := range sessions {
		rows = append(rows, toSessionResponse(&sessions[i]))
	}
	if err := infra.WriteSessionsXLSX(w, rows); err != nil {
		return apierror.Internal(err)
	}
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// classifyVariance returns normal | warning | critical.
// normal: |pct| <= warn, warning: <= critical, critical: above.
func (s *cajaService) classifyVariance(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(s.warnPct):
		return model.VarianceNormal
	case abs.LessThanOrEqual(s.criticalPct):
		return model.VarianceWarning
	default:
		return model.VarianceCritical
	}
}

// variancePct is variance as a percentage of |expected|, rounded to 2 places
// and clamped to ±model.MaxVariancePct. Its sign always follows the variance,
// including when refunds left expected below zero. Zero when nothing was
// expected.
func variancePct(variance, expected decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return decimal.Zero
	}
	pct := variance.Div(expected.Abs()).Mul(decimal.NewFromInt(100)).Round(2)
	if pct.Abs().GreaterThan(model.MaxVariancePct) {
		if pct.IsNegative() {
			return model.MaxVariancePct.Neg()
		}
		return model.MaxVariancePct
	}
	return pct
}

// attachCaja share-locks the caja session open in scope and returns its id for
// the rows being written. An empty scope, or a scope with no open session,
// leaves the rows unattributed.
func attachCaja(ctx context.Context, tx repository.Tx, scope string) (*uuid.UUID, error) {
	if scope == "" {
		return nil, nil
	}
	session, err := tx.ShareOpenCajaSession(ctx, scope)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn().Str("scope", scope).Msg("caja: no open session, money movement left unattributed")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := session.ID
	return &id, nil
}

func expectedCash(opening decimal.Decimal, payments, refunds []repository.MethodSummary) decimal.Decimal {
	return opening.Add(methodTotal(payments, model.MethodCash)).Sub(methodTotal(refunds, model.MethodCash))
}

func methodTotal(rows []repository.MethodSummary, method string) decimal.Decimal {
	for _, r := range rows {
		if r.Method == method {
			return r.Total
		}
	}
	return decimal.Zero
}

func buildReport(session *model.CajaSession, payments, refunds []repository.MethodSummary, windowEnd time.Time) dto.SessionReportResponse {
	report := dto.SessionReportResponse{
		Session:       toSessionResponse(session),
		Payments:      toBreakdown(payments),
		Refunds:       toBreakdown(refunds),
		TotalPayments: decimal.Zero,
		TotalRefunds:  decimal.Zero,
		ExpectedCash:  expectedCash(session.OpeningBalance, payments, refunds),
		WindowStart:   dto.FormatTime(session.OpenedAt),
		WindowEnd:     dto.FormatTime(windowEnd),
	}
	for _, p := range payments {
		report.TotalPayments = report.TotalPayments.Add(p.Total)
	}
	for _, r := range refunds {
		report.TotalRefunds = report.TotalRefunds.Add(r.Total)
	}
	return report
}

func toBreakdown(rows []repository.MethodSummary) []dto.MethodBreakdown {
	out := make([]dto.MethodBreakdown, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.MethodBreakdown{Method: r.Method, Total: r.Total, Count: r.Count})
	}
	return out
}

func toSessionResponse(s *model.CajaSession) dto.CajaSessionResponse {
	resp := dto.CajaSessionResponse{
		ID:                     s.ID.String(),
		Scope:                  s.Scope,
		Status:                 s.Status,
		OpenedBy:               s.OpenedBy,
		OpenedAt:               dto.FormatTime(s.OpenedAt),
		OpeningBalance:         s.OpeningBalance,
		ClosedBy:               s.ClosedBy,
		ClosingBalanceCounted:  s.ClosingBalanceCounted,
		ClosingBalanceExpected: s.ClosingBalanceExpected,
		Notes:                  s.Notes,
	}
	if s.ClosedAt != nil {
		t := dto.FormatTime(*s.ClosedAt)
		resp.ClosedAt = &t
	}
	if s.Variance != nil && s.VariancePct != nil && s.VarianceClass != nil {
		resp.Variance = &dto.VarianceResponse{
			Amount:         *s.Variance,
			Percentage:     *s.VariancePct,
			Classification: *s.VarianceClass,
		}
	}
	return resp
}
