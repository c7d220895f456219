package worker

// report_worker.go
// Processes caja_report jobs: renders the closed session's report to PDF under
// REPORT_STORAGE_PATH and mails it to REPORT_EMAIL_TO when SMTP is configured.

import (
	"context"
	"encoding/json"
	"fmt"

	"blendpos-ledger/internal/dto"
	"blendpos-ledger/internal/infra"

	"github.com/rs/zerolog/log"
)

// CajaReportPayload is the job body sent to QueueCajaReport. It carries the
// full report so the worker never reads the database.
type CajaReportPayload struct {
	Report dto.SessionReportResponse `json:"report"`
}

type CajaReportWorker struct {
	mailer      *infra.Mailer
	storagePath string
	emailTo     string
}

func NewCajaReportWorker(mailer *infra.Mailer, storagePath, emailTo string) *CajaReportWorker {
	return &CajaReportWorker{mailer: mailer, storagePath: storagePath, emailTo: emailTo}
}

// Process renders and (optionally) mails one report. Errors are returned so
// the pool can retry; a bad payload is logged and dropped.
func (w *CajaReportWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload CajaReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("report_worker: invalid payload")
		return nil
	}
	s := payload.Report.Session

	pdfPath, err := infra.GenerateSessionReportPDF(payload.Report, w.storagePath)
	if err != nil {
		return err
	}
	log.Info().Str("session_id", s.ID).Str("path", pdfPath).Msg("report_worker: PDF generated")

	if w.emailTo == "" || !w.mailer.Configured() {
		return nil
	}

	subject := fmt.Sprintf("Caja %s closed", s.Scope)
	body := fmt.Sprintf("Session %s closed at %s.\nExpected cash: %s\n",
		s.ID, deref(s.ClosedAt), payload.Report.ExpectedCash.StringFixed(2))
	if s.Variance != nil {
		body += fmt.Sprintf("Variance: %s (%s%%, %s)\n",
			s.Variance.Amount.StringFixed(2), s.Variance.Percentage.StringFixed(2), s.Variance.Classification)
	}

	if err := w.mailer.SendReport(w.emailTo, subject, body, pdfPath); err != nil {
		return fmt.Errorf("report_worker: send: %w", err)
	}
	log.Info().Str("session_id", s.ID).Str("to", w.emailTo).Msg("report_worker: report mailed")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
