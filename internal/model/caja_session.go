package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Caja session states. Closed is terminal: a new shift gets a new session id.
const (
	CajaOpen   = "open"
	CajaClosed = "closed"
)

// Variance classes recorded when a session is closed.
const (
	VarianceNormal   = "normal"
	VarianceWarning  = "warning"
	VarianceCritical = "critical"
)

// CajaSession represents the lifecycle of a cash register shift within a scope.
// At most one row per scope may be open; the partial unique index
// uq_caja_sessions_open_scope enforces it in Postgres.
type CajaSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Scope          string          `gorm:"type:varchar(64);not null;index"`
	OpenedBy       string          `gorm:"type:varchar(64);not null"`
	OpenedAt       time.Time       `gorm:"not null"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ClosedBy       *string         `gorm:"type:varchar(64)"`
	ClosedAt       *time.Time
	// ClosingBalanceExpected = OpeningBalance + cash payments - cash refunds
	// attributed to this session
	ClosingBalanceCounted  *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ClosingBalanceExpected *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Variance               *decimal.Decimal `gorm:"type:decimal(12,2)"`
	VariancePct            *decimal.Decimal `gorm:"type:decimal(7,2)"`
	VarianceClass          *string          `gorm:"type:varchar(20)"`
	Notes                  *string
	Status                 string `gorm:"type:varchar(10);not null;default:'open'"`
}

func (CajaSession) TableName() string { return "caja_sessions" }

// MaxVariancePct bounds the stored percentage to what decimal(7,2) holds.
var MaxVariancePct = decimal.RequireFromString("99999.99")

// WindowEnd is the upper bound of the session's reporting window.
func (s *CajaSession) WindowEnd(now time.Time) time.Time {
	if s.ClosedAt != nil {
		return *s.ClosedAt
	}
	return now
}
