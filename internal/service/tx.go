package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

const maxExternalIDLen = 64

// maxAmount is the smallest magnitude a decimal(12,2) column cannot store.
var maxAmount = decimal.New(1, 10)

// runTx executes fn inside one store transaction bounded by timeout.
// Anything fn returns that is not already an *apierror.Error comes back as INTERNAL.
func runTx(ctx context.Context, store repository.Store, timeout time.Duration, fn func(ctx context.Context, tx repository.Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := store.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(ctx, tx)
	})
	return apierror.Wrap(err)
}

// notFoundAs maps repository.ErrNotFound to a typed NOT_FOUND and anything
// else to INTERNAL.
func notFoundAs(err error, code, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apierror.NotFound(code, msg)
	}
	return apierror.Wrap(err)
}

func validationFailed(fields map[string]string) error {
	return apierror.Validation("validation error", fields)
}

// externalID trims and bounds an identifier issued by another subsystem.
func externalID(field, v string, fields map[string]string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		fields[field] = "is required"
	case len(v) > maxExternalIDLen:
		fields[field] = "must be at most 64 characters"
	}
	return v
}

// checkAmount rejects values that would not survive a decimal(12,2) column
// unchanged: more than two decimal places, or a magnitude of 1e10 or more.
// A field that already failed another rule keeps its first message.
func checkAmount(field string, v decimal.Decimal, fields map[string]string) {
	if _, failed := fields[field]; failed {
		return
	}
	switch {
	case !v.Equal(v.Truncate(2)):
		fields[field] = "must have at most 2 decimal places"
	case v.Abs().GreaterThanOrEqual(maxAmount):
		fields[field] = "must be less than 10000000000"
	}
}

// optionalScope trims a caja scope that may be left empty.
func optionalScope(v string, fields map[string]string) string {
	v = strings.TrimSpace(v)
	if len(v) > maxExternalIDLen {
		fields["scope"] = "must be at most 64 characters"
	}
	return v
}

func optionalString(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func actorPtr(actorID string) *string {
	return optionalString(&actorID)
}

// pageBounds normalises 1-based page/size query values into offset/limit.
func pageBounds(page, size, def, max int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size, (page - 1) * size
}
