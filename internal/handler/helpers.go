package handler

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"blendpos-ledger/internal/apierror"
	"blendpos-ledger/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report JSON field names (lines[0].amount_paid) instead of Go names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails:
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("INVALID_JSON", "invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		ves, ok := err.(validator.ValidationErrors)
		if !ok {
			respondError(c, err)
			return false
		}
		fields := make(map[string]string, len(ves))
		for _, fe := range ves {
			fields[fieldPath(fe)] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// fieldPath drops the top-level struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// respondError is the only place a service error becomes an HTTP status.
// INTERNAL details are logged with the request id and replaced by a generic message.
func respondError(c *gin.Context, err error) {
	e, ok := apierror.As(err)
	if !ok {
		e = apierror.Internal(err)
	}

	switch e.Kind {
	case apierror.KindValidation:
		c.JSON(http.StatusUnprocessableEntity, &apierror.APIError{Code: e.Code, Detail: e.Message, Fields: e.Fields})
	case apierror.KindNotFound:
		c.JSON(http.StatusNotFound, apierror.New(e.Code, e.Message))
	case apierror.KindConflict:
		c.JSON(http.StatusConflict, apierror.New(e.Code, e.Message))
	default:
		log.Error().
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Err(e.Err).
			Msg("internal error")
		c.JSON(http.StatusInternalServerError, apierror.New(apierror.CodeInternal, "internal server error"))
	}
}

// actorID is the authenticated user; protected routes always have claims.
func actorID(c *gin.Context) string {
	if claims := middleware.GetClaims(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// scopeOr falls back to the token's scope claim when the request names none.
func scopeOr(c *gin.Context, scope string) string {
	if strings.TrimSpace(scope) != "" {
		return scope
	}
	if claims := middleware.GetClaims(c); claims != nil {
		return claims.Scope
	}
	return ""
}

func parseUUIDParam(c *gin.Context, name, code, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apierror.NotFound(code, what+" not found"))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
