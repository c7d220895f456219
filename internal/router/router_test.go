package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blendpos-ledger/internal/config"
	"blendpos-ledger/internal/infra"
	"blendpos-ledger/internal/middleware"
	"blendpos-ledger/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

type testEnv struct {
	engine *gin.Engine
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:                 "test",
		JWTSecret:           testSecret,
		TxTimeoutSeconds:    5,
		VarianceWarnPct:     1,
		VarianceCriticalPct: 5,
	}
	deps := Deps{Store: repository.NewMemoryStore(), Mailer: infra.NewMailer(cfg)}
	return &testEnv{engine: New(cfg, deps, NewServices(cfg, deps))}
}

func token(t *testing.T, userID, rol, scope string) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID: userID,
		Rol:    rol,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, method, path string, body any, tok string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "disabled", body["redis"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	env := setup(t)

	w := env.do(t, http.MethodGet, "/v1/bills/B-1/ledger", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/v1/bills/B-1/ledger", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/v1/bills/B-1/ledger", nil, token(t, "u1", "waiter", ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPaymentRefundFlow(t *testing.T) {
	env := setup(t)
	cashier := token(t, "cashier-1", middleware.RoleCashier, "pdv-1")
	supervisor := token(t, "sup-1", middleware.RoleSupervisor, "")

	w := env.do(t, http.MethodGet, "/v1/bills/B-9/ledger", nil, cashier)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "LEDGER_NOT_FOUND", decode(t, w)["code"])

	w = env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"billing_id": "B-9",
		"session_id": "table-3",
		"total_due":  "100.00",
		"lines":      []map[string]any{{"amount_paid": "60", "payment_method": "cash"}},
	}, cashier)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, "60", body["total_paid"])

	w = env.do(t, http.MethodGet, "/v1/bills/B-9/payments", nil, cashier)
	require.Equal(t, http.StatusOK, w.Code)
	var payments []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payments))
	require.Len(t, payments, 1)
	paymentID := payments[0]["id"].(string)

	refundPath := "/v1/payments/" + paymentID + "/refunds"
	refund := map[string]any{"amount": "20", "method": "cash", "reason": "cold soup"}

	w = env.do(t, http.MethodPost, refundPath, refund, cashier)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, refundPath, refund, supervisor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "40", decode(t, w)["remaining_refundable"])

	refund["amount"] = "50"
	w = env.do(t, http.MethodPost, refundPath, refund, supervisor)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_REFUND_AMOUNT", decode(t, w)["code"])

	w = env.do(t, http.MethodGet, "/v1/bills/B-9/logs?page=1&page_size=10", nil, supervisor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = env.do(t, http.MethodGet, "/v1/bills/B-9/reconcile", nil, supervisor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["balanced"])

	w = env.do(t, http.MethodGet, "/v1/payments/not-a-uuid/refunds", nil, cashier)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentValidationIs422(t *testing.T) {
	env := setup(t)
	cashier := token(t, "cashier-1", middleware.RoleCashier, "")

	w := env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"billing_id": "B-1",
		"session_id": "table-1",
		"lines":      []map[string]any{{"amount_paid": "10", "payment_method": "bitcoin"}},
	}, cashier)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Contains(t, body["fields"], "lines[0].payment_method")

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+cashier)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCajaFlowUsesTokenScope(t *testing.T) {
	env := setup(t)
	cashier := token(t, "cashier-1", middleware.RoleCashier, "pdv-1")
	admin := token(t, "admin-1", middleware.RoleAdmin, "")

	w := env.do(t, http.MethodPost, "/v1/caja/open", map[string]any{"opening_balance": "200"}, cashier)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode(t, w)
	assert.Equal(t, "pdv-1", session["scope"])

	w = env.do(t, http.MethodPost, "/v1/caja/open", map[string]any{"opening_balance": "200"}, cashier)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAJA_ALREADY_OPEN", decode(t, w)["code"])

	w = env.do(t, http.MethodGet, "/v1/caja/active", nil, cashier)
	require.Equal(t, http.StatusOK, w.Code)

	// no scope in the body: the token's register takes the cash
	w = env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"billing_id": "B-1",
		"session_id": "table-1",
		"lines":      []map[string]any{{"amount_paid": "30", "payment_method": "cash"}},
	}, cashier)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/v1/caja/close", map[string]any{"counted_balance": "230"}, cashier)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.Equal(t, "230", report["expected_cash"])

	w = env.do(t, http.MethodPost, "/v1/caja/close", map[string]any{"counted_balance": "200"}, cashier)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAJA_CANNOT_CLOSE", decode(t, w)["code"])

	id := session["id"].(string)
	w = env.do(t, http.MethodGet, "/v1/caja/"+id+"/report.pdf", nil, cashier)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = env.do(t, http.MethodGet, "/v1/caja/history", nil, cashier)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/v1/caja/history?scope=pdv-1", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = env.do(t, http.MethodGet, "/v1/caja/history/export", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	// Admin token has no scope and the request names none.
	w = env.do(t, http.MethodGet, "/v1/caja/active", nil, admin)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
