package integration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"acquiring-gateway/config"
	httpHandler "acquiring-gateway/internal/adapter/http/handler"
	"acquiring-gateway/internal/adapter/metrics"
	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/fsm"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoPassword = "password123"

type testEnv struct {
	router   *gin.Engine
	payments *inMemoryPaymentRepo
	webhooks *inMemoryWebhookRepo
	acquirer *stubAcquirer
	verifier ports.TokenVerifier
	passHash string
}

// newTestEnv wires the full stack over in-memory adapters: real coordinator,
// state machine, locks, rate limiter, token auth and webhook notifier.
func newTestEnv(t *testing.T, policies map[string]config.RatePolicy) *testEnv {
	t.Helper()

	paymentRepo := newInMemoryPaymentRepo()
	teamRepo := newInMemoryTeamRepo()
	webhookRepo := newInMemoryWebhookRepo()
	acq := &stubAcquirer{}

	log := zerolog.Nop()
	sink := metrics.NewNoopSink()
	verifier := service.NewSHA256TokenService()
	teamSvc := service.NewTeamService(teamRepo, log)
	limiter := service.NewRateLimitService(policies)
	lockSvc := service.NewMemoryLockService()

	sum := sha256.Sum256([]byte(demoPassword))
	passHash := hex.EncodeToString(sum[:])
	require.NoError(t, teamSvc.Register(t.Context(), &domain.Team{
		ID:              uuid.New(),
		Slug:            "demo-team",
		PasswordHash:    passHash,
		DisplayName:     "Demo Team",
		Active:          true,
		NotificationURL: "",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}))

	encSvc, err := service.NewAESEncryptionService(
		"000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	notifier := service.NewWebhookService(
		config.WebhookConfig{Schedule: []time.Duration{0}, MaxAttempts: 1, Timeout: time.Second},
		webhookRepo, teamSvc, verifier, nil, sink, log,
	)

	coordinator := service.NewPaymentCoordinator(
		paymentRepo, teamSvc, acq, lockSvc, limiter, notifier, encSvc, sink,
		service.CoordinatorConfig{
			LockTimeout:     2 * time.Second,
			LeaseDuration:   time.Minute,
			PaymentTTL:      time.Hour,
			MinAmount:       1000,
			MaxAmount:       9_999_999_999,
			BaseURL:         "http://gw.local",
			AcquirerRetries: 1,
		},
		log,
	)

	hashSvc := service.NewArgon2HashService()
	adminHash, err := hashSvc.Hash("admin-secret")
	require.NoError(t, err)
	tokenSvc := service.NewJWTTokenService("test-jwt-secret", time.Hour, "acquiring-gateway")
	authSvc := service.NewAdminAuthService(config.AdminConfig{
		Username:     "admin",
		PasswordHash: adminHash,
	}, hashSvc, tokenSvc, log)

	auditSvc := service.NewAuditService(newInMemoryAuditRepo(), log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Coordinator:   coordinator,
		Teams:         teamSvc,
		TokenVerifier: verifier,
		RateLimiter:   limiter,
		AdminAuthSvc:  authSvc,
		TokenSvc:      tokenSvc,
		Payments:      paymentRepo,
		AuditSvc:      auditSvc,
		Metrics:       sink,
		Logger:        log,
	})

	return &testEnv{
		router:   router,
		payments: paymentRepo,
		webhooks: webhookRepo,
		acquirer: acq,
		verifier: verifier,
		passHash: passHash,
	}
}

// signedBody adds the computed Token to params and marshals them.
func (e *testEnv) signedBody(t *testing.T, params map[string]any) []byte {
	t.Helper()
	params["Token"] = e.verifier.Compute(params, e.passHash)
	body, err := json.Marshal(params)
	require.NoError(t, err)
	return body
}

func (e *testEnv) post(t *testing.T, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed), "body: %s", w.Body.String())
	return w, parsed
}

func (e *testEnv) initPayment(t *testing.T, orderID string, amount int64, payType string) map[string]any {
	t.Helper()
	w, resp := e.post(t, "/api/payment/init", e.signedBody(t, map[string]any{
		"TeamSlug": "demo-team",
		"OrderId":  orderID,
		"Amount":   amount,
		"PayType":  payType,
	}))
	require.Equal(t, http.StatusOK, w.Code, "init failed: %v", resp)
	return resp
}

func (e *testEnv) submitCard(t *testing.T, paymentID string) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"PaymentId": paymentID,
		"CardData":  "4300000000000777",
	})
	require.NoError(t, err)
	w, resp := e.post(t, "/api/payment/submit", body)
	require.Equal(t, http.StatusOK, w.Code, "submit failed: %v", resp)
	return resp
}

// Scenario: single-stage happy path.
func TestAPI_SingleStageHappyPath(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O1", 15000, "O")
	assert.Equal(t, true, resp["Success"])
	assert.Equal(t, "0", resp["ErrorCode"])
	assert.Equal(t, "NEW", resp["Status"])
	assert.NotEmpty(t, resp["PaymentURL"])
	paymentID := resp["PaymentId"].(string)
	require.NotEmpty(t, paymentID)
	assert.LessOrEqual(t, len(paymentID), 20)

	resp = e.submitCard(t, paymentID)
	assert.Equal(t, "CONFIRMED", resp["Status"])

	// The persisted walk is a legal path ending in CONFIRMED.
	path := e.payments.pathOf(paymentID)
	assert.Equal(t, []domain.PaymentStatus{
		domain.StatusNew, domain.StatusAuthorizing, domain.StatusAuthorized,
		domain.StatusConfirming, domain.StatusConfirmed,
	}, path)
	assert.True(t, fsm.ValidPath(path))

	// Status endpoint is pure and repeatable.
	for i := 0; i < 2; i++ {
		w, statusResp := e.post(t, "/api/payment/status", e.signedBody(t, map[string]any{
			"TeamSlug":  "demo-team",
			"PaymentId": paymentID,
		}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CONFIRMED", statusResp["Status"])
		assert.Equal(t, float64(15000), statusResp["Amount"])
	}
}

// Scenario: two-stage partial capture, then an illegal second confirm.
func TestAPI_TwoStagePartialCapture(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O2", 200000, "T")
	paymentID := resp["PaymentId"].(string)

	resp = e.submitCard(t, paymentID)
	assert.Equal(t, "AUTHORIZED", resp["Status"])

	w, resp := e.post(t, "/api/payment/confirm", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
		"Amount":    int64(150000),
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CONFIRMED", resp["Status"])

	// Second confirm: the payment is no longer AUTHORIZED.
	w, resp = e.post(t, "/api/payment/confirm", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
		"Amount":    int64(50000),
	}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, resp["Success"])
	assert.Equal(t, "1003", resp["ErrorCode"])
}

// Scenario: confirm in NEW is an illegal state, code 1003, status echoed.
func TestAPI_IllegalStateConfirmOnNew(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O3", 15000, "T")
	paymentID := resp["PaymentId"].(string)

	w, resp := e.post(t, "/api/payment/confirm", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
	}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, resp["Success"])
	assert.Equal(t, "1003", resp["ErrorCode"])
	assert.Equal(t, "NEW", resp["Status"])
}

// Scenario: tampering any signed field after signing yields 204.
func TestAPI_InvalidToken(t *testing.T) {
	e := newTestEnv(t, nil)

	params := map[string]any{
		"TeamSlug": "demo-team",
		"OrderId":  "O4",
		"Amount":   int64(15000),
		"PayType":  "O",
	}
	body := e.signedBody(t, params)

	// Tamper the amount after signing.
	tampered := bytes.Replace(body, []byte("15000"), []byte("15001"), 1)

	w, resp := e.post(t, "/api/payment/init", tampered)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, resp["Success"])
	assert.Equal(t, "204", resp["ErrorCode"])
}

// Scenario: unknown merchant yields 205.
func TestAPI_MerchantChecks(t *testing.T) {
	e := newTestEnv(t, nil)

	body, err := json.Marshal(map[string]any{
		"TeamSlug": "ghost-team",
		"OrderId":  "O5",
		"Amount":   int64(15000),
		"Token":    "deadbeef",
	})
	require.NoError(t, err)
	w, resp := e.post(t, "/api/payment/init", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "205", resp["ErrorCode"])
}

// Scenario: refunds — partial leaves PARTIAL_REFUNDED, completing them
// lands in REFUNDED, overshooting is rejected with 1007.
func TestAPI_RefundLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O6", 100000, "O")
	paymentID := resp["PaymentId"].(string)
	e.submitCard(t, paymentID)

	w, resp := e.post(t, "/api/payment/refund", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
		"Amount":    int64(30000),
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PARTIAL_REFUNDED", resp["Status"])
	assert.Equal(t, float64(30000), resp["RefundedAmount"])

	w, resp = e.post(t, "/api/payment/refund", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
		"Amount":    int64(80000),
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "1007", resp["ErrorCode"])

	w, resp = e.post(t, "/api/payment/refund", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": paymentID,
		"Amount":    int64(70000),
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "REFUNDED", resp["Status"])
}

// Scenario: cancel pre-auth cancels, cancel post-auth reverses.
func TestAPI_CancelAndReverse(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O7", 15000, "T")
	pre := resp["PaymentId"].(string)
	w, resp := e.post(t, "/api/payment/cancel", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": pre,
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", resp["Status"])

	resp2 := e.initPayment(t, "O8", 15000, "T")
	post := resp2["PaymentId"].(string)
	e.submitCard(t, post)
	w, resp = e.post(t, "/api/payment/cancel", e.signedBody(t, map[string]any{
		"TeamSlug":  "demo-team",
		"PaymentId": post,
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "REVERSED", resp["Status"])
}

// Scenario: 21 inits against a burst-20 policy — the last one is denied
// with a Retry-After in (0, 1] seconds.
func TestAPI_RateLimitDenial(t *testing.T) {
	e := newTestEnv(t, map[string]config.RatePolicy{
		config.PolicyPaymentInit: {Rate: 1, Burst: 20, Scope: "merchant"},
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 21; i++ {
		w, _ := e.post(t, "/api/payment/init", e.signedBody(t, map[string]any{
			"TeamSlug": "demo-team",
			"OrderId":  "rl-" + strconv.Itoa(i),
			"Amount":   int64(15000),
			"PayType":  "O",
		}))
		if i < 20 {
			require.Equal(t, http.StatusOK, w.Code, "request %d within burst", i+1)
		}
		last = w
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	retryAfter, err := strconv.Atoi(last.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 1)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &resp))
	assert.Equal(t, "99", resp["ErrorCode"])
}

// Webhook deliveries are recorded for state changes when the merchant has a
// notification URL.
func TestAPI_WebhookRecorded(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.initPayment(t, "O9", 15000, "O")
	paymentID := resp["PaymentId"].(string)
	require.Equal(t, 0, e.webhooks.count())

	// NotificationURL supplied per payment.
	w, _ := e.post(t, "/api/payment/init", e.signedBody(t, map[string]any{
		"TeamSlug":        "demo-team",
		"OrderId":         "O10",
		"Amount":          int64(15000),
		"PayType":         "O",
		"NotificationURL": "http://merchant.local/hook",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var r2 map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r2))
	e.submitCard(t, r2["PaymentId"].(string))

	// AUTHORIZED + CONFIRMED notifications for the notifying payment only.
	assert.Equal(t, 2, e.webhooks.count())
	_ = paymentID
}

// Admin flow: login issues a bearer token that unlocks team registration.
func TestAPI_AdminRegisterTeam(t *testing.T) {
	e := newTestEnv(t, nil)

	body, _ := json.Marshal(map[string]any{"Username": "admin", "Password": "admin-secret"})
	w, resp := e.post(t, "/api/admin/login", body)
	require.Equal(t, http.StatusOK, w.Code)
	token := resp["AccessToken"].(string)
	require.NotEmpty(t, token)

	regBody, _ := json.Marshal(map[string]any{
		"TeamSlug":    "new-team",
		"Password":    "super-secret",
		"DisplayName": "New Team",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/team/register", bytes.NewReader(regBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Unauthenticated registration is refused.
	req = httptest.NewRequest(http.MethodPost, "/api/team/register", bytes.NewReader(regBody))
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
