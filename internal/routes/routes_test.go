package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/handlers"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/services/attribution"
	"github.com/promoledger/backend/internal/services/ledger"
	"github.com/promoledger/backend/internal/services/payout"
	"github.com/promoledger/backend/internal/services/tracking"
	"github.com/promoledger/backend/internal/testutil"
	"github.com/promoledger/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	router *gin.Engine
	fx     testutil.Fixture
	clock  *testutil.Clock
	inf    string
	admin  string
}

func newAPIEnv(t *testing.T) *apiEnv {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("routes-test-secret")

	db := testutil.NewDB(t)
	fx := testutil.Seed(t, db)
	clock := testutil.NewClock()

	links := tracking.NewLinkService(db, nil, "https://go.test")
	links.SetClock(clock.Now)
	clicks := tracking.NewClickService(db, links)
	clicks.SetClock(clock.Now)
	attr := attribution.NewAttributionService(db, links, nil, attribution.DefaultWindow)
	attr.SetClock(clock.Now)
	led := ledger.NewLedgerService(db, nil)
	led.SetClock(clock.Now)
	pay := payout.NewPayoutService(db)
	pay.SetClock(clock.Now)

	h := &Handlers{
		Click:      handlers.NewClickHandler(clicks, "_pl_ref", 30, "https://home.test", false),
		Conversion: handlers.NewConversionHandler(db, attr, "_pl_ref"),
		Link:       handlers.NewLinkHandler(links),
		Ledger:     handlers.NewLedgerHandler(led),
		Payout:     handlers.NewPayoutHandler(pay),
		Health:     handlers.NewHealthHandler(db),
	}
	rl := middleware.NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)

	infID := fx.Influencer.ID
	infToken, err := utils.GenerateToken(utils.Claims{UserID: fx.Influencer.UserID, InfluencerID: &infID}, time.Hour)
	require.NoError(t, err)
	adminToken, err := utils.GenerateToken(utils.Claims{UserID: uuid.New(), IsAdmin: true}, time.Hour)
	require.NoError(t, err)

	return &apiEnv{
		router: SetupRouter(RouterConfig{}, h, db, rl),
		fx:     fx,
		clock:  clock,
		inf:    "Bearer " + infToken,
		admin:  "Bearer " + adminToken,
	}
}

func (e *apiEnv) do(t *testing.T, method, path, auth string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (e *apiEnv) webhook(t *testing.T, body map[string]interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/brands/"+e.fx.Brand.ID.String()+"/conversions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, utils.SignHMAC(b, "brand-secret"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

// pixel loads the conversion pixel with the link cookie, signing the query
// with secret when it is set
func (e *apiEnv) pixel(linkID, brandID, orderID, amount, secret string) *httptest.ResponseRecorder {
	q := url.Values{}
	q.Set("brand_id", brandID)
	q.Set("order_id", orderID)
	q.Set("amount", amount)
	q.Set("currency", "USD")
	if secret != "" {
		q.Set("sig", utils.SignHMAC(handlers.PixelPayload(orderID, amount, "USD"), secret))
	}

	req := httptest.NewRequest(http.MethodGet, "/pixel/conversion?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: "_pl_ref", Value: linkID})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAttributionToPayoutFlow(t *testing.T) {
	env := newAPIEnv(t)

	w, link := env.do(t, http.MethodPost, "/api/links", env.inf, gin.H{"product_id": env.fx.Product.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code := link["code"].(string)
	linkID := link["id"].(string)
	assert.Equal(t, "https://go.test/r/"+code+"/trail-running-shoe", link["share_url"])

	w, _ = env.do(t, http.MethodPost, "/api/links", env.inf, gin.H{"product_id": env.fx.Product.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/r/"+code+"/trail-running-shoe", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, env.fx.Product.ProductURL, w.Header().Get("Location"))

	env.clock.Advance(2 * time.Hour)
	order := gin.H{"code": code, "order_id": "A-1001", "amount": "120.00", "currency": "usd"}
	w, body := env.webhook(t, order)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["attributed"])
	first := body["conversion"].(map[string]interface{})
	assert.Equal(t, "12", first["commission_amount"])

	w, body = env.webhook(t, order)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, first["id"], body["conversion"].(map[string]interface{})["id"])

	env.clock.Advance(time.Hour)
	pw := env.pixel(linkID, env.fx.Brand.ID.String(), "A-1002", "80", "brand-secret")
	assert.Equal(t, http.StatusOK, pw.Code)
	assert.Equal(t, "image/gif", pw.Header().Get("Content-Type"))
	assert.Equal(t, "booked", pw.Header().Get("X-Attribution"))

	w, convs := env.do(t, http.MethodGet, "/api/conversions?status=pending", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), convs["total"])
	for _, c := range convs["conversions"].([]interface{}) {
		id := c.(map[string]interface{})["id"].(string)
		w, _ = env.do(t, http.MethodPost, "/api/admin/conversions/"+id+"/approve", env.admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, balance := env.do(t, http.MethodGet, "/api/balance", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", balance["available"])
	assert.Equal(t, "0", balance["pending"])

	w, _ = env.do(t, http.MethodPost, "/api/payouts", env.inf, gin.H{"amount": "15", "method": "paypal"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, p := env.do(t, http.MethodPost, "/api/payouts", env.inf, gin.H{"amount": "20", "method": "paypal", "details": gin.H{"email": "c@example.com"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payoutID := p["id"].(string)
	assert.Len(t, p["conversion_ids"], 2)

	w, balance = env.do(t, http.MethodGet, "/api/balance", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", balance["available"])
	assert.Equal(t, "20", balance["paid"])

	w, _ = env.do(t, http.MethodPost, "/api/payouts/"+payoutID+"/cancel", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/payouts/"+payoutID+"/cancel", env.inf, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, balance = env.do(t, http.MethodGet, "/api/balance", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", balance["available"])

	w, detail := env.do(t, http.MethodGet, "/api/admin/payouts/"+payoutID, env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, detail["history"], 2)
}

func TestPayoutAdminLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	_, link := env.do(t, http.MethodPost, "/api/links", env.inf, gin.H{"product_id": env.fx.Product.ID})
	code := link["code"].(string)
	env.do(t, http.MethodGet, "/r/"+code, "", nil)
	_, body := env.webhook(t, gin.H{"code": code, "order_id": "B-1", "amount": "50", "currency": "USD"})
	convID := body["conversion"].(map[string]interface{})["id"].(string)
	w, _ := env.do(t, http.MethodPost, "/api/admin/conversions/"+convID+"/approve", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, p := env.do(t, http.MethodPost, "/api/payouts", env.inf, gin.H{"amount": "5", "method": "bank_transfer"})
	id := p["id"].(string)

	w, _ = env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/complete", env.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out := env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/process", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PROCESSING", out["status"])

	w, _ = env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/fail", env.admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/fail", env.admin, gin.H{"reason": "account closed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FAILED", out["status"])

	w, out = env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/retry", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", out["status"])

	w, _ = env.do(t, http.MethodPost, "/api/admin/conversions/"+convID+"/reject", env.admin, gin.H{"reason": "refund"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/admin/payouts/"+id+"/process", env.inf, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookSoftFailures(t *testing.T) {
	env := newAPIEnv(t)

	_, link := env.do(t, http.MethodPost, "/api/links", env.inf, gin.H{"product_id": env.fx.Product.ID})
	code := link["code"].(string)

	w, body := env.webhook(t, gin.H{"code": code, "order_id": "C-1", "amount": "10", "currency": "USD"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, body["attributed"])

	env.do(t, http.MethodGet, "/r/"+code, "", nil)
	env.clock.Advance(attribution.DefaultWindow + time.Second)
	w, body = env.webhook(t, gin.H{"code": code, "order_id": "C-2", "amount": "10", "currency": "USD"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, body["attributed"])

	w, _ = env.webhook(t, gin.H{"code": "missing", "order_id": "C-3", "amount": "10", "currency": "USD"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.webhook(t, gin.H{"code": code, "order_id": "C-4", "amount": "-1", "currency": "USD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPixelRequiresBrandSignature(t *testing.T) {
	env := newAPIEnv(t)

	_, link := env.do(t, http.MethodPost, "/api/links", env.inf, gin.H{"product_id": env.fx.Product.ID})
	code := link["code"].(string)
	linkID := link["id"].(string)
	env.do(t, http.MethodGet, "/r/"+code, "", nil)
	brandID := env.fx.Brand.ID.String()

	tests := []struct {
		name    string
		brandID string
		secret  string
		want    string
	}{
		{"unsigned", brandID, "", "unsigned"},
		{"wrong secret", brandID, "guess", "unsigned"},
		{"unknown brand", uuid.NewString(), "brand-secret", "unsigned"},
		{"malformed brand", "acme", "brand-secret", "unsigned"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.pixel(linkID, tt.brandID, "P-1", "40", tt.secret)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, w.Header().Get("X-Attribution"))
		})
	}

	// a signature does not carry over to a different amount
	q := url.Values{}
	q.Set("brand_id", brandID)
	q.Set("order_id", "P-1")
	q.Set("amount", "4000")
	q.Set("currency", "USD")
	q.Set("sig", utils.SignHMAC(handlers.PixelPayload("P-1", "40", "USD"), "brand-secret"))
	req := httptest.NewRequest(http.MethodGet, "/pixel/conversion?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: "_pl_ref", Value: linkID})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "unsigned", w.Header().Get("X-Attribution"))

	w, convs := env.do(t, http.MethodGet, "/api/conversions", env.inf, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), convs["total"])

	assert.Equal(t, "booked", env.pixel(linkID, brandID, "P-1", "40", "brand-secret").Header().Get("X-Attribution"))
	assert.Equal(t, "duplicate", env.pixel(linkID, brandID, "P-1", "40", "brand-secret").Header().Get("X-Attribution"))
}

func TestPublicEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	w, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pixel := httptest.NewRecorder()
	env.router.ServeHTTP(pixel, httptest.NewRequest(http.MethodGet, "/pixel/conversion?order_id=x&amount=1", nil))
	assert.Equal(t, http.StatusOK, pixel.Code)
	assert.Equal(t, "none", pixel.Header().Get("X-Attribution"))
}
