package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"subgate/internal/core/auth"
	"subgate/internal/core/config"
	"subgate/internal/core/database"
	"subgate/internal/domain"
	"subgate/internal/repo"
	"subgate/internal/service"
	"subgate/internal/transport/http/cookie"
	"subgate/internal/transport/http/flash"
	"subgate/internal/transport/http/handler"
	"subgate/pkg/utils"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	webhookSecret = "whsec-test"
	adminPassword = "admin-pass"
)

type env struct {
	now   time.Time
	svc   *service.UserService
	api   *gin.Engine
	admin *gin.Engine
}

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

func testConfig() *config.Config {
	return &config.Config{
		Session: config.Session{
			Secret:          "router-test-secret-123",
			Issuer:          "subgate-test",
			TTLMin:          365 * 24 * 60,
			AdminTTLMin:     365 * 24 * 60,
			CookieName:      "subgate_session",
			AdminCookieName: "subgate_admin",
		},
		Entitlement: config.Entitlement{TrialHours: 24, PremiumDays: 30},
		Payment: config.Payment{
			CheckoutURL:     "https://pay.example.com/checkout?plan=monthly",
			ReferenceParam:  "ref",
			WebhookSecret:   webhookSecret,
			SignatureHeader: "X-Signature",
		},
		Limits: config.Limits{RPS: 1000, Burst: 1000, LoginRPS: 100, LoginBurst: 100, WebhookRPS: 100, WebhookBurst: 100},
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{now: time.Now().UTC()}
	clock := func() time.Time { return e.now }

	db, err := database.NewGorm(database.Opts{
		Driver:   "sqlite",
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))

	cfg := testConfig()
	e.svc = service.NewUserService(repo.NewUserRepo(db), service.WithClock(clock))
	jwter := &auth.JWTer{
		Secret: []byte(cfg.Session.Secret),
		Issuer: cfg.Session.Issuer,
		TTL:    time.Duration(cfg.Session.TTLMin) * time.Minute,
		Now:    clock,
	}
	hash, err := utils.HashPassword(adminPassword)
	require.NoError(t, err)

	d := Deps{
		Log:      zap.NewNop(),
		Users:    e.svc,
		Sessions: auth.NewSessions(jwter, nil, time.Duration(cfg.Session.AdminTTLMin)*time.Minute),
		Cookies:  cookie.NewManager("", false),
		Admin:    auth.AdminCredentials{Username: "admin", PasswordHash: hash},
		Cfg:      cfg,
	}
	e.api = NewAPIEngine(d)
	e.admin = NewAdminEngine(d)
	return e
}

// browser 只保留 cookie 的极简客户端，不跟随跳转
type browser struct {
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(h http.Handler) *browser {
	return &browser{h: h, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.h.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data"`
	Flash *flash.Message  `json:"flash"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func requireRedirect(t *testing.T, w *httptest.ResponseRecorder, to string) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	require.Equal(t, to, w.Header().Get("Location"))
}

func signUpAndIn(t *testing.T, b *browser, email, password string) {
	t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	requireRedirect(t, b.post("/signup", form), "/signin")
	requireRedirect(t, b.post("/signin", form), "/dashboard")
}

func adminLogin(t *testing.T, e *env) *browser {
	t.Helper()
	a := newBrowser(e.admin)
	requireRedirect(t, a.post("/admin/login", url.Values{"username": {"admin"}, "password": {adminPassword}}), "/admin")
	return a
}

func userID(t *testing.T, a *browser, email string) string {
	t.Helper()
	var out handler.ConsoleOut
	decode(t, a.get("/admin"), &out)
	for _, u := range out.Users {
		if u.Email == email {
			return u.ID
		}
	}
	t.Fatalf("user %s not listed", email)
	return ""
}

func TestScenario_TrialExpiryGrantRevoke(t *testing.T) {
	e := newEnv(t)
	u := newBrowser(e.api)
	signUpAndIn(t, u, "Alice@Gmail.com", "secret-1")

	var dash handler.DashboardOut
	decode(t, u.get("/dashboard"), &dash)
	assert.Equal(t, "alice@gmail.com", dash.Email)
	assert.Equal(t, domain.AccessTrial, dash.Access)
	assert.True(t, dash.TrialActive)

	// 试用到期
	e.advance(24*time.Hour + time.Minute)
	requireRedirect(t, u.get("/dashboard"), "/payment-required")
	var paywall handler.PaywallOut
	env := decode(t, u.get("/payment-required"), &paywall)
	require.NotNil(t, env.Flash)
	assert.Equal(t, flash.TypeError, env.Flash.Type)
	assert.Contains(t, env.Flash.Text, "trial has ended")
	assert.Equal(t, domain.AccessNone, paywall.Access)
	assert.Equal(t, "/upgrade", paywall.UpgradeURL)

	a := adminLogin(t, e)
	id := userID(t, a, "alice@gmail.com")

	requireRedirect(t, a.get("/admin/grant-premium/"+id), "/admin")
	var console handler.ConsoleOut
	env = decode(t, a.get("/admin"), &console)
	require.NotNil(t, env.Flash)
	assert.Equal(t, "Premium granted to alice@gmail.com", env.Flash.Text)
	assert.EqualValues(t, 1, console.Total)
	assert.Equal(t, 1, console.Paid)

	decode(t, u.get("/dashboard"), &dash)
	assert.Equal(t, domain.AccessPremium, dash.Access)
	assert.False(t, dash.TrialActive)

	e.advance(29 * 24 * time.Hour)
	decode(t, u.get("/dashboard"), &dash)
	assert.Equal(t, domain.AccessPremium, dash.Access)

	requireRedirect(t, a.post("/admin/revoke-premium/"+id, nil), "/admin")
	requireRedirect(t, u.get("/dashboard"), "/payment-required")
}

func TestScenario_GrantOutlivesTrial(t *testing.T) {
	e := newEnv(t)
	u := newBrowser(e.api)
	signUpAndIn(t, u, "bob@gmail.com", "pw")

	a := adminLogin(t, e)
	id := userID(t, a, "bob@gmail.com")
	requireRedirect(t, a.get("/admin/grant-premium/"+id), "/admin")

	e.advance(30*24*time.Hour - time.Minute)
	var dash handler.DashboardOut
	decode(t, u.get("/dashboard"), &dash)
	assert.Equal(t, domain.AccessPremium, dash.Access)

	e.advance(2 * time.Minute)
	requireRedirect(t, u.get("/dashboard"), "/payment-required")
}

func TestSignup_Rejections(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	form := url.Values{"email": {"carol@gmail.com"}, "password": {"pw"}}
	requireRedirect(t, b.post("/signup", form), "/signin")

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"duplicate", form, "already exists"},
		{"duplicate differing case", url.Values{"email": {" CAROL@gmail.com "}, "password": {"pw"}}, "already exists"},
		{"non gmail", url.Values{"email": {"carol@yahoo.com"}, "password": {"pw"}}, "gmail.com"},
		{"missing password", url.Values{"email": {"dave@gmail.com"}}, "password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireRedirect(t, b.post("/signup", tt.form), "/signup")
			env := decode(t, b.get("/signup"), nil)
			require.NotNil(t, env.Flash)
			assert.Equal(t, flash.TypeError, env.Flash.Type)
			assert.Contains(t, env.Flash.Text, tt.want)
		})
	}

	a := adminLogin(t, e)
	var console handler.ConsoleOut
	decode(t, a.get("/admin"), &console)
	assert.EqualValues(t, 1, console.Total)
}

func TestSignin_Failures(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	requireRedirect(t, b.post("/signup", url.Values{"email": {"erin@gmail.com"}, "password": {"right"}}), "/signin")

	requireRedirect(t, b.post("/signin", url.Values{"email": {"erin@gmail.com"}, "password": {"wrong"}}), "/signin")
	env := decode(t, b.get("/signin"), nil)
	require.NotNil(t, env.Flash)
	assert.Equal(t, "Invalid email or password.", env.Flash.Text)

	requireRedirect(t, b.post("/signin", url.Values{"email": {"nobody@gmail.com"}, "password": {"x"}}), "/signin")
	env = decode(t, b.get("/signin"), nil)
	require.NotNil(t, env.Flash)
	assert.Contains(t, env.Flash.Text, "No account found")

	requireRedirect(t, b.get("/dashboard"), "/signin")
}

func TestRootAndSignedInRedirects(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	requireRedirect(t, b.get("/"), "/signin")

	signUpAndIn(t, b, "frank@gmail.com", "pw")
	requireRedirect(t, b.get("/"), "/dashboard")
	requireRedirect(t, b.get("/signin"), "/dashboard")
	requireRedirect(t, b.get("/signup"), "/dashboard")
}

func TestLogout_RevokesSession(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	signUpAndIn(t, b, "gina@gmail.com", "pw")
	stolen := *b.cookies["subgate_session"]

	requireRedirect(t, b.get("/logout"), "/signin")
	assert.NotContains(t, b.cookies, "subgate_session")

	// 旧 token 即使被重放也失效
	replay := newBrowser(e.api)
	replay.cookies[stolen.Name] = &stolen
	requireRedirect(t, replay.get("/dashboard"), "/signin")
}

func TestAdmin_Gates(t *testing.T) {
	e := newEnv(t)

	anon := newBrowser(e.admin)
	requireRedirect(t, anon.get("/admin"), "/admin/login")
	requireRedirect(t, anon.get("/admin/grant-premium/x"), "/admin/login")

	requireRedirect(t, anon.post("/admin/login", url.Values{"username": {"admin"}, "password": {"nope"}}), "/admin/login")
	env := decode(t, anon.get("/admin/login"), nil)
	require.NotNil(t, env.Flash)
	assert.Equal(t, "Invalid admin credentials.", env.Flash.Text)

	// 用户会话不能访问后台
	u := newBrowser(e.api)
	signUpAndIn(t, u, "hank@gmail.com", "pw")
	userCookie := *u.cookies["subgate_session"]
	forged := newBrowser(e.admin)
	forged.cookies["subgate_admin"] = &http.Cookie{Name: "subgate_admin", Value: userCookie.Value}
	requireRedirect(t, forged.get("/admin"), "/admin/login")

	a := adminLogin(t, e)
	requireRedirect(t, a.get("/admin/grant-premium/missing"), "/admin")
	env = decode(t, a.get("/admin"), nil)
	require.NotNil(t, env.Flash)
	assert.Equal(t, "User not found.", env.Flash.Text)

	requireRedirect(t, a.get("/admin/logout"), "/admin/login")
	requireRedirect(t, a.get("/admin"), "/admin/login")
}

func TestUpgradeAndPaymentSuccess(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	signUpAndIn(t, b, "ivy@gmail.com", "pw")
	e.advance(48 * time.Hour)

	w := b.get("/upgrade")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", loc.Host)
	assert.Equal(t, "monthly", loc.Query().Get("plan"))
	assert.NotEmpty(t, loc.Query().Get("ref"))

	// 回跳不再直接开通
	requireRedirect(t, b.get("/payment-success"), "/dashboard")
	requireRedirect(t, b.get("/dashboard"), "/payment-required")
}

func postWebhook(e *env, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Signature", sig)
	}
	w := httptest.NewRecorder()
	e.api.ServeHTTP(w, req)
	return w
}

func TestWebhook_ActivatesPremium(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	signUpAndIn(t, b, "jack@gmail.com", "pw")
	e.advance(48 * time.Hour)
	requireRedirect(t, b.get("/dashboard"), "/payment-required")

	loc, err := url.Parse(b.get("/upgrade").Header().Get("Location"))
	require.NoError(t, err)
	uid := loc.Query().Get("ref")

	body, err := json.Marshal(map[string]any{
		"event": "payment.succeeded",
		"object": map[string]any{
			"id":       "pay_1",
			"status":   "succeeded",
			"metadata": map[string]string{"user_id": uid},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, postWebhook(e, body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postWebhook(e, body, handler.Sign("wrong", body)).Code)
	requireRedirect(t, b.get("/dashboard"), "/payment-required")

	w := postWebhook(e, body, handler.Sign(webhookSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "applied")

	var dash handler.DashboardOut
	decode(t, b.get("/dashboard"), &dash)
	assert.Equal(t, domain.AccessPremium, dash.Access)
	first := *dash.PremiumExpires

	// 重复回调不延期
	e.advance(time.Hour)
	w = postWebhook(e, body, handler.Sign(webhookSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	decode(t, b.get("/dashboard"), &dash)
	assert.True(t, first.Equal(*dash.PremiumExpires))

	ignored := []byte(`{"event":"payment.canceled","object":{"id":"pay_2"}}`)
	w = postWebhook(e, ignored, handler.Sign(webhookSecret, ignored))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhook_ReplayOfOlderPaymentIgnored(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(e.api)
	signUpAndIn(t, b, "kate@gmail.com", "pw")

	loc, err := url.Parse(b.get("/upgrade").Header().Get("Location"))
	require.NoError(t, err)
	uid := loc.Query().Get("ref")

	send := func(id string) *httptest.ResponseRecorder {
		body, err := json.Marshal(map[string]any{
			"event": "payment.succeeded",
			"object": map[string]any{
				"id":       id,
				"status":   "succeeded",
				"metadata": map[string]string{"user_id": uid},
			},
		})
		require.NoError(t, err)
		return postWebhook(e, body, handler.Sign(webhookSecret, body))
	}

	assert.Contains(t, send("pay_A").Body.String(), "applied")
	e.advance(10 * 24 * time.Hour)
	assert.Contains(t, send("pay_B").Body.String(), "applied")

	var dash handler.DashboardOut
	decode(t, b.get("/dashboard"), &dash)
	expB := *dash.PremiumExpires

	e.advance(10 * 24 * time.Hour)
	w := send("pay_A")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")

	decode(t, b.get("/dashboard"), &dash)
	assert.True(t, expB.Equal(*dash.PremiumExpires))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	for _, p := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		e.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":1}`, w.Body.String())
	}

	b := newBrowser(e.api)
	signUpAndIn(t, b, "kim@gmail.com", "pw")
	decode(t, b.get("/dashboard"), nil)

	w := httptest.NewRecorder()
	e.admin.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `entitlement_decisions_total{access="trial-active"}`)
}
