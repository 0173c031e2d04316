package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"subgate/internal/transport/http/ez"
	"subgate/internal/transport/http/handler"
	mdw "subgate/internal/transport/http/middleware"
)

// NewAPIEngine 用户端：注册/登录/控制台/付费
func NewAPIEngine(d Deps) *gin.Engine {
	r := newEngine(d)

	cookieName := d.Cfg.Session.CookieName
	h := handler.NewUserHandler(d.Users, d.Sessions, d.Cookies, cookieName, d.Cfg.Payment)
	wh := handler.NewWebhookHandler(d.Users, d.Cfg.Payment, d.Log)

	// 每个路由的门禁在此显式列出
	user := mdw.RequireUser(d.Sessions, cookieName)
	entitled := mdw.RequireEntitlement(d.Users, "/payment-required")

	r.GET("/", h.Root)

	ez.RegisterAction(r, ez.Action[struct{}, handler.PageOut]{
		Method: http.MethodGet, Path: "/signup", Binder: ez.BindNone, Handler: h.SignupPage,
	}, h.RedirectIfSignedIn("/dashboard"))
	ez.RegisterForm(r, ez.Form[handler.SignupIn]{
		Method: http.MethodPost, Path: "/signup", Binder: ez.BindForm, FailTo: "/signup", Handler: h.SignUp,
	}, d.loginLimit("/signup"))

	ez.RegisterAction(r, ez.Action[struct{}, handler.PageOut]{
		Method: http.MethodGet, Path: "/signin", Binder: ez.BindNone, Handler: h.SigninPage,
	}, h.RedirectIfSignedIn("/dashboard"))
	ez.RegisterForm(r, ez.Form[handler.SigninIn]{
		Method: http.MethodPost, Path: "/signin", Binder: ez.BindForm, FailTo: "/signin", Handler: h.SignIn,
	}, d.loginLimit("/signin"))

	ez.RegisterForm(r, ez.Form[struct{}]{
		Method: http.MethodGet, Path: "/logout", Binder: ez.BindNone, FailTo: "/signin", Handler: h.Logout,
	}, user)

	ez.RegisterAction(r, ez.Action[struct{}, handler.DashboardOut]{
		Method: http.MethodGet, Path: "/dashboard", Binder: ez.BindNone, Handler: h.Dashboard,
	}, user, entitled)

	ez.RegisterAction(r, ez.Action[struct{}, handler.PaywallOut]{
		Method: http.MethodGet, Path: "/payment-required", Binder: ez.BindNone, Handler: h.PaymentRequired,
	}, user)
	ez.RegisterForm(r, ez.Form[struct{}]{
		Method: http.MethodGet, Path: "/upgrade", Binder: ez.BindNone, FailTo: "/payment-required", Handler: h.Upgrade,
	}, user)
	ez.RegisterForm(r, ez.Form[struct{}]{
		Method: http.MethodGet, Path: "/payment-success", Binder: ez.BindNone, FailTo: "/dashboard", Handler: h.PaymentSuccess,
	}, user)

	// 渠道回调：只认签名，不走会话
	r.POST("/payments/webhook",
		mdw.RateLimitPerIP(rate.Limit(d.Cfg.Limits.WebhookRPS), d.Cfg.Limits.WebhookBurst),
		wh.Receive,
	)

	return r
}
