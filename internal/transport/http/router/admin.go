package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subgate/internal/transport/http/ez"
	"subgate/internal/transport/http/handler"
	mdw "subgate/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：独立端口，管理员会话 cookie 与用户会话互不通用
func NewAdminEngine(d Deps) *gin.Engine {
	r := newEngine(d)

	cookieName := d.Cfg.Session.AdminCookieName
	h := handler.NewAdminHandler(d.Users, d.Sessions, d.Cookies, cookieName, d.Admin)
	admin := mdw.RequireAdmin(d.Sessions, cookieName)

	ez.RegisterAction(r, ez.Action[struct{}, handler.PageOut]{
		Method: http.MethodGet, Path: "/admin/login", Binder: ez.BindNone, Handler: h.LoginPage,
	}, h.RedirectIfSignedIn)
	ez.RegisterForm(r, ez.Form[handler.AdminLoginIn]{
		Method: http.MethodPost, Path: "/admin/login", Binder: ez.BindForm, FailTo: "/admin/login", Handler: h.Login,
	}, d.loginLimit("/admin/login"))

	ez.RegisterAction(r, ez.Action[handler.ConsoleQ, handler.ConsoleOut]{
		Method: http.MethodGet, Path: "/admin", Binder: ez.BindQuery, Handler: h.Console,
	}, admin)
	ez.RegisterForm(r, ez.Form[struct{}]{
		Method: http.MethodGet, Path: "/admin/logout", Binder: ez.BindNone, FailTo: "/admin/login", Handler: h.Logout,
	}, admin)

	// 原有链接是 GET；同时接受 POST 供表单按钮使用
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		ez.RegisterForm(r, ez.Form[struct{}]{
			Method: m, Path: "/admin/grant-premium/:id", Binder: ez.BindNone, FailTo: "/admin", Handler: h.GrantPremium,
		}, admin)
		ez.RegisterForm(r, ez.Form[struct{}]{
			Method: m, Path: "/admin/revoke-premium/:id", Binder: ez.BindNone, FailTo: "/admin", Handler: h.RevokePremium,
		}, admin)
	}

	return r
}
