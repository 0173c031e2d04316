package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"subgate/internal/core/auth"
	"subgate/internal/core/config"
	"subgate/internal/domain"
	"subgate/internal/service"
	"subgate/internal/transport/http/cookie"
	"subgate/internal/transport/http/ez"
	"subgate/internal/transport/http/flash"
	mdw "subgate/internal/transport/http/middleware"
)

type UserHandler struct {
	svc        *service.UserService
	sessions   *auth.Sessions
	cookies    *cookie.Manager
	cookieName string
	payment    config.Payment
}

func NewUserHandler(svc *service.UserService, s *auth.Sessions, cm *cookie.Manager, cookieName string, p config.Payment) *UserHandler {
	return &UserHandler{svc: svc, sessions: s, cookies: cm, cookieName: cookieName, payment: p}
}

type SignupIn struct {
	Email    string `form:"email" json:"email" binding:"required,gmail,max=191"`
	Password string `form:"password" json:"password" binding:"required,max=128"`
}

type SigninIn struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type PageOut struct {
	Page   string            `json:"page"`
	Fields []string          `json:"fields,omitempty"`
	Links  map[string]string `json:"links,omitempty"`
}

type DashboardOut struct {
	Email          string        `json:"email"`
	Access         domain.Access `json:"access"`
	TrialActive    bool          `json:"trialActive"`
	TrialExpires   time.Time     `json:"trialExpires"`
	PremiumActive  bool          `json:"premiumActive"`
	PremiumExpires *time.Time    `json:"premiumExpires,omitempty"`
}

type PaywallOut struct {
	Email        string        `json:"email"`
	Access       domain.Access `json:"access"`
	TrialExpires time.Time     `json:"trialExpires"`
	UpgradeURL   string        `json:"upgradeUrl"`
}

func (h *UserHandler) signedIn(c *gin.Context) bool {
	tok, _ := c.Cookie(h.cookieName)
	if tok == "" {
		return false
	}
	_, err := h.sessions.Verify(c.Request.Context(), tok, auth.KindUser)
	return err == nil
}

// Root 已登录去控制台，否则去登录页
func (h *UserHandler) Root(c *gin.Context) {
	if h.signedIn(c) {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	c.Redirect(http.StatusFound, "/signin")
}

// RedirectIfSignedIn 登录/注册页对已登录用户直接跳走
func (h *UserHandler) RedirectIfSignedIn(to string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.signedIn(c) {
			c.Redirect(http.StatusFound, to)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *UserHandler) SignupPage(*gin.Context, *struct{}) (PageOut, error) {
	return PageOut{
		Page:   "signup",
		Fields: []string{"email", "password"},
		Links:  map[string]string{"signin": "/signin"},
	}, nil
}

func (h *UserHandler) SignUp(c *gin.Context, in *SignupIn) (ez.Redirect, error) {
	if _, err := h.svc.Register(c.Request.Context(), in.Email, in.Password); err != nil {
		return ez.Redirect{}, err
	}
	return ez.To("/signin").With(flash.Success("Account created successfully! Please sign in.")), nil
}

func (h *UserHandler) SigninPage(*gin.Context, *struct{}) (PageOut, error) {
	return PageOut{
		Page:   "signin",
		Fields: []string{"email", "password"},
		Links:  map[string]string{"signup": "/signup"},
	}, nil
}

func (h *UserHandler) SignIn(c *gin.Context, in *SigninIn) (ez.Redirect, error) {
	u, err := h.svc.Authenticate(c.Request.Context(), in.Email, in.Password)
	if errors.Is(err, domain.ErrNotFound) {
		return ez.Redirect{}, ez.NotFound("No account found for this email. Please sign up first.")
	}
	if err != nil {
		return ez.Redirect{}, err
	}
	tok, claims, err := h.sessions.Open(u.ID, auth.KindUser)
	if err != nil {
		return ez.Redirect{}, ez.Internal("open session failed", err)
	}
	h.cookies.Set(c, h.cookieName, tok, claims.ExpiresAt.Time)
	return ez.To("/dashboard"), nil
}

func (h *UserHandler) Logout(c *gin.Context, _ *struct{}) (ez.Redirect, error) {
	if claims := mdw.CurrentClaims(c); claims != nil {
		if err := h.sessions.Close(c.Request.Context(), claims); err != nil {
			_ = c.Error(err)
		}
	}
	h.cookies.Clear(c, h.cookieName)
	return ez.To("/signin").With(flash.Info("You have been signed out.")), nil
}

// Dashboard 仅在权益门放行后可达
func (h *UserHandler) Dashboard(c *gin.Context, _ *struct{}) (DashboardOut, error) {
	u := mdw.CurrentUser(c)
	if u == nil {
		return DashboardOut{}, ez.Unauthorized("")
	}
	now := h.svc.Now()
	return DashboardOut{
		Email:          u.Email,
		Access:         domain.Evaluate(u, now),
		TrialActive:    domain.TrialActive(u, now),
		TrialExpires:   u.TrialExpires,
		PremiumActive:  domain.PremiumActive(u, now),
		PremiumExpires: u.PremiumExpires,
	}, nil
}

func (h *UserHandler) PaymentRequired(c *gin.Context, _ *struct{}) (PaywallOut, error) {
	u, access, err := h.svc.Access(c.Request.Context(), c.GetString(mdw.CtxUserID))
	if err != nil {
		return PaywallOut{}, err
	}
	return PaywallOut{Email: u.Email, Access: access, TrialExpires: u.TrialExpires, UpgradeURL: "/upgrade"}, nil
}

// Upgrade 跳转到支付页，带上用户 ID 作为回调关联
func (h *UserHandler) Upgrade(c *gin.Context, _ *struct{}) (ez.Redirect, error) {
	target, err := CheckoutURL(h.payment, c.GetString(mdw.CtxUserID))
	if err != nil {
		return ez.Redirect{}, err
	}
	return ez.To(target), nil
}

// PaymentSuccess 支付页回跳：只提示，不改权益（以已验签的 webhook 为准）
func (h *UserHandler) PaymentSuccess(*gin.Context, *struct{}) (ez.Redirect, error) {
	return ez.To("/dashboard").With(flash.Info("Payment received. Premium access will be activated once the payment is confirmed.")), nil
}

func CheckoutURL(p config.Payment, userID string) (string, error) {
	if p.CheckoutURL == "" {
		return "", ez.Unavailable("Payments are not available right now.")
	}
	u, err := url.Parse(p.CheckoutURL)
	if err != nil {
		return "", ez.Internal("invalid checkout url", err)
	}
	param := p.ReferenceParam
	if param == "" {
		param = "ref"
	}
	q := u.Query()
	q.Set(param, userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
