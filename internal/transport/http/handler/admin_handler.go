package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"subgate/internal/core/auth"
	"subgate/internal/domain"
	"subgate/internal/service"
	"subgate/internal/transport/http/cookie"
	"subgate/internal/transport/http/ez"
	"subgate/internal/transport/http/flash"
	mdw "subgate/internal/transport/http/middleware"
)

type AdminHandler struct {
	svc        *service.UserService
	sessions   *auth.Sessions
	cookies    *cookie.Manager
	cookieName string
	creds      auth.AdminCredentials
}

func NewAdminHandler(svc *service.UserService, s *auth.Sessions, cm *cookie.Manager, cookieName string, creds auth.AdminCredentials) *AdminHandler {
	return &AdminHandler{svc: svc, sessions: s, cookies: cm, cookieName: cookieName, creds: creds}
}

type AdminLoginIn struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type ConsoleQ struct {
	Offset int `form:"offset,default=0"`
	Limit  int `form:"limit,default=50"`
}

type UserRow struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	CreatedAt      time.Time     `json:"createdAt"`
	TrialExpires   time.Time     `json:"trialExpires"`
	IsPremium      bool          `json:"isPremium"`
	PremiumExpires *time.Time    `json:"premiumExpires,omitempty"`
	LastPaymentAt  *time.Time    `json:"lastPaymentAt,omitempty"`
	Access         domain.Access `json:"access"`
}

type ConsoleOut struct {
	Total  int64     `json:"total"`
	Paid   int       `json:"paid"`
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Users  []UserRow `json:"users"`
}

func (h *AdminHandler) RedirectIfSignedIn(c *gin.Context) {
	tok, _ := c.Cookie(h.cookieName)
	if tok != "" {
		if _, err := h.sessions.Verify(c.Request.Context(), tok, auth.KindAdmin); err == nil {
			c.Redirect(http.StatusFound, "/admin")
			c.Abort()
			return
		}
	}
	c.Next()
}

func (h *AdminHandler) LoginPage(*gin.Context, *struct{}) (PageOut, error) {
	return PageOut{Page: "admin-login", Fields: []string{"username", "password"}}, nil
}

func (h *AdminHandler) Login(c *gin.Context, in *AdminLoginIn) (ez.Redirect, error) {
	if !h.creds.Verify(in.Username, in.Password) {
		return ez.Redirect{}, ez.Unauthorized("Invalid admin credentials.")
	}
	tok, claims, err := h.sessions.Open(in.Username, auth.KindAdmin)
	if err != nil {
		return ez.Redirect{}, ez.Internal("open admin session failed", err)
	}
	h.cookies.Set(c, h.cookieName, tok, claims.ExpiresAt.Time)
	return ez.To("/admin"), nil
}

func (h *AdminHandler) Logout(c *gin.Context, _ *struct{}) (ez.Redirect, error) {
	if claims := mdw.CurrentClaims(c); claims != nil {
		if err := h.sessions.Close(c.Request.Context(), claims); err != nil {
			_ = c.Error(err)
		}
	}
	h.cookies.Clear(c, h.cookieName)
	return ez.To("/admin/login"), nil
}

// Console 用户列表 + 总数/付费数
func (h *AdminHandler) Console(c *gin.Context, in *ConsoleQ) (ConsoleOut, error) {
	ov, err := h.svc.List(c.Request.Context(), in.Offset, in.Limit)
	if err != nil {
		return ConsoleOut{}, err
	}
	now := h.svc.Now()
	out := ConsoleOut{Total: ov.Total, Paid: ov.Paid, Offset: in.Offset, Limit: in.Limit, Users: make([]UserRow, 0, len(ov.Users))}
	for i := range ov.Users {
		u := &ov.Users[i]
		out.Users = append(out.Users, UserRow{
			ID:             u.ID,
			Email:          u.Email,
			CreatedAt:      u.CreatedAt,
			TrialExpires:   u.TrialExpires,
			IsPremium:      u.IsPremium,
			PremiumExpires: u.PremiumExpires,
			LastPaymentAt:  u.LastPaymentAt,
			Access:         domain.Evaluate(u, now),
		})
	}
	return out, nil
}

func (h *AdminHandler) GrantPremium(c *gin.Context, _ *struct{}) (ez.Redirect, error) {
	u, err := h.svc.GrantPremium(c.Request.Context(), c.Param("id"))
	if err != nil {
		return ez.Redirect{}, adminErr(err)
	}
	return ez.To("/admin").With(flash.Success("Premium granted to " + u.Email)), nil
}

func (h *AdminHandler) RevokePremium(c *gin.Context, _ *struct{}) (ez.Redirect, error) {
	u, err := h.svc.RevokePremium(c.Request.Context(), c.Param("id"))
	if err != nil {
		return ez.Redirect{}, adminErr(err)
	}
	return ez.To("/admin").With(flash.Success("Premium revoked from " + u.Email)), nil
}

func adminErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ez.NotFound("User not found.")
	}
	return err
}
