package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"subgate/internal/core/auth"
	"subgate/internal/domain"
	"subgate/internal/transport/http/ez"
	"subgate/internal/transport/http/flash"
	resp "subgate/internal/transport/http/response"
)

// gin.Context 中的 key
const (
	CtxUserID = "userId"
	CtxClaims = "claims"
	CtxUser   = "user"
	CtxAccess = "access"
)

// RequireSession 校验 cookie 中的会话；未登录则带提示跳转到 loginPath
func RequireSession(s *auth.Sessions, cookieName string, kind auth.Kind, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookieName)
		claims, err := s.Verify(c.Request.Context(), token, kind)
		if err != nil {
			if !errors.Is(err, domain.ErrUnauthenticated) {
				_ = c.Error(err)
			}
			flash.Set(c, flash.Error("Please sign in to continue."))
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Set(CtxClaims, claims)
		c.Set(CtxUserID, claims.Subject)
		c.Next()
	}
}

func RequireUser(s *auth.Sessions, cookieName string) gin.HandlerFunc {
	return RequireSession(s, cookieName, auth.KindUser, "/signin")
}

func RequireAdmin(s *auth.Sessions, cookieName string) gin.HandlerFunc {
	return RequireSession(s, cookieName, auth.KindAdmin, "/admin/login")
}

// AccessChecker 按当前时间给出用户权益
type AccessChecker interface {
	Access(ctx context.Context, id string) (*domain.User, domain.Access, error)
}

const paywallMessage = "Your free trial has ended. Upgrade to premium to continue."

// RequireEntitlement 必须挂在 RequireUser 之后；试用/会员均失效时跳转付费页
func RequireEntitlement(ac AccessChecker, paywall string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(CtxUserID)
		if uid == "" {
			c.Redirect(http.StatusFound, "/signin")
			c.Abort()
			return
		}
		u, access, err := ac.Access(c.Request.Context(), uid)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// 会话还在但账号已不存在
			flash.Set(c, flash.Error("Please sign in to continue."))
			c.Redirect(http.StatusFound, "/signin")
			c.Abort()
			return
		case err != nil:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeServerError, "entitlement check failed"))
			return
		}
		ObserveAccess(access)
		if !access.Allowed() {
			flash.Set(c, flash.Error(ez.PaymentRequired(paywallMessage).Error()))
			c.Redirect(http.StatusFound, paywall)
			c.Abort()
			return
		}
		c.Set(CtxUser, u)
		c.Set(CtxAccess, access)
		c.Next()
	}
}

// CurrentClaims 取 RequireSession 放入的会话
func CurrentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil
	}
	cl, _ := v.(*auth.Claims)
	return cl
}

// CurrentUser 取 RequireEntitlement 放入的用户
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(CtxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}
