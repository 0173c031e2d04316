package ez

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"subgate/internal/transport/http/flash"
	resp "subgate/internal/transport/http/response"
)

type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindForm  Binder = "form"  // 按 Content-Type 绑定表单/JSON
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

func bind(c *gin.Context, b Binder, in any) error {
	switch b {
	case BindJSON:
		return c.ShouldBindJSON(in)
	case BindQuery:
		return c.ShouldBindQuery(in)
	case BindForm:
		return c.ShouldBind(in)
	}
	return nil
}

// Action JSON 页面/接口：I 入参，O 出参；GET 时附带待显示的 flash
type Action[I any, O any] struct {
	Method  string
	Path    string
	Binder  Binder
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](g gin.IRoutes, a Action[I, O], mw ...gin.HandlerFunc) {
	h := func(c *gin.Context) {
		var in I
		if err := bind(c, a.Binder, &in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, BindMessage(err)))
			return
		}
		out, err := a.Handler(c, &in)
		if err != nil {
			ae := FromDomain(err)
			if ae.Code == resp.CodeServerError {
				_ = c.Error(err)
			}
			c.JSON(http.StatusOK, resp.Error(ae.Code, ae.Error()))
			return
		}
		r := resp.OK(out)
		if c.Request.Method == http.MethodGet {
			r = r.WithFlash(flash.Pop(c))
		}
		c.JSON(http.StatusOK, r)
	}
	g.Handle(strings.ToUpper(a.Method), a.Path, append(append([]gin.HandlerFunc{}, mw...), h)...)
}

// Redirect 表单动作的结果：跳转 + 可选 flash
type Redirect struct {
	To    string
	Flash *flash.Message
}

func To(path string) Redirect { return Redirect{To: path} }

func (r Redirect) With(m flash.Message) Redirect {
	r.Flash = &m
	return r
}

// Form 提交类动作：成功/失败都以 302 + flash 收尾
type Form[I any] struct {
	Method  string
	Path    string
	Binder  Binder
	FailTo  string
	Handler func(c *gin.Context, in *I) (Redirect, error)
}

func RegisterForm[I any](g gin.IRoutes, f Form[I], mw ...gin.HandlerFunc) {
	h := func(c *gin.Context) {
		var in I
		if err := bind(c, f.Binder, &in); err != nil {
			finish(c, To(f.FailTo).With(flash.Error(BindMessage(err))))
			return
		}
		r, err := f.Handler(c, &in)
		if err != nil {
			ae := FromDomain(err)
			if ae.Code == resp.CodeServerError {
				_ = c.Error(err)
			}
			finish(c, To(f.FailTo).With(flash.Error(ae.Error())))
			return
		}
		finish(c, r)
	}
	g.Handle(strings.ToUpper(f.Method), f.Path, append(append([]gin.HandlerFunc{}, mw...), h)...)
}

func finish(c *gin.Context, r Redirect) {
	if r.Flash != nil {
		flash.Set(c, *r.Flash)
	}
	c.Redirect(http.StatusFound, r.To)
}
