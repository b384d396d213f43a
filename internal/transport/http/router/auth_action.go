package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"go-gin-auth-session/internal/core/metrics"
	"go-gin-auth-session/internal/domain"
	mdw "go-gin-auth-session/internal/transport/http/middleware"
	resp "go-gin-auth-session/internal/transport/http/response"
	"go-gin-auth-session/pkg/utils"
)

// EZ 给一个路由分组挂 Action；日志与指标随分组传递
type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
	m   *metrics.Metrics
}

func New(g *gin.RouterGroup, log *zap.Logger, m *metrics.Metrics) EZ {
	return EZ{g: g, log: log, m: m}
}

// Group 子分组，可附带中间件
func (e EZ) Group(path string, hs ...gin.HandlerFunc) EZ {
	return EZ{g: e.g.Group(path, hs...), log: e.log, m: e.m}
}

type Binder string

const (
	BindJSON  Binder = "json"
	BindQuery Binder = "query"
	BindNone  Binder = "none"
)

// AErr 边界错误：Code 即 HTTP 状态码，Msg 给客户端，Err 只进日志
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// toAErr 领域错误按分类映射；未识别的一律 500 且不暴露细节
func toAErr(err error) *AErr {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return &AErr{Code: resp.CodeTooLarge, Msg: "request body too large"}
	case errors.Is(err, domain.ErrEmailConflict), errors.Is(err, domain.ErrIdentityConflict):
		return &AErr{Code: resp.CodeConflict, Msg: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &AErr{Code: resp.CodeNotFound, Msg: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrExternalAuthFailed):
		return &AErr{Code: resp.CodeUnauthorized, Msg: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return &AErr{Code: resp.CodeForbidden, Msg: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredential), errors.Is(err, domain.ErrWeakPassword):
		return &AErr{Code: resp.CodeBadRequest, Msg: err.Error()}
	case errors.Is(err, domain.ErrNotImplemented):
		return &AErr{Code: resp.CodeNotImplemented, Msg: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &AErr{Code: resp.CodeTimeout, Msg: "timeout", Err: err}
	default:
		return &AErr{Code: resp.CodeServerError, Msg: "internal error", Err: err}
	}
}

var registerOnce sync.Once

// registerValidators 注册 binding:"password"（长度 + 大小写 + 数字）
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
				return utils.PasswordPolicyOK(fl.Field().String())
			})
		}
	})
}

// bindMessage 校验失败给出字段级提示，不回显输入值
func bindMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "password":
			msgs = append(msgs, domain.ErrWeakPassword.Error())
		case "max", "min":
			msgs = append(msgs, fmt.Sprintf("%s length must be %s %s", field, map[string]string{"max": "<=", "min": ">="}[fe.Tag()], fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Action I 入参，O 出参
type Action[I any, O any] struct {
	Method  string
	Path    string
	Binder  Binder
	Auth    bool   // 要求上下文里有 userId（分组已挂 AuthJWT）
	Status  int    // 成功时的 HTTP 状态码，默认 200
	Op      string // 非空时计入 auth_outcomes_total
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	registerValidators()
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}

	h := func(c *gin.Context) {
		if a.Auth && c.GetString(mdw.KeyUserID) == "" {
			e.fail(c, a.Op, &AErr{Code: resp.CodeUnauthorized, Msg: "unauthorized"})
			return
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(bindErr, &tooLarge) {
				e.fail(c, a.Op, &AErr{Code: resp.CodeTooLarge, Msg: "request body too large"})
				return
			}
			e.fail(c, a.Op, &AErr{Code: resp.CodeBadRequest, Msg: bindMessage(bindErr)})
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			e.fail(c, a.Op, toAErr(err))
			return
		}
		if a.Op != "" {
			e.m.ObserveAuth(a.Op, "ok")
		}
		resp.Success(c, status, out)
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default:
		e.g.POST(a.Path, h)
	}
}

func (e EZ) fail(c *gin.Context, op string, ae *AErr) {
	if ae.Code >= 500 && e.log != nil {
		e.log.Error("action failed",
			zap.String("rid", c.GetString(mdw.KeyRequestID)),
			zap.String("path", c.FullPath()),
			zap.Error(ae.Err),
		)
	}
	if ae.Err != nil {
		_ = c.Error(ae.Err)
	}
	if op != "" {
		e.m.ObserveAuth(op, outcome(ae.Code))
	}
	resp.Fail(c, ae.Code, ae.Error())
}

func outcome(code int) string {
	return strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_"))
}
