package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Resp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

// New data 为 nil 时输出 {}，不输出 null
func New(code int, msg string, data any) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

func OK(data any) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

// Error customMsg 为空时用默认文案
func Error(code int, customMsg string) Resp {
	msg := CodeMsgMap[code]
	if customMsg != "" {
		msg = customMsg
	}
	return New(code, msg, nil)
}

// Success status 一般是 200，创建类接口用 201
func Success(c *gin.Context, status int, data any) {
	c.JSON(status, OK(data))
}

// Fail 中止后续 handler，HTTP 状态码取 code（非 HTTP 码时按 500）
func Fail(c *gin.Context, code int, msg string) {
	status := code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, Error(code, msg))
}
