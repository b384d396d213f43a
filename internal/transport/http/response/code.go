package response

// 错误码直接复用 HTTP 语义；失败时 HTTP 状态码与 code 一致
const (
	CodeOK                 = 0
	CodeBadRequest         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeMethodNotAllowed   = 405
	CodeConflict           = 409
	CodeTooLarge           = 413
	CodeTooManyRequests    = 429
	CodeServerError        = 500
	CodeNotImplemented     = 501
	CodeServiceUnavailable = 503
	CodeTimeout            = 504
)

var CodeMsgMap = map[int]string{
	CodeOK:                 "OK",
	CodeBadRequest:         "Bad Request",
	CodeUnauthorized:       "Unauthorized",
	CodeForbidden:          "Forbidden",
	CodeNotFound:           "Not Found",
	CodeMethodNotAllowed:   "Method Not Allowed",
	CodeConflict:           "Conflict",
	CodeTooLarge:           "Request Entity Too Large",
	CodeTooManyRequests:    "Too Many Requests",
	CodeServerError:        "Internal Server Error",
	CodeNotImplemented:     "Not Implemented",
	CodeServiceUnavailable: "Service Unavailable",
	CodeTimeout:            "Gateway Timeout",
}
