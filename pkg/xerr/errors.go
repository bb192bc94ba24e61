package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// 常用错误码定义
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	RecordNotFound     = 404

	// 行情服务错误分类
	UnsupportedRouting       = 1001 // 没有 provider / streamer 负责这个 assetClass+dataType
	MissingRequiredParameter = 1002 // 例如按 symbol 订阅却没给 symbol
	RateLimited              = 1003
	UpstreamFailure          = 1004 // 上游调用失败，对调用方不透明
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 给 cause 打上错误码，errors.Is(err, cause) 依然成立
func Wrap(cause error, code int, msg string) error {
	if cause == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: msg, cause: cause}
}

// CodeOf 返回链路上第一个 CodeError 的 code，没有则 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func IsCode(err error, code int) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus 把错误码映射到 http 状态码
func HTTPStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case RequestParamsError, MissingRequiredParameter:
		return http.StatusBadRequest
	case RecordNotFound, UnsupportedRouting:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case UpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "internal error"
	case RequestParamsError:
		return "invalid parameters"
	case RecordNotFound:
		return "record not found"
	case UnsupportedRouting:
		return "unsupported asset class or data type"
	case MissingRequiredParameter:
		return "missing required parameter"
	case RateLimited:
		return "too many requests"
	case UpstreamFailure:
		return "upstream unavailable"
	default:
		return "unknown error"
	}
}
