// Package status はドライバ操作とRPCで共有するステータスコードを定義する
//
// 成功は nil エラーで表し、失敗は *Error としてコードと理由を運ぶ。
// fmt.Errorf の %w で包まれていても CodeOf でコードを取り出せる。
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code はステータスコードを表す
type Code int

const (
	OK Code = iota
	InvalidArgument
	OutOfRange
	Unimplemented
	PermissionDenied
	InternalError
	DeadlineExceeded
	NotFound
)

var codeNames = map[Code]string{
	OK:               "OK",
	InvalidArgument:  "INVALID_ARGUMENT",
	OutOfRange:       "OUT_OF_RANGE",
	Unimplemented:    "UNIMPLEMENTED",
	PermissionDenied: "PERMISSION_DENIED",
	InternalError:    "INTERNAL_ERROR",
	DeadlineExceeded: "DEADLINE_EXCEEDED",
	NotFound:         "NOT_FOUND",
}

// String はコードの名前を返す
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// ParseCode は名前からコードを復元する
func ParseCode(name string) (Code, bool) {
	if name == "" {
		return OK, true
	}
	for code, n := range codeNames {
		if n == name {
			return code, true
		}
	}
	return InternalError, false
}

// Error はコード付きのエラー
type Error struct {
	Code Code
	Why  string
}

func (e *Error) Error() string {
	if e.Why == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Why)
}

// New はコードと理由からエラーを作成する。OK の場合は nil を返す
func New(code Code, why string) error {
	if code == OK {
		return nil
	}
	return &Error{Code: code, Why: why}
}

// Errorf は書式付きの理由でエラーを作成する
func Errorf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// CodeOf はエラーからコードを取り出す
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return InternalError
}

// WhyOf はエラーから理由を取り出す
func WhyOf(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Why != "" {
		return se.Why
	}
	return err.Error()
}

// Is はエラーが指定コードかどうかを判定する
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus はコードに対応するHTTPステータスを返す
func HTTPStatus(code Code) int {
	switch code {
	case OK:
		return http.StatusOK
	case InvalidArgument, OutOfRange:
		return http.StatusBadRequest
	case Unimplemented:
		return http.StatusNotImplemented
	case PermissionDenied:
		return http.StatusForbidden
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
