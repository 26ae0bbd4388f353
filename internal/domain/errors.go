package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，调用方据此向用户解释被拒绝的原因
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NotFound"
	KindForbidden         ErrorKind = "Forbidden"
	KindConflict          ErrorKind = "Conflict"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindInvalidArgument   ErrorKind = "InvalidArgument"
	KindCurrencyMismatch  ErrorKind = "CurrencyMismatch"
)

// 用于 errors.Is 匹配的分类哨兵
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrCurrencyMismatch  = &Error{Kind: KindCurrencyMismatch}
)

// Error 带分类和出错实体的业务错误
type Error struct {
	Kind    ErrorKind
	Entity  EntityType
	ID      uint
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s %d", msg, e.Entity, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同分类即视为匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 取出错误分类，非业务错误返回空
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NotFound(entity EntityType, id uint) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: "not found"}
}

func Forbidden(entity EntityType, id uint, msg string) *Error {
	return &Error{Kind: KindForbidden, Entity: entity, ID: id, Message: msg}
}

func Conflict(entity EntityType, id uint, msg string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id, Message: msg}
}

func InvalidArgument(entity EntityType, id uint, msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Entity: entity, ID: id, Message: msg}
}

func InvalidTransition(entity EntityType, id uint, cause error) *Error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: id, Message: "invalid transition", Err: cause}
}

func CurrencyMismatch(entity EntityType, id uint, want, got string) *Error {
	return &Error{
		Kind:    KindCurrencyMismatch,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf("currency mismatch %s != %s", want, got),
	}
}
