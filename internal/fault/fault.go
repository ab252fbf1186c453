// Package fault 定义服务的错误分类。
// 每个请求的失败都归入一个 Kind,调用方按 Kind 区分,而不是比对错误信息。
package fault

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	Unknown Kind = iota
	StartupFailure
	UnknownCommand
	HostResolutionFailure
	SftpFailure
	LocalFileFailure
)

func (k Kind) String() string {
	switch k {
	case StartupFailure:
		return "StartupFailure"
	case UnknownCommand:
		return "UnknownCommand"
	case HostResolutionFailure:
		return "HostResolutionFailure"
	case SftpFailure:
		return "SftpFailure"
	case LocalFileFailure:
		return "LocalFileFailure"
	default:
		return "Unknown"
	}
}

// Error 带类别的错误,Subject 是出错的对象(文件路径、主机名、配置文件等)
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func New(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链中第一个 *Error 的类别,没有则返回 Unknown
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}
