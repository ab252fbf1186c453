package ssh

import (
	"errors"

	"golang.org/x/crypto/ssh"
)

var ErrEmptyPassword = errors.New("auth type is password but password is empty")

// AuthMethod 定义获取 SSH 认证方法的接口
type AuthMethod interface {
	GetMethod() (ssh.AuthMethod, error)
}

// PasswordAuth 实现密码认证
type PasswordAuth struct {
	Password string
}

func (p *PasswordAuth) GetMethod() (ssh.AuthMethod, error) {
	if p.Password == "" {
		return nil, ErrEmptyPassword
	}
	return ssh.Password(p.Password), nil
}
