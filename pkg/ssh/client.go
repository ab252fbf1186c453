package ssh

import (
	"sync"

	"golang.org/x/crypto/ssh"
)

type Client struct {
	sshClient *ssh.Client
	target    Target

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

func NewClient(raw *ssh.Client, target Target) *Client {
	return &Client{
		sshClient: raw,
		target:    target,
		done:      make(chan struct{}),
	}
}

// Close 关闭连接,可重复调用
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.sshClient.Close()
	})
	return c.closeErr
}

// SSHClient 暴露底层的 ssh.Client (供 SFTP 子系统使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// Target 返回当前连接对应的目标
func (c *Client) Target() Target {
	return c.target
}

// ServerVersion 返回服务端的版本标识
func (c *Client) ServerVersion() string {
	return string(c.sshClient.ServerVersion())
}
