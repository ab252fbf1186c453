package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/wentf9/sftp-relay/pkg/logger"
	"golang.org/x/crypto/ssh"
)

var (
	// ErrHostResolution 主机名解析失败或没有可用地址
	ErrHostResolution = errors.New("host resolution failed")
	ErrNoHostKeyCheck = errors.New("host key callback is required")
)

// Connector 负责创建 SSH 连接。每次调用都建立新连接,不缓存
type Connector struct {
	Resolver Resolver
	Dialer   Dialer
	// Timeout 大于 0 时限制 TCP 拨号和握手的耗时
	Timeout time.Duration
	Logger  *slog.Logger
}

type Option func(*Connector)

func WithResolver(r Resolver) Option {
	return func(c *Connector) {
		if r != nil {
			c.Resolver = r
		}
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Connector) {
		if d != nil {
			c.Dialer = d
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Connector) {
		c.Timeout = timeout
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) {
		if l != nil {
			c.Logger = l
		}
	}
}

// NewConnector 创建一个新的 Connector
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		Resolver: net.DefaultResolver,
		Logger:   logger.Logger.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: c.Timeout}
	}
	return c
}

// Dial 解析目标主机并建立 TCP 连接,依次尝试解析出的每个地址
func (c *Connector) Dial(ctx context.Context, t Target) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addrs, err := c.Resolver.LookupHost(ctx, t.Host)
	if err != nil {
		return nil, fmt.Errorf("%w for %q: %w", ErrHostResolution, t.Host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w for %q: no addresses", ErrHostResolution, t.Host)
	}
	c.Logger.Info("dns resolved", "host", t.Host, "address", addrs[0])

	port := strconv.Itoa(t.Port)
	var lastErr error
	for _, addr := range addrs {
		conn, err := c.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.Logger.Debug("dial failed", "address", addr, "err", err)
	}
	return nil, fmt.Errorf("failed to dial target %s: %w", t.Addr(), lastErr)
}

// Handshake 在已建立的连接上完成 SSH 密钥交换和用户认证。
// 失败时会关闭 conn
func (c *Connector) Handshake(ctx context.Context, conn net.Conn, t Target) (*Client, error) {
	sshConfig, err := c.buildSSHConfig(t)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to build ssh config for %s: %w", t, err)
	}

	// ssh.NewClientConn 不支持 context,取消时直接关闭底层连接
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	targetAddr := t.Addr()
	ncc, chans, reqs, err := ssh.NewClientConn(conn, targetAddr, sshConfig)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ssh handshake with %s aborted: %w", targetAddr, ctx.Err())
		}
		return nil, fmt.Errorf("ssh handshake failed for %s: %w", targetAddr, err)
	}
	conn.SetDeadline(time.Time{})

	client := NewClient(ssh.NewClient(ncc, chans, reqs), t)
	if t.KeepAlive > 0 {
		client.startKeepAlive(t.KeepAlive, func(err error) {
			c.Logger.Warn("ssh keepalive failed", "target", targetAddr, "err", err)
		})
	}
	return client, nil
}

// buildSSHConfig 根据 Target 构建 ssh.ClientConfig
func (c *Connector) buildSSHConfig(t Target) (*ssh.ClientConfig, error) {
	if t.Auth == nil {
		return nil, errors.New("no auth method configured")
	}
	method, err := t.Auth.GetMethod()
	if err != nil {
		return nil, err
	}
	if t.HostKeyCallback == nil {
		return nil, ErrNoHostKeyCheck
	}
	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: t.HostKeyCallback,
		Timeout:         c.Timeout,
	}, nil
}
