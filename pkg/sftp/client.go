package sftp

import (
	"fmt"

	"github.com/pkg/sftp"
	"github.com/wentf9/sftp-relay/pkg/ssh"
)

// Option 定义配置函数的类型
type Option func(*TransferConfig)

func WithMaxPacket(size int) Option {
	return func(c *TransferConfig) {
		if size > 0 {
			c.MaxPacket = size
		}
	}
}

func WithConcurrentWrites(enabled bool) Option {
	return func(c *TransferConfig) {
		c.ConcurrentWrites = enabled
	}
}

// Client 包装了 sftp.Client,不拥有底层的 ssh 连接
type Client struct {
	sftpClient *sftp.Client
}

// NewClient 在已认证的 SSH 连接上打开 SFTP 子系统通道
func NewClient(sshCli *ssh.Client, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := sftp.NewClient(sshCli.SSHClient(),
		sftp.MaxPacket(cfg.MaxPacket),
		sftp.UseConcurrentWrites(cfg.ConcurrentWrites),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return &Client{sftpClient: client}, nil
}

// Close 关闭 SFTP 会话 (注意: 这不会关闭底层的 SSH 连接)
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// Cwd 获取远程当前工作目录
func (c *Client) Cwd() (string, error) {
	return c.sftpClient.Getwd()
}
