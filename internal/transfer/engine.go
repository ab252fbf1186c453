// Package transfer 实现单次文件传输: 读取配置、建立 SFTP 会话、
// 校验本地文件、上传到 upload/<basename>,最后释放会话
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/wentf9/sftp-relay/global"
	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/pkg/config"
	"github.com/wentf9/sftp-relay/pkg/logger"
	"github.com/wentf9/sftp-relay/pkg/sftp"
	"github.com/wentf9/sftp-relay/pkg/ssh"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrNotRegular    = errors.New("not a regular file")
)

// Engine 执行文件传输。各次调用相互独立,可并发调用
type Engine struct {
	cfg       config.Configuration
	hostKeys  ssh.StrictHostKeyChecking
	connector *ssh.Connector
	logger    *slog.Logger

	progressOut io.Writer
	// observe 用于观察会话状态变化
	observe func(State)
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConnector 替换默认的 SSH Connector
func WithConnector(c *ssh.Connector) Option {
	return func(e *Engine) {
		if c != nil {
			e.connector = c
		}
	}
}

// WithProgressWriter 强制把进度条输出到 w,忽略 app.progress 和终端检测
func WithProgressWriter(w io.Writer) Option {
	return func(e *Engine) {
		e.progressOut = w
	}
}

// NewEngine 基于启动时加载的配置创建 Engine,cfg 按值保存
func NewEngine(cfg config.Configuration, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		hostKeys: ssh.StrictHostKeyChecking{
			Value:      cfg.StrictHostChecking,
			KnownHosts: cfg.SFTP.KnownHosts,
		},
		logger: logger.Logger.Logger,
	}
	if cfg.Progress && global.IsTerminal {
		e.progressOut = os.Stdout
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.connector == nil {
		e.connector = ssh.NewConnector(
			ssh.WithTimeout(cfg.SFTP.ConnectTimeout),
			ssh.WithLogger(e.logger),
		)
	}
	if !e.hostKeys.Recognized() {
		e.logger.Warn("unrecognized strict host checking value, treating as yes",
			"key", config.KeyStrictHostChecking, "value", cfg.StrictHostChecking)
	}
	return e
}

// Transfer 把本地文件 localPath 上传到远程 upload/<basename>。
// 返回的错误均为 *fault.Error
func (e *Engine) Transfer(ctx context.Context, localPath string) error {
	e.logger.Info("initiating secure transfer", "path", localPath)

	target, err := e.target()
	if err != nil {
		return err
	}

	s := &session{connector: e.connector, logger: e.logger, observe: e.observe}
	defer s.close()
	if err := s.open(ctx, target); err != nil {
		return err
	}

	src, size, err := openLocal(localPath)
	if err != nil {
		return fault.New(fault.LocalFileFailure, localPath, err)
	}
	defer src.Close()

	remotePath := RemotePath(localPath)
	n, err := s.sftpCli.Upload(ctx, src, remotePath, e.progress(localPath, size))
	if err != nil {
		return fault.New(fault.SftpFailure, target.Host+":"+remotePath, err)
	}

	e.logger.Info("upload complete", "remote", target.Host+":/"+remotePath, "bytes", n)
	return nil
}

// target 读取配置构建连接目标,缺少必填项时返回 SftpFailure
func (e *Engine) target() (ssh.Target, error) {
	sftpCfg := e.cfg.SFTP
	for _, req := range []struct{ key, value string }{
		{config.KeySFTPHost, sftpCfg.Host},
		{config.KeySFTPUser, sftpCfg.User},
		{config.KeySFTPPass, sftpCfg.Password},
	} {
		if req.value == "" {
			return ssh.Target{}, fault.New(fault.SftpFailure, req.key, ErrMissingConfig)
		}
	}

	cb, err := e.hostKeys.Callback()
	if err != nil {
		return ssh.Target{}, fault.New(fault.SftpFailure, sftpCfg.Host, err)
	}
	return ssh.Target{
		Host:            sftpCfg.Host,
		Port:            sftpCfg.Port,
		User:            sftpCfg.User,
		Auth:            &ssh.PasswordAuth{Password: sftpCfg.Password},
		HostKeyCallback: cb,
		KeepAlive:       sftpCfg.KeepAliveInterval,
	}, nil
}

// openLocal 打开本地普通文件,返回文件和大小。
// 打开前先检查类型,FIFO 之类的特殊文件在 open 时可能一直阻塞
func openLocal(localPath string) (*os.File, int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotRegular, info.Mode().Type())
	}

	f, err := os.OpenFile(localPath, openFlags, 0)
	if err != nil {
		return nil, 0, err
	}
	// 检查和打开之间文件可能被替换
	opened, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !opened.Mode().IsRegular() || !os.SameFile(info, opened) {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s changed while opening", ErrNotRegular, localPath)
	}
	return f, opened.Size(), nil
}

func (e *Engine) progress(localPath string, size int64) sftp.ProgressCallback {
	if e.progressOut == nil {
		return nil
	}
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(e.progressOut),
		progressbar.OptionSetDescription("uploading "+BaseName(localPath)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	return func(n int) {
		_ = bar.Add(n)
	}
}
