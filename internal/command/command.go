// Package command 解析监听端口收到的单行命令并分发给传输引擎
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/pkg/logger"
)

// ProcessFilePrefix 唯一支持的命令前缀,区分大小写
const ProcessFilePrefix = "PROCESS_FILE:"

var ErrUnknownCommand = errors.New("unknown or empty command")

// Command 解析后的命令
type Command struct {
	// Path 第一个冒号之后的全部内容,去掉首尾空白,不做其它校验
	Path string
}

// Parse 解析一行命令。空行和无法识别的命令返回 UnknownCommand
func Parse(line string) (Command, error) {
	if strings.TrimSpace(line) == "" || !strings.HasPrefix(line, ProcessFilePrefix) {
		return Command{}, fault.New(fault.UnknownCommand, "", ErrUnknownCommand)
	}
	_, rest, _ := strings.Cut(line, ":")
	return Command{Path: strings.TrimSpace(rest)}, nil
}

// Transferer 执行一次文件传输,*transfer.Engine 满足此接口
type Transferer interface {
	Transfer(ctx context.Context, localPath string) error
}

// TransferFunc 把普通函数适配为 Transferer
type TransferFunc func(ctx context.Context, localPath string) error

func (f TransferFunc) Transfer(ctx context.Context, localPath string) error {
	return f(ctx, localPath)
}

// Dispatcher 解析命令并调用 Transferer。所有失败都只记录日志,不向上传播
type Dispatcher struct {
	transferer Transferer
	logger     *slog.Logger
}

func NewDispatcher(t Transferer, l *slog.Logger) *Dispatcher {
	if l == nil {
		l = logger.Logger.Logger
	}
	return &Dispatcher{transferer: t, logger: l}
}

// Handle 处理一行命令,返回的错误仅供调用方统计,已经记录过日志
func (d *Dispatcher) Handle(ctx context.Context, line string) error {
	d.logger.Debug("command received", "line", line)

	cmd, err := Parse(line)
	if err != nil {
		d.logger.Warn("unknown or empty command", "line", line)
		return err
	}

	if err := d.transferer.Transfer(ctx, cmd.Path); err != nil {
		d.logger.Error("transfer failed", "path", cmd.Path, "kind", fault.KindOf(err).String(), "err", err)
		return err
	}
	return nil
}
