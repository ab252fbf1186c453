// Package server 实现命令监听端口: 每个 TCP 连接读取一行命令,交给 Handler 处理后关闭,
// 不向客户端回写任何数据
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/pkg/config"
	"github.com/wentf9/sftp-relay/pkg/logger"
	"github.com/wentf9/sftp-relay/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxLineSize 单行命令的最大字节数,不含换行符
const DefaultMaxLineSize = 64 * 1024

var ErrLineTooLong = errors.New("command line too long")

// Handler 处理一行命令。返回的错误只用于统计,Server 不会因此停止
type Handler interface {
	Handle(ctx context.Context, line string) error
}

type Server struct {
	addr        string
	workers     int
	maxLineSize int
	handler     Handler
	logger      *slog.Logger
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMaxLineSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLineSize = n
		}
	}
}

// New 根据 app.port 和 app.workers 创建 Server
func New(cfg config.Configuration, h Handler, opts ...Option) *Server {
	s := &Server{
		addr:        net.JoinHostPort("", strconv.Itoa(cfg.AppPort)),
		workers:     cfg.Workers,
		maxLineSize: DefaultMaxLineSize,
		handler:     h,
		logger:      logger.Logger.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe 绑定端口并开始服务,ctx 取消后返回 nil。绑定失败返回 StartupFailure
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fault.New(fault.StartupFailure, s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上接受连接直到 ctx 取消。ln 由 Serve 负责关闭。
// 取消时正在处理的请求通过同一个 ctx 中止,Serve 等待其清理完成后返回
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	err := g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, net.ErrClosed)) {
		s.logger.Info("command listener stopped", "addr", ln.Addr().String())
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	s.logger.Info("command listener started", "addr", ln.Addr().String(), "workers", s.workers)

	var pool utils.WorkerPool
	if s.workers > 1 {
		pool = utils.NewWorkerPool(uint(s.workers), utils.WithPanicHandler(func(r any) {
			s.logger.Error("request handler panic", "panic", r)
		}))
		defer pool.Wait()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("command listener closed: %w", err)
			}
			s.logger.Warn("accept failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if pool == nil {
			s.handleConn(ctx, conn)
			continue
		}
		pool.Execute(func() { s.handleConn(ctx, conn) })
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	// 关闭连接以中断阻塞的读取
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	line, err := readLine(conn, s.maxLineSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("socket read error", "remote", remote, "err", err)
		}
		return
	}
	s.logger.Debug("connection accepted", "remote", remote)
	_ = s.handler.Handle(ctx, line)
}

// readLine 读取一行,以 \n 或 EOF 结束,去掉行尾的 \n 和 \r。
// 什么都没读到时返回空字符串
func readLine(r io.Reader, maxSize int) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, int64(maxSize)+2))
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > maxSize {
		return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, maxSize)
	}
	return line, nil
}
