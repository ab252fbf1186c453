// Package sftptest 提供一个进程内的 SSH/SFTP 服务器,用于测试上传流程。
// SFTP 子系统的工作目录是一个临时目录,其中预先创建了 upload/ 子目录
package sftptest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	DefaultUser     = "u"
	DefaultPassword = "p"
	UploadDir       = "upload"
)

type Server struct {
	Host     string
	Port     int
	User     string
	Password string
	// Root 是 SFTP 登录目录在本地的位置
	Root    string
	HostKey ssh.Signer

	ln      net.Listener
	config  *ssh.ServerConfig
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int32
	handled atomic.Int32
}

type Option func(*Server)

func WithCredentials(user, password string) Option {
	return func(s *Server) {
		s.User = user
		s.Password = password
	}
}

// WithoutUploadDir 不预先创建 upload/ 目录
func WithoutUploadDir() Option {
	return func(s *Server) {
		s.Root = ""
	}
}

// NewServer 在 127.0.0.1 的随机端口上启动服务器,测试结束时自动关闭
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	s := &Server{
		User:     DefaultUser,
		Password: DefaultPassword,
		Root:     t.TempDir(),
		HostKey:  signer,
		conns:    make(map[net.Conn]struct{}),
	}
	createUploadDir := true
	for _, opt := range opts {
		opt(s)
	}
	if s.Root == "" {
		s.Root = t.TempDir()
		createUploadDir = false
	}
	if createUploadDir {
		if err := os.Mkdir(filepath.Join(s.Root, UploadDir), 0o755); err != nil {
			t.Fatalf("create upload dir: %v", err)
		}
	}

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == s.User && string(pass) == s.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.ln = ln
	addr := ln.Addr().(*net.TCPAddr)
	s.Host = addr.IP.String()
	s.Port = addr.Port

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr 返回 host:port
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// KnownHostsLine 返回可写入 known_hosts 的一行
func (s *Server) KnownHostsLine() string {
	return knownhosts.Line([]string{knownhosts.Normalize(s.Addr())}, s.HostKey.PublicKey())
}

// WriteKnownHosts 在 dir 下写入只包含本服务器公钥的 known_hosts 文件
func (s *Server) WriteKnownHosts(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(path, []byte(s.KnownHostsLine()+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

// ReadFile 读取远程登录目录下的文件
func (s *Server) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(name)))
}

// Active 当前已认证且尚未断开的 SSH 连接数
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Handled 已完成认证的 SSH 连接总数
func (s *Server) Handled() int {
	return int(s.handled.Load())
}

// WaitIdle 等待所有 SSH 连接断开,超时返回 false
func (s *Server) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Active() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Active() == 0
}

func (s *Server) Close() {
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	s.active.Add(1)
	s.handled.Add(1)
	defer s.active.Add(-1)
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleSession(channel, requests)
		}()
	}
	wg.Wait()
	sconn.Wait()
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	subsystem := make(chan bool, 1)
	go func() {
		sent := false
		for req := range requests {
			ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
			req.Reply(ok, nil)
			if !sent {
				subsystem <- ok
				sent = true
			}
		}
		if !sent {
			subsystem <- false
		}
	}()
	if !<-subsystem {
		return
	}

	server, err := sftp.NewServer(channel, sftp.WithServerWorkingDirectory(s.Root))
	if err != nil {
		return
	}
	if err := server.Serve(); err != nil && err != io.EOF {
		server.Close()
		return
	}
	server.Close()
}
