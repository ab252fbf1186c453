package transfer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/pkg/sftp"
	"github.com/wentf9/sftp-relay/pkg/ssh"
)

// State SFTP 会话状态
type State int

const (
	Uninitialized State = iota
	TransportConnected
	Authenticated
	ChannelOpen
	ChannelClosed
	TransportClosed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case TransportConnected:
		return "TRANSPORT_CONNECTED"
	case Authenticated:
		return "AUTHENTICATED"
	case ChannelOpen:
		return "CHANNEL_OPEN"
	case ChannelClosed:
		return "CHANNEL_CLOSED"
	case TransportClosed:
		return "TRANSPORT_CLOSED"
	}
	return "UNKNOWN"
}

// session 一次请求内独占的 SSH 连接 + SFTP 通道。
// close 按获取的逆序释放,任何状态下都可以调用
type session struct {
	connector *ssh.Connector
	logger    *slog.Logger
	observe   func(State)

	state   State
	sshCli  *ssh.Client
	sftpCli *sftp.Client
}

func (s *session) transition(next State) {
	s.state = next
	if s.observe != nil {
		s.observe(next)
	}
}

// open 依次完成 DNS 解析、TCP 连接、握手认证、打开 SFTP 通道
func (s *session) open(ctx context.Context, target ssh.Target) error {
	conn, err := s.connector.Dial(ctx, target)
	if err != nil {
		if errors.Is(err, ssh.ErrHostResolution) {
			return fault.New(fault.HostResolutionFailure, target.Host, err)
		}
		return fault.New(fault.SftpFailure, target.Addr(), err)
	}
	s.transition(TransportConnected)

	s.logger.Info("connecting to sftp server", "target", target.String())
	sshCli, err := s.connector.Handshake(ctx, conn, target)
	if err != nil {
		return fault.New(fault.SftpFailure, target.Addr(), err)
	}
	s.sshCli = sshCli
	s.transition(Authenticated)
	s.logger.Info("ssh handshake complete", "server", sshCli.ServerVersion())

	sftpCli, err := sftp.NewClient(sshCli)
	if err != nil {
		return fault.New(fault.SftpFailure, target.Addr(), err)
	}
	s.sftpCli = sftpCli
	s.transition(ChannelOpen)
	if cwd, err := sftpCli.Cwd(); err == nil {
		s.logger.Debug("sftp channel open", "login_dir", cwd, "upload_dir", RemoteDir)
	} else {
		s.logger.Debug("sftp channel open, login dir unknown", "err", err)
	}
	return nil
}

func (s *session) close() {
	if s.state == TransportClosed {
		return
	}
	if s.sftpCli != nil {
		if err := s.sftpCli.Close(); err != nil {
			s.logger.Debug("close sftp channel", "err", err)
		}
		s.sftpCli = nil
		s.transition(ChannelClosed)
	}
	if s.sshCli != nil {
		if err := s.sshCli.Close(); err != nil {
			s.logger.Debug("close ssh transport", "err", err)
		}
		s.sshCli = nil
	}
	s.transition(TransportClosed)
}
