package ssh

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrUnknownHostKey  = errors.New("host key is not known")
	ErrHostKeyMismatch = errors.New("host key does not match known_hosts")
)

// StrictHostKeyChecking 对应 OpenSSH 的同名选项。
// yes: 主机公钥必须出现在 known_hosts 中; no: 接受任意公钥;
// ask: 后台服务无人可问,按 yes 处理; 其它值一律按 yes 处理
type StrictHostKeyChecking struct {
	Value      string
	KnownHosts string
}

func (s StrictHostKeyChecking) normalized() string {
	return strings.ToLower(strings.TrimSpace(s.Value))
}

// Strict 是否校验主机公钥
func (s StrictHostKeyChecking) Strict() bool {
	return s.normalized() != "no"
}

// Recognized 取值是否为 yes/no/ask 之一
func (s StrictHostKeyChecking) Recognized() bool {
	switch s.normalized() {
	case "yes", "no", "ask":
		return true
	}
	return false
}

// Callback 构建 ssh.HostKeyCallback。known_hosts 文件不存在时,所有主机都视为未知
func (s StrictHostKeyChecking) Callback() (ssh.HostKeyCallback, error) {
	if !s.Strict() {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := expandHomeDir(s.KnownHosts)
	if path == "" {
		return rejectUnknown, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return rejectUnknown, nil
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			if len(keyErr.Want) == 0 {
				return fmt.Errorf("%w: %s (%s)", ErrUnknownHostKey, hostname, ssh.FingerprintSHA256(key))
			}
			return fmt.Errorf("%w: %s (%s)", ErrHostKeyMismatch, hostname, ssh.FingerprintSHA256(key))
		}
		return err
	}, nil
}

func rejectUnknown(hostname string, _ net.Addr, key ssh.PublicKey) error {
	return fmt.Errorf("%w: %s (%s)", ErrUnknownHostKey, hostname, ssh.FingerprintSHA256(key))
}

// expandHomeDir 简单的路径处理辅助函数
func expandHomeDir(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
