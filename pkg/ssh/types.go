package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer 建立到目标地址的底层 TCP 连接
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Resolver 把主机名解析为一个或多个地址,net.DefaultResolver 满足此接口
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Target 描述一次 SSH 连接的目标及认证参数
type Target struct {
	Host            string
	Port            int
	User            string
	Auth            AuthMethod
	HostKeyCallback ssh.HostKeyCallback
	// KeepAlive 大于 0 时定期发送心跳
	KeepAlive time.Duration
}

// Addr 返回 host:port,用于握手和 known_hosts 匹配
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.Addr())
}
