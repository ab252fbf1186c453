package ssh

import (
	"time"
)

// startKeepAlive 开启一个协程,定期向 SSH Server 发送心跳,连接关闭时退出
// fallback: 可选的回调函数,心跳失败时关闭连接后调用
func (c *Client) startKeepAlive(interval time.Duration, fallback func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
			}

			// "keepalive@openssh.com" 是 OpenSSH 标准的心跳请求类型
			// wantReply = true: 服务器挂了或网络断了时 SendRequest 会报错
			_, _, err := c.sshClient.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				select {
				case <-c.done:
					// 正常关闭导致的失败,不算心跳异常
					return
				default:
				}
				// 显式关闭,正在进行的传输会收到错误
				c.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
}
