package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Upload 把 src 的全部内容写入远程文件 remotePath。
// 远程文件已存在时被截断覆盖,父目录不会自动创建
func (c *Client) Upload(ctx context.Context, src io.Reader, remotePath string, progress ProgressCallback) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dstFile, err := c.sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, fmt.Errorf("create remote file %s failed: %w", remotePath, err)
	}

	n, err := io.Copy(dstFile, &progressReader{ctx: ctx, r: src, progress: progress})
	closeErr := dstFile.Close()
	if err != nil {
		return n, fmt.Errorf("write remote file %s failed: %w", remotePath, err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close remote file %s failed: %w", remotePath, closeErr)
	}
	return n, nil
}

// progressReader 每次读取前检查取消,读取后报告进度
type progressReader struct {
	ctx      context.Context
	r        io.Reader
	progress ProgressCallback
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil {
		p.progress(n)
	}
	return n, err
}
