//go:build unix

package transfer

import (
	"os"
	"syscall"
)

// O_NONBLOCK 让打开 FIFO 时不等待写端,对普通文件的读取没有影响
const openFlags = os.O_RDONLY | syscall.O_NONBLOCK
