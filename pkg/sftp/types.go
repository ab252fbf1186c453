package sftp

const (
	DefaultMaxPacket = 32 * 1024 // 32KB SFTP 默认包大小
)

// TransferConfig 定义传输配置
type TransferConfig struct {
	MaxPacket        int  // 单个写请求的最大字节数
	ConcurrentWrites bool // 允许同一文件的写请求并发在途
}

func DefaultConfig() TransferConfig {
	return TransferConfig{
		MaxPacket:        DefaultMaxPacket,
		ConcurrentWrites: true,
	}
}

// ProgressCallback 进度回调,n 为本次增量传输的字节数
type ProgressCallback func(n int)
