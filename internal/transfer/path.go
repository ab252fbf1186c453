package transfer

import (
	"os"
	"strings"
)

// RemoteDir 远程上传目录,相对于 SSH 登录目录,不会自动创建
const RemoteDir = "upload"

// BaseName 返回最后一个目录分隔符之后的部分,没有分隔符时返回原字符串
func BaseName(localPath string) string {
	seps := "/"
	if os.PathSeparator != '/' {
		seps += string(os.PathSeparator)
	}
	if i := strings.LastIndexAny(localPath, seps); i >= 0 {
		return localPath[i+1:]
	}
	return localPath
}

// RemotePath 由本地路径推导远程目标路径: upload/<basename>
func RemotePath(localPath string) string {
	return RemoteDir + "/" + BaseName(localPath)
}
