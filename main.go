package main

import "github.com/wentf9/sftp-relay/cmd"

func main() {
	cmd.Execute()
}
