package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wentf9/sftp-relay/internal/command"
	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/internal/server"
	"github.com/wentf9/sftp-relay/internal/transfer"
	"github.com/wentf9/sftp-relay/pkg/config"
	"github.com/wentf9/sftp-relay/pkg/logger"
)

type RootOptions struct {
	ConfigFile string
	Debug      bool
}

func NewRootOptions() *RootOptions {
	return &RootOptions{ConfigFile: config.FileName}
}

// NewCmdRoot 构建根命令,不带子命令时启动监听服务
func NewCmdRoot() *cobra.Command {
	o := NewRootOptions()
	cmd := &cobra.Command{
		Use:   "sftp-relay [flags]",
		Short: "监听 TCP 命令并把本地文件通过 SFTP 上传到远程服务器",
		Long: `sftp-relay 是一个常驻服务,在 app.port 上监听 TCP 连接。
每个连接发送一行命令,格式为:
PROCESS_FILE:<本地文件路径>
服务会把该文件上传到远程服务器的 upload/<文件名>,不向客户端返回任何数据。
远程服务器地址、用户和密码从 application.properties 读取`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if o.Debug {
				logger.Logger.SetLogLevel("debug")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile, "配置文件路径")
	cmd.PersistentFlags().BoolVar(&o.Debug, "debug", false, "开启调试模式")

	cmd.AddCommand(NewCmdConfig(o))
	cmd.AddCommand(NewCmdVersion())
	return cmd
}

// loadConfig 加载配置文件,失败时返回 StartupFailure
func (o *RootOptions) loadConfig() (*config.Configuration, error) {
	cfg, err := config.NewPropertiesStore(o.ConfigFile).Load()
	if err != nil {
		return nil, fault.New(fault.StartupFailure, o.ConfigFile, err)
	}
	return cfg, nil
}

func (o *RootOptions) Run(ctx context.Context) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	// --debug 优先于配置文件中的级别
	if !o.Debug {
		logger.Logger.SetLogLevel(cfg.LogLevel)
	}
	log := logger.Logger.Logger
	log.Info("configuration loaded", "file", o.ConfigFile, "port", cfg.AppPort, "sftp_host", cfg.SFTP.Host)

	engine := transfer.NewEngine(*cfg, transfer.WithLogger(log))
	dispatcher := command.NewDispatcher(engine, log)
	return server.New(*cfg, dispatcher, server.WithLogger(log)).ListenAndServe(ctx)
}

// Execute 由 main.main 调用,收到 SIGINT/SIGTERM 时停止服务
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewCmdRoot().ExecuteContext(ctx); err != nil {
		stop()
		logger.Logger.Fatal(fmt.Sprintf("sftp-relay exited: %v", err), "kind", fault.KindOf(err).String())
	}
}
