package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCmdConfig 输出生效的配置,密码脱敏
func NewCmdConfig(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "以 YAML 格式显示生效的配置",
		Long: `加载配置文件并以 YAML 格式显示生效的配置,未配置的项显示默认值。
密码显示为 ******`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("render configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
