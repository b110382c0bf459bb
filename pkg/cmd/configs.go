package cmd

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/mediavault/pkg/configs"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect and validate configuration",
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Run: func(cmd *cobra.Command, _ []string) {
			used := ""
			if v := configs.GetViper(); v != nil {
				used = v.ConfigFileUsed()
			}

			if used == "" {
				used = "(defaults and environment only)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), used)
		},
	}

	configShowCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the effective config as JSON with secrets masked",
		Aliases: []string{"debug"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				if v := configs.GetViper(); v != nil {
					v.Debug()
				}
			}

			b, err := sonic.ConfigStd.MarshalIndent(masked(configs.GetConfig()), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}

	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "validate the config and exit non-zero on failure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := configs.GetConfig().Validate(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "config ok")

			return nil
		},
	}
)

// masked 返回隐去口令与密钥的副本.
func masked(c *configs.AppConfig) configs.AppConfig {
	out := *c

	hide := func(s *string) {
		if *s != "" {
			*s = strings.Repeat("*", 8)
		}
	}

	hide(&out.DB.Password)
	hide(&out.S3.SecretAccessKey)
	hide(&out.MQ.Common.Password)
	hide(&out.MQ.Redis.Password)
	hide(&out.MQ.NATS.NKey)
	hide(&out.MQ.NATS.JWT)
	hide(&out.KV.Redis.Password)
	hide(&out.KV.NATS.Password)

	return out
}

func registerConfigsCommands() {
	configCmd.AddCommand(configPathCmd, configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
