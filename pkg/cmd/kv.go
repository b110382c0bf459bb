package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
)

var (
	kvCmd = &cobra.Command{
		Use:   "kv",
		Short: "inspect the response cache store",
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list registered kv backends",
		Aliases: []string{"ls"},
		Run: func(cmd *cobra.Command, _ []string) {
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}

	kvPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "connect to the configured kv backend and write a probe key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKV(cmd.Context(), func(ctx context.Context, c *kv.Client) error {
				start := time.Now()
				if err := c.HealthCheck(ctx); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s ok in %s\n", c.Type(), time.Since(start).Round(time.Millisecond))

				return nil
			})
		},
	}

	kvKeysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "list cached keys matching a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}

			return withKV(cmd.Context(), func(ctx context.Context, c *kv.Client) error {
				keys, err := c.Keys(ctx, pattern)
				if err != nil {
					return err
				}

				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}

				return nil
			})
		},
	}
)

func withKV(ctx context.Context, fn func(context.Context, *kv.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := kv.NewKVClient(ctx, &configs.GetConfig().KV)
	if err != nil {
		return err
	}

	defer func() { _ = c.Close() }()

	return fn(ctx, c)
}

func registerKVCommands() {
	kvCmd.AddCommand(kvListCmd, kvPingCmd, kvKeysCmd)
	rootCmd.AddCommand(kvCmd)
}
