// Package cmd contains the command line applications for the project.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/mediavault/pkg/app"
	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/log"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           configs.AppName,
		Short:         "Media processing pipeline for uploaded video and image assets",
		Version:       configs.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			log.Init()

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(app.ModeServe)
		},
	}

	// serveCmd 同时运行 HTTP 接口与 worker.
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API together with the pipeline workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(app.ModeServe)
		},
	}

	// workerCmd 只运行 worker，用于水平扩展消费者.
	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "run the pipeline workers and cron jobs only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(app.ModeWorker)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print verbose config debug output")

	rootCmd.AddCommand(serveCmd, workerCmd)

	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
}

// run 构造应用并阻塞到收到 SIGINT/SIGTERM.
func run(mode app.Mode) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, configs.GetConfig(), mode)
	if err != nil {
		return fmt.Errorf("init %s: %w", mode, err)
	}

	defer func() {
		if err := a.Close(); err != nil {
			log.Logger().Error().Err(err).Msg("close app")
		}
	}()

	return a.Run(ctx)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
