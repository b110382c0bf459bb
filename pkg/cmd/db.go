package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
	}

	dbListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short: "list all registered database types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered database types:")
			for _, dbType := range db.GetRegisteredDBTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), " - "+string(dbType))
			}
		},
	}

	dbPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "connect to the configured database and ping it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configs.GetConfig()
			cfg.DB.AutoMigrate = false

			client, err := db.New(ctx, &cfg.DB, false)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.HealthCheck(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", cfg.DB.GetDBType(), cfg.DB.Database)

			return nil
		},
	}

	// dbMigrateCmd 迁移资产、元数据与任务账本表.
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "create or update the asset, metadata and job tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configs.GetConfig()
			cfg.DB.AutoMigrate = false

			client, err := db.New(ctx, &cfg.DB, false)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Migrate(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migration finished:", cfg.DB.GetDBType())

			return nil
		},
	}
)

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbListCmd, dbPingCmd, dbMigrateCmd)
}
