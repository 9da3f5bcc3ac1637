package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/observability"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "vqueue",
		Short:         "Virtual queue management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	load := func(service string) config.Config {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		env := cfg.Env
		if cfg.Development() {
			env = "development"
		}
		observability.InitLogger(service, env, cfg.Log.Level)
		return cfg
	}

	var migrationsDir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(ctx, load("vqueue-migrate"), migrationsDir)
		},
	}
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding *.sql migrations")

	var adminEmail string
	grantAdminCmd := &cobra.Command{
		Use:   "grant-admin",
		Short: "Give an existing account the admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantAdmin(ctx, load("vqueue-admin"), adminEmail)
		},
	}
	grantAdminCmd.Flags().StringVar(&adminEmail, "email", "", "account email")
	_ = grantAdminCmd.MarkFlagRequired("email")

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed-locations",
		Short: "Load a location seed file into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedLocations(ctx, load("vqueue-seed"), seedFile)
		},
	}
	seedCmd.Flags().StringVar(&seedFile, "file", defaultSeedFile, "YAML or JSON list of locations")

	var devAdmin devAdminFlags
	devCmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the API and realtime servers on in-memory storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(ctx, load("vqueue-dev"), devAdmin)
		},
	}
	devCmd.Flags().StringVar(&devAdmin.Email, "admin-email", "", "create an admin account with this email")
	devCmd.Flags().StringVar(&devAdmin.Password, "admin-password", "", "password for --admin-email")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve-http",
			Short: "Run the HTTP API server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHTTPServerCmd(ctx, load("vqueue-http"))
			},
		},
		&cobra.Command{
			Use:   "serve-realtime",
			Short: "Run the SockJS realtime server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRealtimeServerCmd(ctx, load("vqueue-realtime"))
			},
		},
		&cobra.Command{
			Use:   "serve-notifier",
			Short: "Run the email notification consumer",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runNotifierCmd(ctx, load("vqueue-notifier"))
			},
		},
		migrateCmd,
		grantAdminCmd,
		seedCmd,
		devCmd,
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("vqueue")
	}
}
