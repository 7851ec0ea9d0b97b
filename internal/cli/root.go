// Package cli provides the command-line interface.
package cli

import (
	"crypto/rand"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"angelone-web/internal/auth"
	"angelone-web/internal/broker"
	"angelone-web/internal/config"
	"angelone-web/internal/logging"
	"angelone-web/internal/marketdata"
	"angelone-web/internal/session"
	"angelone-web/internal/stocks"
	"angelone-web/internal/store"
	"angelone-web/internal/stream"
	"angelone-web/internal/trading"
	"angelone-web/internal/web"
)

// Version is set at build time.
var Version = "dev"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configDir string
	var debug bool

	root := &cobra.Command{
		Use:           "angelone-web",
		Short:         "Browser front end for Angel One SmartAPI trading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.config/angelone-web)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(&configDir, &debug))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "angelone-web", Version)
		},
	}
}

func newServeCmd(configDir *string, debug *bool) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := logging.NewLoggerWithConfig(logging.LogConfig{
				Level:      cfg.Log.Level,
				Console:    cfg.Log.Console,
				File:       cfg.Log.File,
				FilePath:   cfg.Log.FilePath,
				MaxSize:    cfg.Log.MaxSize,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAge,
			})
			if *debug {
				logging.SetDebugLevel()
			}

			return runServe(cmd, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides config")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	audit := store.AuditLog(store.NopAudit{})
	if cfg.Audit.Enabled {
		sqliteAudit, err := store.NewSQLiteAudit(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer sqliteAudit.Close()
		audit = sqliteAudit
		logger.Info().Str("path", cfg.Audit.Path).Msg("Audit store opened")
	}

	directory := stocks.Load(cfg.Paths.Stocks, logger)

	factory := auth.ClientFactory(func(apiKey, accessToken string) broker.SmartAPI {
		client := broker.NewClient(apiKey, broker.WithLogger(logger))
		if accessToken != "" {
			client.SetAccessToken(accessToken)
		}
		return client
	})

	tokenWriter := auth.TokenWriter(auth.NopTokenWriter{})
	if cfg.Paths.TokenFile != "" {
		tokenWriter = auth.NewFileTokenWriter(cfg.Paths.TokenFile)
	}

	authenticator := auth.NewAuthenticator(factory,
		auth.WithTokenWriter(tokenWriter),
		auth.WithAuditLog(audit),
		auth.WithLogger(logger),
	)
	submitter := trading.NewSubmitter(
		trading.WithAuditLog(audit),
		trading.WithLogger(logger),
	)
	fetcher := marketdata.NewFetcher(logger)

	hub := stream.NewHub()
	hub.Start(ctx)
	defer hub.Stop()
	push := stream.NewServer(hub, logger)

	authKey, encKey, err := sessionKeys(cfg)
	if err != nil {
		return err
	}
	sessions := session.NewManager(authKey, encKey)

	server, err := web.NewServer(web.Config{
		Addr:        cfg.Server.Addr,
		Sessions:    sessions,
		Auth:        authenticator,
		Orders:      submitter,
		Market:      fetcher,
		Directory:   directory,
		Hub:         hub,
		Push:        push,
		NewClient:   factory,
		EnvDefaults: config.LoadEnvDefaults(cfg.Paths.EnvDefaults),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return server.Run(ctx)
}

// sessionKeys returns the cookie signing and encryption keys. When not
// configured, random keys are generated; every restart then invalidates all
// sessions, which matches the session lifecycle anyway.
func sessionKeys(cfg *config.Config) ([]byte, []byte, error) {
	if cfg.Server.SessionAuthKey != "" && cfg.Server.SessionEncKey != "" {
		return []byte(cfg.Server.SessionAuthKey), []byte(cfg.Server.SessionEncKey), nil
	}

	authKey := make([]byte, 32)
	encKey := make([]byte, 32)
	if _, err := rand.Read(authKey); err != nil {
		return nil, nil, fmt.Errorf("generating session auth key: %w", err)
	}
	if _, err := rand.Read(encKey); err != nil {
		return nil, nil, fmt.Errorf("generating session enc key: %w", err)
	}
	return authKey, encKey, nil
}
