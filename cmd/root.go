/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/restful-users/apiserver/config"
	"github.com/restful-users/apiserver/internal/cache"
	"github.com/restful-users/apiserver/internal/db"
	"github.com/restful-users/apiserver/internal/logging"
	"github.com/restful-users/apiserver/internal/services"
	"github.com/restful-users/apiserver/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "users",
	Short: "User directory REST service",
	Long: `users serves a CRUD API for user records and ships the
maintenance commands that go with it: schema migrations, seeding
and snapshot exports.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// openUserService connects to the database for one-shot commands. Events
// are not published from here.
func openUserService(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*services.UserService, func(), error) {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	gormDB, err := db.OpenGorm(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open gorm: %w", err)
	}

	svc := services.NewUserService(store.NewUserRepository(gormDB), cache.New("users"), nil, logger)
	return svc, func() { _ = conn.Close() }, nil
}
