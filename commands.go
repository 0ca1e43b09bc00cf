package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/powerman/structlog"
	"github.com/spf13/cobra"

	"quotations/internal/auth"
	"quotations/internal/server"
	"quotations/pkg/imagestore"
)

var (
	resetUsername string
	resetPassword string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema, seed the admin user and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		cfg.Database.AutoMigrate = true
		gdb, err := initDB(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeDB(gdb, log)
		fmt.Fprintln(cmd.OutOrStdout(), "migration and seeding completed")
		return nil
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user <username> <password>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		gdb, err := initDB(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeDB(gdb, log)
		user, err := auth.New(gdb, cfg.Auth, log.New(structlog.KeyUnit, "auth")).Register(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id=%d)\n", user.Username, user.ID)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Replace the password of an existing user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		gdb, err := initDB(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeDB(gdb, log)
		gate := auth.New(gdb, cfg.Auth, log.New(structlog.KeyUnit, "auth"))
		if err := gate.ResetPassword(cmd.Context(), resetUsername, resetPassword); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password reset for user %s\n", resetUsername)
		return nil
	},
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	gdb, err := initDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB(gdb, log)

	images, err := imagestore.FromConfig(ctx, cfg.Images, log.New(structlog.KeyUnit, "images"))
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, gdb, images, log.New(structlog.KeyUnit, "http"))
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	log.Info("listening", "addr", httpSrv.Addr, "db", cfg.Database.Driver, "images", cfg.Images.Backend)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
