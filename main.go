package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/powerman/structlog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"quotations/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "quotations",
	Short: "Quotation API server",
	Long: `Serves the quotation API: catalog items, quotations with their line items,
item images and username/password authentication.

Configuration comes from the environment, an optional .env file and an optional
config.yaml in the working directory.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	structlog.DefaultLogger.
		SetPrefixKeys(
			structlog.KeyApp, structlog.KeyPID, structlog.KeyLevel, structlog.KeyUnit, structlog.KeyTime,
		).
		SetDefaultKeyvals(
			structlog.KeyApp, filepath.Base(os.Args[0]),
			structlog.KeySource, structlog.Auto,
		).
		SetSuffixKeys(structlog.KeyStack, structlog.KeySource).
		SetKeysFormat(map[string]string{
			structlog.KeyTime:   " %[2]s",
			structlog.KeySource: " %6[2]s",
			structlog.KeyUnit:   " %6[2]s",
		}).
		SetTimeFormat("2006-01-02 15:04:05")

	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd, resetPasswordCmd)
	resetPasswordCmd.Flags().StringVar(&resetUsername, "username", "", "username to reset")
	resetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "new plaintext password (min 6 chars)")
	_ = resetPasswordCmd.MarkFlagRequired("username")
	_ = resetPasswordCmd.MarkFlagRequired("password")
}

// setup loads the configuration and applies its log level.
func setup() (*config.Config, *structlog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	structlog.DefaultLogger.SetLogLevel(structlog.ParseLevel(cfg.LogLevel))
	return cfg, structlog.New(), nil
}
