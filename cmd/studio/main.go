// studio is the command-line client for the generation service: create
// jobs, follow them to completion, manage history, and top up coins.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"studio/internal/api"
	"studio/internal/balance"
	"studio/internal/history"
	"studio/internal/infra"
	"studio/internal/state"
)

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "Client for the AI media generation service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// env bundles the dependencies shared by every subcommand.
type env struct {
	cfg        *infra.Config
	logger     infra.Logger
	app        *state.App
	client     *api.Client
	store      *history.Store
	reconciler *balance.Reconciler
}

func newEnv() (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	app := state.NewApp(nil)
	app.SetUser(cfg.UserID)
	app.SetWalletAddress(cfg.WalletAddress)
	app.SetAccessToken(cfg.AccessToken)

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   app.AccessToken,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}
	store, err := history.NewStore(history.Options{
		Dir:    cfg.HistoryDir,
		Feed:   app.Feed(),
		Logger: &logger,
	})
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:        cfg,
		logger:     logger,
		app:        app,
		client:     client,
		store:      store,
		reconciler: balance.NewReconciler(client, app, &logger),
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
