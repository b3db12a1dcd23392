// studiod is the loopback gateway daemon: it serves history views and
// credentialed asset downloads to the local UI.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"studio/internal/api"
	"studio/internal/history"
	"studio/internal/httpapi"
	"studio/internal/infra"
	"studio/internal/state"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	appState := state.NewApp(nil)
	appState.SetUser(cfg.UserID)
	appState.SetWalletAddress(cfg.WalletAddress)
	appState.SetAccessToken(cfg.AccessToken)

	store, err := history.NewStore(history.Options{
		Dir:    cfg.HistoryDir,
		Feed:   appState.Feed(),
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   appState.AccessToken,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api client")
	}

	app := &httpapi.App{
		History: store,
		State:   appState,
		Client:  client,
		HTTP:    &http.Client{Timeout: cfg.HTTPWriteTimeout},
		Logger:  &logger,
	}
	router := httpapi.NewRouter(app, logger, []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("gateway listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("gateway stopped")
}
