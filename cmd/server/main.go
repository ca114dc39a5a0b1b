package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moodclash/deck"
	"moodclash/internal/auth"
	"moodclash/internal/config"
	"moodclash/internal/gateway"
	"moodclash/internal/ledger"
	"moodclash/internal/lobby"
	"moodclash/internal/oracle"
	"moodclash/internal/oracle/openai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.LogLevel)

	authService, authMode, err := waitReady("auth", func() (auth.Service, string, error) {
		return auth.NewServiceFromMode(cfg.AuthMode)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init auth service")
	}
	defer authService.Close()
	ledgerService, ledgerMode, err := waitReady("ledger", func() (ledger.Service, string, error) {
		return ledger.NewServiceFromEnv(cfg.LedgerMode)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init ledger service")
	}
	defer ledgerService.Close()

	if cfg.OracleAPIKey == "" {
		log.Warn().Msg("ORACLE_API_KEY not set, every evaluation will fail open to zero deltas")
	}
	provider := openai.New(cfg.OracleAPIKey, cfg.OracleBaseURL, cfg.OracleModel)
	sessCfg := cfg.SessionConfig()
	scorer, err := oracle.NewScorer(provider, cfg.OracleTimeout, sessCfg.MaxDelta, log.With().Str("component", "oracle").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("init scorer")
	}

	lby := lobby.New(sessCfg, ledgerService, scorer, deck.NewCatalog())
	defer lby.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lby.StartReaper(ctx)

	gw := gateway.New(lby, authService)
	authHTTP := auth.NewHTTPHandler(authService)
	historyHTTP := ledger.NewHTTPHandler(authService, ledgerService)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	authHTTP.RegisterRoutes(mux)
	historyHTTP.RegisterRoutes(mux)

	log.Info().
		Str("auth_mode", authMode).
		Str("ledger_mode", ledgerMode).
		Str("oracle_model", cfg.OracleModel).
		Str("addr", cfg.ListenAddr).
		Msg("starting server")
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

const (
	readyTimeout  = 30 * time.Second
	readyInterval = 2 * time.Second
)

// waitReady retries a backend constructor until it succeeds or the
// readiness window closes. The DB-backed modes fail while the database
// is still coming up; waiting forever would mask a misconfigured DSN.
func waitReady[T any](name string, build func() (T, string, error)) (T, string, error) {
	deadline := time.Now().Add(readyTimeout)
	for {
		svc, mode, err := build()
		if err == nil {
			return svc, mode, nil
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, "", fmt.Errorf("%s initialization timeout: %w", name, err)
		}
		log.Warn().Err(err).Str("service", name).Msg("backend not ready, retrying")
		time.Sleep(readyInterval)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
