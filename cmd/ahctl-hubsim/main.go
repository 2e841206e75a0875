package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/internal/hubsim"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	addr := ":8088"
	if a := os.Getenv("AHCTL_HUBSIM_ADDR"); a != "" {
		addr = a
	}
	sc := hubsim.DefaultScenario()
	if path := os.Getenv("AHCTL_HUBSIM_SCENARIO"); path != "" {
		var err error
		if sc, err = hubsim.LoadScenario(path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to load scenario")
		}
	}
	if tok := os.Getenv("AHCTL_HUBSIM_TOKEN"); tok != "" {
		sc.Token = tok
	}

	srv := hubsim.NewServer(sc)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Simulator stopped")
		}
	}()
	log.Info().Str("addr", addr).Int("projects", len(sc.Projects)).Int("repositories", len(sc.Repositories)).Msg("ahctl-hubsim listening")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("ahctl-hubsim shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
