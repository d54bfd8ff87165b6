// Command movierag builds the movie recommendation index and answers
// recommendation queries from the command line or an interactive chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"movierag/internal/config"
	"movierag/internal/domain"
	"movierag/internal/logging"
	"movierag/internal/metrics"
	"movierag/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	a := newApp()
	err := newRootCmd(a).Execute()
	if cerr := a.teardown(); cerr != nil {
		logging.Warn().Err(cerr).Msg("close pipeline")
	}
	if err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgPath     string
	verbose     bool
	metricsAddr string

	creds           domain.Credentials
	newOrchestrator func(context.Context, *config.AppConfig, domain.Credentials) (*pipeline.Orchestrator, error)

	cfg     *config.AppConfig
	orch    *pipeline.Orchestrator
	metrics *http.Server
}

func newApp() *app {
	return &app{
		creds:           config.EnvCredentials{},
		newOrchestrator: pipeline.FromConfig,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "movierag",
		Short: "Movie recommendations from a retrieval-augmented pipeline",
		Long: `movierag cleans a movie metadata CSV, indexes every movie in a vector
store and answers recommendation queries with retrieved context.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to YAML config (default ./config.yaml, then ~/.config/movierag/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newRunCmd(a),
		newAskCmd(a),
		newBatchCmd(a),
		newGenreCmd(a),
		newRatingCmd(a),
		newSimilarCmd(a),
		newStatusCmd(a),
		newInfoCmd(a),
		newResetCmd(a),
		newChatCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if a.cfgPath == "" {
		cfg, a.cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller, Output: cmd.ErrOrStderr()})

	addr := a.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		a.startMetrics(addr)
	}

	orch, err := a.newOrchestrator(cmd.Context(), cfg, a.creds)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *app) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logging.Info().Str("addr", addr).Msg("serving metrics")
}

// teardown stops the metrics server and closes the pipeline. It is safe to
// call when setup did not complete.
func (a *app) teardown() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	if a.orch == nil {
		return nil
	}
	err := a.orch.Close()
	a.orch = nil
	return err
}
