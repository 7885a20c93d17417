// Command fusionctl submits logs for threat analysis, either to a running api
// server (--server) or through the pipeline in process.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/fusioncloud/internal/application"
	appanalysis "github.com/bryanwahyu/fusioncloud/internal/application/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/config"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/infra/apiclient"
	"github.com/bryanwahyu/fusioncloud/internal/infra/executor/process"
	"github.com/bryanwahyu/fusioncloud/internal/infra/notify/webhook"
	"github.com/bryanwahyu/fusioncloud/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fusionctl",
		Short:         "Log threat analysis from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to config file (yaml or toml)")
	rootCmd.PersistentFlags().String("server", "", "api server base url; empty runs the pipeline in process")

	rootCmd.AddCommand(newAnalyzeCmd(), newCheckEnvCmd(), newNotifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds what a subcommand needs, built from the persistent flags.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	client *apiclient.Client // nil when running in process
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	server, _ := cmd.Flags().GetString("server")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	e := &env{cfg: cfg, log: logging.New(cfg.Log, cmd.ErrOrStderr())}
	if server != "" {
		timeout := 30 * time.Second
		if cfg.Analyzer.Timeout > 0 {
			timeout += cfg.Analyzer.Timeout
		}
		e.client = apiclient.New(server, &http.Client{Timeout: timeout})
	}
	return e, nil
}

// localService builds the in-process pipeline.
func (e *env) localService(sel domain.ScenarioSelector) (*appanalysis.Service, error) {
	runner, err := process.NewRunner(process.Config{
		Command:           e.cfg.Analyzer.Command,
		Args:              e.cfg.Analyzer.Args,
		TempDir:           e.cfg.Analyzer.TempDir,
		Timeout:           e.cfg.Analyzer.Timeout,
		Env:               e.cfg.AnalyzerEnv(),
		InheritEnv:        e.cfg.Analyzer.InheritEnv,
		BenignDiagnostics: e.cfg.Analyzer.BenignDiagnostics,
		MaxConcurrent:     e.cfg.Analyzer.MaxConcurrent,
	}, e.log)
	if err != nil {
		return nil, err
	}
	svc := &appanalysis.Service{
		Invoker:         runner,
		Selector:        sel,
		Clock:           application.SystemClock{},
		Log:             e.log,
		DisableFallback: !e.cfg.Analyzer.Fallback,
	}
	if n := e.notifier(); n != nil {
		svc.Notifier = n
	}
	return svc, nil
}

// notifier returns the local webhook client, or nil when none is configured.
func (e *env) notifier() *webhook.Client {
	if e.cfg.Credentials.SlackWebhookURL == "" {
		return nil
	}
	return webhook.New(e.cfg.Credentials.SlackWebhookURL, nil, e.log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
