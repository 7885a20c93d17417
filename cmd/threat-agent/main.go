// Command threat-agent is the analyzer the api server invokes: it reads one
// log file and prints a JSON verdict on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appai "github.com/bryanwahyu/fusioncloud/internal/application/ai"
	"github.com/bryanwahyu/fusioncloud/internal/config"
	"github.com/bryanwahyu/fusioncloud/internal/infra/ai/offline"
	"github.com/bryanwahyu/fusioncloud/internal/infra/ai/openai"
	"github.com/bryanwahyu/fusioncloud/internal/infra/notify/webhook"
	"github.com/bryanwahyu/fusioncloud/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "threat-agent LOG_FILE",
		Short: "Assess a log file for security threats and print a JSON verdict",
		Long: `threat-agent reads one log file, asks the configured model (Groq by default)
for a threat assessment, runs an offline indicator scan alongside it and prints
{analysis, cve_data, threat_level, status} as JSON. High threats are alerted
to the Slack webhook when one is configured.`,
		Args:          cobra.ExactArgs(1),
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "path to config file (yaml or toml)")
	rootCmd.Flags().Bool("offline", false, "skip the model and report the offline scan only")
	// diagnostics must stay quiet: the api server treats stderr output as a failure
	rootCmd.Flags().String("log-level", "disabled", "log level for stderr diagnostics")
	rootCmd.Flags().Duration("timeout", 100*time.Second, "upper bound for the assessment")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		writeJSON(os.Stdout, map[string]string{"error": err.Error(), "status": "error"})
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	offlineOnly, _ := cmd.Flags().GetBool("offline")
	logLevel, _ := cmd.Flags().GetString("log-level")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(config.LogConfig{Level: logLevel, Format: cfg.Log.Format}, os.Stderr)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	svc := &appai.Service{
		Scanner:     offline.Scanner{},
		AlertOnHigh: cfg.Agent.AlertOnHigh,
		Log:         log,
	}
	if !offlineOnly && cfg.Credentials.GroqAPIKey != "" {
		svc.LLM = openai.NewClient(cfg.Credentials.GroqAPIKey, cfg.Agent.BaseURL, cfg.Agent.Model)
	}
	if cfg.Credentials.SlackWebhookURL != "" {
		svc.Alerter = webhook.New(cfg.Credentials.SlackWebhookURL, nil, log)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := svc.Assess(ctx, string(data))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
