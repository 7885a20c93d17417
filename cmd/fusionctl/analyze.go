package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/fusioncloud/internal/application"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/session"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		file      string
		text      string
		notify    bool
		seedLevel string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze log text from --text, a JSON document (--file) or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && text != "" {
				return fmt.Errorf("--file and --text are mutually exclusive")
			}
			sel, err := selector(seedLevel)
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			deps := session.Deps{
				Selector: sel,
				Clock:    application.SystemClock{},
				Log:      e.log,
			}
			if e.client != nil {
				deps.Submitter = e.client
				deps.Notifier = e.client
			} else {
				svc, err := e.localService(sel)
				if err != nil {
					return err
				}
				deps.Submitter = svc
				if n := e.notifier(); n != nil {
					deps.Notifier = n
				}
			}
			m := session.New(deps)

			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := m.StageDocument(filepath.Base(file), data); err != nil {
					return err
				}
			case text != "":
				m.Stage(text)
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				m.Stage(string(data))
			}
			m.SetNotify(notify)

			res, err := m.Submit(cmd.Context())
			if err != nil {
				return err
			}
			snap := m.Snapshot()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), snap, res)
			if snap.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "notification failed: %v\n", snap.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "structured JSON log document")
	cmd.Flags().StringVarP(&text, "text", "t", "", "raw log text")
	cmd.Flags().BoolVar(&notify, "notify", false, "relay the verdict to the messaging webhook")
	cmd.Flags().StringVar(&seedLevel, "seed-level", "", "pin the fallback scenario (low|medium|high)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func selector(level string) (domain.ScenarioSelector, error) {
	if level == "" {
		return domain.NewRandomSelector(time.Now().UnixNano()), nil
	}
	l, ok := domain.ParseThreatLevel(level)
	if !ok {
		return nil, fmt.Errorf("--seed-level must be low, medium or high, got %q", level)
	}
	return domain.FixedSelector(l), nil
}

func printResult(w io.Writer, snap session.Snapshot, res domain.Result) {
	if snap.FileName != "" {
		fmt.Fprintf(w, "File:         %s\n", snap.FileName)
	}
	fmt.Fprintf(w, "Threat level: %s\n", res.ThreatLevel.Label())
	fmt.Fprintf(w, "Analyzed at:  %s\n", res.Timestamp.Format(time.RFC3339))
	if res.Synthetic {
		fmt.Fprintln(w, "Note:         analyzer unavailable, synthetic result")
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(res.Narrative))
	if res.CVEExcerpt != nil {
		fmt.Fprintf(w, "\nCVEs:\n%s\n", *res.CVEExcerpt)
	}
}
