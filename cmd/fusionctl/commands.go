package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

func newCheckEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-env",
		Short: "List which analyzer and webhook credentials are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if e.client == nil {
				return printJSON(cmd.OutOrStdout(), e.cfg.Probe())
			}
			probe, err := e.client.CheckEnv(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), probe)
		},
	}
}

func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify MESSAGE...",
		Short: "Send a message to the messaging webhook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			msg := strings.Join(args, " ")
			if strings.TrimSpace(msg) == "" {
				return fmt.Errorf("%w: message is required", domain.ErrValidation)
			}

			if e.client != nil {
				err = e.client.Notify(cmd.Context(), domain.NotificationMessage{Text: msg})
			} else if n := e.notifier(); n != nil {
				err = n.Notify(cmd.Context(), domain.NotificationMessage{Text: msg})
			} else {
				err = &domain.NotificationError{Err: domain.ErrSinkNotConfigured}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}
