package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/alerting"
	"github.com/septivank/iot-telemetry-hub/internal/anomaly"
	"github.com/septivank/iot-telemetry-hub/internal/api"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// alertTestCmd sends a test alert straight to the webhook
func alertTestCmd() *cobra.Command {
	var (
		deviceID string
		message  string
	)

	cmd := &cobra.Command{
		Use:   "alert-test",
		Short: "Send a test alert through the alert webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			thresholds, err := config.LoadThresholds(cfg.Alerting.ThresholdsFile)
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			engine := alerting.NewEngine(
				anomaly.NewDetector(thresholds),
				alerting.NewCooldown(cfg.Alerting.Cooldown, time.Now),
				alerting.NewHTTPDirectory(cfg.Alerting.DevicesServiceURL, cfg.Alerting.LookupTimeout, logger),
				alerting.NewWebhookSink(cfg.Alerting.WebhookURL, cfg.Alerting.DispatchTimeout, logger),
				logger,
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Alerting.DispatchTimeout+time.Second)
			defer cancel()
			if err := engine.TestAlert(ctx, deviceID, message); err != nil {
				return fmt.Errorf("test alert failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test alert sent for %s\n", deviceID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Device id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Alert text (default \"Test alert\")")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

// tokenCmd issues a bearer token signed with JWT_SECRET
func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.RequireAuth); err != nil {
				return err
			}
			switch maintenance.Role(role) {
			case maintenance.RoleAdmin, maintenance.RoleTech, maintenance.RoleUser:
			default:
				return fmt.Errorf("role must be admin, tech or user")
			}

			tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret).Issue(
				maintenance.Actor{UserID: userID, Role: maintenance.Role(role)}, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().StringVar(&role, "role", "user", "Role: admin, tech or user")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// transitionsCmd prints the ticket state machine
func transitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions",
		Short: "Print the maintenance ticket transition table",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tALLOWED")
			for _, rule := range maintenance.Rules() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rule.From, rule.To, describe(rule))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			var terminal []string
			for _, st := range []maintenance.Status{
				maintenance.StatusPending,
				maintenance.StatusInProgress,
				maintenance.StatusCompleted,
				maintenance.StatusCancelled,
				maintenance.StatusApproved,
			} {
				if maintenance.IsTerminal(st) {
					terminal = append(terminal, string(st))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "terminal: %s\n", strings.Join(terminal, ", "))
			return nil
		},
	}
}

func describe(rule maintenance.Rule) string {
	switch rule.To {
	case maintenance.StatusApproved:
		return "admin"
	case maintenance.StatusCancelled:
		return "admin, or the responsible tech"
	default:
		return "the responsible admin or tech"
	}
}
