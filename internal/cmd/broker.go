package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ptybroker/internal/broker"
	"ptybroker/internal/brokerconfig"
	"ptybroker/internal/tokenfile"
)

func newBrokerCmd() *cobra.Command {
	var bindAddr string
	var tokenPath string
	var configPath string
	var activityLogPath string

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the automation broker",
		Long: `Broker starts the Automation Broker: a TCP server that authenticates
clients against a persistent token and exposes the session/pane
registry and pub/sub channels described by the wire protocol.

The token is generated on first run and persisted at --token-file
(default ~/.ptybroker/broker.token); subsequent runs reuse it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides brokerconfig.Overrides
			if configPath != "" {
				var err error
				overrides, err = brokerconfig.Load(configPath)
				if err != nil {
					return err
				}
			}
			if overrides.BindAddr != "" && !cmd.Flags().Changed("bind") {
				bindAddr = overrides.BindAddr
			}
			if overrides.ActivityLogPath != "" && activityLogPath == "" {
				activityLogPath = overrides.ActivityLogPath
			}

			if tokenPath == "" {
				tokenPath = tokenfile.Path()
			}
			token, err := tokenfile.LoadOrCreate(tokenPath)
			if err != nil {
				return fmt.Errorf("load token: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			b, err := broker.Start(bindAddr, token, broker.Config{
				Logger:             logger,
				QueueCapacity:      overrides.QueueCapacity,
				SubscriberCapacity: overrides.SubscriberCapacity,
				ActivityLogPath:    activityLogPath,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\ntoken file: %s\n", b.Addr(), tokenPath)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			b.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind", broker.DefaultBindAddr, "Address to listen on")
	cmd.Flags().StringVar(&tokenPath, "token-file", "", "Path to the persistent auth token (default ~/.ptybroker/broker.token)")
	cmd.Flags().StringVar(&configPath, "config", "", "Optional YAML file overriding bind address and queue capacities")
	cmd.Flags().StringVar(&activityLogPath, "activity-log", "", "Optional path to append JSON-Lines connection activity events")

	return cmd
}
