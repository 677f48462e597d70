package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crowdfund",
		Short:         "Crowdfunding contract tooling: metadata server and campaign workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	root.AddCommand(serveCmd(), accountsCmd(), campaignsCmd(), deploymentsCmd())
	return root
}

// setup loads config.Global and installs the logger level and error reporters.
func setup() error {
	if err := config.Read(configPath); err != nil {
		return err
	}
	log.SetLevelName(config.Global.LogLevel)
	errors.ResetReporters()
	if dsn := config.Global.SentryDSN; dsn != "" {
		if err := errors.NewSentryReporter(dsn); err != nil {
			log.Warnf("sentry disabled: %v", err)
		}
	}
	if hook := config.Global.LarkAlarmWebhook; hook != "" {
		errors.NewLarkReporter(hook, time.Minute)
	}
	return nil
}
