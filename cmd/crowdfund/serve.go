package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"moff.io/crowdfund/internal/cache"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/internal/database"
	"moff.io/crowdfund/internal/http"
	"moff.io/crowdfund/internal/starter"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the contract address and ABI to wallet clients",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if i := recover(); i != nil {
					err = errors.ErrorfAndReport("%v", i)
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Global)
		},
	}
}

func serve(ctx context.Context, conf *config.Configuration) error {
	var limiter http.Limiter
	if conf.RedisCredential.Configured() {
		if err := cache.Init(&conf.RedisCredential); err != nil {
			log.Warnf("rate limiting disabled: %v", err)
		} else {
			defer cache.Close()
			limiter = cache.RateLimiter
		}
	}

	var db *gorm.DB
	if conf.MetadataServer.Registry {
		var err error
		if db, err = database.InitPostgres(&conf.Postgres); err != nil {
			return err
		}
		defer database.Close()
	}

	source, err := http.SourceFromConfig(conf, db)
	if err != nil {
		return err
	}
	server := http.NewServer(source, limiter)
	starter.Start(ctx, server)
	starter.Stop(server)
	log.Info("Metadata server stopped")
	return nil
}
