package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

var Postgres *gorm.DB

// InitPostgres connects to the crowdfund schema and migrates the registry
// tables.
func InitPostgres(conf *config.DBCredential) (*gorm.DB, error) {
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "crowdfund.",
		},
	})
	if err != nil {
		return nil, errors.WrapAndReport(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.WrapAndReport(err, "get pg conn")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.WrapAndReport(err, "ping to pg")
	}
	log.Info("Connected to crowdfund postgres...")

	if err := cli.AutoMigrate(&ContractDeployment{}); err != nil {
		return nil, errors.WrapAndReport(err, "autoMigrate tables")
	}
	Postgres = cli
	return cli, nil
}

func Close() {
	if Postgres == nil {
		return
	}
	if db, err := Postgres.DB(); err == nil {
		db.Close()
	}
	Postgres = nil
}
