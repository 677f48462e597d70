package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

var (
	Redis       *redis.Client
	RateLimiter *redis_rate.Limiter
)

// Init connects to redis and prepares the shared rate limiter.
func Init(cred *config.DBCredential) error {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	cli := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx).Result(); err != nil {
		cli.Close()
		return errors.WrapAndReport(err, "ping to redis")
	}
	Redis = cli
	RateLimiter = redis_rate.NewLimiter(cli)
	log.Infof("Connected to redis %s...", cred.GetRedisAddress())
	return nil
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
		RateLimiter = nil
	}
}
