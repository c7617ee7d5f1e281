package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/labstack/gommon/log"

	"watchparty.live/api"
	"watchparty.live/config"
	"watchparty.live/pkg/msgbroker"
	"watchparty.live/storage"
)

func main() {
	// APP configuration
	c := config.Get()

	var (
		s   storage.Storage
		mb  msgbroker.MessageBroker
		rdb *redis.Client
	)

	if c.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := rdb.Ping().Err(); err != nil {
			log.Fatal(err)
		}
		s = storage.NewRedis(rdb)
		mb = msgbroker.NewRedisBroker(rdb)
	} else {
		s = storage.NewMemory()
		mb = msgbroker.NewLocalBroker()
	}

	// API
	a := api.New(c, s, mb)

	go func() {
		// Starting API
		if err := a.Start(); err != nil {
			log.Warn(err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	// waiting for signals
	quit := <-signals
	log.Infof("signal %s received, stopping server...", quit)
	// Stopping server
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		log.Error(err)
	}

	if err := mb.Close(); err != nil {
		log.Error(err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error(err)
		}
	}
}
