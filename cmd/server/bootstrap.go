package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"carrental/internal/app"
	"carrental/internal/config"
	"carrental/internal/queue"
	"carrental/internal/repository"
)

const shutdownFlushTimeout = 5 * time.Second

// deps is everything a command needs, opened in dependency order.
type deps struct {
	cfg         *config.Config
	nrApp       *newrelic.Application
	store       repository.Store
	redisClient *redis.Client
	publisher   *queue.Publisher
	services    *app.Services
}

// bootstrap loads configuration and opens the store, Redis and the event
// publisher. Callers must call close.
func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &deps{cfg: cfg}

	// Initialize New Relic FIRST (before database so we can instrument DB).
	d.nrApp = app.NewNewRelicApp(cfg.NewRelic)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	d.store, err = app.NewStore(connectCtx, cfg.Database, d.nrApp)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	log.Printf("Connected to %s", cfg.Database.Driver)

	d.redisClient, err = app.NewRedisClient(connectCtx, cfg.Redis, d.nrApp)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if d.redisClient != nil {
		log.Println("Connected to Redis")
	} else {
		log.Println("Redis disabled: running without distributed locks or caching")
	}

	if cfg.RabbitMQ.Enabled {
		d.publisher = queue.NewPublisher(cfg.RabbitMQ.URL, queue.WithDialTimeout(cfg.RabbitMQ.DialTimeout))
		log.Printf("Publishing rental outcomes to queue %s", queue.RentalOutcomeQueue)
	}

	gw, err := app.NewGateway(cfg.Paystack)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to configure payment gateway: %w", err)
	}

	d.services = app.NewServices(cfg, d.store, gw, d.redisClient, d.publisher)
	return d, nil
}

func (d *deps) close() {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			log.Printf("failed to close publisher: %v", err)
		}
	}
	if d.redisClient != nil {
		_ = d.redisClient.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}
	if d.nrApp != nil {
		d.nrApp.Shutdown(shutdownFlushTimeout)
	}
}
