package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cartelwatch/config"
	"cartelwatch/internal/broker/kafka"
	"cartelwatch/internal/cache/rediscache"
	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/integrations/vendorclient/cartelhttp"
	"cartelwatch/internal/integrations/vendorclient/fake"
	"cartelwatch/internal/mail/monitor"
	"cartelwatch/internal/mail/monitor/imapbox"
	"cartelwatch/internal/services/orderpoll"
)

type watcherFactories struct {
	newVendorClient func(cfg *config.Config) vendor.Client
	newProducer     func(cfg *config.Config) orderpoll.Producer
	newMailbox      func(cfg *config.Config) monitor.Mailbox
	newWatermark    func(cfg *config.Config) monitor.WatermarkStore
}

func defaultWatcherFactories() watcherFactories {
	return watcherFactories{
		newVendorClient: func(cfg *config.Config) vendor.Client {
			if cfg.Vendor.Mode == "fake" {
				return fake.New()
			}
			return cartelhttp.New(cfg.Vendor.BaseURL)
		},
		newProducer: func(cfg *config.Config) orderpoll.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newMailbox: func(cfg *config.Config) monitor.Mailbox {
			return imapbox.New(imapbox.Config{
				Server:   cfg.Email.Server,
				Port:     cfg.Email.Port,
				Username: cfg.Email.Username,
				Password: cfg.Email.Password,
				Folder:   cfg.Email.Folder,
			})
		},
		newWatermark: func(cfg *config.Config) monitor.WatermarkStore {
			if cfg.Redis.Host == "" {
				return nil
			}
			addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewWatermark(addr, "")
		},
	}
}

func RunWatcher(ctx context.Context, cfg *config.Config, f watcherFactories) error {
	topic := cfg.Kafka.OrderStatusUpdatedTopicName
	if topic == "" {
		topic = "order.status.updated"
	}

	pollInterval := time.Duration(cfg.Watcher.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = orderpoll.DefaultPollInterval
	}

	producer := f.newProducer(cfg)
	vendorClient := f.newVendorClient(cfg)

	p := orderpoll.New(vendorClient, producer, topic, cfg.Watcher.OrderID).
		WithInterval(pollInterval)

	var mon *monitor.Monitor
	if cfg.Email.Enabled {
		checkInterval := time.Duration(cfg.Email.CheckIntervalSeconds) * time.Second
		if checkInterval <= 0 {
			checkInterval = monitor.DefaultCheckInterval
		}

		mon = monitor.New(f.newMailbox(cfg), cfg.Email.Username, func(ctx context.Context, orderID string) {
			if p.UpdateOrderID(ctx, orderID) {
				slog.Info("order id updated from email", "order_id", orderID)
			}
		}).WithCheckInterval(checkInterval)
		if wm := f.newWatermark(cfg); wm != nil {
			mon = mon.WithWatermarkStore(wm)
		}

		if err := mon.Start(); err != nil {
			return err
		}
		defer mon.Stop()
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWatcherHTTPServer(ctx, watcherHTTPOpts{
			httpAddr: cfg.Watcher.HTTPAddr,
			poller:   p,
			monitor:  mon,
			cfg:      cfg,
		})
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- p.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-pollErr:
		return err
	case err := <-httpErr:
		return err
	}
}
