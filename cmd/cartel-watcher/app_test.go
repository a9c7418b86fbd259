package main

import (
	"context"
	"testing"

	"cartelwatch/config"
	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/integrations/vendorclient/cartelhttp"
	"cartelwatch/internal/integrations/vendorclient/fake"
	"cartelwatch/internal/mail/monitor"
	"cartelwatch/internal/services/orderpoll"
	"github.com/stretchr/testify/require"
)

func TestDefaultWatcherFactories_SelectVendorClient(t *testing.T) {
	f := defaultWatcherFactories()

	cfgFake := &config.Config{Vendor: config.VendorConfig{Mode: "fake"}}
	c1 := f.newVendorClient(cfgFake)
	_, ok := c1.(*fake.FakeClient)
	require.True(t, ok)

	cfgHTTP := &config.Config{Vendor: config.VendorConfig{Mode: "http"}}
	c2 := f.newVendorClient(cfgHTTP)
	_, ok = c2.(*cartelhttp.Client)
	require.True(t, ok)
}

func TestDefaultWatcherFactories_Watermark(t *testing.T) {
	f := defaultWatcherFactories()

	require.Nil(t, f.newWatermark(&config.Config{}))
	require.NotNil(t, f.newWatermark(&config.Config{
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}))
}

func TestRunWatcher_ContextCanceled(t *testing.T) {
	f := watcherFactories{
		newVendorClient: func(cfg *config.Config) vendor.Client { return fake.New() },
		newProducer: func(cfg *config.Config) orderpoll.Producer {
			return noopProducer{}
		},
		newMailbox:   func(cfg *config.Config) monitor.Mailbox { return nil },
		newWatermark: func(cfg *config.Config) monitor.WatermarkStore { return nil },
	}

	cfg := &config.Config{
		Kafka:   config.KafkaConfig{OrderStatusUpdatedTopicName: "t"},
		Watcher: config.WatcherConfig{OrderID: httpTestOrderID, HTTPAddr: "127.0.0.1:0"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWatcher(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
}
