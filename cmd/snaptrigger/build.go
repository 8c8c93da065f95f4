package main

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/capture/ffmpeg"
	"snaptrigger/internal/capture/frame"
	"snaptrigger/internal/capture/snapshot"
	"snaptrigger/internal/config"
	"snaptrigger/internal/home"
	ingestamqp "snaptrigger/internal/ingester/amqp"
	ingesthttp "snaptrigger/internal/ingester/http"
	ingestkafka "snaptrigger/internal/ingester/kafka"
	ingestmqtt "snaptrigger/internal/ingester/mqtt"
	ingestmqtt5 "snaptrigger/internal/ingester/mqtt5"
	ingestschedule "snaptrigger/internal/ingester/schedule"
	ingestspool "snaptrigger/internal/ingester/spool"
	"snaptrigger/internal/notifier"
	"snaptrigger/internal/notifier/telegram"
	"snaptrigger/internal/source"
	"snaptrigger/internal/trigger"
)

// buildFactories returns the factory for every supported ingester type.
func buildFactories() trigger.Factories {
	return trigger.Factories{
		"amqp":     ingestamqp.NewFactory(),
		"http":     ingesthttp.NewFactory(),
		"kafka":    ingestkafka.NewFactory(),
		"mqtt":     ingestmqtt.NewFactory(),
		"mqtt5":    ingestmqtt5.NewFactory(),
		"schedule": ingestschedule.NewFactory(),
		"spool":    ingestspool.NewFactory(),
	}
}

// ingesterSpec is a constructed ingester with its configured name.
type ingesterSpec struct {
	name string
	ing  trigger.Ingester
}

// buildIngesters constructs every configured ingester. IDs are derived from
// the configured name so they are stable across restarts.
func buildIngesters(cfg *config.Config, hd home.Dir, logger *slog.Logger) ([]ingesterSpec, error) {
	factories := buildFactories()
	specs := make([]ingesterSpec, 0, len(cfg.Ingesters))
	for _, ic := range cfg.Ingesters {
		name := ic.DisplayName()
		params := maps.Clone(ic.Params)
		if params == nil {
			params = make(map[string]string)
		}
		params[trigger.ParamName] = name
		params[ingestspool.ParamSpoolDir] = hd.SpoolDir()

		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("snaptrigger/ingester/"+name))
		ing, err := factories.Build(ic.Type, id, params, logger)
		if err != nil {
			return nil, fmt.Errorf("ingester %q: %w", name, err)
		}
		specs = append(specs, ingesterSpec{name: name, ing: ing})
	}
	return specs, nil
}

// buildPool wires the frame grabbers for each source kind into a capture pool.
func buildPool(cc config.CaptureConfig, logger *slog.Logger) *capture.Pool {
	return capture.NewPool(capture.Config{
		Size: cc.PoolSize,
		Capturers: map[source.Kind]capture.Capturer{
			source.KindRTSP: ffmpeg.New(ffmpeg.Config{
				Path:      cc.FFmpegPath,
				Transport: cc.RTSPTransport,
				Logger:    logger,
			}),
			source.KindHTTP: snapshot.New(snapshot.Config{Logger: logger}),
		},
		Encoder: frame.Normalizer{
			Quality:  cc.JPEGQuality,
			MaxWidth: cc.MaxWidth,
		},
		Timeouts: capture.Timeouts{
			Connect: cc.ConnectTimeout,
			Read:    cc.ReadTimeout,
		},
		Logger: logger,
	})
}

// buildSink returns the Telegram sink when configured, otherwise a sink that
// only logs.
func buildSink(nc config.NotifyConfig, logger *slog.Logger) (notifier.Sink, error) {
	tc := nc.Telegram
	if !tc.Enabled() {
		logger.Warn("telegram not configured, results will only be logged")
		return notifier.NewLogSink(logger), nil
	}
	return telegram.New(telegram.Config{
		Token:     tc.Token,
		ChatID:    tc.ChatID,
		APIURL:    tc.APIURL,
		Timeout:   tc.Timeout,
		PerSecond: tc.PerSecond,
		Logger:    logger,
	})
}
