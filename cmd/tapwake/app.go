package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/tapwake/internal/config"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/feedback"
	"github.com/fgeck/tapwake/internal/services/link"
	"github.com/fgeck/tapwake/internal/services/telegram"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errConfigRequired = errors.New("config file is required")

// loadConfig parses and validates the config file named by --config.
// The caller must Close the returned config.
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		_ = cmd.Help()
		return nil, errConfigRequired
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		_ = cfg.Close()
		return nil, err
	}

	log.Info().
		Str("config", configFile).
		Str("ssid", cfg.Link.SSID).
		Str("target", cfg.Target.Host).
		Msg("configuration loaded")

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// feedbackSinks builds the log sink plus the Telegram sink when configured.
// The returned function stops the Telegram sender after flushing it.
func feedbackSinks(ctx context.Context, cfg *models.Config) (feedback.Sink, func()) {
	sinks := feedback.Multi{feedback.NewLogSink(log.Logger)}
	if cfg.Telegram == nil {
		return sinks, func() {}
	}

	tg := feedback.NewTelegramSink(log.Logger, telegram.New(log.Logger), *cfg.Telegram)
	sinks = append(sinks, tg)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		tg.Run(runCtx)
		close(done)
	}()

	return sinks, func() {
		cancel()
		<-done
	}
}

// interfaceAddresses reads the station address directly from the kernel for
// commands that run without a link supervisor.
type interfaceAddresses struct {
	iface  string
	reader link.AddressReader
}

func (a interfaceAddresses) Snapshot() models.LinkSnapshot {
	info, ok := a.reader.Read(a.iface)
	if !ok {
		return models.LinkSnapshot{State: models.LinkDisconnected}
	}
	return models.LinkSnapshot{State: models.LinkConnected, IPInfo: info}
}
