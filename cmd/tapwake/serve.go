package main

import (
	"context"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/auth"
	"github.com/fgeck/tapwake/internal/services/feedback"
	"github.com/fgeck/tapwake/internal/services/keyboard"
	"github.com/fgeck/tapwake/internal/services/link"
	"github.com/fgeck/tapwake/internal/services/login"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/fgeck/tapwake/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// reconnectDelay is the pause before connecting again after the link failed.
const reconnectDelay = time.Minute

var tagSource string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tag-to-login service",
	Long: `Join the Wi-Fi network, keep the link alive and wait for tags.

Each line read from the tag source is one tag read. An empty line means the
reader saw no card or could not read it. For every authorized tag tapwake:
1. Checks the Wi-Fi link
2. Probes the target; if it is down, sends Wake-on-LAN until it answers
3. Waits for the PC to settle
4. Presses Enter, types the password and presses Enter again

Tags are read from stdin unless --tag-source names a FIFO or reader device.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&tagSource, "tag-source", "", "FIFO or device to read tags from (default stdin)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	// Link supervisor, station and keepalive
	station := link.NewNMStation(log.Logger, cfg.Link)
	supervisor := link.New(log.Logger, cfg.Link, station)
	station.Attach(supervisor)
	supervisor.Start(ctx)
	go station.Watch(ctx)
	go maintainLink(ctx, supervisor, cfg.Link)

	sink, stopFeedback := feedbackSinks(ctx, cfg)
	defer stopFeedback()

	gate := auth.NewGate(log.Logger, cfg.Auth.Token)
	loginSvc := login.New(
		log.Logger,
		supervisor,
		probe.New(log.Logger, cfg.Target.ProbePorts),
		wol.New(log.Logger, supervisor),
		keyboard.New(log.Logger, cfg.Keyboard),
		sink,
	)

	reader := newTagReader(tagSource)
	tags := make(chan string)
	go reader.run(ctx, tags)

	sink.Notify(ctx, models.FeedbackEvent{Kind: models.FeedbackReady, Time: time.Now()})
	log.Info().Str("source", reader.name()).Msg("waiting for tags")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("service stopped")
			return nil
		case tag, ok := <-tags:
			if !ok {
				log.Info().Msg("tag source closed")
				return nil
			}
			handleTag(ctx, tag, gate, loginSvc, sink, cfg.Login)
			reader.done()
		}
	}
}

func handleTag(
	ctx context.Context,
	tag string,
	gate *auth.Gate,
	loginSvc login.Service,
	sink feedback.Sink,
	cfg models.LoginConfig,
) {
	if tag == "" {
		sink.Notify(ctx, models.FeedbackEvent{Kind: models.FeedbackReadFailed, Time: time.Now()})
		return
	}

	result, err := loginSvc.Login(ctx, cfg, gate.Authorized(tag))
	if err != nil {
		log.Error().Err(err).Msg("login not attempted")
		return
	}

	event := log.Info()
	if result.Error != nil {
		event = log.Warn().Err(result.Error)
	}
	event.
		Str("outcome", string(result.Outcome)).
		Str("path", string(result.Path)).
		Int("wake_attempts", result.WakeAttempts).
		Dur("elapsed", result.Elapsed).
		Msg("tag handled")
}

// maintainLink connects and reconnects after the link has failed.
func maintainLink(ctx context.Context, supervisor *link.Supervisor, cfg models.LinkConfig) {
	for {
		snap := supervisor.Snapshot()
		if snap.State != models.LinkConnected && snap.State != models.LinkConnecting {
			err := supervisor.Connect(ctx, cfg.SSID, cfg.Password)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Dur("retry_in", reconnectDelay).Msg("wifi connect failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
