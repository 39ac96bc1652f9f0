package main

import (
	"fmt"

	"github.com/fgeck/tapwake/internal/services/auth"
	"github.com/fgeck/tapwake/internal/services/keyboard"
	"github.com/fgeck/tapwake/internal/services/link"
	"github.com/fgeck/tapwake/internal/services/login"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/fgeck/tapwake/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var loginTag string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run a single login as if a tag had been presented",
	Long: `Connect to Wi-Fi, then wake the target if needed and type the password once.

Without --tag the login is treated as authorized. With --tag the given text is
checked against auth.token first, exactly like a tag read by "serve".`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginTag, "tag", "", "tag text to authorize with")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	station := link.NewNMStation(log.Logger, cfg.Link)
	supervisor := link.New(log.Logger, cfg.Link, station)
	station.Attach(supervisor)
	supervisor.Start(ctx)
	go station.Watch(ctx)

	if err := supervisor.Connect(ctx, cfg.Link.SSID, cfg.Link.Password); err != nil {
		log.Error().Err(err).Str("ssid", cfg.Link.SSID).Msg("wifi connect failed")
		return err
	}

	sink, stopFeedback := feedbackSinks(ctx, cfg)
	defer stopFeedback()

	authorized := true
	if cmd.Flags().Changed("tag") {
		authorized = auth.NewGate(log.Logger, cfg.Auth.Token).Authorized(loginTag)
	}

	loginSvc := login.New(
		log.Logger,
		supervisor,
		probe.New(log.Logger, cfg.Target.ProbePorts),
		wol.New(log.Logger, supervisor),
		keyboard.New(log.Logger, cfg.Keyboard),
		sink,
	)

	result, err := loginSvc.Login(ctx, cfg.Login, authorized)
	if err != nil {
		log.Error().Err(err).Msg("login not attempted")
		return err
	}

	if !result.Succeeded() {
		log.Error().
			Err(result.Error).
			Str("outcome", string(result.Outcome)).
			Dur("elapsed", result.Elapsed).
			Msg("login failed")
		return fmt.Errorf("login %s", result.Outcome)
	}

	log.Info().
		Str("path", string(result.Path)).
		Int("wake_attempts", result.WakeAttempts).
		Dur("elapsed", result.Elapsed).
		Msg("login completed successfully")
	return nil
}
