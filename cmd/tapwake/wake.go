package main

import (
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/poll"
	"github.com/fgeck/tapwake/internal/services/link"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/fgeck/tapwake/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeWait bool

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Send Wake-on-LAN packets to the target",
	Long: `Send the magic packet to every wake destination of the target: the host
itself, the subnet broadcast and the limited broadcast, on ports 9 and 7.

With --wait the target is probed until it answers or login.wake_budget expires.`,
	RunE: runWake,
}

func init() {
	wakeCmd.Flags().BoolVar(&wakeWait, "wait", false, "wait until the target answers")
}

func runWake(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	addrs := interfaceAddresses{iface: cfg.Link.Interface, reader: link.SysAddressReader{}}
	wolSvc := wol.New(log.Logger, addrs)

	result, err := wolSvc.SendAll(ctx, cfg.Target.MACAddress, cfg.Target.Host)
	if err != nil {
		log.Error().Err(err).Msg("wake failed")
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Int("failed", len(result.Failed)).Msg("wake failed")
		return result.Error
	}

	log.Info().
		Int("sent", len(result.Sent)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("wake packets sent")

	if !wakeWait {
		return nil
	}

	prober := probe.New(log.Logger, cfg.Target.ProbePorts)
	start := time.Now()
	up := poll.Until(ctx, clock.Real(), time.Second, cfg.Login.WakeBudget, func() bool {
		return prober.IsReachable(ctx, cfg.Target.Host, cfg.Login.ProbeTimeout)
	})
	if !up {
		log.Error().Str("host", cfg.Target.Host).Dur("waited", time.Since(start)).Msg("target did not answer")
		return errTargetDown
	}

	log.Info().Str("host", cfg.Target.Host).Dur("waited", time.Since(start)).Msg("target is up")
	return nil
}
