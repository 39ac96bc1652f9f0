package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errTargetDown = errors.New("target is not reachable")

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the target answers on its probe ports",
	Long: `Try a TCP connection to each of target.probe_ports in order. The target counts
as up as soon as one port accepts or actively refuses the connection.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 3*time.Second, "total time budget across all ports")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	prober := probe.New(log.Logger, cfg.Target.ProbePorts)
	result := prober.Probe(ctx, models.ReachabilityProbe{
		Host:    cfg.Target.Host,
		Ports:   cfg.Target.ProbePorts,
		Timeout: probeTimeout,
	})

	if !result.Reachable {
		fmt.Printf("%s is down (no answer within %s)\n", cfg.Target.Host, result.Duration.Round(time.Millisecond))
		return errTargetDown
	}

	fmt.Printf("%s is up: port %d %s after %s\n",
		cfg.Target.Host, result.Port, result.Evidence, result.Duration.Round(time.Millisecond))
	return nil
}
