package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fgeck/tapwake/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errShutdownNotConfigured = errors.New("ssh_shutdown is not configured")

var shutdownTest bool

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the target down over SSH",
	Long: `Connect to the target over SSH and run the configured shutdown command.
With --test only "echo OK" is run to check credentials and host key.`,
	RunE: runShutdown,
}

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownTest, "test", false, "only test the SSH connection")
}

func runShutdown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	if cfg.SSHShutdown == nil {
		log.Error().Msg("ssh_shutdown section missing from config")
		return errShutdownNotConfigured
	}

	ctx, cancel := signalContext()
	defer cancel()

	svc := ssh.New(log.Logger)

	if shutdownTest {
		result, err := svc.TestConnection(ctx, *cfg.SSHShutdown)
		if err != nil {
			return err
		}
		if result.Error != nil {
			return result.Error
		}
		fmt.Printf("SSH connection to %s OK: %s\n", cfg.SSHShutdown.Host, strings.TrimSpace(result.Output))
		return nil
	}

	result, err := svc.Shutdown(ctx, *cfg.SSHShutdown)
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Str("host", cfg.SSHShutdown.Host).Msg("shutdown failed")
		return result.Error
	}

	log.Info().Str("host", cfg.SSHShutdown.Host).Str("command", result.Command).Msg("shutdown command sent")
	return nil
}
