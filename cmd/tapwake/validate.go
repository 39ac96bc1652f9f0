package main

import (
	"fmt"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/feedback"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without touching Wi-Fi, the network or the keyboard.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Wi-Fi:")
	fmt.Printf("  SSID: %s\n", cfg.Link.SSID)
	fmt.Printf("  Password: %s\n", mask(cfg.Link.Password != nil))
	fmt.Printf("  Interface: %s\n", cfg.Link.Interface)
	fmt.Printf("  Max retry: %d\n", cfg.Link.MaxRetry)
	fmt.Printf("  Keepalive interval: %s\n", cfg.Link.KeepaliveInterval)
	fmt.Println()
	fmt.Println("Target:")
	fmt.Printf("  Host: %s\n", cfg.Target.Host)
	fmt.Printf("  MAC Address: %s\n", cfg.Target.MACAddress)
	fmt.Printf("  Probe ports: %v\n", cfg.Target.ProbePorts)
	fmt.Printf("  Password: %s\n", mask(cfg.Login.Password != nil))
	fmt.Println()
	fmt.Println("Login:")
	fmt.Printf("  Wake budget: %s\n", cfg.Login.WakeBudget)
	fmt.Printf("  Probes per wake: %d\n", cfg.Login.ProbesPerWake)
	fmt.Printf("  Boot settle: %s\n", cfg.Login.BootSettle)
	fmt.Printf("  Always wake: %v\n", cfg.Login.AlwaysWake)
	fmt.Println()
	fmt.Println("Keyboard:")
	fmt.Printf("  Device: %s\n", cfg.Keyboard.Device)
	fmt.Printf("  Ready timeout: %s\n", cfg.Keyboard.ReadyTimeout)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Notify: %v\n", notifyKinds(cfg.Telegram))
	}

	if cfg.SSHShutdown != nil {
		fmt.Println()
		fmt.Println("SSH Shutdown Configuration:")
		fmt.Printf("  Host: %s\n", cfg.SSHShutdown.Host)
		fmt.Printf("  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Printf("  User: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
	}

	return nil
}

func mask(set bool) string {
	if set {
		return "********"
	}
	return "(none)"
}

func notifyKinds(cfg *models.TelegramConfig) []models.FeedbackKind {
	if len(cfg.Notify) == 0 {
		return feedback.DefaultTelegramKinds
	}
	return cfg.Notify
}
