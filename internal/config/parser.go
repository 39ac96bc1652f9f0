// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/secret"
	"github.com/fgeck/tapwake/internal/services/wol"
	"github.com/spf13/viper"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// parse builds the configuration. The returned Config owns locked memory
// for the passwords and must be closed by the caller.
func (p *Parser) parse() (cfg *models.Config, err error) {
	cfg = &models.Config{}
	defer func() {
		if err != nil {
			_ = cfg.Close()
			cfg = nil
		}
	}()

	if err = p.parseWifi(cfg); err != nil {
		return cfg, err
	}
	if err = p.parseTarget(cfg); err != nil {
		return cfg, err
	}
	p.parseLogin(cfg)
	p.parseKeyboard(cfg)

	cfg.Auth = models.AuthConfig{
		Token: strings.TrimSpace(p.expandEnv(p.v.GetString("auth.token"))),
	}
	if cfg.Auth.Token == "" {
		return cfg, fmt.Errorf("auth.token is required")
	}

	if err = p.parseTelegram(cfg); err != nil {
		return cfg, err
	}
	if err = p.parseSSHShutdown(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (p *Parser) parseWifi(cfg *models.Config) error {
	cfg.Link = models.LinkConfig{
		SSID:              p.expandEnv(p.v.GetString("wifi.ssid")),
		Interface:         p.v.GetString("wifi.interface"),
		ConnectTimeout:    p.v.GetDuration("wifi.connect_timeout"),
		KeepaliveInterval: p.v.GetDuration("wifi.keepalive_interval"),
		MaxRetry:          p.v.GetInt("wifi.max_retry"),
		WatchInterval:     p.v.GetDuration("wifi.watch_interval"),
	}

	if cfg.Link.SSID == "" {
		return fmt.Errorf("wifi.ssid is required")
	}
	if cfg.Link.Interface == "" {
		cfg.Link.Interface = "wlan0"
	}
	if cfg.Link.ConnectTimeout == 0 {
		cfg.Link.ConnectTimeout = 30 * time.Second
	}
	if cfg.Link.KeepaliveInterval == 0 {
		cfg.Link.KeepaliveInterval = 2 * time.Second
	}
	if cfg.Link.MaxRetry == 0 {
		cfg.Link.MaxRetry = 5
	}
	if cfg.Link.MaxRetry < 0 {
		return fmt.Errorf("wifi.max_retry must be positive")
	}
	if cfg.Link.WatchInterval == 0 {
		cfg.Link.WatchInterval = time.Second
	}

	// An open network has no password.
	if password := p.expandEnv(p.v.GetString("wifi.password")); password != "" {
		buf, err := secret.NewFromString(password)
		if err != nil {
			return fmt.Errorf("wifi.password: %w", err)
		}
		cfg.Link.Password = buf
	}

	return nil
}

func (p *Parser) parseTarget(cfg *models.Config) error {
	cfg.Target = models.TargetConfig{
		MACAddress: p.expandEnv(p.v.GetString("target.mac_address")),
		Host:       p.expandEnv(p.v.GetString("target.host")),
		ProbePorts: p.v.GetIntSlice("target.probe_ports"),
	}

	if cfg.Target.MACAddress == "" {
		return fmt.Errorf("target.mac_address is required")
	}
	if _, err := wol.ParseMAC(cfg.Target.MACAddress); err != nil {
		return fmt.Errorf("target.mac_address: %w", err)
	}
	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if ip := net.ParseIP(cfg.Target.Host); ip == nil || ip.To4() == nil {
		return fmt.Errorf("target.host must be an IPv4 address, got %q", cfg.Target.Host)
	}
	if len(cfg.Target.ProbePorts) == 0 {
		cfg.Target.ProbePorts = []int{3389, 135, 445}
	}
	for _, port := range cfg.Target.ProbePorts {
		if port < 1 || port > 65535 {
			return fmt.Errorf("target.probe_ports: invalid port %d", port)
		}
	}

	password := p.expandEnv(p.v.GetString("target.password"))
	if password == "" {
		return fmt.Errorf("target.password is required")
	}
	buf, err := secret.NewFromString(password)
	if err != nil {
		return fmt.Errorf("target.password: %w", err)
	}

	cfg.Login.Host = cfg.Target.Host
	cfg.Login.MAC = cfg.Target.MACAddress
	cfg.Login.Password = buf
	return nil
}

func (p *Parser) parseLogin(cfg *models.Config) {
	cfg.Login.QuickProbeTimeout = p.v.GetDuration("login.quick_probe_timeout")
	cfg.Login.WakeBudget = p.v.GetDuration("login.wake_budget")
	cfg.Login.ProbesPerWake = p.v.GetInt("login.probes_per_wake")
	cfg.Login.ProbeTimeout = p.v.GetDuration("login.probe_timeout")
	cfg.Login.FinalProbeTimeout = p.v.GetDuration("login.final_probe_timeout")
	cfg.Login.QuickSettle = p.v.GetDuration("login.quick_settle")
	cfg.Login.BootSettle = p.v.GetDuration("login.boot_settle")
	cfg.Login.FocusSettle = p.v.GetDuration("login.focus_settle")
	cfg.Login.KeyDelay = p.v.GetDuration("login.key_delay")
	cfg.Login.AlwaysWake = p.v.GetBool("login.always_wake")

	if cfg.Login.QuickProbeTimeout == 0 {
		cfg.Login.QuickProbeTimeout = 600 * time.Millisecond
	}
	if cfg.Login.WakeBudget == 0 {
		cfg.Login.WakeBudget = 30 * time.Second
	}
	if cfg.Login.ProbesPerWake == 0 {
		cfg.Login.ProbesPerWake = 3
	}
	if cfg.Login.ProbeTimeout == 0 {
		cfg.Login.ProbeTimeout = time.Second
	}
	if cfg.Login.FinalProbeTimeout == 0 {
		cfg.Login.FinalProbeTimeout = 3 * time.Second
	}
	if cfg.Login.BootSettle == 0 {
		cfg.Login.BootSettle = 7 * time.Second
	}
	if cfg.Login.FocusSettle == 0 {
		cfg.Login.FocusSettle = 500 * time.Millisecond
	}
	if cfg.Login.KeyDelay == 0 {
		cfg.Login.KeyDelay = 50 * time.Millisecond
	}
}

func (p *Parser) parseKeyboard(cfg *models.Config) {
	cfg.Keyboard = models.KeyboardConfig{
		Device:          p.v.GetString("keyboard.device"),
		UDC:             p.v.GetString("keyboard.udc"),
		ReadyTimeout:    p.v.GetDuration("keyboard.ready_timeout"),
		KeyReadyTimeout: p.v.GetDuration("keyboard.key_ready_timeout"),
		PressHold:       p.v.GetDuration("keyboard.press_hold"),
		TypeHold:        p.v.GetDuration("keyboard.type_hold"),
	}

	if cfg.Keyboard.Device == "" {
		cfg.Keyboard.Device = "/dev/hidg0"
	}
	if cfg.Keyboard.ReadyTimeout == 0 {
		cfg.Keyboard.ReadyTimeout = 4 * time.Second
	}
	if cfg.Keyboard.KeyReadyTimeout == 0 {
		cfg.Keyboard.KeyReadyTimeout = 2 * time.Second
	}
	if cfg.Keyboard.PressHold == 0 {
		cfg.Keyboard.PressHold = 50 * time.Millisecond
	}
	if cfg.Keyboard.TypeHold == 0 {
		cfg.Keyboard.TypeHold = 30 * time.Millisecond
	}
}

func (p *Parser) parseTelegram(cfg *models.Config) error {
	if !p.v.IsSet("telegram") {
		return nil
	}

	cfg.Telegram = &models.TelegramConfig{
		BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
		ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
	}

	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is configured")
	}
	if cfg.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram is configured")
	}

	for _, kind := range p.v.GetStringSlice("telegram.notify") {
		k := models.FeedbackKind(kind)
		if !validFeedbackKinds[k] {
			return fmt.Errorf("telegram.notify: unknown event %q", kind)
		}
		cfg.Telegram.Notify = append(cfg.Telegram.Notify, k)
	}

	return nil
}

var validFeedbackKinds = map[models.FeedbackKind]bool{
	models.FeedbackReady:          true,
	models.FeedbackReadFailed:     true,
	models.FeedbackRejected:       true,
	models.FeedbackAccepted:       true,
	models.FeedbackHostOnline:     true,
	models.FeedbackWakeFailed:     true,
	models.FeedbackLoginCompleted: true,
	models.FeedbackLoginFailed:    true,
}

func (p *Parser) parseSSHShutdown(cfg *models.Config) error {
	if !p.v.IsSet("ssh_shutdown") {
		return nil
	}

	cfg.SSHShutdown = &models.SSHShutdownConfig{
		Host:           p.v.GetString("ssh_shutdown.host"),
		Port:           p.v.GetInt("ssh_shutdown.port"),
		Username:       p.v.GetString("ssh_shutdown.username"),
		KeyPath:        p.expandEnv(p.v.GetString("ssh_shutdown.key_path")),
		KnownHostsPath: p.expandEnv(p.v.GetString("ssh_shutdown.known_hosts")),
		Delay:          p.v.GetDuration("ssh_shutdown.delay"),
		OS:             p.v.GetString("ssh_shutdown.os"),
	}

	if cfg.SSHShutdown.Host == "" {
		cfg.SSHShutdown.Host = cfg.Target.Host
	}
	if cfg.SSHShutdown.Port == 0 {
		cfg.SSHShutdown.Port = 22
	}
	if cfg.SSHShutdown.Username == "" {
		return fmt.Errorf("ssh_shutdown.username is required when ssh_shutdown is configured")
	}
	if cfg.SSHShutdown.KeyPath == "" {
		return fmt.Errorf("ssh_shutdown.key_path is required when ssh_shutdown is configured")
	}
	if cfg.SSHShutdown.OS == "" {
		cfg.SSHShutdown.OS = "windows"
	}
	validOS := map[string]bool{"linux": true, "windows": true}
	if !validOS[cfg.SSHShutdown.OS] {
		return fmt.Errorf("ssh_shutdown.os must be one of: linux, windows")
	}

	return nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Link.SSID == "" {
		return fmt.Errorf("wifi.ssid is required")
	}

	if cfg.Target.MACAddress == "" {
		return fmt.Errorf("target.mac_address is required")
	}

	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}

	if cfg.Login.Password == nil || cfg.Login.Password.Len() == 0 {
		return fmt.Errorf("target.password is required")
	}

	if cfg.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}

	return nil
}
