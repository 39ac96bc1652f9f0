package models

import "time"

// SSHShutdownConfig holds the settings for powering the target off again.
type SSHShutdownConfig struct {
	Host           string // defaults to the target host
	Port           int
	Username       string
	PrivateKey     []byte // loaded from file path
	KeyPath        string // path to key file
	KnownHostsPath string // empty disables host key checking
	Delay          time.Duration
	OS             string // "windows" (default) or "linux"
}

// SSHResult holds the result of an SSH operation.
type SSHResult struct {
	CommandRun bool
	Command    string
	Output     string
	Error      error
}
