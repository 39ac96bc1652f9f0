package models

import "time"

// Modifier bits of a boot keyboard report.
const (
	ModLeftCtrl  byte = 0x01
	ModLeftShift byte = 0x02
	ModLeftAlt   byte = 0x04
	ModLeftGUI   byte = 0x08
)

// Usage IDs of the keys pressed outside of typed text.
const (
	KeyEnter  byte = 0x28
	KeyEscape byte = 0x29
	KeyTab    byte = 0x2B
)

// KeyboardReport is a standard 8-byte boot keyboard report:
// modifier, reserved, and up to six simultaneous key codes.
type KeyboardReport [8]byte

// NewKeyReport returns a report pressing a single key with the given modifier.
func NewKeyReport(modifier, code byte) KeyboardReport {
	var r KeyboardReport
	r[0] = modifier
	r[2] = code
	return r
}

// ReleaseReport is the all-zero report that releases every key.
var ReleaseReport KeyboardReport

// KeyMapEntry maps a character to the key that produces it.
type KeyMapEntry struct {
	Modifier byte
	Code     byte // 0 means the character is not supported
}

// KeyboardConfig holds USB HID gadget configuration.
type KeyboardConfig struct {
	Device          string        // e.g. /dev/hidg0
	UDC             string        // UDC name under /sys/class/udc; empty picks the first one
	ReadyTimeout    time.Duration // initial wait before typing a string
	KeyReadyTimeout time.Duration // wait before each key press
	PressHold       time.Duration // hold time for single key presses
	TypeHold        time.Duration // hold time for each typed character
}

// TypingResult tracks one TypeString call.
type TypingResult struct {
	Length  int // characters in the input
	Typed   int
	Skipped int
	Delay   time.Duration // accumulated hold and inter-key delay
}
