package keyboard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fgeck/tapwake/internal/models"
	"golang.org/x/sys/unix"
)

// DefaultUDCRoot is where the kernel lists USB device controllers.
const DefaultUDCRoot = "/sys/class/udc"

// Gadget is a Transport writing boot reports to a Linux USB HID gadget
// function (configfs hid.usbN, exposed as /dev/hidgN).
type Gadget struct {
	device  string
	udc     string
	udcRoot string

	mu sync.Mutex
	fd int
}

// NewGadget creates a transport for the given hidg device. An empty udc picks
// the first controller under DefaultUDCRoot.
func NewGadget(device, udc string) *Gadget {
	return NewGadgetWithRoot(device, udc, DefaultUDCRoot)
}

// NewGadgetWithRoot creates a transport reading controller state from udcRoot (for testing).
func NewGadgetWithRoot(device, udc, udcRoot string) *Gadget {
	if device == "" {
		device = "/dev/hidg0"
	}
	return &Gadget{device: device, udc: udc, udcRoot: udcRoot, fd: -1}
}

// Mounted reports whether the host has configured the gadget.
func (g *Gadget) Mounted() bool {
	name := g.udc
	if name == "" {
		entries, err := os.ReadDir(g.udcRoot)
		if err != nil || len(entries) == 0 {
			return false
		}
		name = entries[0].Name()
	}

	state, err := os.ReadFile(filepath.Join(g.udcRoot, name, "state"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(state)) == "configured"
}

// EndpointReady reports whether a report can be written without blocking.
func (g *Gadget) EndpointReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	fd, err := g.openLocked()
	if err != nil {
		return false
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 {
		return false
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		g.closeLocked()
		return false
	}
	return fds[0].Revents&unix.POLLOUT != 0
}

// SendReport writes one 8-byte report.
func (g *Gadget) SendReport(report models.KeyboardReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fd, err := g.openLocked()
	if err != nil {
		return err
	}

	n, err := unix.Write(fd, report[:])
	if err != nil {
		g.closeLocked()
		return fmt.Errorf("write %s: %w", g.device, err)
	}
	if n != len(report) {
		return fmt.Errorf("write %s: short write (%d of %d bytes)", g.device, n, len(report))
	}
	return nil
}

// Close releases the device.
func (g *Gadget) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
	return nil
}

func (g *Gadget) openLocked() (int, error) {
	if g.fd >= 0 {
		return g.fd, nil
	}
	fd, err := unix.Open(g.device, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", g.device, err)
	}
	g.fd = fd
	return fd, nil
}

func (g *Gadget) closeLocked() {
	if g.fd >= 0 {
		_ = unix.Close(g.fd)
		g.fd = -1
	}
}
