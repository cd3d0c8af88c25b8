package provision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// apConnection is the NetworkManager profile used for the access point.
const apConnection = "smartmeter-ap"

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMStation drives NetworkManager through nmcli. NetworkManager keeps the
// Wi-Fi credentials, so "stored credentials" are its saved profiles.
type NMStation struct {
	iface  string
	run    runFunc
	logger *slog.Logger
}

// NewNMStation creates a station for the given wireless interface.
func NewNMStation(iface string, logger *slog.Logger) *NMStation {
	if logger == nil {
		logger = slog.Default()
	}
	return &NMStation{iface: iface, run: execRun, logger: logger}
}

func (s *NMStation) nmcli(ctx context.Context, args ...string) error {
	out, err := s.run(ctx, "nmcli", args...)
	if err != nil {
		verb := subcommand(args)
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("nmcli %s: %w", verb, err)
		}
		return fmt.Errorf("nmcli %s: %w: %s", verb, err, msg)
	}
	return nil
}

// subcommand names the object and verb for errors, e.g. "device connect".
// Later arguments may carry a password and are left out.
func subcommand(args []string) string {
	if len(args) >= 2 && args[0] == "--wait" {
		args = args[2:]
	}
	if len(args) > 2 {
		args = args[:2]
	}
	return strings.Join(args, " ")
}

// waitArgs converts the context deadline into nmcli's --wait seconds.
func waitArgs(ctx context.Context) []string {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	secs := int(math.Ceil(time.Until(deadline).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return []string{"--wait", strconv.Itoa(secs)}
}

// AutoConnect activates the interface with whichever saved profile matches.
func (s *NMStation) AutoConnect(ctx context.Context) error {
	args := append(waitArgs(ctx), "device", "connect", s.iface)
	return s.nmcli(ctx, args...)
}

// Join connects to creds.SSID; NetworkManager saves the profile on success.
func (s *NMStation) Join(ctx context.Context, creds Credentials) error {
	if creds.SSID == "" {
		return fmt.Errorf("join: empty ssid")
	}
	// The access point holds the radio; release it first.
	if err := s.StopAccessPoint(); err != nil {
		s.logger.Debug("release access point", "error", err)
	}

	args := append(waitArgs(ctx), "device", "wifi", "connect", creds.SSID)
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	args = append(args, "ifname", s.iface)
	if err := s.nmcli(ctx, args...); err != nil {
		// Put the access point back so the operator can retry.
		if apErr := s.StartAccessPoint(""); apErr != nil {
			s.logger.Warn("restart access point failed", "error", apErr)
		}
		return err
	}
	return nil
}

// StartAccessPoint creates (or re-activates) an open access point with IPv4
// sharing so clients get an address from NetworkManager. An empty name
// re-activates the existing profile.
func (s *NMStation) StartAccessPoint(name string) error {
	ctx := context.Background()
	if name != "" {
		// A stale profile from a previous boot is replaced.
		s.nmcli(ctx, "connection", "delete", apConnection)
		err := s.nmcli(ctx, "connection", "add",
			"type", "wifi",
			"ifname", s.iface,
			"con-name", apConnection,
			"autoconnect", "no",
			"ssid", name,
			"802-11-wireless.mode", "ap",
			"ipv4.method", "shared",
		)
		if err != nil {
			return err
		}
	}
	return s.nmcli(ctx, "connection", "up", apConnection)
}

// StopAccessPoint deactivates the access point profile.
func (s *NMStation) StopAccessPoint() error {
	return s.nmcli(context.Background(), "connection", "down", apConnection)
}

// Address returns the first IPv4 address of the interface.
func (s *NMStation) Address() string {
	ifi, err := net.InterfaceByName(s.iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return ""
}
