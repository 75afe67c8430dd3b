package unii

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/j-keck/arping"
	"github.com/unii-security/go-unii/wire"
)

// PanelInfo identifies a panel that answered a discovery probe.
type PanelInfo struct {
	Host            string
	Port            uint16
	SerialNumber    string
	Model           string
	FirmwareVersion string
}

func (p PanelInfo) String() string {
	return fmt.Sprintf("%s %s (firmware %s) at %s", p.Model, p.SerialNumber, p.FirmwareVersion, net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
}

// Discover broadcasts a probe on the local network and collects panel
// announcements until the timeout elapses. No state is kept between
// probes; duplicates from multi-homed panels are folded by serial number.
func Discover(ctx context.Context, timeout time.Duration) ([]PanelInfo, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: wire.DiscoveryPort}
	if _, err := conn.WriteToUDP(wire.EncodeProbe(), dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var panels []PanelInfo
	seen := map[string]bool{}
	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return panels, err
		}
		_ = conn.SetReadDeadline(deadline)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				return panels, nil
			}
			return panels, err
		}
		ann, err := wire.ParseAnnouncement(buf[:n])
		if err != nil {
			log.Debug("ignoring malformed discovery reply", "from", from, "err", err)
			continue
		}
		if seen[ann.SerialNumber] {
			continue
		}
		seen[ann.SerialNumber] = true
		panels = append(panels, PanelInfo{
			Host:            from.IP.String(),
			Port:            ann.TCPPort,
			SerialNumber:    ann.SerialNumber,
			Model:           ann.Model,
			FirmwareVersion: ann.FirmwareVersion,
		})
	}
}

// MacAddress resolves a panel's hardware address over ARP, for firmwares
// that omit it from the equipment information. Needs cap_net_raw.
func MacAddress(ip string) (string, error) {
	hw, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}
