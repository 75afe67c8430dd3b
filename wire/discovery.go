package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Discovery datagrams are plaintext: the probe is broadcast before any key
// exchange, and announcements carry only identification.
const (
	// DiscoveryPort is the UDP port panels listen on for probes.
	DiscoveryPort = 25303

	discoveryVersion = 0x01
)

var discoveryMagic = []byte("UNII")

// EncodeProbe builds the broadcast discovery probe.
func EncodeProbe() []byte {
	return append(append([]byte(nil), discoveryMagic...), discoveryVersion)
}

// IsProbe reports whether a datagram is a discovery probe this protocol
// version understands.
func IsProbe(p []byte) bool {
	return len(p) == len(discoveryMagic)+1 &&
		bytes.Equal(p[:len(discoveryMagic)], discoveryMagic) &&
		p[len(discoveryMagic)] == discoveryVersion
}

// Announcement is a panel's reply to a discovery probe.
type Announcement struct {
	TCPPort         uint16
	SerialNumber    string
	Model           string
	FirmwareVersion string
}

func (a Announcement) Encode() []byte {
	buf := append(append([]byte(nil), discoveryMagic...), discoveryVersion)
	buf = binary.BigEndian.AppendUint16(buf, a.TCPPort)
	for _, s := range []string{a.SerialNumber, a.Model, a.FirmwareVersion} {
		buf = appendString(buf, s)
	}
	return buf
}

func ParseAnnouncement(p []byte) (Announcement, error) {
	var a Announcement
	header := len(discoveryMagic) + 1
	if len(p) < header+2 || !bytes.Equal(p[:len(discoveryMagic)], discoveryMagic) {
		return a, fmt.Errorf("%w: not a discovery announcement", ErrFrameCorrupt)
	}
	if p[len(discoveryMagic)] != discoveryVersion {
		return a, fmt.Errorf("%w: unsupported discovery version %d", ErrFrameCorrupt, p[len(discoveryMagic)])
	}
	a.TCPPort = binary.BigEndian.Uint16(p[header:])
	p = p[header+2:]
	var err error
	for _, dst := range []*string{&a.SerialNumber, &a.Model, &a.FirmwareVersion} {
		if *dst, p, err = readString(p); err != nil {
			return a, err
		}
	}
	return a, nil
}
