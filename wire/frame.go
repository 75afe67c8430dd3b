package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFrameCorrupt is returned when a frame fails its integrity checks. A
// corrupted stream cannot be resynchronized frame by frame, so callers must
// treat this as a transport-level failure and reconnect.
var ErrFrameCorrupt = errors.New("frame corrupt")

// Frame is one logical message on the wire: a command or event identifier
// and its plaintext payload.
type Frame struct {
	Command Command
	Payload []byte
}

// Wire layout, big endian:
//
//	[length u16][command u16][payload...][crc u16]
//
// length counts the command, the plaintext payload, and the checksum. The
// payload travels encrypted as a whole, padded to the cipher block size;
// the padded size is derived from length on receive. The checksum is
// CRC-16-CCITT over the plaintext payload.
const (
	lenSize   = 2
	cmdSize   = 2
	crcSize   = 2
	minLength = cmdSize + crcSize

	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 0xffff - minLength
)

const (
	crcPoly uint16 = 0x1021
	crcInit uint16 = 0xffff
)

// Checksum computes the CRC-16-CCITT of a plaintext payload.
func Checksum(data []byte) uint16 {
	crc := crcInit
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Encode seals a frame for the wire, encrypting the payload with the
// shared key.
func Encode(f Frame, key []byte) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d exceeds %d bytes", ErrFrameCorrupt, len(f.Payload), MaxPayload)
	}
	sealed, err := Encrypt(f.Payload, key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, lenSize+cmdSize+len(sealed)+crcSize)
	buf = binary.BigEndian.AppendUint16(buf, uint16(minLength+len(f.Payload)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(f.Command))
	buf = append(buf, sealed...)
	buf = binary.BigEndian.AppendUint16(buf, Checksum(f.Payload))
	return buf, nil
}

// Scanner accumulates an arbitrary byte stream and yields complete frames.
// Partial frames are buffered until the rest arrives; bytes beyond a
// complete frame are kept for the next one.
type Scanner struct {
	key []byte
	buf []byte
}

// NewScanner returns a Scanner decrypting with the given shared key.
func NewScanner(key []byte) *Scanner {
	return &Scanner{key: key}
}

// Feed appends stream bytes and returns every frame completed by them, in
// arrival order. On ErrFrameCorrupt or ErrCrypto the stream is unusable
// and the connection must be dropped.
func (s *Scanner) Feed(p []byte) ([]Frame, error) {
	s.buf = append(s.buf, p...)
	var frames []Frame
	for {
		f, n, err := s.next()
		if err != nil {
			return frames, err
		}
		if n == 0 {
			return frames, nil
		}
		s.buf = s.buf[n:]
		frames = append(frames, f)
	}
}

// Pending reports how many buffered bytes await a complete frame.
func (s *Scanner) Pending() int { return len(s.buf) }

func (s *Scanner) next() (Frame, int, error) {
	if len(s.buf) < lenSize {
		return Frame{}, 0, nil
	}
	length := int(binary.BigEndian.Uint16(s.buf))
	if length < minLength {
		return Frame{}, 0, fmt.Errorf("%w: declared length %d below minimum", ErrFrameCorrupt, length)
	}
	payloadLen := length - minLength
	sealedLen := paddedLen(payloadLen)
	total := lenSize + cmdSize + sealedLen + crcSize
	if len(s.buf) < total {
		return Frame{}, 0, nil
	}
	cmd := Command(binary.BigEndian.Uint16(s.buf[lenSize:]))
	sealed := s.buf[lenSize+cmdSize : lenSize+cmdSize+sealedLen]
	crc := binary.BigEndian.Uint16(s.buf[total-crcSize:])
	plain, err := Decrypt(sealed, s.key)
	if err != nil {
		return Frame{}, 0, err
	}
	payload := plain[:payloadLen]
	if Checksum(payload) != crc {
		return Frame{}, 0, fmt.Errorf("%w: checksum mismatch on command 0x%04x", ErrFrameCorrupt, uint16(cmd))
	}
	return Frame{Command: cmd, Payload: payload}, total, nil
}
