package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Payload encodings. Multi-byte integers are big endian, strings are
// length-prefixed with a single byte. Truncated payloads decode to
// ErrFrameCorrupt like any other integrity violation.

const NonceSize = 8

// Client identification sent in the connection request, mirroring the
// software type/version bytes of the vendor tooling.
const (
	clientType    = 0x02
	clientVersion = 0x10
)

// ConnectionRequest opens the authenticated session. The nonce must be
// echoed back by the panel inside the encrypted response, proving both
// sides hold the same shared key.
type ConnectionRequest struct {
	Nonce [NonceSize]byte
}

func (r ConnectionRequest) Encode() []byte {
	buf := make([]byte, 0, NonceSize+2)
	buf = append(buf, r.Nonce[:]...)
	buf = append(buf, clientType, clientVersion)
	return buf
}

func ParseConnectionRequest(p []byte) (ConnectionRequest, error) {
	var r ConnectionRequest
	if len(p) < NonceSize+2 {
		return r, fmt.Errorf("%w: connection request too short", ErrFrameCorrupt)
	}
	copy(r.Nonce[:], p)
	return r, nil
}

// ConnectionResponse carries the negotiated session parameters and the
// panel's equipment information.
type ConnectionResponse struct {
	Nonce             [NonceSize]byte
	HeartbeatInterval uint16 // seconds, 0 means firmware default
	Features          uint16
	Mac               net.HardwareAddr // 6 bytes, may be all zero on old firmware
	DeviceName        string
	Model             string
	SerialNumber      string
	FirmwareVersion   string
}

func (r ConnectionResponse) Encode() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, r.Nonce[:]...)
	buf = binary.BigEndian.AppendUint16(buf, r.HeartbeatInterval)
	buf = binary.BigEndian.AppendUint16(buf, r.Features)
	mac := make([]byte, 6)
	copy(mac, r.Mac)
	buf = append(buf, mac...)
	for _, s := range []string{r.DeviceName, r.Model, r.SerialNumber, r.FirmwareVersion} {
		buf = appendString(buf, s)
	}
	return buf
}

func ParseConnectionResponse(p []byte) (ConnectionResponse, error) {
	var r ConnectionResponse
	if len(p) < NonceSize+2+2+6 {
		return r, fmt.Errorf("%w: connection response too short", ErrFrameCorrupt)
	}
	copy(r.Nonce[:], p)
	p = p[NonceSize:]
	r.HeartbeatInterval = binary.BigEndian.Uint16(p)
	r.Features = binary.BigEndian.Uint16(p[2:])
	r.Mac = net.HardwareAddr(append([]byte(nil), p[4:10]...))
	p = p[10:]
	var err error
	for _, dst := range []*string{&r.DeviceName, &r.Model, &r.SerialNumber, &r.FirmwareVersion} {
		if *dst, p, err = readString(p); err != nil {
			return r, err
		}
	}
	return r, nil
}

// SectionRecord describes one section in an arrangement response.
type SectionRecord struct {
	ID   uint16
	Name string
}

// SectionStatusRecord is one entry of a section status response or the
// payload of a section status changed event.
type SectionStatusRecord struct {
	ID     uint16
	Status SectionStatus
}

// InputRecord describes one input in an arrangement response.
type InputRecord struct {
	ID   uint16
	Name string
}

// InputStatusRecord is one entry of an input status response or the
// payload of an input status changed event.
type InputStatusRecord struct {
	ID        uint16
	Condition InputCondition
	Flags     byte
}

func (r InputStatusRecord) Bypassed() bool    { return r.Flags&InputFlagBypassed != 0 }
func (r InputStatusRecord) Disabled() bool    { return r.Flags&InputFlagDisabled != 0 }
func (r InputStatusRecord) Supervision() bool { return r.Flags&InputFlagSupervision != 0 }

func EncodeSectionArrangement(recs []SectionRecord) []byte {
	buf := []byte{byte(len(recs))}
	for _, rec := range recs {
		buf = binary.BigEndian.AppendUint16(buf, rec.ID)
		buf = appendString(buf, rec.Name)
	}
	return buf
}

func ParseSectionArrangement(p []byte) ([]SectionRecord, error) {
	n, p, err := readCount(p)
	if err != nil {
		return nil, err
	}
	recs := make([]SectionRecord, 0, n)
	for i := 0; i < n; i++ {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: section arrangement truncated", ErrFrameCorrupt)
		}
		rec := SectionRecord{ID: binary.BigEndian.Uint16(p)}
		if rec.Name, p, err = readString(p[2:]); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func EncodeSectionStatuses(recs []SectionStatusRecord) []byte {
	buf := []byte{byte(len(recs))}
	for _, rec := range recs {
		buf = binary.BigEndian.AppendUint16(buf, rec.ID)
		buf = append(buf, byte(rec.Status))
	}
	return buf
}

func ParseSectionStatuses(p []byte) ([]SectionStatusRecord, error) {
	n, p, err := readCount(p)
	if err != nil {
		return nil, err
	}
	if len(p) < n*3 {
		return nil, fmt.Errorf("%w: section status truncated", ErrFrameCorrupt)
	}
	recs := make([]SectionStatusRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, SectionStatusRecord{
			ID:     binary.BigEndian.Uint16(p[i*3:]),
			Status: SectionStatus(p[i*3+2]),
		})
	}
	return recs, nil
}

func EncodeInputArrangement(recs []InputRecord) []byte {
	buf := []byte{byte(len(recs))}
	for _, rec := range recs {
		buf = binary.BigEndian.AppendUint16(buf, rec.ID)
		buf = appendString(buf, rec.Name)
	}
	return buf
}

func ParseInputArrangement(p []byte) ([]InputRecord, error) {
	n, p, err := readCount(p)
	if err != nil {
		return nil, err
	}
	recs := make([]InputRecord, 0, n)
	for i := 0; i < n; i++ {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: input arrangement truncated", ErrFrameCorrupt)
		}
		rec := InputRecord{ID: binary.BigEndian.Uint16(p)}
		if rec.Name, p, err = readString(p[2:]); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func EncodeInputStatuses(recs []InputStatusRecord) []byte {
	buf := []byte{byte(len(recs))}
	for _, rec := range recs {
		buf = binary.BigEndian.AppendUint16(buf, rec.ID)
		buf = append(buf, byte(rec.Condition), rec.Flags)
	}
	return buf
}

func ParseInputStatuses(p []byte) ([]InputStatusRecord, error) {
	n, p, err := readCount(p)
	if err != nil {
		return nil, err
	}
	if len(p) < n*4 {
		return nil, fmt.Errorf("%w: input status truncated", ErrFrameCorrupt)
	}
	recs := make([]InputStatusRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, InputStatusRecord{
			ID:        binary.BigEndian.Uint16(p[i*4:]),
			Condition: InputCondition(p[i*4+2]),
			Flags:     p[i*4+3],
		})
	}
	return recs, nil
}

// WriteCommand is the payload of arm, disarm, bypass and unbypass
// requests: the target entity and the operator user code.
type WriteCommand struct {
	TargetID uint16
	UserCode string
}

func (c WriteCommand) Encode() []byte {
	buf := binary.BigEndian.AppendUint16(nil, c.TargetID)
	return appendString(buf, c.UserCode)
}

func ParseWriteCommand(p []byte) (WriteCommand, error) {
	var c WriteCommand
	if len(p) < 2 {
		return c, fmt.Errorf("%w: write command truncated", ErrFrameCorrupt)
	}
	c.TargetID = binary.BigEndian.Uint16(p)
	var err error
	c.UserCode, _, err = readString(p[2:])
	return c, err
}

// WriteResponse is the payload of a write command response.
type WriteResponse struct {
	TargetID uint16
	Result   Result
}

func (r WriteResponse) Encode() []byte {
	buf := binary.BigEndian.AppendUint16(nil, r.TargetID)
	return append(buf, byte(r.Result))
}

func ParseWriteResponse(p []byte) (WriteResponse, error) {
	var r WriteResponse
	if len(p) < 3 {
		return r, fmt.Errorf("%w: write response truncated", ErrFrameCorrupt)
	}
	r.TargetID = binary.BigEndian.Uint16(p)
	r.Result = Result(p[2])
	return r, nil
}

// SectionStatusChanged event payload.
func EncodeSectionStatusChanged(rec SectionStatusRecord) []byte {
	buf := binary.BigEndian.AppendUint16(nil, rec.ID)
	return append(buf, byte(rec.Status))
}

func ParseSectionStatusChanged(p []byte) (SectionStatusRecord, error) {
	if len(p) < 3 {
		return SectionStatusRecord{}, fmt.Errorf("%w: section event truncated", ErrFrameCorrupt)
	}
	return SectionStatusRecord{
		ID:     binary.BigEndian.Uint16(p),
		Status: SectionStatus(p[2]),
	}, nil
}

// InputStatusChanged event payload.
func EncodeInputStatusChanged(rec InputStatusRecord) []byte {
	buf := binary.BigEndian.AppendUint16(nil, rec.ID)
	return append(buf, byte(rec.Condition), rec.Flags)
}

func ParseInputStatusChanged(p []byte) (InputStatusRecord, error) {
	if len(p) < 4 {
		return InputStatusRecord{}, fmt.Errorf("%w: input event truncated", ErrFrameCorrupt)
	}
	return InputStatusRecord{
		ID:        binary.BigEndian.Uint16(p),
		Condition: InputCondition(p[2]),
		Flags:     p[3],
	}, nil
}

// BypassChanged event payload.
type BypassChange struct {
	InputID  uint16
	Bypassed bool
}

func (c BypassChange) Encode() []byte {
	buf := binary.BigEndian.AppendUint16(nil, c.InputID)
	var b byte
	if c.Bypassed {
		b = 0x01
	}
	return append(buf, b)
}

func ParseBypassChanged(p []byte) (BypassChange, error) {
	if len(p) < 3 {
		return BypassChange{}, fmt.Errorf("%w: bypass event truncated", ErrFrameCorrupt)
	}
	return BypassChange{
		InputID:  binary.BigEndian.Uint16(p),
		Bypassed: p[2] != 0,
	}, nil
}

// AlarmRaised event payload.
type Alarm struct {
	SectionID uint16
	Type      byte
}

func (a Alarm) Encode() []byte {
	buf := binary.BigEndian.AppendUint16(nil, a.SectionID)
	return append(buf, a.Type)
}

func ParseAlarmRaised(p []byte) (Alarm, error) {
	if len(p) < 3 {
		return Alarm{}, fmt.Errorf("%w: alarm event truncated", ErrFrameCorrupt)
	}
	return Alarm{
		SectionID: binary.BigEndian.Uint16(p),
		Type:      p[2],
	}, nil
}

func appendString(buf []byte, s string) []byte {
	if len(s) > 0xff {
		s = s[:0xff]
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func readString(p []byte) (string, []byte, error) {
	if len(p) < 1 {
		return "", nil, fmt.Errorf("%w: string length missing", ErrFrameCorrupt)
	}
	n := int(p[0])
	if len(p) < 1+n {
		return "", nil, fmt.Errorf("%w: string truncated", ErrFrameCorrupt)
	}
	return string(p[1 : 1+n]), p[1+n:], nil
}

func readCount(p []byte) (int, []byte, error) {
	if len(p) < 1 {
		return 0, nil, fmt.Errorf("%w: record count missing", ErrFrameCorrupt)
	}
	return int(p[0]), p[1:], nil
}
