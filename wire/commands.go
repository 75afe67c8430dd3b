package wire

// Command identifies the message carried by a frame. Requests and their
// responses use distinct identifiers; identifiers at 0x03xx are pushed by
// the panel without a preceding request.
type Command uint16

const (
	CmdPollAlive         Command = 0x0001
	CmdPollAliveResponse Command = 0x0002

	CmdConnectionRequest  Command = 0x0010
	CmdConnectionResponse Command = 0x0011
	CmdNormalDisconnect   Command = 0x0012

	CmdRequestSectionArrangement  Command = 0x0101
	CmdResponseSectionArrangement Command = 0x0102
	CmdRequestSectionStatus       Command = 0x0103
	CmdResponseSectionStatus      Command = 0x0104
	CmdRequestInputArrangement    Command = 0x0105
	CmdResponseInputArrangement   Command = 0x0106
	CmdRequestInputStatus         Command = 0x0107
	CmdResponseInputStatus        Command = 0x0108

	CmdArmSection            Command = 0x0201
	CmdArmSectionResponse    Command = 0x0202
	CmdDisarmSection         Command = 0x0203
	CmdDisarmSectionResponse Command = 0x0204
	CmdBypassInput           Command = 0x0205
	CmdBypassInputResponse   Command = 0x0206
	CmdUnbypassInput         Command = 0x0207
	CmdUnbypassInputResponse Command = 0x0208

	EventSectionStatusChanged Command = 0x0301
	EventInputStatusChanged   Command = 0x0302
	EventBypassChanged        Command = 0x0303
	EventAlarmRaised          Command = 0x0304
	EventReloadConfiguration  Command = 0x0305
)

var responses = map[Command]Command{
	CmdPollAlive:                 CmdPollAliveResponse,
	CmdConnectionRequest:         CmdConnectionResponse,
	CmdRequestSectionArrangement: CmdResponseSectionArrangement,
	CmdRequestSectionStatus:      CmdResponseSectionStatus,
	CmdRequestInputArrangement:   CmdResponseInputArrangement,
	CmdRequestInputStatus:        CmdResponseInputStatus,
	CmdArmSection:                CmdArmSectionResponse,
	CmdDisarmSection:             CmdDisarmSectionResponse,
	CmdBypassInput:               CmdBypassInputResponse,
	CmdUnbypassInput:             CmdUnbypassInputResponse,
}

// ResponseFor returns the command that completes a request. The second
// return is false for fire-and-forget commands such as the disconnect.
func ResponseFor(cmd Command) (Command, bool) {
	resp, ok := responses[cmd]
	return resp, ok
}

// IsEvent reports whether the panel pushes this command unsolicited.
func (c Command) IsEvent() bool {
	return c >= EventSectionStatusChanged && c <= EventReloadConfiguration
}

// SectionStatus is the armed state of a section as encoded on the wire.
type SectionStatus byte

const (
	SectionDisarmed   SectionStatus = 0x00
	SectionArmed      SectionStatus = 0x01
	SectionExitTimer  SectionStatus = 0x02
	SectionEntryTimer SectionStatus = 0x03
	SectionAlarm      SectionStatus = 0x04
)

func (s SectionStatus) String() string {
	switch s {
	case SectionDisarmed:
		return "disarmed"
	case SectionArmed:
		return "armed"
	case SectionExitTimer:
		return "exit-timer"
	case SectionEntryTimer:
		return "entry-timer"
	case SectionAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// InputCondition is the sensor condition of an input as encoded on the wire.
type InputCondition byte

const (
	InputClear   InputCondition = 0x00
	InputOpen    InputCondition = 0x01
	InputTamper  InputCondition = 0x02
	InputMasking InputCondition = 0x03
)

func (c InputCondition) String() string {
	switch c {
	case InputClear:
		return "clear"
	case InputOpen:
		return "open"
	case InputTamper:
		return "tamper"
	case InputMasking:
		return "masking"
	default:
		return "unknown"
	}
}

// Input flag bits reported alongside the condition.
const (
	InputFlagBypassed    byte = 1 << 0
	InputFlagDisabled    byte = 1 << 1
	InputFlagSupervision byte = 1 << 2
)

// Feature bits advertised in the connection response.
const (
	FeatureArmSection  uint16 = 1 << 0
	FeatureBypassInput uint16 = 1 << 1
)

// Result is the outcome byte of a write command response.
type Result byte

const (
	ResultOK              Result = 0x00
	ResultRejected        Result = 0x01
	ResultInvalidUserCode Result = 0x02
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultRejected:
		return "rejected"
	case ResultInvalidUserCode:
		return "invalid user code"
	default:
		return "unknown"
	}
}
