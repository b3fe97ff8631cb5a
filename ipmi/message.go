package ipmi

// Completion codes used directly by the core (transport-synthesized
// responses and protocol-level checks). Sensor/SDR-specific codes are not
// listed here — that table belongs to the SDR/sensor collaborator.
const (
	CCSuccess                      uint8 = 0x00
	CCInvalidCmd                   uint8 = 0xC1
	CCRequestedDataLengthExceeded  uint8 = 0xCA
	CCTimeout                      uint8 = 0xC3
	CCUnspecified                  uint8 = 0xFF
)

var ccNames = map[uint8]string{
	CCSuccess:                     "success",
	CCInvalidCmd:                  "invalid command",
	CCRequestedDataLengthExceeded: "requested data length exceeded",
	CCTimeout:                     "command timeout",
	CCUnspecified:                 "unspecified error",
}

// CompletionCode renders a completion byte for logging. Never used for
// control flow — callers compare the raw byte against CCSuccess etc.
type CompletionCode uint8

func (c CompletionCode) String() string {
	if name, ok := ccNames[uint8(c)]; ok {
		return name
	}
	return "device-specific completion code"
}

// NetFn is the 6-bit IPMI network function, held unshifted (not packed
// together with the LUN). Its own low bit distinguishes request (even) from
// response (odd), keeping the request/response pair symmetric
// (ResponseNetFn(n) == n|1 regardless of which one n already is).
type NetFn uint8

// ResponseNetFn returns the response netfn for a request netfn (sets the
// low bit), matching the timeout-synthesis rule in §4.1.
func ResponseNetFn(n NetFn) NetFn {
	return n | 1
}

// IsResponse reports whether an unshifted netfn value's low bit marks it as
// a response.
func IsResponse(netfnByte uint8) bool {
	return netfnByte&1 == 1
}

// Message is the wire-level request/response payload: network function,
// command, and opaque data. For responses, Data[0] is always the
// completion code.
type Message struct {
	NetFn NetFn
	Cmd   uint8
	Data  []byte
}

// CompletionCode returns the response's completion code. Only meaningful
// when the message is a response (IsResponse(byte(m.NetFn)) == true) and
// Data is non-empty; callers that have not checked message length first
// will get CCUnspecified back.
func (m Message) CompletionCode() uint8 {
	if len(m.Data) == 0 {
		return CCUnspecified
	}
	return m.Data[0]
}

// Clone returns a deep copy of the message, used when a pending command
// keeps a copy of the original request alongside the live record (per the
// data model: "request message copy").
func (m Message) Clone() Message {
	data := make([]byte, len(m.Data))
	copy(data, m.Data)
	return Message{NetFn: m.NetFn, Cmd: m.Cmd, Data: data}
}
