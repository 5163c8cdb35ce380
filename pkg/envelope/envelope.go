package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/billm/baaaht/messenger/pkg/types"
)

// MaxMessageSize is the fixed payload capacity of an envelope in bytes
const MaxMessageSize = 100

// EncodedSize is the length of an envelope in its binary layout:
// tag, action, little-endian uint16 size, then the full data buffer.
const EncodedSize = 1 + 1 + 2 + MaxMessageSize

// Tag discriminates the envelope variants
type Tag uint8

const (
	// TagInternalAction carries a control action for the worker
	TagInternalAction Tag = iota
	// TagUserMessage carries a user payload
	TagUserMessage
)

// String returns the tag name
func (t Tag) String() string {
	switch t {
	case TagInternalAction:
		return "internal_action"
	case TagUserMessage:
		return "user_message"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Action is an internal control action
type Action uint8

const (
	// ActionNone does nothing; it only wakes the worker
	ActionNone Action = iota
)

// String returns the action name
func (a Action) String() string {
	if a == ActionNone {
		return "none"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Envelope is the fixed-size unit moved through a transport.
// It is a value type; every send produces its own copy.
type Envelope struct {
	Tag    Tag
	Action Action
	Size   int
	Data   [MaxMessageSize]byte
}

// BuildAction builds an internal action envelope
func BuildAction(action Action) Envelope {
	return Envelope{
		Tag:    TagInternalAction,
		Action: action,
	}
}

// BuildUserMessage copies size bytes of buf into a new user envelope.
// A nil buffer, a size outside 1..MaxMessageSize or a size larger than the
// buffer is a contract violation and panics.
func BuildUserMessage(buf []byte, size int) Envelope {
	if buf == nil {
		panic(types.Violation("envelope: buffer cannot be nil"))
	}
	if size <= 0 || size > MaxMessageSize {
		panic(types.Violation(fmt.Sprintf("envelope: size %d outside 1..%d", size, MaxMessageSize)))
	}
	if size > len(buf) {
		panic(types.Violation(fmt.Sprintf("envelope: size %d exceeds buffer length %d", size, len(buf))))
	}

	env := Envelope{
		Tag:  TagUserMessage,
		Size: size,
	}
	copy(env.Data[:], buf[:size])
	return env
}

// IsUser reports whether the envelope carries a user payload
func (e Envelope) IsUser() bool {
	return e.Tag == TagUserMessage
}

// Payload returns a copy of the user payload, or nil for actions
func (e Envelope) Payload() []byte {
	if e.Tag != TagUserMessage {
		return nil
	}
	out := make([]byte, e.Size)
	copy(out, e.Data[:e.Size])
	return out
}

// String returns a string representation of the envelope
func (e Envelope) String() string {
	if e.Tag == TagUserMessage {
		return fmt.Sprintf("Envelope{Tag: %s, Size: %d}", e.Tag, e.Size)
	}
	return fmt.Sprintf("Envelope{Tag: %s, Action: %s}", e.Tag, e.Action)
}

// MarshalBinary encodes the envelope into its fixed EncodedSize layout
func (e Envelope) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EncodedSize)
	if err := e.MarshalTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// MarshalTo writes the envelope into buf, which must be EncodedSize long
func (e Envelope) MarshalTo(buf []byte) error {
	if len(buf) != EncodedSize {
		return types.NewError(types.ErrCodeInvalid,
			fmt.Sprintf("envelope buffer must be %d bytes, got %d", EncodedSize, len(buf)))
	}
	if e.Size < 0 || e.Size > MaxMessageSize {
		return types.NewError(types.ErrCodeInvalid, fmt.Sprintf("envelope size %d out of range", e.Size))
	}
	buf[0] = byte(e.Tag)
	buf[1] = byte(e.Action)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(e.Size))
	copy(buf[4:], e.Data[:])
	return nil
}

// UnmarshalBinary decodes an envelope from its fixed layout
func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) != EncodedSize {
		return types.NewError(types.ErrCodeInvalid,
			fmt.Sprintf("envelope must be %d bytes, got %d", EncodedSize, len(data)))
	}

	tag := Tag(data[0])
	size := int(binary.LittleEndian.Uint16(data[2:4]))
	switch tag {
	case TagInternalAction:
		if size != 0 {
			return types.NewError(types.ErrCodeInvalid, "action envelope carries a payload size")
		}
	case TagUserMessage:
		if size <= 0 || size > MaxMessageSize {
			return types.NewError(types.ErrCodeInvalid, fmt.Sprintf("user envelope size %d out of range", size))
		}
	default:
		return types.NewError(types.ErrCodeInvalid, fmt.Sprintf("unknown envelope %s", tag))
	}

	e.Tag = tag
	e.Action = Action(data[1])
	e.Size = size
	copy(e.Data[:], data[4:])
	return nil
}
