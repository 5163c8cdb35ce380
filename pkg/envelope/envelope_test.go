package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billm/baaaht/messenger/pkg/types"
)

func TestBuildUserMessageRoundTrip(t *testing.T) {
	for size := 1; size <= MaxMessageSize; size++ {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = byte(size + i)
		}

		env := BuildUserMessage(buf, size)
		if env.Tag != TagUserMessage {
			t.Fatalf("size %d: expected user tag, got %s", size, env.Tag)
		}
		if env.Size != size {
			t.Fatalf("size %d: got size %d", size, env.Size)
		}
		if !bytes.Equal(env.Payload(), buf) {
			t.Fatalf("size %d: payload mismatch", size)
		}
	}
}

func TestBuildUserMessageCopiesBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	env := BuildUserMessage(buf, 3)

	buf[0] = 0xFF
	assert.Equal(t, []byte{1, 2, 3}, env.Payload())

	payload := env.Payload()
	payload[1] = 0xEE
	assert.Equal(t, []byte{1, 2, 3}, env.Payload(), "Payload must hand out a copy")
}

func TestBuildUserMessageViolations(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		size int
	}{
		{name: "nil buffer", buf: nil, size: 1},
		{name: "zero size", buf: make([]byte, 10), size: 0},
		{name: "negative size", buf: make([]byte, 10), size: -1},
		{name: "above max", buf: make([]byte, MaxMessageSize+1), size: MaxMessageSize + 1},
		{name: "larger than buffer", buf: make([]byte, 4), size: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r, "expected a panic")
				assert.True(t, types.IsViolation(r), "expected contract violation, got %v", r)
			}()
			BuildUserMessage(tt.buf, tt.size)
		})
	}
}

func TestBuildAction(t *testing.T) {
	env := BuildAction(ActionNone)

	assert.Equal(t, TagInternalAction, env.Tag)
	assert.Equal(t, ActionNone, env.Action)
	assert.False(t, env.IsUser())
	assert.Nil(t, env.Payload())
	assert.Equal(t, "Envelope{Tag: internal_action, Action: none}", env.String())
}

func TestBinaryLayout(t *testing.T) {
	env := BuildUserMessage([]byte("hello"), 5)

	data, err := env.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, EncodedSize)
	assert.Equal(t, byte(TagUserMessage), data[0])
	assert.Equal(t, []byte{5, 0}, data[2:4])
	assert.Equal(t, []byte("hello"), data[4:9])

	var decoded Envelope
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, env, decoded)

	action, err := BuildAction(ActionNone).MarshalBinary()
	require.NoError(t, err)
	var decodedAction Envelope
	require.NoError(t, decodedAction.UnmarshalBinary(action))
	assert.Equal(t, BuildAction(ActionNone), decodedAction)
}

func TestUnmarshalBinaryRejectsBadInput(t *testing.T) {
	valid, err := BuildUserMessage([]byte{9}, 1).MarshalBinary()
	require.NoError(t, err)

	mutate := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "short", data: valid[:EncodedSize-1]},
		{name: "unknown tag", data: mutate(func(b []byte) { b[0] = 7 })},
		{name: "zero user size", data: mutate(func(b []byte) { b[2], b[3] = 0, 0 })},
		{name: "oversized user", data: mutate(func(b []byte) { b[2], b[3] = MaxMessageSize+1, 0 })},
		{name: "action with size", data: mutate(func(b []byte) { b[0] = byte(TagInternalAction) })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			err := env.UnmarshalBinary(tt.data)
			require.Error(t, err)
			assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid))
		})
	}
}

func TestMarshalBinaryRejectsCorruptSize(t *testing.T) {
	env := Envelope{Tag: TagUserMessage, Size: MaxMessageSize + 1}
	_, err := env.MarshalBinary()
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid))
}
