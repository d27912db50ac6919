package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamRoundTrip(t *testing.T) {
	out := NewStream(nil)
	out.WriteUint8(7)
	out.WriteUint32(1<<20 + 3)
	out.WriteUint64(1 << 40)
	out.WriteBool(true)
	out.WriteFloat64(-2.5)
	out.WriteString("crate")

	in := NewStream(out.Bytes())
	u8, err := in.ReadUint8()
	assert.Nil(t, err)
	assert.Equal(t, uint8(7), u8)
	u32, err := in.ReadUint32()
	assert.Nil(t, err)
	assert.Equal(t, uint32(1<<20+3), u32)
	u64, err := in.ReadUint64()
	assert.Nil(t, err)
	assert.Equal(t, uint64(1<<40), u64)
	b, err := in.ReadBool()
	assert.Nil(t, err)
	assert.True(t, b)
	f, err := in.ReadFloat64()
	assert.Nil(t, err)
	assert.Equal(t, -2.5, f)
	s, err := in.ReadString()
	assert.Nil(t, err)
	assert.Equal(t, "crate", s)
	assert.Equal(t, 0, in.Remaining())
}

func TestStreamShortRead(t *testing.T) {
	in := NewStream([]byte{1, 2})
	_, err := in.ReadUint32()
	assert.ErrorIs(t, err, ErrStreamShort)
}

func TestStreamBadString(t *testing.T) {
	out := NewStream(nil)
	out.WriteString("way too short")
	in := NewStream(out.Bytes()[:4])
	_, err := in.ReadString()
	assert.ErrorIs(t, err, ErrStreamString)
}

func TestStreamStamp(t *testing.T) {
	s := NewStream(nil)
	assert.False(t, s.Stamped())
	s.MarkTimestamp()
	assert.True(t, s.Stamped())
	assert.Equal(t, 0, s.Len())
}
