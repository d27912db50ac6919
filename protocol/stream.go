package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrStreamShort = errors.New("stream: not enough data")
var ErrStreamString = errors.New("stream: bad string length")

// Stream is the payload cursor handed to application hooks. Send hooks
// append to it; receive hooks consume from it. The engine inspects
// Len() after a send hook returns: a construction or scope-change hook
// that wrote nothing cancels the command it was asked to fill, and a
// serialize hook that wrote nothing is skipped for this tick.
//
// The buffer behind a receive stream is owned by the engine and aliases
// the received record; hooks must copy out anything they keep.
type Stream struct {
	buf     []byte
	pos     int
	stamped bool
}

// NewStream wraps data for reading. Pass nil for a write stream.
func NewStream(data []byte) *Stream {
	return &Stream{buf: data}
}

// Bytes returns everything written (or the full wrapped buffer).
func (s *Stream) Bytes() []byte { return s.buf }

// Len is the number of bytes written so far.
func (s *Stream) Len() int { return len(s.buf) }

// Remaining is the number of unread bytes.
func (s *Stream) Remaining() int { return len(s.buf) - s.pos }

// MarkTimestamp asks the engine to stamp the outgoing message with the
// current time. Only construction and serialize messages carry stamps;
// the mark is ignored elsewhere.
func (s *Stream) MarkTimestamp() { s.stamped = true }

// Stamped reports whether MarkTimestamp was called.
func (s *Stream) Stamped() bool { return s.stamped }

func (s *Stream) WriteUint8(v uint8) {
	s.buf = append(s.buf, v)
}

func (s *Stream) WriteUint16(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

func (s *Stream) WriteUint32(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

func (s *Stream) WriteUint64(v uint64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, v)
}

func (s *Stream) WriteBool(v bool) {
	if v {
		s.WriteUint8(1)
	} else {
		s.WriteUint8(0)
	}
}

func (s *Stream) WriteFloat64(v float64) {
	s.WriteUint64(math.Float64bits(v))
}

// WriteString writes a uvarint length prefix followed by the bytes.
func (s *Stream) WriteString(v string) {
	s.buf = binary.AppendUvarint(s.buf, uint64(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *Stream) WriteBytes(v []byte) {
	s.buf = append(s.buf, v...)
}

func (s *Stream) ReadUint8() (v uint8, err error) {
	if s.Remaining() < 1 {
		return 0, ErrStreamShort
	}
	v = s.buf[s.pos]
	s.pos++
	return
}

func (s *Stream) ReadUint16() (v uint16, err error) {
	if s.Remaining() < 2 {
		return 0, ErrStreamShort
	}
	v = binary.LittleEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return
}

func (s *Stream) ReadUint32() (v uint32, err error) {
	if s.Remaining() < 4 {
		return 0, ErrStreamShort
	}
	v = binary.LittleEndian.Uint32(s.buf[s.pos:])
	s.pos += 4
	return
}

func (s *Stream) ReadUint64() (v uint64, err error) {
	if s.Remaining() < 8 {
		return 0, ErrStreamShort
	}
	v = binary.LittleEndian.Uint64(s.buf[s.pos:])
	s.pos += 8
	return
}

func (s *Stream) ReadBool() (v bool, err error) {
	b, err := s.ReadUint8()
	return b != 0, err
}

func (s *Stream) ReadFloat64() (v float64, err error) {
	u, err := s.ReadUint64()
	return math.Float64frombits(u), err
}

func (s *Stream) ReadString() (v string, err error) {
	n, sz := binary.Uvarint(s.buf[s.pos:])
	if sz <= 0 || n > uint64(s.Remaining()-sz) {
		return "", ErrStreamString
	}
	s.pos += sz
	v = string(s.buf[s.pos : s.pos+int(n)])
	s.pos += int(n)
	return
}

// ReadBytes consumes n raw bytes. The returned slice aliases the stream
// buffer; copy it if it outlives the dispatch.
func (s *Stream) ReadBytes(n int) (v []byte, err error) {
	if n < 0 || s.Remaining() < n {
		return nil, ErrStreamShort
	}
	v = s.buf[s.pos : s.pos+n]
	s.pos += n
	return
}
