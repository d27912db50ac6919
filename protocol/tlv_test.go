package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', '2', 'B', 'B'}
	assert.Equal(t, correct2, buf, "basic TLV fail")

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))
	assert.Equal(t, uint8(67), buf[len(correct2)])
	assert.Equal(t, uint8(1), buf[len(correct2)+2])

	lit, body, buf := TakeAny(buf)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, _, err := TakeWary('B', buf)
	assert.Nil(t, err)
	assert.Equal(t, []byte{'B', 'B'}, body2)
}

func TestOpenCloseHeader(t *testing.T) {
	buf := []byte{}
	l, buf := OpenHeader(buf, 'A')
	text := "some text"
	buf = append(buf, text...)
	CloseHeader(buf, l)
	lit, body, rest := TakeAny(buf)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, text, string(body))
	assert.Equal(t, 0, len(rest))
}

func TestTinyRecord(t *testing.T) {
	body := "12"
	tiny := TinyRecord('X', []byte(body))
	assert.Equal(t, "212", string(tiny))
}

func TestSplit(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Record('C', []byte("construct")))
	buf.Write(Record('Z', []byte("serialize")))

	recs, err := Split(&buf)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(recs))
	assert.Equal(t, uint8('C'), Lit(recs[0]))
	assert.Equal(t, uint8('Z'), Lit(recs[1]))
	assert.Equal(t, 0, buf.Len())
}

func TestSplitIncomplete(t *testing.T) {
	whole := Record('C', make([]byte, 100))

	var buf bytes.Buffer
	buf.Write(whole[:50])
	recs, err := Split(&buf)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 0, len(recs))
	assert.Equal(t, 50, buf.Len())

	buf.Write(whole[50:])
	recs, err = Split(&buf)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(recs))
	assert.Equal(t, whole, recs[0])
}

func TestSplitGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x02, 0x03})
	recs, err := Split(&buf)
	assert.ErrorIs(t, err, ErrBadRecord)
	assert.Equal(t, 0, len(recs))
}
