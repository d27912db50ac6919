package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipUint64(t *testing.T) {
	cases := []uint64{0, 1, 0xff, 0x100, 0xffff, 1 << 32, ^uint64(0)}
	for _, v := range cases {
		assert.Equal(t, v, UnzipUint64(ZipUint64(v)))
	}
	assert.Equal(t, 0, len(ZipUint64(0)))
	assert.Equal(t, 1, len(ZipUint64(0xff)))
	assert.Equal(t, 8, len(ZipUint64(^uint64(0))))
}

func TestZipInt64(t *testing.T) {
	cases := []int64{0, 1, -1, 127, -128, 1 << 40, -(1 << 40)}
	for _, v := range cases {
		assert.Equal(t, v, UnzipInt64(ZipInt64(v)))
	}
}

func TestUint32Pair(t *testing.T) {
	a, b := Uint32Unpair(Uint32Pair(12, 34))
	assert.Equal(t, uint32(12), a)
	assert.Equal(t, uint32(34), b)
}
