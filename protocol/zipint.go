package protocol

// ZipUint64 packs an uint64 into the shortest little-endian byte string.
// Zero packs to an empty string.
func ZipUint64(v uint64) []byte {
	buf := [8]byte{}
	i := 0
	for v > 0 {
		buf[i] = uint8(v)
		v >>= 8
		i++
	}
	return buf[0:i]
}

func UnzipUint64(zip []byte) (v uint64) {
	for i := len(zip) - 1; i >= 0; i-- {
		v <<= 8
		v |= uint64(zip[i])
	}
	return
}

func ZigZagInt64(i int64) uint64 {
	return uint64(i*2) ^ uint64(i>>63)
}

func ZagZigUint64(u uint64) int64 {
	half := u >> 1
	mask := -(u & 1)
	return int64(half ^ mask)
}

func ZipInt64(v int64) []byte {
	return ZipUint64(ZigZagInt64(v))
}

func UnzipInt64(zip []byte) int64 {
	return ZagZigUint64(UnzipUint64(zip))
}

// Uint32Pair packs two uint32 into one uint64, handy for composite map
// keys. Uint32Unpair reverses it.
func Uint32Pair(a, b uint32) (x uint64) {
	return uint64(a) | (uint64(b) << 32)
}

func Uint32Unpair(x uint64) (a, b uint32) {
	return uint32(x), uint32(x >> 32)
}
