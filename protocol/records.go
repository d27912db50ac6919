package protocol

// Records is a batch of wire records. Batching keeps the transport write
// path on writev() and lets the engine hand a whole tick's output for one
// peer to the outbound queue in a single call. Converts directly to
// net.Buffers.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
