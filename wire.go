package replika

import (
	"errors"
	"time"

	"github.com/rollforge/replika/protocol"
)

// The five message kinds, used as the outer TLV record type. Bodies are
// inner records followed by the opaque hook payload:
//
//	C: [T ts] I payload      construction
//	D: I payload             destruction
//	S: I F payload           scope change (F is one byte, 0 or 1)
//	Z: [T ts] I [Q seq] payload  serialize
//	W: payload               download complete
//
// T carries a zipped millisecond timestamp and appears only when the
// send hook marked the stream. Q carries the per-object sequence number
// and appears only under the sequenced-serialize option.
const (
	KindConstruction     byte = 'C'
	KindDestruction      byte = 'D'
	KindScopeChange      byte = 'S'
	KindSerialize        byte = 'Z'
	KindDownloadComplete byte = 'W'
)

var ErrBadMessage = errors.New("bad replication message")
var ErrUnknownKind = errors.New("unknown message kind")

func zipTime(t time.Time) []byte {
	return protocol.ZipUint64(uint64(t.UnixMilli()))
}

func appendStamp(body []byte, now time.Time, stamped bool) []byte {
	if stamped {
		body = protocol.Append(body, 'T', zipTime(now))
	}
	return body
}

func appendID(body []byte, id NetworkID) []byte {
	return protocol.Append(body, 'I', protocol.ZipUint64(uint64(id)))
}

func buildConstruction(id NetworkID, now time.Time, stamped bool, payload []byte) []byte {
	body := appendID(appendStamp(nil, now, stamped), id)
	return protocol.Record(KindConstruction, body, payload)
}

func buildDestruction(id NetworkID, payload []byte) []byte {
	return protocol.Record(KindDestruction, appendID(nil, id), payload)
}

func buildScopeChange(id NetworkID, inScope bool, payload []byte) []byte {
	flag := []byte{0}
	if inScope {
		flag[0] = 1
	}
	body := appendID(nil, id)
	body = protocol.Append(body, 'F', flag)
	return protocol.Record(KindScopeChange, body, payload)
}

func buildSerialize(id NetworkID, now time.Time, stamped bool, seq uint32, hasSeq bool, payload []byte) []byte {
	body := appendID(appendStamp(nil, now, stamped), id)
	if hasSeq {
		body = protocol.Append(body, 'Q', protocol.ZipUint64(uint64(seq)))
	}
	return protocol.Record(KindSerialize, body, payload)
}

func buildDownloadComplete(payload []byte) []byte {
	return protocol.Record(KindDownloadComplete, payload)
}

// parseMessage decodes one wire record into a receivedCommand. The
// payload slice aliases the record; the record buffer is engine-owned
// from here on. sequenced mirrors the channel-wide sequenced-serialize
// option: the Q record is only probed for when both sides agreed to
// number serialize messages, otherwise a payload could masquerade as one.
func parseMessage(from string, rec []byte, sequenced bool) (*receivedCommand, error) {
	kind, body, _ := protocol.TakeAny(rec)
	rc := &receivedCommand{from: from, kind: kind}

	switch kind {
	case KindDownloadComplete:
		rc.payload = body
		return rc, nil
	case KindConstruction, KindDestruction, KindScopeChange, KindSerialize:
	default:
		return nil, ErrUnknownKind
	}

	rest := body
	if lit, _, _ := protocol.ProbeHeader(rest); lit == 'T' {
		tsb, r, err := protocol.TakeWary('T', rest)
		if err != nil {
			return nil, ErrBadMessage
		}
		rc.stamped = true
		rc.ts = time.UnixMilli(int64(protocol.UnzipUint64(tsb)))
		rest = r
	}

	idb, rest, err := protocol.TakeWary('I', rest)
	if err != nil {
		return nil, ErrBadMessage
	}
	rc.id = NetworkID(protocol.UnzipUint64(idb))
	if rc.id == UnassignedID {
		return nil, ErrBadMessage
	}

	switch kind {
	case KindScopeChange:
		flag, r, err := protocol.TakeWary('F', rest)
		if err != nil || len(flag) != 1 || flag[0] > 1 {
			return nil, ErrBadMessage
		}
		rc.inScope = flag[0] == 1
		rest = r
	case KindSerialize:
		if lit, _, _ := protocol.ProbeHeader(rest); sequenced && lit == 'Q' {
			seqb, r, err := protocol.TakeWary('Q', rest)
			if err != nil {
				return nil, ErrBadMessage
			}
			rc.seq = uint32(protocol.UnzipUint64(seqb))
			rc.hasSeq = true
			rest = r
		}
	}

	rc.payload = rest
	return rc, nil
}
