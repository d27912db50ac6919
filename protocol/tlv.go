// Package protocol implements the TLV wire framing the replication engine
// speaks, plus the byte stream the application hooks read and write.
//
// Every replication message is one TLV record. The record type is a single
// letter A-Z; the header is one, two or five bytes depending on the body
// size and the case of the type given to the encoder:
//
//  1. tiny, 1 byte:  [('0' + len)] for bodies of 0-9 bytes, lowercase types
//     only (the type letter is not preserved);
//  2. short, 2 bytes: [lowercase type, len] for bodies up to 255 bytes;
//  3. long, 5 bytes:  [uppercase type, 4-byte little-endian len].
//
// Records nest: a message body is itself a sequence of records followed by
// an opaque payload, see the message builders in the engine package.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader inspects a record header without consuming it.
// lit is 'A'-'Z', '0' for a tiny record, '-' for garbage, 0 for a header
// that is still incomplete.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	first := data[0]
	switch {
	case first >= '0' && first <= '9': // tiny
		lit = '0'
		bodylen = int(first - '0')
		hdrlen = 1
	case first >= 'a' && first <= 'z': // short
		if len(data) < 2 {
			return
		}
		lit = first - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	case first >= 'A' && first <= 'Z': // long
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = first
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// Split consumes whole records from the buffer, leaving any trailing
// incomplete record in place. Returns ErrBadRecord for garbage input and
// ErrIncomplete when a record larger than the buffered data is pending.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 { // incomplete header
			return
		}
		if hlen+blen > data.Len() {
			err = errors.Join(ErrIncomplete, fmt.Errorf("record size %d, buffered %d", hlen+blen, data.Len()))
			return
		}
		record := make([]byte, hlen+blen)
		if n, rerr := data.Read(record); rerr != nil {
			return recs, rerr
		} else if n != hlen+blen {
			panic("impossible buffer reading")
		}
		recs = append(recs, record)
	}
	return
}

// AppendHeader writes a record header, picking the shortest format.
// A lowercase lit enables the tiny format for small bodies.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		ret = append(into, byte('0'+bodylen))
	} else if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	} else {
		ret = append(into, lit|CaseBit, byte(bodylen))
	}
	return ret
}

// Take extracts the body of the record at the head of data if it has the
// given type. nil body means a missing or mismatched record; rest==data
// means the record is still incomplete.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data // incomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil // wrong type
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAny extracts whatever record sits at the head of data.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] & ^CaseBit
	body, rest = Take(lit, data)
	return
}

// TakeWary is Take for untrusted input: explicit errors, no nil punning.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TotalLen sums the lengths of the given byte slices.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Lit returns the canonical record type of a complete record.
func Lit(rec []byte) byte {
	b := rec[0]
	switch {
	case b >= 'a' && b <= 'z':
		return b - CaseBit
	case b >= 'A' && b <= 'Z':
		return b
	case b >= '0' && b <= '9':
		return '0'
	default:
		return '-'
	}
}

// Append appends a complete record to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	total := TotalLen(body)
	res = AppendHeader(into, lit, total)
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record builds a complete record.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// TinyRecord builds a record with the tiny format enabled.
func TinyRecord(lit byte, body []byte) []byte {
	return Record((lit&^CaseBit)|CaseBit, body)
}

// Concat glues byte slices together with a single allocation.
func Concat(msg ...[]byte) []byte {
	total := TotalLen(msg)
	ret := make([]byte, 0, total)
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// OpenHeader starts a long-format record whose body length is not known
// yet. Append the body, then call CloseHeader with the bookmark.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &= ^CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV liters are uppercase A-Z")
	}
	res = append(buf, lit)
	res = append(res, 0, 0, 0, 0)
	return len(res), res
}

// CloseHeader finalizes a record started with OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("CloseHeader without OpenHeader")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}
