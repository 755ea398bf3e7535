package codec

import (
	"fmt"

	"github.com/duvitech/cryfa/internal/frame"
)

// The DNA codec packs base triplets over {A, C, N, G, T} into one byte
// each. An out-of-alphabet symbol takes the sixth digit; its group is
// prefixed with the penalty escape and the literal byte(s) follow the
// code in source order. 6^3 = 216 code values, comfortably inside the
// payload range.

const (
	dnaBase    = 6
	dnaEscape  = 5 // digit for out-of-alphabet symbols and the table's 'X'
	dnaCodeMax = dnaBase*dnaBase*dnaBase - 1
)

var dnaIndex [256]byte
var dnaTuples [dnaCodeMax + 1][3]byte

func init() {
	for i := range dnaIndex {
		dnaIndex[i] = dnaEscape
	}
	for d, b := range []byte("ACNGT") {
		dnaIndex[b] = byte(d)
	}

	symbols := []byte("ACNGTX")
	for a := 0; a < dnaBase; a++ {
		for b := 0; b < dnaBase; b++ {
			for c := 0; c < dnaBase; c++ {
				dnaTuples[a*dnaBase*dnaBase+b*dnaBase+c] = [3]byte{symbols[a], symbols[b], symbols[c]}
			}
		}
	}
}

// AppendPackDNA appends the packed form of one sequence line to dst.
// Any byte value is representable; non-base bytes ride the penalty
// path.
func AppendPackDNA(dst, line []byte) []byte {
	dst = append(dst, byte('0'+len(line)%3))

	var lits [3]byte
	for g := 0; g < len(line); g += 3 {
		v := 0
		nlits := 0
		for i := 0; i < 3; i++ {
			d := byte(0) // pad: smallest base
			if g+i < len(line) {
				b := line[g+i]
				d = dnaIndex[b]
				if d == dnaEscape {
					lits[nlits] = b
					nlits++
				}
			}
			v = v*dnaBase + int(d)
		}
		if nlits > 0 {
			dst = append(dst, frame.PenaltyEscape)
		}
		dst = append(dst, byte(v))
		dst = append(dst, lits[:nlits]...)
	}
	return dst
}

// DecodeDNALine decodes one packed sequence line from buf starting at
// pos, appending the bases to dst. Decoding stops at the first framing
// sentinel found at a group boundary; the sentinel is not consumed.
func DecodeDNALine(dst, buf []byte, pos int) ([]byte, int, error) {
	if pos >= len(buf) {
		return dst, pos, ErrTruncated
	}
	rem := buf[pos]
	if rem < '0' || rem > '2' {
		return dst, pos, fmt.Errorf("%w: bad trailing-group digit %d", ErrTruncated, rem)
	}
	pos++

	start := len(dst)
	groups := 0
	for pos < len(buf) {
		b := buf[pos]
		penalty := b == frame.PenaltyEscape
		if b >= frame.BlankLine && !penalty {
			break
		}
		pos++
		if penalty {
			if pos >= len(buf) {
				return dst, pos, ErrTruncated
			}
			b = buf[pos]
			pos++
		}
		if int(b) > dnaCodeMax {
			return dst, pos, fmt.Errorf("%w: bad base code %d", ErrTruncated, b)
		}
		tuple := dnaTuples[b]
		for i := 0; i < 3; i++ {
			if tuple[i] == 'X' {
				if !penalty || pos >= len(buf) {
					return dst, pos, ErrTruncated
				}
				dst = append(dst, buf[pos])
				pos++
			} else {
				dst = append(dst, tuple[i])
			}
		}
		groups++
	}

	n := groups * 3
	if r := int(rem - '0'); r > 0 {
		if groups == 0 {
			return dst, pos, ErrTruncated
		}
		n = (groups-1)*3 + r
	}
	return dst[:start+n], pos, nil
}

// PackDNA packs a standalone sequence line.
func PackDNA(line []byte) []byte {
	return AppendPackDNA(nil, line)
}

// UnpackDNA decodes a standalone packed sequence line produced by
// PackDNA.
func UnpackDNA(data []byte) ([]byte, error) {
	out, pos, err := DecodeDNALine(nil, data, 0)
	if err != nil {
		return nil, err
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(data)-pos)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
