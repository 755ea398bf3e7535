// Package codec packs and unpacks the three line kinds of the packed
// stream: header and quality lines through the alphabet-parameterised
// symbol codec, and sequence lines through the base-triplet DNA codec.
//
// Every non-identity packed line starts with one ASCII digit byte
// recording len(line) mod KeyLen, followed by the fixed-width code
// groups. Short trailing groups are padded with the smallest alphabet
// symbol (digit 0); the leading digit is what lets the decoder trim
// those pads, since a pad is indistinguishable from a genuine run of
// the smallest symbol.
package codec

import (
	"errors"
	"fmt"

	"github.com/duvitech/cryfa/internal/alphabet"
	"github.com/duvitech/cryfa/internal/frame"
)

// ErrTruncated reports packed data that ends mid-group.
var ErrTruncated = errors.New("truncated packed data")

// ErrBadSymbol reports a symbol outside the codec's alphabet in a
// category without an escape.
var ErrBadSymbol = errors.New("symbol outside codec alphabet")

// AppendPackLine appends the packed form of one logical line to dst.
// Out-of-alphabet symbols are only representable in the large
// category, where they become an escape digit plus a literal byte
// interleaved after the group's code.
func AppendPackLine(dst []byte, cx *alphabet.Codec, line []byte) ([]byte, error) {
	if cx.Category == alphabet.Identity {
		for _, b := range line {
			if _, ok := cx.Index(b); !ok {
				return dst, fmt.Errorf("%w: %d", ErrBadSymbol, b)
			}
		}
		return append(dst, line...), nil
	}

	k, a := cx.KeyLen, cx.AlphabetLen()
	large := cx.Category == alphabet.Cat5Large
	dst = append(dst, byte('0'+len(line)%k))

	var lits [7]byte
	for g := 0; g < len(line); g += k {
		v := 0
		nlits := 0
		for i := 0; i < k; i++ {
			d := 0 // pad: smallest alphabet symbol
			if g+i < len(line) {
				b := line[g+i]
				if idx, ok := cx.Index(b); ok {
					d = idx
				} else if large {
					d = cx.EscapeDigit()
					lits[nlits] = b
					nlits++
				} else {
					return dst, fmt.Errorf("%w: %d", ErrBadSymbol, b)
				}
			}
			v = v*a + d
		}
		if cx.CodeLen == 2 {
			dst = append(dst, byte(v>>8))
		}
		dst = append(dst, byte(v))
		dst = append(dst, lits[:nlits]...)
	}
	return dst, nil
}

// DecodeLine decodes one packed line from buf starting at pos,
// appending the symbols to dst. Decoding stops at the first framing
// sentinel found at a group boundary; the sentinel itself is not
// consumed. Returns the grown dst and the sentinel's position.
func DecodeLine(dst []byte, cx *alphabet.Codec, buf []byte, pos int) ([]byte, int, error) {
	if cx.Category == alphabet.Identity {
		for pos < len(buf) && buf[pos] < frame.BlankLine {
			dst = append(dst, buf[pos])
			pos++
		}
		return dst, pos, nil
	}

	if pos >= len(buf) {
		return dst, pos, ErrTruncated
	}
	k := cx.KeyLen
	rem := buf[pos]
	if rem < '0' || int(rem) >= '0'+k {
		return dst, pos, fmt.Errorf("%w: bad trailing-group digit %d", ErrTruncated, rem)
	}
	pos++

	large := cx.Category == alphabet.Cat5Large
	escape := cx.EscapeDigit()
	start := len(dst)
	groups := 0
	for pos < len(buf) && buf[pos] < frame.BlankLine {
		if pos+cx.CodeLen > len(buf) {
			return dst, pos, ErrTruncated
		}
		v := int(buf[pos])
		if cx.CodeLen == 2 {
			v = v<<8 | int(buf[pos+1])
		}
		pos += cx.CodeLen
		if v >= cx.Codes() {
			return dst, pos, fmt.Errorf("%w: code value %d out of table range", ErrTruncated, v)
		}

		tuple := cx.Tuple(v)
		if !large {
			dst = append(dst, tuple...)
		} else {
			a := cx.AlphabetLen()
			x := v
			var digits [3]int
			for i := k - 1; i >= 0; i-- {
				digits[i] = x % a
				x /= a
			}
			for i := 0; i < k; i++ {
				if digits[i] == escape {
					if pos >= len(buf) {
						return dst, pos, ErrTruncated
					}
					dst = append(dst, buf[pos])
					pos++
				} else {
					dst = append(dst, tuple[i])
				}
			}
		}
		groups++
	}

	n := groups * k
	if r := int(rem - '0'); r > 0 {
		if groups == 0 {
			return dst, pos, ErrTruncated
		}
		n = (groups-1)*k + r
	}
	return dst[:start+n], pos, nil
}

// PackLine packs a standalone line.
func PackLine(cx *alphabet.Codec, line []byte) ([]byte, error) {
	return AppendPackLine(nil, cx, line)
}

// UnpackLine decodes a standalone packed line produced by PackLine;
// data must hold exactly one line's packed bytes.
func UnpackLine(cx *alphabet.Codec, data []byte) ([]byte, error) {
	out, pos, err := DecodeLine(nil, cx, data, 0)
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
