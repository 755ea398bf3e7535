package pipeline

import (
	"bytes"

	"github.com/duvitech/cryfa/internal/codec"
	"github.com/duvitech/cryfa/internal/frame"
)

// FASTA chunk payload grammar, one token per input line:
//
//	header: 253 <packed header> 254
//	bases:      <packed triplets> 254
//	blank:  252
//
// A window may open mid-record (block striping cuts on lines, not
// records); the tokens are self-describing, so the decoder never needs
// record boundaries.

func packFastaLine(payload []byte, ctx *run, line []byte) ([]byte, error) {
	switch {
	case len(line) == 0:
		return append(payload, frame.BlankLine), nil
	case line[0] == '>':
		payload = append(payload, frame.HeaderMark)
		var err error
		if payload, err = codec.AppendPackLine(payload, ctx.hdr, line[1:]); err != nil {
			return payload, err
		}
		return append(payload, frame.LineEnd), nil
	default:
		if bytes.IndexByte(line, ' ') >= 0 {
			return payload, ErrInvalidSequence
		}
		payload = codec.AppendPackDNA(payload, line)
		return append(payload, frame.LineEnd), nil
	}
}

func decodeFastaChunk(ctx *run, payload []byte) ([]byte, error) {
	out := make([]byte, 0, 2*len(payload))
	pos := 0
	for pos < len(payload) {
		var err error
		switch payload[pos] {
		case frame.HeaderMark:
			pos++
			out = append(out, '>')
			if out, pos, err = codec.DecodeLine(out, ctx.hdr, payload, pos); err != nil {
				return nil, err
			}
			if pos, err = expectLineEnd(payload, pos); err != nil {
				return nil, err
			}
		case frame.BlankLine:
			pos++
		default:
			if out, pos, err = codec.DecodeDNALine(out, payload, pos); err != nil {
				return nil, err
			}
			if pos, err = expectLineEnd(payload, pos); err != nil {
				return nil, err
			}
		}
		out = append(out, '\n')
	}
	return out, nil
}
