package pipeline

import (
	"fmt"

	"github.com/duvitech/cryfa/internal/codec"
	"github.com/duvitech/cryfa/internal/frame"
	"github.com/duvitech/cryfa/internal/scan"
)

// FASTQ chunk payload grammar, three tokens per record:
//
//	<packed header> 254 <packed bases> 254 <packed quality> 254
//
// The '+' line is never stored; the file header records whether it
// repeats the record header or stands alone.

func packFastqLine(payload []byte, ctx *run, phase int, line []byte) ([]byte, error) {
	var err error
	switch phase {
	case 0:
		if len(line) == 0 || line[0] != '@' {
			return payload, fmt.Errorf("%w: header line must start with @", scan.ErrBadFileType)
		}
		if payload, err = codec.AppendPackLine(payload, ctx.hdr, line[1:]); err != nil {
			return payload, err
		}
		return append(payload, frame.LineEnd), nil
	case 1:
		payload = codec.AppendPackDNA(payload, line)
		return append(payload, frame.LineEnd), nil
	case 2:
		if len(line) == 0 || line[0] != '+' {
			return payload, fmt.Errorf("%w: separator line must start with +", scan.ErrBadFileType)
		}
		return payload, nil
	default:
		if payload, err = codec.AppendPackLine(payload, ctx.qs, line); err != nil {
			return payload, err
		}
		return append(payload, frame.LineEnd), nil
	}
}

func decodeFastqChunk(ctx *run, payload []byte, plusRepeats bool) ([]byte, error) {
	out := make([]byte, 0, 2*len(payload))
	pos := 0
	for pos < len(payload) {
		var err error

		out = append(out, '@')
		hdrStart := len(out)
		if out, pos, err = codec.DecodeLine(out, ctx.hdr, payload, pos); err != nil {
			return nil, err
		}
		if pos, err = expectLineEnd(payload, pos); err != nil {
			return nil, err
		}
		hdrEnd := len(out)
		out = append(out, '\n')

		if out, pos, err = codec.DecodeDNALine(out, payload, pos); err != nil {
			return nil, err
		}
		if pos, err = expectLineEnd(payload, pos); err != nil {
			return nil, err
		}
		out = append(out, '\n', '+')
		if plusRepeats {
			out = append(out, out[hdrStart:hdrEnd]...)
		}
		out = append(out, '\n')

		if out, pos, err = codec.DecodeLine(out, ctx.qs, payload, pos); err != nil {
			return nil, err
		}
		if pos, err = expectLineEnd(payload, pos); err != nil {
			return nil, err
		}
		out = append(out, '\n')
	}
	return out, nil
}
