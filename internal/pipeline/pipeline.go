// Package pipeline drives compaction and reconstruction: it partitions
// the input across workers by block-line striping, runs the codecs and
// the shuffler per chunk, reassembles a deterministic packed stream,
// and hands it to the cipher envelope. The assembled bytes are a pure
// function of (input, password, shuffle flag, thread count).
package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/duvitech/cryfa/internal/alphabet"
	"github.com/duvitech/cryfa/internal/crypt"
	"github.com/duvitech/cryfa/internal/frame"
	"github.com/duvitech/cryfa/internal/scan"
	"github.com/duvitech/cryfa/internal/shuffle"
)

// DefaultThreads is used when Options.Threads is unset.
const DefaultThreads = 1

var (
	// ErrInputOpen reports an absent or unreadable input file.
	ErrInputOpen = errors.New("cannot open input")
	// ErrInvalidSequence reports a space byte inside a FASTA sequence
	// line. Other whitespace bytes (tab, carriage return) are not
	// rejected.
	ErrInvalidSequence = errors.New("invalid sequence: spaces not allowed")
)

// Options configures a run. The zero value is usable.
type Options struct {
	Threads        int  // worker count (default 1)
	DisableShuffle bool // skip the keyed permutation
	ModernKDF      bool // emit a version 2 envelope
	Verbose        bool // log sizes and digests
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Threads <= 0 {
		out.Threads = DefaultThreads
	}
	return out
}

// run is the per-run context shared read-only by all workers.
type run struct {
	info     *scan.Info
	hdr      *alphabet.Codec
	qs       *alphabet.Codec
	shuffled bool
	seed     uint32
}

// Compress compacts and encrypts the file at inPath, writing the
// envelope to w.
func Compress(inPath string, w io.Writer, password []byte, opts *Options) error {
	o := opts.withDefaults()

	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputOpen, err)
	}
	info, scanErr := scan.Scan(f)
	f.Close()
	if scanErr != nil {
		return scanErr
	}
	log.Debugf("detected %s, %d-line block window, header alphabet %d, quality alphabet %d",
		kindName(info.Kind), info.BlockLine, len(info.HeaderAlphabet), len(info.QualityAlphabet))

	ctx := &run{
		info:     info,
		hdr:      alphabet.New(info.HeaderAlphabet),
		shuffled: !o.DisableShuffle,
	}
	if info.Kind == scan.Fastq {
		ctx.qs = alphabet.New(info.QualityAlphabet)
	}
	if ctx.shuffled {
		ctx.seed = shuffle.Seed(password)
		log.Debug("Shuffling...")
	}

	tmps := make([]*os.File, o.Threads)
	defer func() {
		for _, t := range tmps {
			if t != nil {
				t.Close()
				os.Remove(t.Name())
			}
		}
	}()
	for i := range tmps {
		if tmps[i], err = os.CreateTemp("", fmt.Sprintf("cryfa.%d.", i)); err != nil {
			return fmt.Errorf("creating thread file: %w", err)
		}
	}

	var g errgroup.Group
	for t := 0; t < o.Threads; t++ {
		g.Go(func() error {
			return packWorker(inPath, tmps[t], t, o.Threads, ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	packed, err := assemble(tmps, ctx)
	if err != nil {
		return err
	}
	if o.Verbose {
		log.Infof("packed stream: %d bytes, digest %016x", len(packed), xxhash.Sum64(packed))
	}

	return crypt.Encrypt(w, packed, password, o.ModernKDF)
}

// packWorker processes thread t's block windows on its own read handle
// and appends framed chunks to its private temp file.
func packWorker(path string, tmp *os.File, t, threads int, ctx *run) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputOpen, err)
	}
	defer f.Close()

	lr := scan.NewLineReader(f)
	bw := bufio.NewWriterSize(tmp, 1<<20)

	if _, err := lr.Skip(t * ctx.info.BlockLine); err != nil {
		if err == io.EOF {
			return bw.Flush()
		}
		return err
	}

	var payload []byte
	for {
		payload = payload[:0]
		lines := 0
		for lines < ctx.info.BlockLine {
			line, err := lr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if payload, err = appendPackedLine(payload, ctx, lines, line); err != nil {
				return err
			}
			lines++
		}
		if lines == 0 {
			break
		}
		if ctx.info.Kind == scan.Fastq && lines%4 != 0 {
			return fmt.Errorf("%w: truncated record", scan.ErrBadFileType)
		}
		if ctx.shuffled {
			shuffle.Apply(payload, ctx.seed)
		}
		if err := frame.WriteChunk(bw, payload, t); err != nil {
			return err
		}
		if lines < ctx.info.BlockLine {
			break // input ended inside this window
		}
		if _, err := lr.Skip((threads - 1) * ctx.info.BlockLine); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return bw.Flush()
}

func appendPackedLine(payload []byte, ctx *run, lineInBlock int, line []byte) ([]byte, error) {
	if ctx.info.Kind == scan.Fasta {
		return packFastaLine(payload, ctx, line)
	}
	return packFastqLine(payload, ctx, lineInBlock%4, line)
}

// assemble interleaves the per-thread files in round-robin order and
// closes the stream. Exhausted threads are skipped; the chunks they
// would have owned do not exist.
func assemble(tmps []*os.File, ctx *run) ([]byte, error) {
	hdr := frame.Header{
		Fasta:             ctx.info.Kind == scan.Fasta,
		Shuffled:          ctx.shuffled,
		HeaderAlphabet:    ctx.info.HeaderAlphabet,
		QualityAlphabet:   ctx.info.QualityAlphabet,
		PlusRepeatsHeader: ctx.info.Kind == scan.Fastq && !ctx.info.JustPlus,
	}
	packed := hdr.AppendTo(nil)

	readers := make([]*bufio.Reader, len(tmps))
	for i, t := range tmps {
		if _, err := t.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		readers[i] = bufio.NewReaderSize(t, 1<<20)
	}

	done := make([]bool, len(tmps))
	remaining := len(tmps)
	for remaining > 0 {
		for i, r := range readers {
			if done[i] {
				continue
			}
			raw, err := frame.ReadRawChunk(r)
			if err == io.EOF {
				done[i] = true
				remaining--
				continue
			}
			if err != nil {
				return nil, err
			}
			packed = append(packed, raw...)
		}
	}
	return append(packed, frame.StreamEnd), nil
}

// Decompress decrypts the file at inPath and reconstructs the original
// text on w.
func Decompress(inPath string, w io.Writer, password []byte, opts *Options) error {
	o := opts.withDefaults()

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputOpen, err)
	}
	packed, err := crypt.Decrypt(data, password)
	if err != nil {
		return err
	}

	hdr, pos, err := frame.ParseHeader(packed)
	if err != nil {
		return err
	}
	log.Debugf("embedded kind: %s", map[bool]string{true: "FASTA", false: "FASTQ"}[hdr.Fasta])

	ctx := &run{
		hdr:      alphabet.New(hdr.HeaderAlphabet),
		shuffled: hdr.Shuffled,
	}
	if !hdr.Fasta {
		ctx.qs = alphabet.New(hdr.QualityAlphabet)
	}
	if hdr.Shuffled {
		ctx.seed = shuffle.Seed(password)
	}

	var payloads [][]byte
	for {
		payload, _, next, chunkErr := frame.NextChunk(packed, pos)
		pos = next
		if chunkErr == io.EOF {
			break
		}
		if chunkErr != nil {
			return chunkErr
		}
		payloads = append(payloads, payload)
	}
	if pos != len(packed) {
		return fmt.Errorf("%w: %d bytes after stream terminator", frame.ErrCorrupt, len(packed)-pos)
	}

	digest := xxhash.New()
	out := w
	if o.Verbose {
		out = io.MultiWriter(w, digest)
	}

	if o.Threads == 1 {
		for _, payload := range payloads {
			text, decErr := decodeChunk(ctx, hdr, payload)
			if decErr != nil {
				return decErr
			}
			if _, err := out.Write(text); err != nil {
				return err
			}
		}
	} else if err := decodeParallel(ctx, hdr, payloads, out, o.Threads); err != nil {
		return err
	}

	if o.Verbose {
		log.Infof("reconstructed output digest %016x", digest.Sum64())
	}
	return nil
}

type decodeResult struct {
	seq  int
	text []byte
	err  error
}

// decodeParallel fans chunks out to workers and writes the decoded
// text back in chunk order through a pending map.
func decodeParallel(ctx *run, hdr *frame.Header, payloads [][]byte, w io.Writer, workers int) error {
	type job struct {
		seq     int
		payload []byte
	}
	jobs := make(chan job, workers*2)
	results := make(chan decodeResult, workers*2)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				text, err := decodeChunk(ctx, hdr, j.payload)
				results <- decodeResult{seq: j.seq, text: text, err: err}
			}
			return nil
		})
	}

	go func() {
		for i, p := range payloads {
			jobs <- job{seq: i, payload: p}
		}
		close(jobs)
	}()

	var collectorErr error
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		pending := make(map[int][]byte)
		next := 0
		for res := range results {
			if res.err != nil {
				if collectorErr == nil {
					collectorErr = res.err
				}
				continue
			}
			pending[res.seq] = res.text
			for {
				text, ok := pending[next]
				if !ok {
					break
				}
				if collectorErr == nil {
					if _, err := w.Write(text); err != nil {
						collectorErr = err
					}
				}
				delete(pending, next)
				next++
			}
		}
	}()

	workerErr := g.Wait()
	close(results)
	<-collectorDone

	if workerErr != nil {
		return workerErr
	}
	return collectorErr
}

// decodeChunk undoes the shuffle and unpacks one chunk payload.
func decodeChunk(ctx *run, hdr *frame.Header, payload []byte) ([]byte, error) {
	if ctx.shuffled {
		shuffle.Invert(payload, ctx.seed)
	}
	if hdr.Fasta {
		return decodeFastaChunk(ctx, payload)
	}
	return decodeFastqChunk(ctx, payload, hdr.PlusRepeatsHeader)
}

func expectLineEnd(payload []byte, pos int) (int, error) {
	if pos >= len(payload) || payload[pos] != frame.LineEnd {
		return pos, fmt.Errorf("%w: missing line terminator at %d", frame.ErrCorrupt, pos)
	}
	return pos + 1, nil
}

func kindName(k scan.Kind) string {
	if k == scan.Fasta {
		return "FASTA"
	}
	return "FASTQ"
}
