// cryfa compacts FASTA/FASTQ files and encrypts the compacted stream;
// with -d it decrypts and reconstructs the original byte for byte.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/duvitech/cryfa/internal/crypt"
	"github.com/duvitech/cryfa/internal/pipeline"
)

var version = "1.0"

const (
	exitSuccess = 0
	exitError   = 1
)

type options struct {
	keyFile        string
	threads        int
	decrypt        bool
	verbose        bool
	disableShuffle bool
	modernKDF      bool
	about          bool
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cryfa: error: %v\n", err)
		return exitError
	}
	return exitSuccess
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "cryfa -k <passfile> [flags] <input>",
		Short: "FASTA/FASTQ compaction plus encryption",
		Long: `cryfa packs FASTA/FASTQ files with alphabet-sized codes and encrypts
the packed stream. Output goes to stdout; progress goes to stderr.`,
		Example: `  cryfa -k pass.txt in.fasta > in.cryfa
  cryfa -k pass.txt -t 4 reads.fastq.gz > reads.cryfa
  cryfa -d -k pass.txt in.cryfa > in.fasta`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.keyFile, "key", "k", "", "password file (required)")
	f.IntVarP(&opts.threads, "thread", "t", pipeline.DefaultThreads, "number of worker threads")
	f.BoolVarP(&opts.decrypt, "decrypt", "d", false, "decrypt and reconstruct the original file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose diagnostics")
	f.BoolVarP(&opts.disableShuffle, "disable_shuffle", "s", false, "do not shuffle packed chunks")
	f.BoolVar(&opts.modernKDF, "modern-kdf", false, "derive key material with scrypt (version 2 envelope)")
	f.BoolVarP(&opts.about, "about", "a", false, "show program information")
	return cmd
}

func execute(cmd *cobra.Command, opts *options, args []string) error {
	if opts.about {
		fmt.Fprintf(cmd.OutOrStdout(), "cryfa v%s\nFASTA/FASTQ compaction plus encryption.\n", version)
		return nil
	}

	log.SetLevel(log.WarnLevel)
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
		log.Debug("Verbose mode on.")
	}

	password, err := crypt.ReadPassword(opts.keyFile)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("an input file is required")
	}
	input := args[0]

	popts := &pipeline.Options{
		Threads:        opts.threads,
		DisableShuffle: opts.disableShuffle,
		ModernKDF:      opts.modernKDF,
		Verbose:        opts.verbose,
	}

	if opts.decrypt {
		log.Debug("Decompressing...")
		return pipeline.Decompress(input, cmd.OutOrStdout(), password, popts)
	}

	path, cleanup, err := inflateIfGzip(input)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Debug("Compacting...")
	return pipeline.Compress(path, cmd.OutOrStdout(), password, popts)
}

// inflateIfGzip detects gzipped input by suffix or magic and inflates
// it to a temporary file, so the workers can open independent seekable
// handles on plain text. Plain inputs pass through untouched.
func inflateIfGzip(path string) (string, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", pipeline.ErrInputOpen, err)
	}

	magic := make([]byte, 2)
	n, _ := io.ReadFull(f, magic)
	gzipped := strings.HasSuffix(strings.ToLower(path), ".gz") ||
		(n == 2 && magic[0] == 0x1f && magic[1] == 0x8b)
	if !gzipped {
		f.Close()
		return path, func() {}, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return "", nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return "", nil, fmt.Errorf("cannot open gzip input: %w", err)
	}

	tmp, err := os.CreateTemp("", "cryfa.in.")
	if err != nil {
		gz.Close()
		f.Close()
		return "", nil, err
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		gz.Close()
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("inflating gzip input: %w", err)
	}
	tmp.Close()
	gz.Close()
	f.Close()
	return tmp.Name(), cleanup, nil
}
