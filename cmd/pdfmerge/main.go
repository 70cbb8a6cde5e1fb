// Command pdfmerge concatenates PDFs from the command line using the same
// validation, merge and fallback re-encoding as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/lukezje16/pdfmerger/internal/config"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/normalizer"
	"github.com/lukezje16/pdfmerger/internal/pdfprocessor"
	"github.com/lukezje16/pdfmerger/internal/security"
	"github.com/lukezje16/pdfmerger/internal/validator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pdfmerge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pdfmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		output  = fs.String("o", "merged.pdf", "output file")
		gsPath  = fs.String("gs", config.Get("GS_PATH", ""), "Ghostscript binary (or set GS_PATH env)")
		maxSize = fs.Int64("max-size", config.GetInt64("MAX_FILE_SIZE", config.DefaultMaxFileSize), "per-file size limit in bytes")
		timeout = fs.Duration("timeout", 2*time.Minute, "Ghostscript timeout per file")
		verbose = fs.Bool("v", false, "verbose logging")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pdfmerge [-o out.pdf] [-gs path] a.pdf b.pdf ...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no input files")
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.Init(level, "text", stderr)

	v := validator.New(*maxSize)
	inputs := make([]pdfprocessor.Input, 0, fs.NArg())
	for _, arg := range fs.Args() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		if err := validateFile(v, abs); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		inputs = append(inputs, pdfprocessor.Input{Name: filepath.Base(arg), Path: abs})
	}

	scratch, err := os.MkdirTemp("", "pdfmerge-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	norm, err := normalizer.New(normalizer.Config{Path: *gsPath, Timeout: *timeout, ScratchDir: scratch})
	if err != nil {
		return err
	}

	outAbs, err := filepath.Abs(*output)
	if err != nil {
		return err
	}
	out, err := security.NewSecurePathFromExisting(outAbs)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	f, err := security.SafeCreate(out)
	if err != nil {
		return err
	}

	res, err := pdfprocessor.NewConcatenator(norm).Merge(ctx, inputs, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		security.SafeRemoveIfExists(out)
		return err
	}

	fmt.Fprintf(stdout, "Merged %d files (%d pages) into %s\n", len(inputs), res.PageCount(), *output)
	for _, name := range res.Normalized {
		fmt.Fprintf(stdout, "  re-encoded %s with Ghostscript\n", name)
	}
	return nil
}

func validateFile(v *validator.Validator, path string) error {
	sp, err := security.NewSecurePathFromExisting(path)
	if err != nil {
		return err
	}
	f, err := security.SafeOpen(sp)
	if err != nil {
		return err
	}
	defer f.Close()
	return v.Validate(f, 0, "")
}
