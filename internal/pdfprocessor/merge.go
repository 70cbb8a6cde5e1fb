package pdfprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
)

// Normalizer re-encodes a document the parser could not decode. The returned
// path is a scratch file owned by the caller.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// MergeReason says which stage rejected a file.
type MergeReason string

const (
	ReasonUnsupported MergeReason = "unsupported"
	ReasonMalformed   MergeReason = "malformed"
	ReasonWrite       MergeReason = "write"
)

// MergeError names the input that stopped the merge. FileName is empty when
// the failure is not attributable to one input.
type MergeError struct {
	FileName string
	Reason   MergeReason
	Err      error
}

func (e *MergeError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("merge failed: %v", e.Err)
	}
	return fmt.Sprintf("merge failed on %q (%s): %v", e.FileName, e.Reason, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Input is one document in merge order. Name is what the user called it.
type Input struct {
	Name string
	Path string
}

type Result struct {
	Pages      []PageLayout
	Normalized []string
}

func (r *Result) PageCount() int {
	return len(r.Pages)
}

// Concatenator joins inputs page by page. Every page object is copied whole,
// so each output page keeps its source's exact size and orientation.
type Concatenator struct {
	Opener     Opener
	Normalizer Normalizer
}

func NewConcatenator(normalizer Normalizer) *Concatenator {
	return &Concatenator{
		Opener:     NewOpener(),
		Normalizer: normalizer,
	}
}

// Merge writes the concatenation of inputs to w. Each input whose streams
// cannot be decoded is normalized once and retried; any other failure
// aborts. Scratch copies are removed before returning.
func (c *Concatenator) Merge(ctx context.Context, inputs []Input, w io.Writer) (*Result, error) {
	if len(inputs) == 0 {
		return nil, &MergeError{Reason: ReasonMalformed, Err: errors.New("no inputs")}
	}

	var scratch []string
	defer func() {
		for _, p := range scratch {
			sp, err := security.NewSecurePathFromExisting(p)
			if err != nil {
				continue
			}
			if err := security.SafeRemoveIfExists(sp); err != nil {
				logging.Warnf("[MERGE] failed to remove scratch copy %s: %v", p, err)
			}
		}
	}()

	res := &Result{}
	paths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := c.Opener.Open(ctx, in.Path)
		if errors.Is(err, ErrUnsupportedEncoding) {
			src, err = c.retryNormalized(ctx, in, &scratch)
			if err != nil {
				return nil, err
			}
			res.Normalized = append(res.Normalized, in.Name)
		} else if err != nil {
			return nil, &MergeError{FileName: in.Name, Reason: ReasonMalformed, Err: err}
		}
		res.Pages = append(res.Pages, src.Pages...)
		paths = append(paths, src.Path)
	}

	if err := c.write(paths, w); err != nil {
		return nil, &MergeError{Reason: ReasonWrite, Err: err}
	}
	return res, nil
}

func (c *Concatenator) retryNormalized(ctx context.Context, in Input, scratch *[]string) (*Source, error) {
	if c.Normalizer == nil {
		return nil, &MergeError{FileName: in.Name, Reason: ReasonUnsupported, Err: ErrUnsupportedEncoding}
	}
	logging.Logf("[MERGE] %s uses an unsupported encoding, normalizing", in.Name)

	normalized, err := c.Normalizer.Normalize(ctx, in.Path)
	if err != nil {
		return nil, &MergeError{FileName: in.Name, Reason: ReasonUnsupported, Err: err}
	}
	*scratch = append(*scratch, normalized)

	src, err := c.Opener.Open(ctx, normalized)
	if err != nil {
		return nil, &MergeError{FileName: in.Name, Reason: ReasonUnsupported, Err: err}
	}
	return src, nil
}

func (c *Concatenator) write(paths []string, w io.Writer) error {
	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range paths {
		sp, err := security.NewSecurePathFromExisting(p)
		if err != nil {
			return err
		}
		f, err := security.SafeOpen(sp)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	if len(files) == 1 {
		pdfCtx, err := api.ReadContext(files[0], newConfiguration())
		if err != nil {
			return fmt.Errorf("failed to read PDF context: %w", err)
		}
		return api.WriteContext(pdfCtx, w)
	}

	rs := make([]io.ReadSeeker, len(files))
	for i, f := range files {
		rs[i] = f
	}
	return api.MergeRaw(rs, w, false, newConfiguration())
}
