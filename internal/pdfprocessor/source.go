// Package pdfprocessor concatenates PDF documents page by page using pdfcpu.
package pdfprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/lukezje16/pdfmerger/internal/security"
)

// Open failures. Only ErrUnsupportedEncoding is worth a normalizer pass.
var (
	ErrUnsupportedEncoding = errors.New("unsupported stream encoding")
	ErrMalformedDocument   = errors.New("malformed document")
)

type Orientation string

const (
	Portrait  Orientation = "P"
	Landscape Orientation = "L"
)

// OrientationFor is Landscape only when w > h; square pages are Portrait.
func OrientationFor(w, h float64) Orientation {
	if w > h {
		return Landscape
	}
	return Portrait
}

// PageLayout is a page's intrinsic size in PDF points.
type PageLayout struct {
	Width       float64
	Height      float64
	Orientation Orientation
}

// Source is an opened, validated input document.
type Source struct {
	Path  string
	Pages []PageLayout
}

// Opener opens a page source. Errors wrap ErrUnsupportedEncoding or
// ErrMalformedDocument.
type Opener interface {
	Open(ctx context.Context, path string) (*Source, error)
}

// PDFCPUOpener reads and validates documents with pdfcpu.
type PDFCPUOpener struct{}

func NewOpener() *PDFCPUOpener {
	return &PDFCPUOpener{}
}

// newConfiguration is called per operation; pdfcpu records command state on
// the configuration it is handed.
func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (o *PDFCPUOpener) Open(ctx context.Context, path string) (src *Source, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sp, err := security.NewSecurePathFromExisting(path)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}
	f, err := security.SafeOpen(sp)
	if err != nil {
		return nil, fmt.Errorf("failed to open input PDF: %w", err)
	}
	defer f.Close()

	// pdfcpu panics on some damaged inputs instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("%w: parser panic: %v", ErrMalformedDocument, r)
		}
	}()

	pdfCtx, err := api.ReadContext(f, newConfiguration())
	if err != nil {
		return nil, classify("read", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, classify("validate", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, classify("page count", err)
	}
	dims, err := pdfCtx.PageDims()
	if err != nil {
		return nil, classify("page dimensions", err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrMalformedDocument)
	}

	src = &Source{Path: path, Pages: make([]PageLayout, 0, len(dims))}
	for _, d := range dims {
		src.Pages = append(src.Pages, PageLayout{
			Width:       d.Width,
			Height:      d.Height,
			Orientation: OrientationFor(d.Width, d.Height),
		})
	}
	return src, nil
}

// classify maps pdfcpu's error taxonomy onto the two open failures. A
// stream pdfcpu has no decoder for surfaces as filter.ErrUnsupportedFilter;
// everything else means the document itself is broken. Some read paths
// re-format the error instead of wrapping it, so the sentinel's text counts
// too.
func classify(stage string, err error) error {
	if unsupportedFilter(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedEncoding, stage, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, stage, err)
}

func unsupportedFilter(err error) bool {
	return errors.Is(err, filter.ErrUnsupportedFilter) ||
		strings.Contains(err.Error(), filter.ErrUnsupportedFilter.Error())
}
