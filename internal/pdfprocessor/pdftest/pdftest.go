// Package pdftest builds small, structurally valid PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Size is a page size in points.
type Size struct {
	W, H float64
}

var (
	A4          = Size{595, 842}
	A4Landscape = Size{842, 595}
	Letter      = Size{612, 792}
	Square      = Size{500, 500}
)

// Build returns a PDF 1.4 document with one page per size. Each page carries
// a tiny content stream so it is not blank.
func Build(pages ...Size) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))

	for i, p := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents %d 0 R /Resources << >> >>",
			p.W, p.H, 4+2*i))
		content := fmt.Sprintf("0 0 m %g %g l S", p.W, p.H)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// WriteFile writes Build(pages...) to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, pages ...Size) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(pages...), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// BuildObjectStream returns a PDF 1.5 document whose page tree node lives in
// a compressed object stream encoded with filterName. The xref stream itself
// is unfiltered so a reader gets as far as decoding the object stream.
func BuildObjectStream(filterName string, page Size) []byte {
	var buf bytes.Buffer
	offsets := map[int]int{}
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	buf.WriteString("%PDF-1.5\n%\xe2\xe3\xcf\xd3\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(3, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << >> >>", page.W, page.H))

	header := "2 0 "
	packed := header + "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"
	obj(4, fmt.Sprintf("<< /Type /ObjStm /N 1 /First %d /Filter /%s /Length %d >>\nstream\n%s\nendstream",
		len(header), filterName, len(packed), packed))

	// W [1 4 2]: type, offset or object stream number, generation or index.
	entry := func(typ byte, field, idx int) []byte {
		return []byte{typ,
			byte(field >> 24), byte(field >> 16), byte(field >> 8), byte(field),
			byte(idx >> 8), byte(idx)}
	}
	xrefOffset := buf.Len()
	var rows []byte
	rows = append(rows, entry(0, 0, 0xffff)...)
	rows = append(rows, entry(1, offsets[1], 0)...)
	rows = append(rows, entry(2, 4, 0)...)
	rows = append(rows, entry(1, offsets[3], 0)...)
	rows = append(rows, entry(1, offsets[4], 0)...)
	rows = append(rows, entry(1, xrefOffset, 0)...)

	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}
