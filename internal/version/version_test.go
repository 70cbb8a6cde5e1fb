package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })

	Version, GitCommit, BuildDate = "1.4.0", "0123456789abcdef", "2024-05-01"
	got := String()
	if !strings.HasPrefix(got, "pdfmerger v1.4.0 (commit 0123456, built 2024-05-01") {
		t.Errorf("String() = %q", got)
	}

	Version = "dev"
	if got := String(); !strings.HasPrefix(got, "pdfmerger dev ") {
		t.Errorf("String() = %q", got)
	}
}

func TestShortCommit(t *testing.T) {
	if got := (Info{GitCommit: "abc"}).ShortCommit(); got != "abc" {
		t.Errorf("ShortCommit() = %q", got)
	}
}
