package security

import (
	"strings"
	"testing"
)

func TestValidateStorageKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"upload key", "uploads/0123abcd/89ab_report.pdf", false},
		{"merged key", "merged/0123abcd/ff00_merged_20240101_120000.pdf", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"parent", "../uploads/x.pdf", true},
		{"nested parent", "uploads/../../etc/passwd", true},
		{"double slash", "uploads//x.pdf", true},
		{"dot segment", "uploads/./x.pdf", true},
		{"null byte", "uploads/x\x00.pdf", true},
		{"bare dot", ".", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStorageKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStorageKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateExistingFilePath(t *testing.T) {
	tests := []struct {
		path string
		want error
	}{
		{"/data/uploads/a.pdf", nil},
		{"", ErrEmptyPath},
		{"data/a.pdf", ErrRelativePath},
		{"/data/../etc/passwd", ErrPathTraversal},
		{"/data/a\x00.pdf", ErrInvalidPath},
	}
	for _, tt := range tests {
		if err := ValidateExistingFilePath(tt.path); err != tt.want {
			t.Errorf("ValidateExistingFilePath(%q) = %v, want %v", tt.path, err, tt.want)
		}
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		base, path string
		want       bool
	}{
		{"/data/uploads", "/data/uploads/ns/a.pdf", true},
		{"/data/uploads", "/data/uploads", false},
		{"/data/uploads", "/data/uploads-evil/a.pdf", false},
		{"/data/uploads", "/data/merged/a.pdf", false},
		{"/data/uploads", "/data/uploads/../merged", false},
	}
	for _, tt := range tests {
		if got := IsWithin(tt.base, tt.path); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestSafeJoin(t *testing.T) {
	if got, err := SafeJoin("/data", "uploads/a.pdf"); err != nil || got != "/data/uploads/a.pdf" {
		t.Fatalf("SafeJoin = %q, %v", got, err)
	}
	for _, bad := range []string{"../etc/passwd", "/etc/passwd", "a/../../b", "", "."} {
		if _, err := SafeJoin("/data", bad); err == nil {
			t.Errorf("SafeJoin should reject %q", bad)
		}
	}
	if _, err := SafeJoin("", "a.pdf"); err == nil {
		t.Error("SafeJoin should reject empty base")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final).pdf", "my_report__final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\scan 1.pdf`, "scan_1.pdf"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"..", "document.pdf"},
		{"", "document.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in, MaxFilenameLength); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", 150) + ".pdf"
	if got := SanitizeFilename(long, MaxFilenameLength); len(got) != MaxFilenameLength {
		t.Errorf("length = %d, want %d", len(got), MaxFilenameLength)
	}
}
