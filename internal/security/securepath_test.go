package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSecurePath(t *testing.T) {
	t.Run("NewSecurePath", func(t *testing.T) {
		tests := []struct {
			name    string
			input   string
			wantErr bool
		}{
			{"valid relative path", "file.pdf", false},
			{"valid nested path", "uploads/file.pdf", false},
			{"invalid absolute path", "/etc/passwd", true},
			{"invalid traversal", "../file.pdf", true},
			{"invalid null byte", "file\x00.pdf", true},
			{"empty path", "", true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sp, err := NewSecurePath(tt.input)
				if (err != nil) != tt.wantErr {
					t.Fatalf("NewSecurePath() error = %v, wantErr %v", err, tt.wantErr)
				}
				if !tt.wantErr && sp.String() == "" {
					t.Errorf("NewSecurePath() returned empty path for valid input")
				}
			})
		}
	})

	t.Run("NewSecurePathFromExisting", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("absolute path layout differs on Windows")
		}
		for _, bad := range []string{"file.pdf", "/tmp/../etc/passwd", "/tmp/a\x00.pdf", ""} {
			if _, err := NewSecurePathFromExisting(bad); err == nil {
				t.Errorf("NewSecurePathFromExisting(%q) should fail", bad)
			}
		}
		sp, err := NewSecurePathFromExisting("/tmp/dir/file.pdf")
		if err != nil {
			t.Fatal(err)
		}
		if sp.Dir().String() != "/tmp/dir" || sp.Base() != "file.pdf" {
			t.Errorf("Dir/Base = %q/%q", sp.Dir(), sp.Base())
		}
	})

	t.Run("Join and Within", func(t *testing.T) {
		root, _ := NewSecurePathFromExisting("/data/uploads")
		child, err := root.Join("ns/a.pdf")
		if err != nil {
			t.Fatalf("Join() error = %v", err)
		}
		if !child.Within(root) {
			t.Errorf("%s should be within %s", child, root)
		}
		if root.Within(root) {
			t.Error("root is not within itself")
		}
		if _, err := root.Join("../merged/x.pdf"); err == nil {
			t.Error("Join() should reject traversal")
		}
	})

	t.Run("nil SecurePath", func(t *testing.T) {
		var sp *SecurePath
		if sp.String() != "" || sp.Dir() != nil || sp.Base() != "" {
			t.Error("nil SecurePath accessors should return zero values")
		}
		if _, err := sp.Join("x"); err == nil {
			t.Error("nil SecurePath.Join() should return error")
		}
		if sp.Within(sp) {
			t.Error("nil SecurePath is never within anything")
		}
	})
}

func TestSafeOperations(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("absolute path layout differs on Windows")
	}
	dir, err := NewSecurePathFromExisting(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	nested, _ := dir.Join("a/b")
	if err := SafeMkdirAll(nested, 0755); err != nil {
		t.Fatalf("SafeMkdirAll: %v", err)
	}

	tmp, err := SafeCreateTemp(nested, "upload-*")
	if err != nil {
		t.Fatalf("SafeCreateTemp: %v", err)
	}
	tmp.WriteString("%PDF-1.4")
	tmp.Close()

	src, _ := NewSecurePathFromExisting(tmp.Name())
	dst, _ := nested.Join("final.pdf")
	if err := SafeRename(src, dst); err != nil {
		t.Fatalf("SafeRename: %v", err)
	}
	if !SafeStatExists(dst) || SafeStatExists(src) {
		t.Fatal("rename did not move the file")
	}

	link, _ := nested.Join("link.pdf")
	if err := os.Symlink(filepath.Join("/", "etc", "hostname"), link.String()); err == nil {
		info, err := SafeLstat(link)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			t.Errorf("SafeLstat should report the symlink itself, got %v %v", info, err)
		}
	}

	if err := SafeRemoveIfExists(dst); err != nil {
		t.Fatalf("SafeRemoveIfExists: %v", err)
	}
	if err := SafeRemoveIfExists(dst); err != nil {
		t.Fatalf("second SafeRemoveIfExists: %v", err)
	}
	if err := SafeRemoveIfExists(nil); err != nil {
		t.Fatalf("nil SafeRemoveIfExists: %v", err)
	}
	if _, err := SafeOpen(nil); err == nil {
		t.Error("SafeOpen(nil) should fail")
	}
}
