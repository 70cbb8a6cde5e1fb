// Package normalizer rewrites PDFs through Ghostscript so that documents
// using stream encodings the parser cannot decode become readable.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
)

// ErrUnavailable covers every way normalization can fail: no binary, a
// non-zero exit, a timeout, or an empty result.
var ErrUnavailable = errors.New("normalizer unavailable")

// ExecCommand is exec.CommandContext by default, but can be overridden in tests.
var ExecCommand = exec.CommandContext

// LookPath is exec.LookPath by default, but can be overridden in tests.
var LookPath = exec.LookPath

var (
	searchNames = []string{"gs", "gswin64c", "gswin32c"}
	wellKnown   = []string{"/usr/bin/gs", "/usr/local/bin/gs", "/opt/homebrew/bin/gs", "/opt/local/bin/gs"}
)

type Config struct {
	// Path pins the binary; empty means search.
	Path       string
	Compat     string
	Settings   string
	Timeout    time.Duration
	ScratchDir string
}

type Normalizer struct {
	cfg     Config
	scratch *security.SecurePath
}

func New(cfg Config) (*Normalizer, error) {
	if cfg.Compat == "" {
		cfg.Compat = "1.4"
	}
	if cfg.Settings == "" {
		cfg.Settings = "/prepress"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	scratch, err := security.NewSecurePathFromExisting(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("invalid scratch directory %q: %w", cfg.ScratchDir, err)
	}
	return &Normalizer{cfg: cfg, scratch: scratch}, nil
}

// Locate finds the Ghostscript binary: the configured path, then the search
// path, then well-known install locations.
func (n *Normalizer) Locate() (string, error) {
	if n.cfg.Path != "" {
		if isExecutable(n.cfg.Path) {
			return n.cfg.Path, nil
		}
		return "", fmt.Errorf("%w: %s is not executable", ErrUnavailable, n.cfg.Path)
	}
	for _, name := range searchNames {
		if p, err := LookPath(name); err == nil {
			return p, nil
		}
	}
	if runtime.GOOS != "windows" {
		for _, p := range wellKnown {
			if isExecutable(p) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: ghostscript not found", ErrUnavailable)
}

func (n *Normalizer) Available() bool {
	_, err := n.Locate()
	return err == nil
}

// Normalize writes a re-encoded copy of path into the scratch directory and
// returns its location. The caller owns the returned file.
func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	gs, err := n.Locate()
	if err != nil {
		return "", err
	}
	in, err := security.NewSecurePathFromExisting(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := security.SafeMkdirAll(n.scratch, 0755); err != nil {
		return "", fmt.Errorf("%w: scratch directory: %v", ErrUnavailable, err)
	}
	tmp, err := security.SafeCreateTemp(n.scratch, "gs_*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: scratch file: %v", ErrUnavailable, err)
	}
	tmp.Close()
	out, _ := security.NewSecurePathFromExisting(tmp.Name())

	fail := func(format string, v ...any) (string, error) {
		security.SafeRemoveIfExists(out)
		return "", fmt.Errorf("%w: "+format, append([]any{ErrUnavailable}, v...)...)
	}

	runCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	args := []string{
		"-sDEVICE=pdfwrite",
		fmt.Sprintf("-dCompatibilityLevel=%s", n.cfg.Compat),
		fmt.Sprintf("-dPDFSETTINGS=%s", n.cfg.Settings),
		"-dNOPAUSE", "-dQUIET", "-dBATCH", "-dSAFER",
		fmt.Sprintf("-sOutputFile=%s", out),
		in.String(),
	}
	cmd := ExecCommand(runCtx, gs, args...)
	// Reap the child even if it leaves its output pipes open after the kill.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		logging.Warnf("[NORMALIZE] ghostscript timed out after %s on %s", n.cfg.Timeout, in.Base())
		return fail("timed out after %s", n.cfg.Timeout)
	}
	if err != nil {
		logging.Warnf("[NORMALIZE] ghostscript failed on %s: %v: %s", in.Base(), err, truncate(output, 512))
		return fail("%v", err)
	}

	info, err := security.SafeStat(out)
	if err != nil || info.Size() == 0 {
		return fail("empty output")
	}

	logging.Logf("[NORMALIZE] %s normalized in %s (%d bytes)", in.Base(), time.Since(start).Round(time.Millisecond), info.Size())
	return out.String(), nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode()&0111 != 0
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
