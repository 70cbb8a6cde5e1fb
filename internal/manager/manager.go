// Package manager runs the document workflows a session can trigger:
// upload, list, remove, merge and download.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/lukezje16/pdfmerger/internal/errors"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/metrics"
	"github.com/lukezje16/pdfmerger/internal/pdfprocessor"
	"github.com/lukezje16/pdfmerger/internal/registry"
	"github.com/lukezje16/pdfmerger/internal/security"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
	"github.com/lukezje16/pdfmerger/internal/sweeper"
	"github.com/lukezje16/pdfmerger/internal/validator"
)

// Merger concatenates local PDFs into w.
type Merger interface {
	Merge(ctx context.Context, inputs []pdfprocessor.Input, w io.Writer) (*pdfprocessor.Result, error)
}

type Config struct {
	MaxFilesPerSession int
	MergeTimeout       time.Duration
	// ScratchDir is an absolute local directory for merge output and
	// spooled copies of remote blobs.
	ScratchDir string
}

type Deps struct {
	Files     *registry.Files
	Tickets   *registry.Tickets
	Sweeper   *sweeper.Sweeper
	Merger    Merger
	Validator *validator.Validator
	Blobs     storage.StorageBackend
	Clock     clockwork.Clock
}

type Manager struct {
	Deps
	cfg     Config
	scratch *security.SecurePath
	locks   *sessionLocks
}

func New(deps Deps, cfg Config) (*Manager, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.MergeTimeout <= 0 {
		cfg.MergeTimeout = 5 * time.Minute
	}
	scratch, err := security.NewSecurePathFromExisting(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("invalid scratch directory %q: %w", cfg.ScratchDir, err)
	}
	return &Manager{Deps: deps, cfg: cfg, scratch: scratch, locks: newSessionLocks()}, nil
}

// Upload is one file received from a client.
type Upload struct {
	Name string
	Size int64
	MIME string
	Body io.ReadSeeker
}

func (m *Manager) Upload(ctx context.Context, sid string, up Upload) (*session.File, error) {
	if err := m.Validator.Validate(up.Body, up.Size, up.MIME); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		logging.Logf("[UPLOAD] rejected %s: %v", up.Name, err)
		return nil, err
	}

	unlock := m.locks.lock(sid)
	defer unlock()

	if m.cfg.MaxFilesPerSession > 0 {
		n, err := m.Files.Count(ctx, sid)
		if err != nil {
			return nil, err
		}
		if n >= m.cfg.MaxFilesPerSession {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			return nil, apperrors.Validation("too_many_files",
				fmt.Sprintf("Maximum %d files per session", m.cfg.MaxFilesPerSession)).
				With("max", fmt.Sprint(m.cfg.MaxFilesPerSession))
		}
	}

	f, err := m.Files.Put(ctx, sid, up.Name, up.Body)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.UploadsTotal.WithLabelValues("stored").Inc()
	metrics.UploadBytes.Add(float64(f.Size))
	return f, nil
}

func (m *Manager) List(ctx context.Context, sid string) ([]session.File, error) {
	return m.Files.List(ctx, sid)
}

func (m *Manager) Remove(ctx context.Context, sid, id string) error {
	unlock := m.locks.lock(sid)
	defer unlock()
	return m.Files.Remove(ctx, sid, id)
}

type MergeResult struct {
	DownloadID      string
	Filename        string
	Size            int64
	PageCount       int
	SourceFileCount int
	// Normalized names the inputs that were re-encoded first.
	Normalized []string
	// Unconsumed lists source ids that could not be removed after the merge.
	Unconsumed []string
}

// Merge concatenates the session's files in the order given and issues a
// download ticket for the result. On success every source is consumed; on
// failure the session's files are left untouched.
func (m *Manager) Merge(ctx context.Context, sid string, ids []string) (*MergeResult, error) {
	if len(ids) == 0 {
		metrics.MergesTotal.WithLabelValues("invalid").Inc()
		return nil, apperrors.Validation("no_files_specified", "No files specified for merging")
	}

	if m.Sweeper != nil {
		if _, err := m.Sweeper.Sweep(ctx); err != nil {
			logging.Warnf("[MERGE] sweep before merge: %v", err)
		}
	}

	unlock := m.locks.lock(sid)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.MergeTimeout)
	defer cancel()
	start := m.Clock.Now()

	files, err := m.lookup(ctx, sid, ids)
	if err != nil {
		metrics.MergesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	inputs := make([]pdfprocessor.Input, 0, len(files))
	for _, f := range files {
		path, release, err := storage.Materialize(ctx, m.Blobs, f.Key, m.scratch)
		if err != nil {
			metrics.MergesTotal.WithLabelValues("failed").Inc()
			return nil, apperrors.IO("failed to read uploaded file", err)
		}
		defer release()
		inputs = append(inputs, pdfprocessor.Input{Name: f.OriginalName, Path: path})
	}

	result, err := m.mergeAndPublish(ctx, sid, files, inputs)
	if err != nil {
		metrics.MergesTotal.WithLabelValues("failed").Inc()
		logging.Warnf("[MERGE] session merge of %d files failed: %v", len(inputs), err)
		return nil, err
	}

	consumed := m.consume(ctx, sid, files)
	result.Unconsumed = consumed.failed

	metrics.MergesTotal.WithLabelValues("success").Inc()
	metrics.MergeDuration.Observe(m.Clock.Since(start).Seconds())
	metrics.MergedPages.Observe(float64(result.PageCount))
	metrics.NormalizationsTotal.Add(float64(len(result.Normalized)))
	logging.Logf("[MERGE] merged %d files (%d pages) into %s, consumed %d uploads",
		result.SourceFileCount, result.PageCount, result.Filename, consumed.ok)
	return result, nil
}

type consumption struct {
	ok     int
	failed []string
}

// consume removes every merged source. It runs past the merge deadline, since
// the artifact is already published. When the record cannot be taken the blob
// is deleted instead, so the next lookup purges the row and the upload cannot
// be merged again.
func (m *Manager) consume(ctx context.Context, sid string, files []session.File) consumption {
	ctx = context.WithoutCancel(ctx)
	var c consumption
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true

		ok, err := m.Files.Take(ctx, sid, f.ID)
		if err == nil {
			if ok {
				c.ok++
			}
			continue
		}
		logging.Warnf("[MERGE] failed to consume %s: %v", f.ID, err)
		metrics.ConsumeFailuresTotal.Inc()
		if derr := m.Blobs.Delete(ctx, f.Key); derr != nil {
			logging.Errorf("[MERGE] %s survives its merge: %v", f.ID, derr)
			c.failed = append(c.failed, f.ID)
			continue
		}
		c.ok++
	}
	return c
}

// lookup resolves ids in order. Repeated ids resolve to the same file.
func (m *Manager) lookup(ctx context.Context, sid string, ids []string) ([]session.File, error) {
	seen := make(map[string]*session.File, len(ids))
	files := make([]session.File, 0, len(ids))
	for _, id := range ids {
		f, ok := seen[id]
		if !ok {
			var err error
			f, err = m.Files.Get(ctx, sid, id)
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.NotFound("files_missing", "One or more files not found. Please re-upload.").With("id", id)
			}
			if err != nil {
				return nil, err
			}
			seen[id] = f
		}
		files = append(files, *f)
	}
	return files, nil
}

func (m *Manager) mergeAndPublish(ctx context.Context, sid string, files []session.File, inputs []pdfprocessor.Input) (*MergeResult, error) {
	if err := security.SafeMkdirAll(m.scratch, 0755); err != nil {
		return nil, apperrors.IO("failed to prepare scratch directory", err)
	}
	tmp, err := security.SafeCreateTemp(m.scratch, "merge-*.pdf")
	if err != nil {
		return nil, apperrors.IO("failed to create output file", err)
	}
	out, _ := security.NewSecurePathFromExisting(tmp.Name())
	defer security.SafeRemoveIfExists(out)

	res, err := m.Merger.Merge(ctx, inputs, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, mergeFailure(err)
	}

	info, err := security.SafeStat(out)
	if err != nil {
		return nil, apperrors.IO("failed to stat merged output", err)
	}

	ns, ok := storage.NamespaceFromKey(files[0].Key)
	if !ok {
		return nil, apperrors.Internal("upload key has no namespace", fmt.Errorf("key %q", files[0].Key))
	}
	downloadID, err := registry.NewDownloadID()
	if err != nil {
		return nil, apperrors.Internal("failed to generate download id", err)
	}
	now := m.Clock.Now().UTC()
	filename := fmt.Sprintf("merged_%s.pdf", now.Format("20060102_150405"))
	key := storage.MergedKey(ns, downloadID, filename)

	if err := storage.PutFile(ctx, m.Blobs, out.String(), key); err != nil {
		return nil, apperrors.IO("failed to store merged output", err)
	}

	artifact := session.Artifact{
		DownloadID:      downloadID,
		Filename:        filename,
		Key:             key,
		Size:            info.Size(),
		PageCount:       res.PageCount(),
		SourceFileCount: len(inputs),
		CreatedAt:       now,
	}
	if _, err := m.Tickets.Issue(ctx, sid, artifact); err != nil {
		if derr := m.Blobs.Delete(ctx, key); derr != nil {
			logging.Warnf("[MERGE] failed to delete unpublished output %s: %v", key, derr)
		}
		return nil, err
	}

	return &MergeResult{
		DownloadID:      downloadID,
		Filename:        filename,
		Size:            artifact.Size,
		PageCount:       artifact.PageCount,
		SourceFileCount: artifact.SourceFileCount,
		Normalized:      res.Normalized,
	}, nil
}

// mergeFailure turns a concatenation error into the message shown to the
// user.
func mergeFailure(err error) *apperrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Merge("merge_timeout", "Merging took too long. Try fewer or smaller files.", err)
	}
	var me *pdfprocessor.MergeError
	if !errors.As(err, &me) || me.FileName == "" {
		return apperrors.Merge("merge_failed", "Failed to merge PDFs", err)
	}
	switch me.Reason {
	case pdfprocessor.ReasonUnsupported:
		return apperrors.Merge("unsupported_compression", fmt.Sprintf(
			"The file %q uses advanced PDF compression that cannot be processed. "+
				"Please try re-saving it as PDF 1.4 compatible or using \"Print to PDF\" to create a simpler version.",
			me.FileName), err).With("name", me.FileName)
	default:
		return apperrors.Merge("invalid_pdf", fmt.Sprintf("The file %q could not be read as a PDF.", me.FileName), err).
			With("name", me.FileName)
	}
}

// Download resolves a ticket and opens its artifact.
func (m *Manager) Download(ctx context.Context, sid, id string) (*session.Artifact, io.ReadCloser, error) {
	a, err := m.Tickets.Resolve(ctx, sid, id)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrExpired):
			metrics.DownloadsTotal.WithLabelValues("expired").Inc()
		case errors.Is(err, apperrors.ErrNotFound):
			metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		}
		return nil, nil, err
	}
	rc, err := m.Tickets.Open(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	metrics.DownloadsTotal.WithLabelValues("served").Inc()
	return a, rc, nil
}
