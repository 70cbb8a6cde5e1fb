package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lukezje16/pdfmerger/internal/session"
)

// Store is the gorm-backed session.Store. Timestamps are written in UTC so
// range comparisons behave the same on SQLite and PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ session.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureNamespace(ctx context.Context, sid, candidate string, now time.Time) (string, error) {
	rec := SessionRecord{ID: sid, Namespace: candidate, CreatedAt: now.UTC()}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return "", err
	}
	var existing SessionRecord
	if err := db.First(&existing, "id = ?", sid).Error; err != nil {
		return "", err
	}
	return existing.Namespace, nil
}

func (s *Store) Namespace(ctx context.Context, sid string) (string, error) {
	var rec SessionRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", sid).Error; err != nil {
		return "", mapErr(err)
	}
	return rec.Namespace, nil
}

func (s *Store) PutFile(ctx context.Context, sid string, f session.File) error {
	if _, err := s.Namespace(ctx, sid); err != nil {
		return err
	}
	row := UploadedFile{
		SessionID:    sid,
		FileID:       f.ID,
		OriginalName: f.OriginalName,
		StoredName:   f.StoredName,
		StorageKey:   f.Key,
		Size:         f.Size,
		Checksum:     f.Checksum,
		UploadedAt:   f.UploadedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) GetFile(ctx context.Context, sid, id string) (session.File, error) {
	var row UploadedFile
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND file_id = ?", sid, id).
		First(&row).Error
	if err != nil {
		return session.File{}, mapErr(err)
	}
	return row.toFile(), nil
}

func (s *Store) ListFiles(ctx context.Context, sid string) ([]session.File, error) {
	var rows []UploadedFile
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sid).
		Order("uploaded_at asc, file_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	files := make([]session.File, 0, len(rows))
	for _, row := range rows {
		files = append(files, row.toFile())
	}
	return files, nil
}

// TakeFile relies on the DELETE row count: of several concurrent callers
// only one sees RowsAffected == 1.
func (s *Store) TakeFile(ctx context.Context, sid, id string) (session.File, bool, error) {
	f, err := s.GetFile(ctx, sid, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.File{}, false, nil
		}
		return session.File{}, false, err
	}
	res := s.db.WithContext(ctx).
		Where("session_id = ? AND file_id = ?", sid, id).
		Delete(&UploadedFile{})
	if res.Error != nil {
		return session.File{}, false, res.Error
	}
	return f, res.RowsAffected == 1, nil
}

func (s *Store) PutTicket(ctx context.Context, sid string, a session.Artifact) error {
	if _, err := s.Namespace(ctx, sid); err != nil {
		return err
	}
	row := DownloadTicket{
		SessionID:       sid,
		DownloadID:      a.DownloadID,
		Filename:        a.Filename,
		StorageKey:      a.Key,
		Size:            a.Size,
		PageCount:       a.PageCount,
		SourceFileCount: a.SourceFileCount,
		CreatedAt:       a.CreatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) GetTicket(ctx context.Context, sid, id string) (session.Artifact, error) {
	var row DownloadTicket
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND download_id = ?", sid, id).
		First(&row).Error
	if err != nil {
		return session.Artifact{}, mapErr(err)
	}
	return session.Artifact{
		DownloadID:      row.DownloadID,
		Filename:        row.Filename,
		Key:             row.StorageKey,
		Size:            row.Size,
		PageCount:       row.PageCount,
		SourceFileCount: row.SourceFileCount,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func (s *Store) DeleteTicket(ctx context.Context, sid, id string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ? AND download_id = ?", sid, id).
		Delete(&DownloadTicket{}).Error
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (session.PruneStats, error) {
	var stats session.PruneStats
	cutoff = cutoff.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("uploaded_at < ?", cutoff).Delete(&UploadedFile{})
		if res.Error != nil {
			return res.Error
		}
		stats.Files = int(res.RowsAffected)

		res = tx.Where("created_at < ?", cutoff).Delete(&DownloadTicket{})
		if res.Error != nil {
			return res.Error
		}
		stats.Tickets = int(res.RowsAffected)

		res = tx.Where("created_at < ?", cutoff).
			Where("NOT EXISTS (SELECT 1 FROM uploaded_files f WHERE f.session_id = sessions.id)").
			Where("NOT EXISTS (SELECT 1 FROM download_tickets t WHERE t.session_id = sessions.id)").
			Delete(&SessionRecord{})
		if res.Error != nil {
			return res.Error
		}
		stats.Sessions = int(res.RowsAffected)
		return nil
	})
	return stats, err
}

func (row UploadedFile) toFile() session.File {
	return session.File{
		ID:           row.FileID,
		OriginalName: row.OriginalName,
		StoredName:   row.StoredName,
		Key:          row.StorageKey,
		Size:         row.Size,
		Checksum:     row.Checksum,
		UploadedAt:   row.UploadedAt,
	}
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.ErrNotFound
	}
	return err
}
