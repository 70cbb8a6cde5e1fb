package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRecord maps a browser session to its storage namespace.
type SessionRecord struct {
	ID        string    `gorm:"size:64;primaryKey" json:"id"`
	Namespace string    `gorm:"size:64;not null;uniqueIndex" json:"namespace"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (SessionRecord) TableName() string {
	return "sessions"
}

// UploadedFile is a validated upload waiting to be merged.
type UploadedFile struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex:idx_session_file" json:"-"`
	FileID       string    `gorm:"size:32;not null;uniqueIndex:idx_session_file" json:"id"`
	OriginalName string    `gorm:"type:text;not null" json:"name"`
	StoredName   string    `gorm:"size:160;not null" json:"-"`
	StorageKey   string    `gorm:"size:512;not null" json:"-"`
	Size         int64     `gorm:"not null" json:"size"`
	Checksum     string    `gorm:"size:64" json:"checksum,omitempty"`
	UploadedAt   time.Time `gorm:"not null;index" json:"uploaded_at"`
}

func (f *UploadedFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// DownloadTicket points a download id at a merged artifact.
type DownloadTicket struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	SessionID       string    `gorm:"size:64;not null;uniqueIndex:idx_session_download" json:"-"`
	DownloadID      string    `gorm:"size:32;not null;uniqueIndex:idx_session_download" json:"download_id"`
	Filename        string    `gorm:"size:255;not null" json:"filename"`
	StorageKey      string    `gorm:"size:512;not null" json:"-"`
	Size            int64     `gorm:"not null" json:"size"`
	PageCount       int       `gorm:"not null;default:0" json:"page_count"`
	SourceFileCount int       `gorm:"not null" json:"source_file_count"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (t *DownloadTicket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// GetAllModels returns every model the schema is built from.
func GetAllModels() []interface{} {
	return []interface{}{
		&SessionRecord{},
		&UploadedFile{},
		&DownloadTicket{},
	}
}
