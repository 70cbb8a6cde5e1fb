package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"gorm.io/gorm"
)

// RunMigrations runs any pending database migrations using gormigrate. A
// fresh database is created straight from the models.
func RunMigrations(db *gorm.DB, logPrefix string) error {
	logging.Logf("[%s] Running database migrations...", logPrefix)

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202405010001_add_ticket_page_count",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&DownloadTicket{}, "PageCount") {
					return nil
				}
				return tx.Migrator().AddColumn(&DownloadTicket{}, "PageCount")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&DownloadTicket{}, "PageCount")
			},
		},
		{
			ID: "202405020001_add_file_checksum",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&UploadedFile{}, "Checksum") {
					return nil
				}
				return tx.Migrator().AddColumn(&UploadedFile{}, "Checksum")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&UploadedFile{}, "Checksum")
			},
		},
		{
			ID: "202405030001_widen_original_name",
			Migrate: func(tx *gorm.DB) error {
				return tx.Migrator().AlterColumn(&UploadedFile{}, "OriginalName")
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		for _, model := range GetAllModels() {
			if err := tx.AutoMigrate(model); err != nil {
				return fmt.Errorf("failed to migrate %T: %w", model, err)
			}
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Logf("[%s] Migrations completed successfully", logPrefix)
	return nil
}
