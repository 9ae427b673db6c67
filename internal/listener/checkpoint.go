package listener

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// checkpointRow is the sole persisted row: the last block id the listener
// has fully processed. Reconnects resume strictly after it.
type checkpointRow struct {
	ID          uint   `gorm:"primaryKey"`
	LastBlockID string `gorm:"column:last_block_id"`
}

func (checkpointRow) TableName() string { return "listener_checkpoint" }

// CheckpointStore persists the listener's resume position across restarts.
type CheckpointStore struct {
	db *gorm.DB
}

// OpenCheckpointStore opens (creating if necessary) the sqlite database at
// path and applies pending goose migrations.
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: underlying sql.DB: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("checkpoint store: set dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return nil, fmt.Errorf("checkpoint store: run migrations: %w", err)
	}

	return &CheckpointStore{db: db}, nil
}

// LastBlockID returns the most recently persisted checkpoint, or "" if the
// listener has never successfully checkpointed (fresh database).
func (s *CheckpointStore) LastBlockID() (string, error) {
	var row checkpointRow
	err := s.db.First(&row, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}
	return row.LastBlockID, nil
}

// SetLastBlockID persists the new checkpoint, upserting the single row.
func (s *CheckpointStore) SetLastBlockID(blockID string) error {
	row := checkpointRow{ID: 1, LastBlockID: blockID}
	return s.db.Save(&row).Error
}
