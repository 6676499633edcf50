package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trollcity/wallsync/internal/store"
)

const (
	migrationBackfillPostType   = "2026-07-18_backfill_post_type"
	migrationRepairLikeCounters = "2026-08-02_repair_like_counters"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillPostType, apply: backfillPostType},
		{name: migrationRepairLikeCounters, apply: repairLikeCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillPostType tags rows created before the post_type column existed.
func backfillPostType(db *gorm.DB) error {
	return db.Model(&store.WallPost{}).
		Where("post_type = ''").
		Update("post_type", "text").Error
}

// repairLikeCounters recomputes the denormalized like_count column from
// the like rows, healing any drift left by interrupted toggles.
func repairLikeCounters(db *gorm.DB) error {
	return db.Exec(
		"UPDATE wall_posts SET like_count = (SELECT COUNT(*) FROM wall_likes WHERE wall_likes.post_id = wall_posts.post_id);",
	).Error
}
