package migrations

import (
	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all migrations in order.
//   - 001: schema for sources, releases, entities, mappings and library snapshots
//   - 002: release recency index used by retention
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002ReleaseRecencyIndex(),
	}
}

// schemaTables lists the tables in dependency order.
var schemaTables = []any{
	&models.Source{},
	&models.CategoryMapping{},
	&models.MediaEntity{},
	&models.Release{},
	&models.LibraryApp{},
	&models.LibraryItem{},
	&models.LibrarySyncStatus{},
	&models.MatchStatus{},
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create release and library tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(schemaTables...)
		},
		Down: func(tx *gorm.DB) error {
			for i := len(schemaTables) - 1; i >= 0; i-- {
				if tx.Migrator().HasTable(schemaTables[i]) {
					if err := tx.Migrator().DropTable(schemaTables[i]); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

const releaseRecencyIndex = "idx_release_source_published"

func migration002ReleaseRecencyIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index releases by source and publish time",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Release{}, releaseRecencyIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + releaseRecencyIndex + " ON releases (source_id, published_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Release{}, releaseRecencyIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Release{}, releaseRecencyIndex)
		},
	}
}
