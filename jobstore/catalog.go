package jobstore

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CatalogEntry is a queryable mirror of one job directory, kept in sync by
// the dispatcher as jobs are created and run. It exists purely so an
// operator managing many concurrent jobs can query job state with SQL
// instead of walking the jobs root directory tree.
type CatalogEntry struct {
	JobID     string `gorm:"primaryKey"`
	Kind      string // "import", "update", or "publish"
	CreatedAt time.Time
	UpdatedAt time.Time
	LastRunAt *time.Time
	Status    string // "pending" when created, "running" once a run starts
}

func (CatalogEntry) TableName() string { return "job_catalog" }

// Catalog is an optional Postgres-backed index of job metadata. A nil
// *Catalog is valid and every method on it is then a no-op, so callers
// that don't configure a catalog DSN pay no cost.
type Catalog struct {
	db *gorm.DB
}

// OpenCatalog connects to dsn and ensures the catalog table exists.
func OpenCatalog(dsn string) (*Catalog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CatalogEntry{}); err != nil {
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Upsert records or updates a job's catalog entry.
func (c *Catalog) Upsert(entry *CatalogEntry) error {
	if c == nil {
		return nil
	}
	return c.db.Save(entry).Error
}

// MarkRun stamps LastRunAt and Status for jobID.
func (c *Catalog) MarkRun(jobID string, status string) error {
	if c == nil {
		return nil
	}
	now := time.Now()
	return c.db.Model(&CatalogEntry{}).Where("job_id = ?", jobID).
		Updates(map[string]interface{}{"last_run_at": now, "status": status, "updated_at": now}).Error
}

// List returns every catalog entry, most recently updated first.
func (c *Catalog) List() ([]CatalogEntry, error) {
	if c == nil {
		return nil, nil
	}
	var entries []CatalogEntry
	if err := c.db.Order("updated_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
