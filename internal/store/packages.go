// Package store persists built remediation packages so the gateway can
// serve them after the worker that built them has moved on.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/complyhq/remedy/internal/fixpkg"
)

// Store errors.
var (
	ErrDatabaseUnavailable = errors.New("database connection is not available")
	ErrPackageNotFound     = errors.New("package not found")
)

// PackageStatus tracks a package through its remediation lifecycle.
type PackageStatus string

// Package lifecycle statuses.
const (
	PackageStatusBuilt    PackageStatus = "built"
	PackageStatusInReview PackageStatus = "in_review"
	PackageStatusVerified PackageStatus = "verified"
)

// PackageRecord is the persisted form of a built package. The package body
// is stored as JSON; only the fields the gateway filters on are columns.
type PackageRecord struct {
	ID            string        `json:"id"             gorm:"primaryKey"`
	SiteReference string        `json:"site_reference" gorm:"index"`
	Status        PackageStatus `json:"status"`
	TotalIssues   int           `json:"total_issues"`
	RiskValue     float64       `json:"risk_value"`
	Body          []byte        `json:"-"              gorm:"type:jsonb"`
	GeneratedAt   time.Time     `json:"generated_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the table name for the PackageRecord model.
func (PackageRecord) TableName() string {
	return "fix_packages"
}

// NewPackageRecord serializes a built package for storage.
func NewPackageRecord(pkg *fixpkg.FixPackage) (*PackageRecord, error) {
	body, err := json.Marshal(pkg)
	if err != nil {
		return nil, fmt.Errorf("marshal package: %w", err)
	}
	return &PackageRecord{
		ID:            pkg.ID.String(),
		SiteReference: pkg.SiteReference,
		Status:        PackageStatusBuilt,
		TotalIssues:   pkg.TotalIssues,
		RiskValue:     pkg.Summary.TotalRiskValue,
		Body:          body,
		GeneratedAt:   pkg.GeneratedAt,
	}, nil
}

// Package deserializes the stored package body.
func (r *PackageRecord) Package() (*fixpkg.FixPackage, error) {
	var pkg fixpkg.FixPackage
	if err := json.Unmarshal(r.Body, &pkg); err != nil {
		return nil, fmt.Errorf("unmarshal package: %w", err)
	}
	return &pkg, nil
}

// PackageRepository persists built packages.
type PackageRepository interface {
	Save(ctx context.Context, record *PackageRecord) error
	GetByID(ctx context.Context, id string) (*PackageRecord, error)
	LatestForSite(ctx context.Context, siteRef string) (*PackageRecord, error)
	UpdateStatus(ctx context.Context, id string, status PackageStatus) error
	ListForSite(ctx context.Context, siteRef string, limit int) ([]*PackageRecord, error)
}

// NewPackageRepository creates a package repository. With a database pool
// it persists to PostgreSQL; without one it falls back to in-memory
// storage.
func NewPackageRepository(_ context.Context, p pool.Pool) PackageRepository {
	if p != nil {
		return &PGPackageRepository{pool: p}
	}
	return &MemoryPackageRepository{records: make(map[string]*PackageRecord)}
}

// PGPackageRepository is the PostgreSQL implementation of PackageRepository.
type PGPackageRepository struct {
	pool pool.Pool
}

func (r *PGPackageRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Save inserts or replaces a package record.
func (r *PGPackageRepository) Save(ctx context.Context, record *PackageRecord) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	record.CreatedAt = time.Now()
	record.UpdatedAt = time.Now()
	return db.Save(record).Error
}

// GetByID retrieves a package record by ID.
func (r *PGPackageRepository) GetByID(ctx context.Context, id string) (*PackageRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var record PackageRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

// LatestForSite retrieves the most recently generated package for a site.
func (r *PGPackageRepository) LatestForSite(
	ctx context.Context,
	siteRef string,
) (*PackageRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var record PackageRecord
	err := db.Where("site_reference = ?", siteRef).
		Order("generated_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: site %s", ErrPackageNotFound, siteRef)
		}
		return nil, err
	}
	return &record, nil
}

// UpdateStatus updates a package's lifecycle status.
func (r *PGPackageRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status PackageStatus,
) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	return db.Model(&PackageRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// ListForSite lists packages for a site, newest first.
func (r *PGPackageRepository) ListForSite(
	ctx context.Context,
	siteRef string,
	limit int,
) ([]*PackageRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var records []*PackageRecord
	query := db.Where("site_reference = ?", siteRef).Order("generated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MemoryPackageRepository is an in-memory package repository for testing
// and single-instance deployments without a database.
type MemoryPackageRepository struct {
	mu      sync.RWMutex
	records map[string]*PackageRecord
}

// Save inserts or replaces a package record.
func (r *MemoryPackageRepository) Save(_ context.Context, record *PackageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.CreatedAt = time.Now()
	record.UpdatedAt = time.Now()
	r.records[record.ID] = record
	return nil
}

// GetByID retrieves a package record by ID.
func (r *MemoryPackageRepository) GetByID(_ context.Context, id string) (*PackageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	return record, nil
}

// LatestForSite retrieves the most recently generated package for a site.
func (r *MemoryPackageRepository) LatestForSite(
	_ context.Context,
	siteRef string,
) (*PackageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *PackageRecord
	for _, record := range r.records {
		if record.SiteReference != siteRef {
			continue
		}
		if latest == nil || record.GeneratedAt.After(latest.GeneratedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: site %s", ErrPackageNotFound, siteRef)
	}
	return latest, nil
}

// UpdateStatus updates a package's lifecycle status.
func (r *MemoryPackageRepository) UpdateStatus(
	_ context.Context,
	id string,
	status PackageStatus,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	record.Status = status
	record.UpdatedAt = time.Now()
	return nil
}

// ListForSite lists packages for a site, newest first.
func (r *MemoryPackageRepository) ListForSite(
	_ context.Context,
	siteRef string,
	limit int,
) ([]*PackageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*PackageRecord
	for _, record := range r.records {
		if record.SiteReference == siteRef {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].GeneratedAt.After(records[j].GeneratedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
