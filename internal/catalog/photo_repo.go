package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhotoRepository handles photo catalog operations.
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new PhotoRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PhotoRepository: repository instance bound to db.
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Upsert creates or replaces a photo record keyed by its ID. Re-indexing
// the same path overwrites the previous record.
func (r *PhotoRepository) Upsert(ctx context.Context, photo *Photo) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(photo).Error
}

// GetByID retrieves a photo by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: deterministic photo ID.
// Returns:
//   - *Photo: photo record if found.
//   - error: non-nil if lookup fails.
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*Photo, error) {
	var photo Photo
	if err := r.db.WithContext(ctx).First(&photo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// ExistsByID checks if a photo with the given ID is already cataloged.
func (r *PhotoRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Photo{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List retrieves cataloged photos ordered by index time, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []Photo: matching photo records.
//   - error: non-nil if the query fails.
func (r *PhotoRepository) List(ctx context.Context, limit, offset int) ([]Photo, error) {
	var photos []Photo
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("indexed_at DESC").
		Find(&photos).Error; err != nil {
		return nil, err
	}
	return photos, nil
}

// Count returns the total number of cataloged photos.
func (r *PhotoRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Photo{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountWithText returns how many photos carry non-empty OCR text.
func (r *PhotoRepository) CountWithText(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Photo{}).Where("ocr_text <> ''").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FaceCounts returns how many photos each known person appears in. The
// faces column stores a JSON array, so aggregation happens here rather
// than in SQL to stay portable across sqlite and postgres.
func (r *PhotoRepository) FaceCounts(ctx context.Context) (map[string]int64, error) {
	var photos []Photo
	if err := r.db.WithContext(ctx).Select("faces").Find(&photos).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, photo := range photos {
		seen := make(map[string]bool, len(photo.Faces))
		for _, name := range photo.Faces {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			counts[name]++
		}
	}
	return counts, nil
}

// Delete removes a photo by ID.
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Photo{}, "id = ?", id).Error
}

// Reset removes every cataloged photo. Used together with dropping the
// vector collection.
func (r *PhotoRepository) Reset(ctx context.Context) error {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&Photo{})
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
