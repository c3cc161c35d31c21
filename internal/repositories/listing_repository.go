package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"estate-chat-service/internal/models"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	// ErrBadImageList marks a listing row whose serialized image list cannot
	// be decoded. Callers decide whether to fail or degrade; the repository
	// never defaults silently.
	ErrBadImageList = errors.New("listing image list is not valid JSON")
)

// ListingRepository reads listing snapshots for conversation display.
type ListingRepository interface {
	GetListingSnapshot(ctx context.Context, listingID int) (models.ListingSnapshot, error)
}

// ListingRepo is a sqlx implementation of ListingRepository.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo constructs a ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

// GetListingSnapshot fetches the display fields of one listing. The image
// list is stored as serialized JSON text and decoded into a typed slice here,
// at the persistence boundary.
func (r *ListingRepo) GetListingSnapshot(ctx context.Context, listingID int) (models.ListingSnapshot, error) {
	var row struct {
		ID           int    `db:"id"`
		Title        string `db:"title"`
		Price        int64  `db:"price"`
		ThumbnailURL string `db:"thumbnail_url"`
		Images       string `db:"images"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT id, title, price, thumbnail_url, images FROM listings WHERE id=$1`, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ListingSnapshot{}, ErrListingNotFound
	}
	if err != nil {
		return models.ListingSnapshot{}, err
	}

	snapshot := models.ListingSnapshot{
		ID:           row.ID,
		Title:        row.Title,
		Price:        row.Price,
		ThumbnailURL: row.ThumbnailURL,
	}
	if row.Images != "" {
		if err := json.Unmarshal([]byte(row.Images), &snapshot.Images); err != nil {
			return models.ListingSnapshot{}, fmt.Errorf("%w: listing %d: %v", ErrBadImageList, listingID, err)
		}
	}
	return snapshot, nil
}
