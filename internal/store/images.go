package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/keygrid-core/internal/render"
)

// ImageInfo describes a library image without its bytes.
type ImageInfo struct {
	ID        string    `json:"id"`
	Serial    string    `json:"serial"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is a library image with its encoded bytes.
type Image struct {
	ImageInfo
	Data []byte `json:"-"`
}

// ImageRepository stores the per-device image library.
type ImageRepository interface {
	Add(ctx context.Context, serial string, data []byte) (*ImageInfo, error)
	List(ctx context.Context, serial string) ([]ImageInfo, error)
	Get(ctx context.Context, serial, id string) (*Image, error)
	Delete(ctx context.Context, serial, id string) error
}

// SQLiteImageRepository implements ImageRepository using SQLite. Decoded
// images are cached in memory for rendering.
type SQLiteImageRepository struct {
	db *sql.DB

	mu      sync.RWMutex
	decoded map[string]image.Image
}

// NewSQLiteImageRepository creates a new SQLite-backed image repository.
func NewSQLiteImageRepository(db *sql.DB) *SQLiteImageRepository {
	return &SQLiteImageRepository{db: db, decoded: make(map[string]image.Image)}
}

func cacheKey(serial, id string) string { return serial + "/" + id }

// Add validates and stores data for serial. Invalid image bytes are
// rejected with render.ErrInvalidImage before anything is written.
func (r *SQLiteImageRepository) Add(ctx context.Context, serial string, data []byte) (*ImageInfo, error) {
	img, format, err := render.Decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	info := ImageInfo{
		ID:        uuid.NewString(),
		Serial:    serial,
		Format:    format,
		Width:     b.Dx(),
		Height:    b.Dy(),
		CreatedAt: time.Now().UTC(),
	}

	const query = `INSERT INTO images (id, serial, format, width, height, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		info.ID, info.Serial, info.Format, info.Width, info.Height, data,
		info.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting image %s: %w", info.ID, err)
	}

	r.mu.Lock()
	r.decoded[cacheKey(serial, info.ID)] = img
	r.mu.Unlock()
	return &info, nil
}

// List returns the images of serial, oldest first.
func (r *SQLiteImageRepository) List(ctx context.Context, serial string) ([]ImageInfo, error) {
	const query = `SELECT id, serial, format, width, height, created_at
		FROM images WHERE serial = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, serial)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	out := []ImageInfo{}
	for rows.Next() {
		var (
			info    ImageInfo
			created string
		)
		if err := rows.Scan(&info.ID, &info.Serial, &info.Format, &info.Width, &info.Height, &created); err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		info.CreatedAt = parseTime(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Get returns one image of serial.
func (r *SQLiteImageRepository) Get(ctx context.Context, serial, id string) (*Image, error) {
	const query = `SELECT id, serial, format, width, height, data, created_at
		FROM images WHERE serial = ? AND id = ?`
	var (
		img     Image
		created string
	)
	err := r.db.QueryRowContext(ctx, query, serial, id).Scan(
		&img.ID, &img.Serial, &img.Format, &img.Width, &img.Height, &img.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying image %s: %w", id, err)
	}
	img.CreatedAt = parseTime(created)
	return &img, nil
}

// Delete removes one image of serial.
func (r *SQLiteImageRepository) Delete(ctx context.Context, serial, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE serial = ? AND id = ?`, serial, id)
	if err != nil {
		return fmt.Errorf("deleting image %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	r.mu.Lock()
	delete(r.decoded, cacheKey(serial, id))
	r.mu.Unlock()
	return nil
}

// Source returns a render.ImageSource resolving ids in the library of
// serial. Lookups that miss the cache decode from the database.
func (r *SQLiteImageRepository) Source(serial string) render.ImageSource {
	return func(id string) (image.Image, bool) {
		key := cacheKey(serial, id)
		r.mu.RLock()
		img, ok := r.decoded[key]
		r.mu.RUnlock()
		if ok {
			return img, true
		}

		stored, err := r.Get(context.Background(), serial, id)
		if err != nil {
			return nil, false
		}
		img, _, err = render.Decode(stored.Data)
		if err != nil {
			return nil, false
		}
		r.mu.Lock()
		r.decoded[key] = img
		r.mu.Unlock()
		return img, true
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
