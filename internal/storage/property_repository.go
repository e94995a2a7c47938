package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

// PropertyRepository provides data access for properties and their feed subscriptions.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// UpsertProperty creates the property row or renames an existing one.
func (r *PropertyRepository) UpsertProperty(ctx context.Context, p *models.Property) error {
	now := r.Now()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO properties (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE properties.name END,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, now, now)
	if err != nil {
		return fmt.Errorf("upserting property: %w", err)
	}
	return nil
}

// GetProperty retrieves a property by its ID, or nil if it does not exist.
func (r *PropertyRepository) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	p := &models.Property{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, name, last_synced_at, created_at, updated_at
		FROM properties WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.LastSyncedAt, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}

	return p, nil
}

// ListProperties retrieves all properties.
func (r *PropertyRepository) ListProperties(ctx context.Context) ([]models.Property, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, name, last_synced_at, created_at, updated_at
		FROM properties ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		var p models.Property
		if err := rows.Scan(&p.ID, &p.Name, &p.LastSyncedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, p)
	}

	return properties, rows.Err()
}

// ListSyncableProperties returns the IDs of properties with at least one
// enabled feed URL, least recently synced first.
func (r *PropertyRepository) ListSyncableProperties(ctx context.Context) ([]string, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT p.id FROM properties p
		WHERE EXISTS (
			SELECT 1 FROM feed_subscriptions f
			WHERE f.property_id = p.id AND f.enabled = 1 AND f.url != ''
		)
		ORDER BY p.last_synced_at ASC NULLS FIRST, p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying syncable properties: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning property ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SetLastSyncedAt records when a property finished its last sync.
func (r *PropertyRepository) SetLastSyncedAt(ctx context.Context, propertyID string, at time.Time) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE properties SET last_synced_at = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), r.Now(), propertyID)
	if err != nil {
		return fmt.Errorf("updating last synced time: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("property %s: %w", propertyID, ErrNotFound)
	}

	return nil
}

// ListFeeds retrieves the feed subscriptions of a property.
func (r *PropertyRepository) ListFeeds(ctx context.Context, propertyID string) ([]models.FeedSubscription, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT property_id, origin, url, enabled, last_sync_at, sync_status, sync_error,
		       created_at, updated_at
		FROM feed_subscriptions
		WHERE property_id = ?
		ORDER BY origin
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying feed subscriptions: %w", err)
	}
	defer rows.Close()

	var feeds []models.FeedSubscription
	for rows.Next() {
		var f models.FeedSubscription
		if err := rows.Scan(
			&f.PropertyID, &f.Origin, &f.URL, &f.Enabled, &f.LastSyncAt,
			&f.SyncStatus, &f.SyncError, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning feed subscription: %w", err)
		}
		feeds = append(feeds, f)
	}

	return feeds, rows.Err()
}

// UpsertFeed creates or replaces the subscription of one origin on a property.
// The property row is created if it does not exist yet.
func (r *PropertyRepository) UpsertFeed(ctx context.Context, feed *models.FeedSubscription) error {
	now := r.Now()
	feed.UpdatedAt = now

	return r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO properties (id, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, feed.PropertyID, now, now); err != nil {
			return fmt.Errorf("ensuring property: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO feed_subscriptions (property_id, origin, url, enabled, sync_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(property_id, origin) DO UPDATE SET
				url = excluded.url, enabled = excluded.enabled, updated_at = excluded.updated_at
		`, feed.PropertyID, feed.Origin, feed.URL, feed.Enabled, models.SyncStatusPending, now, now); err != nil {
			return fmt.Errorf("upserting feed subscription: %w", err)
		}

		return nil
	})
}

// DeleteFeed removes the subscription of one origin on a property.
func (r *PropertyRepository) DeleteFeed(ctx context.Context, propertyID string, origin models.Origin) error {
	result, err := r.DB().ExecContext(ctx, `
		DELETE FROM feed_subscriptions WHERE property_id = ? AND origin = ?
	`, propertyID, origin)
	if err != nil {
		return fmt.Errorf("deleting feed subscription: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %s/%s: %w", propertyID, origin, ErrNotFound)
	}

	return nil
}

// UpdateFeedStatus records the outcome of the last pull of a feed.
func (r *PropertyRepository) UpdateFeedStatus(ctx context.Context, propertyID string, origin models.Origin, status string, syncError *string) error {
	now := r.Now()
	var lastSyncAt *time.Time
	if status == models.SyncStatusSuccess {
		lastSyncAt = &now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE feed_subscriptions SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE property_id = ? AND origin = ?
	`, status, syncError, lastSyncAt, now, propertyID, origin)
	if err != nil {
		return fmt.Errorf("updating feed sync status: %w", err)
	}

	return nil
}
