package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an update or delete matches no row.
var ErrNotFound = errors.New("not found")

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db *DB
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return time.Now().UTC()
}

// GenerateID creates a new random identifier for a primary key.
func GenerateID() string {
	return uuid.NewString()
}

// inClause returns "?, ?, ?" for n values along with the values as args.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// Store is the SQLite-backed persistence port used by the sync engine.
type Store struct {
	*EventRepository
	*WorkItemRepository
	*PropertyRepository
}

// NewStore wires the repositories over one database.
func NewStore(db *DB) *Store {
	return &Store{
		EventRepository:    NewEventRepository(db),
		WorkItemRepository: NewWorkItemRepository(db),
		PropertyRepository: NewPropertyRepository(db),
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.EventRepository.DB().PingContext(ctx)
}
