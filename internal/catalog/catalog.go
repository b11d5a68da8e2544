// Package catalog stores committed items in SQLite and serves a live,
// ordered listing of them.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/live"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		imageLocation TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		createdAt INTEGER NOT NULL,
		analysisText TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS items_createdAt ON items (createdAt DESC, id DESC);
`

const selectItems = `
	SELECT id, imageLocation, title, category, tags, createdAt, analysisText
	FROM items
`

// Catalog is the durable store of committed items. Writes are serialized;
// every successful write republishes the full ordered listing to live
// subscribers.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex
	version uint64
	// stale is set when a write could not refresh the live listing; the
	// next successful List republishes
	stale atomic.Bool

	items *live.Subject[[]models.Item]
}

// Open opens (creating if needed) the catalog database at path. Use
// ":memory:" for a throwaway catalog.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: in-memory databases are per-connection, and SQLite
	// serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	c := &Catalog{
		db:     db,
		logger: logger,
		now:    time.Now,
		items:  live.New[[]models.Item](),
	}

	snapshot, err := c.list(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.items.Publish(0, snapshot)

	logger.Info("Catalog opened", "path", path, "items", len(snapshot))
	return c, nil
}

// Close drops all live subscribers and closes the database.
func (c *Catalog) Close() error {
	c.items.Close()
	return c.db.Close()
}

// Insert stores a new item and returns its assigned id. Any id on item is
// ignored. CreatedAt is set to the current time when zero.
func (c *Catalog) Insert(ctx context.Context, item models.Item) (int64, error) {
	if item.ImageLocation == "" {
		return 0, fmt.Errorf("%w: image location is required", models.ErrPersist)
	}
	if item.Category == "" {
		item.Category = models.CategoryUncategorized
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = c.now()
	}
	tags, err := item.Tags.Encode()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPersist, err)
	}

	c.writeMu.Lock()
	result, err := c.db.ExecContext(ctx, `
		INSERT INTO items (imageLocation, title, category, tags, createdAt, analysisText)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.ImageLocation, item.Title, item.Category, tags, item.CreatedAt.UnixMilli(), item.AnalysisText)
	if err != nil {
		c.writeMu.Unlock()
		return 0, fmt.Errorf("%w: insert item: %v", models.ErrPersist, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		c.writeMu.Unlock()
		return 0, fmt.Errorf("%w: read inserted id: %v", models.ErrPersist, err)
	}
	c.refreshLocked(ctx)

	c.logger.Info("Item inserted", "id", id, "title", item.Title, "category", item.Category)
	return id, nil
}

// Update rewrites the editable fields of an existing item. The image
// location and creation time are immutable and left as stored.
func (c *Catalog) Update(ctx context.Context, item models.Item) error {
	if item.Category == "" {
		item.Category = models.CategoryUncategorized
	}
	tags, err := item.Tags.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersist, err)
	}

	c.writeMu.Lock()
	result, err := c.db.ExecContext(ctx, `
		UPDATE items SET title = ?, category = ?, tags = ?, analysisText = ?
		WHERE id = ?
	`, item.Title, item.Category, tags, item.AnalysisText, item.ID)
	if err != nil {
		c.writeMu.Unlock()
		return fmt.Errorf("%w: update item %d: %v", models.ErrPersist, item.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		c.writeMu.Unlock()
		return fmt.Errorf("%w: item %d", models.ErrNotFound, item.ID)
	}
	c.refreshLocked(ctx)

	c.logger.Info("Item updated", "id", item.ID)
	return nil
}

// Delete removes the item with the given id.
func (c *Catalog) Delete(ctx context.Context, id int64) error {
	c.writeMu.Lock()
	result, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		c.writeMu.Unlock()
		return fmt.Errorf("%w: delete item %d: %v", models.ErrPersist, id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		c.writeMu.Unlock()
		return fmt.Errorf("%w: item %d", models.ErrNotFound, id)
	}
	c.refreshLocked(ctx)

	c.logger.Info("Item deleted", "id", id)
	return nil
}

// refreshLocked reads the new listing while the write lock is held, stamps
// it with the next version, releases the lock and publishes. The write is
// already durable, so the read ignores the caller's cancellation. If the
// read still fails the listing is marked stale and republished by the next
// successful List or write.
func (c *Catalog) refreshLocked(ctx context.Context) {
	snapshot, err := c.list(context.WithoutCancel(ctx))
	if err != nil {
		c.stale.Store(true)
		c.writeMu.Unlock()
		c.logger.Error("Failed to refresh live listing", "error", err)
		return
	}
	c.stale.Store(false)
	c.version++
	version := c.version
	c.writeMu.Unlock()

	c.items.Publish(version, snapshot)
}

// republishIfStale re-reads and publishes the listing when an earlier
// refresh failed.
func (c *Catalog) republishIfStale(ctx context.Context) {
	if !c.stale.Load() {
		return
	}
	c.writeMu.Lock()
	if !c.stale.Load() {
		c.writeMu.Unlock()
		return
	}
	c.refreshLocked(ctx)
}

// GetByID returns the item with the given id, or nil if there is none.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	row := c.db.QueryRowContext(ctx, selectItems+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// List returns every item, newest first with ties broken by id descending.
// A live listing left stale by a failed refresh is republished first.
func (c *Catalog) List(ctx context.Context) ([]models.Item, error) {
	c.republishIfStale(ctx)
	return c.list(ctx)
}

func (c *Catalog) list(ctx context.Context) ([]models.Item, error) {
	rows, err := c.db.QueryContext(ctx, selectItems+` ORDER BY createdAt DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ImageLocations returns the set of image paths referenced by any item.
func (c *Catalog) ImageLocations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT imageLocation FROM items`)
	if err != nil {
		return nil, fmt.Errorf("query image locations: %w", err)
	}
	defer rows.Close()

	locations := make(map[string]bool)
	for rows.Next() {
		var location string
		if err := rows.Scan(&location); err != nil {
			return nil, fmt.Errorf("scan image location: %w", err)
		}
		locations[location] = true
	}
	return locations, rows.Err()
}

// LiveAll subscribes fn to the full ordered listing. fn receives the
// current listing immediately and a new one after every mutation. The
// slice passed to fn is shared between subscribers and must not be
// modified.
func (c *Catalog) LiveAll(fn func([]models.Item)) *live.Subscription {
	return c.items.Subscribe(fn)
}

// Search subscribes fn to the listing narrowed to items whose title or any
// tag contains text, ignoring case.
func (c *Catalog) Search(text string, fn func([]models.Item)) *live.Subscription {
	return c.items.Subscribe(func(items []models.Item) {
		matched := make([]models.Item, 0, len(items))
		for _, item := range items {
			if item.MatchesText(text) {
				matched = append(matched, item)
			}
		}
		fn(matched)
	})
}

// SubscriberCount returns the number of live listing subscriptions.
func (c *Catalog) SubscriberCount() int {
	return c.items.SubscriberCount()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (models.Item, error) {
	var item models.Item
	var tags string
	var createdAt int64
	if err := row.Scan(&item.ID, &item.ImageLocation, &item.Title, &item.Category,
		&tags, &createdAt, &item.AnalysisText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("scan item: %w", err)
	}

	decoded, err := models.DecodeTags(tags)
	if err != nil {
		return item, err
	}
	item.Tags = decoded
	item.CreatedAt = time.UnixMilli(createdAt)
	return item, nil
}
