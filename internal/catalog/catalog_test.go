package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/models"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func insert(t *testing.T, c *Catalog, title string, createdAt time.Time, tags ...string) int64 {
	t.Helper()
	id, err := c.Insert(context.Background(), models.Item{
		ImageLocation: "/images/" + title + ".jpg",
		Title:         title,
		Category:      models.CategoryClothes,
		Tags:          tags,
		CreatedAt:     createdAt,
	})
	if err != nil {
		t.Fatalf("Insert %s: %v", title, err)
	}
	return id
}

func titles(items []models.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	c := openTestCatalog(t)
	now := time.Now()

	first := insert(t, c, "a", now)
	second := insert(t, c, "b", now)
	if second <= first {
		t.Errorf("Expected ids to increase, got %d then %d", first, second)
	}

	if err := c.Delete(context.Background(), second); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	third := insert(t, c, "c", now)
	if third <= second {
		t.Errorf("Expected deleted id %d never reused, got %d", second, third)
	}
}

func TestInsertRequiresImageLocation(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Insert(context.Background(), models.Item{Title: "no image"})
	if !errors.Is(err, models.ErrPersist) {
		t.Errorf("Expected ErrPersist, got %v", err)
	}
}

func TestInsertDefaultsCreatedAtAndCategory(t *testing.T) {
	c := openTestCatalog(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	c.now = func() time.Time { return fixed }

	id, err := c.Insert(context.Background(), models.Item{ImageLocation: "/images/x.jpg", Title: "x"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	item, err := c.GetByID(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("GetByID: item=%v err=%v", item, err)
	}
	if !item.CreatedAt.Equal(fixed) {
		t.Errorf("Expected createdAt %v, got %v", fixed, item.CreatedAt)
	}
	if item.Category != models.CategoryUncategorized {
		t.Errorf("Expected category %q, got %q", models.CategoryUncategorized, item.Category)
	}
}

func TestGetByIDMissingIsAbsent(t *testing.T) {
	c := openTestCatalog(t)
	item, err := c.GetByID(context.Background(), 42)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if item != nil {
		t.Errorf("Expected nil item, got %+v", item)
	}
}

func TestTagsRoundTripPreservesOrderAndDuplicates(t *testing.T) {
	c := openTestCatalog(t)
	id := insert(t, c, "shirt", time.Now(), "blue", "cotton", "blue")

	item, err := c.GetByID(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("GetByID: item=%v err=%v", item, err)
	}
	if !equalStrings(item.Tags, []string{"blue", "cotton", "blue"}) {
		t.Errorf("Expected tags [blue cotton blue], got %v", item.Tags)
	}
}

func TestListOrdering(t *testing.T) {
	c := openTestCatalog(t)
	base := time.UnixMilli(1_700_000_000_000)

	insert(t, c, "oldest", base)
	insert(t, c, "newest", base.Add(2*time.Second))
	insert(t, c, "tie-first", base.Add(time.Second))
	insert(t, c, "tie-second", base.Add(time.Second))

	items, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	expected := []string{"newest", "tie-second", "tie-first", "oldest"}
	if got := titles(items); !equalStrings(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestLiveAllReplaysAndFollowsMutations(t *testing.T) {
	c := openTestCatalog(t)
	base := time.Now()
	insert(t, c, "first", base)

	var mu sync.Mutex
	var emissions [][]string
	sub := c.LiveAll(func(items []models.Item) {
		mu.Lock()
		defer mu.Unlock()
		emissions = append(emissions, titles(items))
	})
	defer sub.Close()

	id := insert(t, c, "second", base.Add(time.Second))
	if err := c.Update(context.Background(), models.Item{ID: id, Title: "renamed", Category: models.CategoryTools}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := c.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := [][]string{
		{"first"},
		{"second", "first"},
		{"renamed", "first"},
		{"first"},
	}
	if len(emissions) != len(expected) {
		t.Fatalf("Expected %d emissions, got %d: %v", len(expected), len(emissions), emissions)
	}
	for i := range expected {
		if !equalStrings(emissions[i], expected[i]) {
			t.Errorf("Emission %d: expected %v, got %v", i, expected[i], emissions[i])
		}
	}
}

func TestFailedRefreshRepublishesOnNextList(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	var mu sync.Mutex
	var emissions [][]string
	sub := c.LiveAll(func(items []models.Item) {
		mu.Lock()
		defer mu.Unlock()
		emissions = append(emissions, titles(items))
	})
	defer sub.Close()

	// a row that cannot be read back makes the post-write refresh fail
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO items (imageLocation, title, category, tags, createdAt)
		VALUES ('/images/bad.jpg', 'bad', 'Other', '{broken', 0)
	`); err != nil {
		t.Fatalf("insert bad row: %v", err)
	}
	insert(t, c, "kept", time.Now())

	mu.Lock()
	if len(emissions) != 1 {
		t.Errorf("Expected only the initial emission after a failed refresh, got %v", emissions)
	}
	mu.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE title = 'bad'`); err != nil {
		t.Fatalf("delete bad row: %v", err)
	}
	items, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !equalStrings(titles(items), []string{"kept"}) {
		t.Errorf("Expected [kept], got %v", titles(items))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(emissions) != 2 || !equalStrings(emissions[1], []string{"kept"}) {
		t.Errorf("Expected stale listing republished as [kept], got %v", emissions)
	}
}

func TestLiveAllEmptyCatalogEmitsEmptyList(t *testing.T) {
	c := openTestCatalog(t)
	called := false
	sub := c.LiveAll(func(items []models.Item) {
		called = true
		if len(items) != 0 {
			t.Errorf("Expected empty list, got %d items", len(items))
		}
	})
	defer sub.Close()

	if !called {
		t.Error("Expected immediate emission for empty catalog")
	}
}

func TestSearchMatchesTitleOrTagIgnoringCase(t *testing.T) {
	c := openTestCatalog(t)
	base := time.Now()
	insert(t, c, "Blue Shirt", base)
	insert(t, c, "Hammer", base.Add(time.Second), "steel")
	insert(t, c, "Lamp", base.Add(2*time.Second), "BLUE")

	var got []string
	sub := c.Search("blue", func(items []models.Item) { got = titles(items) })
	defer sub.Close()

	expected := []string{"Lamp", "Blue Shirt"}
	if !equalStrings(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	insert(t, c, "Blueprint", base.Add(3*time.Second))
	expected = []string{"Blueprint", "Lamp", "Blue Shirt"}
	if !equalStrings(got, expected) {
		t.Errorf("Expected %v after insert, got %v", expected, got)
	}
}

func TestUpdateKeepsImmutableFields(t *testing.T) {
	c := openTestCatalog(t)
	created := time.UnixMilli(1_700_000_000_000)
	id := insert(t, c, "lamp", created)

	err := c.Update(context.Background(), models.Item{
		ID:            id,
		ImageLocation: "/elsewhere.jpg",
		Title:         "desk lamp",
		Category:      models.CategoryElectronics,
		Tags:          models.Tags{"light"},
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	item, _ := c.GetByID(context.Background(), id)
	if item.Title != "desk lamp" || item.Category != models.CategoryElectronics {
		t.Errorf("Expected edited title and category, got %+v", item)
	}
	if item.ImageLocation != "/images/lamp.jpg" {
		t.Errorf("Expected image location unchanged, got %s", item.ImageLocation)
	}
	if !item.CreatedAt.Equal(created) {
		t.Errorf("Expected createdAt unchanged, got %v", item.CreatedAt)
	}
}

func TestMutationsOnMissingItem(t *testing.T) {
	c := openTestCatalog(t)

	if err := c.Update(context.Background(), models.Item{ID: 7, Title: "x"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Update, got %v", err)
	}
	if err := c.Delete(context.Background(), 7); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Delete, got %v", err)
	}
}

func TestWriteAfterCloseIsPersistError(t *testing.T) {
	c, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Close()

	_, err = c.Insert(context.Background(), models.Item{ImageLocation: "/images/x.jpg", Title: "x"})
	if !errors.Is(err, models.ErrPersist) {
		t.Errorf("Expected ErrPersist, got %v", err)
	}
}

func TestImageLocations(t *testing.T) {
	c := openTestCatalog(t)
	insert(t, c, "a", time.Now())
	insert(t, c, "b", time.Now())

	locations, err := c.ImageLocations(context.Background())
	if err != nil {
		t.Fatalf("ImageLocations: %v", err)
	}
	if len(locations) != 2 || !locations["/images/a.jpg"] || !locations["/images/b.jpg"] {
		t.Errorf("Expected both image locations, got %v", locations)
	}
}

func TestSubscriberCount(t *testing.T) {
	c := openTestCatalog(t)
	first := c.LiveAll(func([]models.Item) {})
	second := c.Search("x", func([]models.Item) {})
	if got := c.SubscriberCount(); got != 2 {
		t.Errorf("Expected 2 subscribers, got %d", got)
	}

	first.Close()
	second.Close()
	second.Close()
	if got := c.SubscriberCount(); got != 0 {
		t.Errorf("Expected 0 subscribers, got %d", got)
	}
}

func TestOpenFileDatabasePersists(t *testing.T) {
	path := t.TempDir() + "/lifeindex.db"
	c, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	insert(t, c, "kept", time.Now())
	c.Close()

	reopened, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	items, err := reopened.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !equalStrings(titles(items), []string{"kept"}) {
		t.Errorf("Expected [kept], got %v", titles(items))
	}
}
