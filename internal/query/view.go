// Package query derives a filtered live listing from the catalog. A View
// holds one subscription to the raw listing for its whole life; changing
// the filter recomputes from the last raw listing it saw instead of
// subscribing again.
package query

import (
	"sync"

	"github.com/lehigh-university-libraries/lifeindex/internal/live"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
)

// Source is a live, ordered listing of items.
type Source interface {
	LiveAll(fn func([]models.Item)) *live.Subscription
}

// View is a live filtered listing. All methods are safe for concurrent
// use. Subscriber callbacks run synchronously and must not call Dispose.
type View struct {
	mu       sync.Mutex
	raw      []models.Item
	haveRaw  bool
	filter   models.Filter
	version  uint64
	disposed bool

	sub *live.Subscription
	out *live.Subject[[]models.Item]
}

// Open subscribes to src once and starts publishing the listing narrowed
// by filter.
func Open(src Source, filter models.Filter) *View {
	v := &View{
		filter: filter,
		out:    live.New[[]models.Item](),
	}
	v.sub = src.LiveAll(v.onRaw)
	return v
}

func (v *View) onRaw(items []models.Item) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.raw = items
	v.haveRaw = true
	v.version++
	version := v.version
	result := Apply(items, v.filter)
	v.mu.Unlock()

	v.out.Publish(version, result)
}

// SetFilter replaces the filter and republishes from the last raw listing.
// Before the first raw listing arrives it only records the filter. After
// Dispose it returns models.ErrDisposed.
func (v *View) SetFilter(filter models.Filter) error {
	return v.updateFilter(func(models.Filter) models.Filter { return filter })
}

// SetCategory changes only the category axis of the filter.
func (v *View) SetCategory(category string) error {
	return v.updateFilter(func(f models.Filter) models.Filter {
		f.Category = category
		return f
	})
}

// SetSearchText changes only the search text axis of the filter.
func (v *View) SetSearchText(text string) error {
	return v.updateFilter(func(f models.Filter) models.Filter {
		f.SearchText = text
		return f
	})
}

// updateFilter derives the new filter from the current one under v.mu, so
// concurrent changes to different axes are all kept.
func (v *View) updateFilter(fn func(models.Filter) models.Filter) error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return models.ErrDisposed
	}
	v.filter = fn(v.filter)
	if !v.haveRaw {
		v.mu.Unlock()
		return nil
	}
	v.version++
	version := v.version
	result := Apply(v.raw, v.filter)
	v.mu.Unlock()

	v.out.Publish(version, result)
	return nil
}

// Filter returns the filter currently applied.
func (v *View) Filter() models.Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Current returns the latest filtered listing and whether one has been
// computed yet.
func (v *View) Current() ([]models.Item, bool) {
	return v.out.Latest()
}

// Subscribe registers fn for every filtered listing, replaying the current
// one first. Subscribing to a disposed view delivers nothing.
func (v *View) Subscribe(fn func([]models.Item)) *live.Subscription {
	return v.out.Subscribe(fn)
}

// Dispose releases the catalog subscription and drops all subscribers. It
// is safe to call more than once.
func (v *View) Dispose() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	v.raw = nil
	v.mu.Unlock()

	// outside v.mu: the source may be delivering to onRaw right now
	v.sub.Close()
	v.out.Close()
}

// Disposed reports whether Dispose has been called.
func (v *View) Disposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}
