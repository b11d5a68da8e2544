// Package capture runs one capture session: analyze a freshly taken photo,
// let the user confirm or edit the proposed metadata, then commit the
// photo and its Item together.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/live"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
)

// DefaultAssistTimeout bounds a single analysis call.
const DefaultAssistTimeout = 60 * time.Second

// ErrSessionReset is returned by a Commit that was overtaken by Reset or
// Dispose. Anything the commit had produced has been cleaned up.
var ErrSessionReset = errors.New("capture session was reset")

// State is the phase of a capture session.
type State int

const (
	Idle State = iota
	Analyzing
	Confirming
	Saved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Analyzing:
		return "analyzing"
	case Confirming:
		return "confirming"
	case Saved:
		return "saved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Assistant proposes metadata for an image.
type Assistant interface {
	Analyze(ctx context.Context, imagePath string) (models.Proposal, error)
}

// PhotoStore moves images between the temp and permanent areas.
type PhotoStore interface {
	Commit(ctx context.Context, tempPath string) (string, error)
	DiscardTemp(tempPath string)
	DiscardPermanent(permanentPath string) error
	Exists(path string) bool
}

// Catalog persists committed items.
type Catalog interface {
	Insert(ctx context.Context, item models.Item) (int64, error)
}

// CommitFailedError reports a commit that did not complete. Reason wraps
// models.ErrIO when the photo could not be moved and models.ErrPersist when
// the Item could not be written. In the latter case OrphanPath names the
// permanent photo awaiting a retry.
type CommitFailedError struct {
	Reason     error
	OrphanPath string
}

func (e *CommitFailedError) Error() string {
	if e.OrphanPath != "" {
		return fmt.Sprintf("commit failed (orphaned %s): %v", e.OrphanPath, e.Reason)
	}
	return fmt.Sprintf("commit failed: %v", e.Reason)
}

func (e *CommitFailedError) Unwrap() error { return e.Reason }

// Snapshot is an observable view of a session.
type Snapshot struct {
	State      State        `json:"state"`
	Draft      models.Draft `json:"draft"`
	ItemID     int64        `json:"item_id,omitempty"`
	OrphanPath string       `json:"orphan_path,omitempty"`
	Committing bool         `json:"committing,omitempty"`
	AssistErr  string       `json:"assist_error,omitempty"`
	CommitErr  string       `json:"commit_error,omitempty"`
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithAssistTimeout bounds each analysis call. Non-positive values are
// ignored.
func WithAssistTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.assistTimeout = d
		}
	}
}

// WithLogger sets the logger used for session events.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Workflow is a single capture session. It is safe for concurrent use.
type Workflow struct {
	assistant     Assistant
	store         PhotoStore
	catalog       Catalog
	logger        *slog.Logger
	assistTimeout time.Duration

	mu         sync.Mutex
	state      State
	draft      models.Draft
	itemID     int64
	orphan     string
	assistErr  error
	commitErr  error
	committing bool
	disposed   bool

	// epoch changes on every Begin, Reset and Dispose; async work started
	// under an older epoch must not touch the session
	epoch   uint64
	cancel  context.CancelFunc
	version uint64
	wg      sync.WaitGroup

	states *live.Subject[Snapshot]
}

// New returns an Idle session. assistant may be nil, in which case every
// analysis degrades immediately.
func New(assistant Assistant, store PhotoStore, catalog Catalog, opts ...Option) *Workflow {
	w := &Workflow{
		assistant:     assistant,
		store:         store,
		catalog:       catalog,
		logger:        slog.Default(),
		assistTimeout: DefaultAssistTimeout,
		states:        live.New[Snapshot](),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.states.Publish(0, w.snapshotLocked())
	return w
}

// Begin starts analysis of the photo at tempPath. It returns immediately;
// the session moves to Confirming once the assistant answers, fails or
// times out. Only an Idle session can begin.
func (w *Workflow) Begin(ctx context.Context, tempPath string) error {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return models.ErrDisposed
	}
	if w.state != Idle {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: cannot begin capture while %s", models.ErrInvalidState, state)
	}

	w.epoch++
	epoch := w.epoch
	w.state = Analyzing
	w.draft = models.Draft{TempImagePath: tempPath, Tags: models.Tags{}}
	w.assistErr = nil
	w.commitErr = nil

	// the caller's context may end with its request; the assist call is
	// bounded by its own timeout and by Reset
	assistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.assistTimeout)
	w.cancel = cancel
	w.wg.Add(1)
	w.publishLocked()
	w.mu.Unlock()

	w.logger.Info("Capture started", "temp", tempPath)
	go w.analyze(assistCtx, cancel, epoch, tempPath)
	return nil
}

func (w *Workflow) analyze(ctx context.Context, cancel context.CancelFunc, epoch uint64, tempPath string) {
	defer w.wg.Done()
	defer cancel()

	var proposal models.Proposal
	err := fmt.Errorf("%w: no assistant configured", models.ErrAssistUnavailable)
	if w.assistant != nil {
		proposal, err = w.assistant.Analyze(ctx, tempPath)
	}

	w.mu.Lock()
	if w.epoch != epoch || w.state != Analyzing {
		w.mu.Unlock()
		w.logger.Debug("Dropping analysis for abandoned capture", "temp", tempPath)
		return
	}
	w.cancel = nil

	if err != nil {
		w.draft = degradedDraft(tempPath)
		w.assistErr = err
		w.logger.Warn("Analysis unavailable, continuing with empty draft", "temp", tempPath, "error", err)
	} else {
		w.draft = draftFromProposal(tempPath, proposal)
		w.logger.Info("Analysis complete", "temp", tempPath, "title", w.draft.Title, "confidence", w.draft.Confidence)
	}
	w.state = Confirming
	w.publishLocked()
	w.mu.Unlock()
}

func degradedDraft(tempPath string) models.Draft {
	return models.Draft{
		TempImagePath: tempPath,
		Category:      models.CategoryUncategorized,
		Tags:          models.Tags{},
	}
}

func draftFromProposal(tempPath string, p models.Proposal) models.Draft {
	tags := models.Tags{}
	for _, tag := range p.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return models.Draft{
		TempImagePath: tempPath,
		Title:         strings.TrimSpace(p.Title),
		Category:      models.NormalizeCategory(p.Category),
		Tags:          tags,
		Confidence:    clampConfidence(p.Confidence),
		AnalysisText:  strings.TrimSpace(p.Description),
	}
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// EditTitle replaces the draft title. Ignored outside Confirming.
func (w *Workflow) EditTitle(title string) {
	w.edit(func(d *models.Draft) { d.Title = strings.TrimSpace(title) })
}

// EditCategory replaces the draft category, mapped onto the category
// vocabulary. Ignored outside Confirming.
func (w *Workflow) EditCategory(category string) {
	w.edit(func(d *models.Draft) { d.Category = models.NormalizeCategory(category) })
}

// AddTag appends tag, even if the draft already has it. Blank tags and
// edits outside Confirming are ignored.
func (w *Workflow) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	w.edit(func(d *models.Draft) { d.Tags = d.Tags.Add(tag) })
}

// RemoveTag removes the first occurrence of tag. Later duplicates stay.
// Ignored outside Confirming.
func (w *Workflow) RemoveTag(tag string) {
	tag = strings.TrimSpace(tag)
	w.edit(func(d *models.Draft) { d.Tags = d.Tags.Remove(tag) })
}

// edit applies fn to the draft while the session is Confirming and no
// commit is in flight; otherwise it does nothing.
func (w *Workflow) edit(fn func(*models.Draft)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed || w.state != Confirming || w.committing {
		return
	}
	fn(&w.draft)
	w.publishLocked()
}

// Commit moves the photo into the permanent area and then writes the Item.
// On failure the session stays in Confirming and the returned
// *CommitFailedError says what went wrong. If the photo was moved but the
// Item was not written, the permanent path is kept and the next Commit
// retries only the catalog write, provided the photo is still there.
func (w *Workflow) Commit(ctx context.Context) (int64, error) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return 0, models.ErrDisposed
	}
	if w.state != Confirming || w.committing {
		state := w.state
		w.mu.Unlock()
		return 0, fmt.Errorf("%w: cannot commit while %s", models.ErrInvalidState, state)
	}
	w.committing = true
	w.commitErr = nil
	epoch := w.epoch
	draft := w.draft.Clone()
	permanent := w.orphan
	w.publishLocked()
	w.mu.Unlock()

	if permanent == "" {
		moved, err := w.store.Commit(ctx, draft.TempImagePath)
		if err != nil {
			return 0, w.failCommit(epoch, draft.TempImagePath, "", err)
		}
		permanent = moved

		w.mu.Lock()
		if w.epoch != epoch {
			w.mu.Unlock()
			return 0, w.abandonCommit("", permanent)
		}
		w.orphan = permanent
		w.mu.Unlock()
	} else if !w.store.Exists(permanent) {
		// removed behind the session's back; an Item must never reference it
		w.mu.Lock()
		if w.epoch == epoch && w.orphan == permanent {
			w.orphan = ""
		}
		w.mu.Unlock()
		return 0, w.failCommit(epoch, draft.TempImagePath, "",
			fmt.Errorf("%w: orphaned photo %s is gone", models.ErrIO, permanent))
	} else {
		w.logger.Info("Retrying catalog write for orphaned photo", "path", permanent)
	}

	id, err := w.catalog.Insert(ctx, models.Item{
		ImageLocation: permanent,
		Title:         draft.Title,
		Category:      draft.Category,
		Tags:          draft.Tags,
		AnalysisText:  draft.AnalysisText,
	})
	if err != nil {
		return 0, w.failCommit(epoch, "", permanent, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.committing = false
	if w.epoch != epoch {
		// the Item is durable and references its photo; only the session
		// view was abandoned
		w.logger.Info("Capture reset during commit, item kept", "id", id)
		return id, nil
	}
	w.state = Saved
	w.itemID = id
	w.orphan = ""
	w.publishLocked()

	w.logger.Info("Capture saved", "id", id, "image", permanent)
	return id, nil
}

// failCommit records a failed commit step. Exactly one of tempPath and
// permanent is set, naming the file the failed step was working on.
func (w *Workflow) failCommit(epoch uint64, tempPath, permanent string, cause error) error {
	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return w.abandonCommit(tempPath, permanent)
	}
	w.committing = false

	var reason error
	if permanent == "" {
		reason = cause
		if !errors.Is(cause, models.ErrIO) {
			reason = fmt.Errorf("%w: %v", models.ErrIO, cause)
		}
	} else {
		reason = cause
		if !errors.Is(cause, models.ErrPersist) {
			reason = fmt.Errorf("%w: %v", models.ErrPersist, cause)
		}
	}
	err := &CommitFailedError{Reason: reason, OrphanPath: permanent}
	w.commitErr = err
	w.publishLocked()
	w.mu.Unlock()

	w.logger.Error("Capture commit failed", "orphan", permanent, "error", reason)
	return err
}

// abandonCommit cleans up after a commit whose session was reset or
// disposed while it ran. Called without w.mu held.
func (w *Workflow) abandonCommit(tempPath, permanent string) error {
	w.mu.Lock()
	w.committing = false
	w.mu.Unlock()

	if tempPath != "" {
		w.store.DiscardTemp(tempPath)
	}
	if permanent != "" {
		if err := w.store.DiscardPermanent(permanent); err != nil {
			w.logger.Warn("Failed to reclaim photo of abandoned commit", "path", permanent, "error", err)
		}
	}
	return ErrSessionReset
}

// Reset abandons an Analyzing or Confirming session and returns it to
// Idle. An outstanding analysis is cancelled and its result ignored, the
// temp photo is deleted and an orphaned permanent photo is reclaimed. A
// commit in flight cleans up after itself when it returns. Reset is a
// no-op in Idle and Saved.
func (w *Workflow) Reset() {
	w.mu.Lock()
	if w.disposed || w.state == Idle || w.state == Saved {
		w.mu.Unlock()
		return
	}
	tempPath, orphan, committing := w.abandonLocked()
	w.state = Idle
	w.publishLocked()
	w.mu.Unlock()

	w.logger.Info("Capture reset", "temp", tempPath)
	if !committing {
		w.release(tempPath, orphan)
	}
}

// Dispose tears the session down. Work in progress is abandoned as by
// Reset, subscribers are dropped and later commands return
// models.ErrDisposed or do nothing.
func (w *Workflow) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	var tempPath, orphan string
	var committing bool
	if w.state == Analyzing || w.state == Confirming {
		tempPath, orphan, committing = w.abandonLocked()
		w.state = Idle
	}
	w.disposed = true
	w.mu.Unlock()

	w.states.Close()
	if !committing {
		w.release(tempPath, orphan)
	}
}

// abandonLocked cancels async work, advances the epoch and clears the
// draft. It returns the files the session held.
func (w *Workflow) abandonLocked() (tempPath, orphan string, committing bool) {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.epoch++
	tempPath = w.draft.TempImagePath
	orphan = w.orphan
	committing = w.committing

	w.draft = models.Draft{}
	w.orphan = ""
	w.assistErr = nil
	w.commitErr = nil
	return tempPath, orphan, committing
}

func (w *Workflow) release(tempPath, orphan string) {
	if tempPath == "" && orphan == "" {
		return
	}
	if orphan != "" {
		if err := w.store.DiscardPermanent(orphan); err != nil {
			w.logger.Warn("Failed to reclaim orphaned photo", "path", orphan, "error", err)
		}
		return
	}
	w.store.DiscardTemp(tempPath)
}

// Snapshot returns the current session state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// State returns the current phase.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe delivers the current snapshot and every later change to fn.
// fn runs synchronously and must not call back into the Workflow.
func (w *Workflow) Subscribe(fn func(Snapshot)) *live.Subscription {
	return w.states.Subscribe(fn)
}

func (w *Workflow) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      w.state,
		Draft:      w.draft.Clone(),
		ItemID:     w.itemID,
		OrphanPath: w.orphan,
		Committing: w.committing,
	}
	if w.assistErr != nil {
		snap.AssistErr = w.assistErr.Error()
	}
	if w.commitErr != nil {
		snap.CommitErr = w.commitErr.Error()
	}
	return snap
}

// publishLocked stamps the current snapshot with the next version and
// publishes it. Delivery happens under w.mu so subscribers observe states
// in order.
func (w *Workflow) publishLocked() {
	w.version++
	w.states.Publish(w.version, w.snapshotLocked())
}
