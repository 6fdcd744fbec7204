// Package sync reconciles the local replica with the remote replica.
//
// The engine owns the conflict-resolution policy (last-write-wins on
// updated_at), the dirty-record push, the remote pull, and the application of
// realtime change events. All remote failures are converted to a status an
// observer can watch; they never propagate as errors to callers.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkeogan/memosync/internal/domain"
	"github.com/pkeogan/memosync/internal/remote"
	"github.com/pkeogan/memosync/internal/storage"
)

// Status is the engine's externally visible sync state.
type Status string

const (
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// Observer receives engine notifications. Both methods are called outside the
// engine's lock and must not block for long.
type Observer interface {
	// SyncStatusChanged reports a status transition.
	SyncStatusChanged(Status)
	// DataChanged reports that remote-originated changes were applied to the
	// local store, so derived views need a refresh.
	DataChanged()
}

// Remote is the replica service surface the engine needs.
type Remote interface {
	SelectCards(ctx context.Context, userID string) ([]remote.CardRow, error)
	UpsertCards(ctx context.Context, rows []remote.CardRow) error
	SelectDecks(ctx context.Context, userID string) ([]remote.DeckRow, error)
	UpsertDecks(ctx context.Context, rows []remote.DeckRow) error
}

// Config holds engine tunables.
type Config struct {
	// Debounce is the trailing quiet period after a dirty mark before the
	// engine pushes. Repeated marks reset the timer; only the last one in a
	// window fires.
	Debounce time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Debounce: 2 * time.Second,
		Logger:   slog.Default(),
	}
}

// Engine orchestrates pull, push and realtime application for one
// authenticated identity. Constructed on sign-in, closed on sign-out.
type Engine struct {
	store  *storage.DB
	remote Remote
	userID string
	cfg    Config

	mu        sync.Mutex
	inFlight  bool // one pull/push cycle at a time; see FullSync
	closed    bool
	timer     *time.Timer
	status    Status
	observers []Observer
}

// New creates an engine for the given identity. The store is the authoritative
// local replica; the engine is its only writer for remote-originated changes.
func New(store *storage.DB, rem Remote, userID string, cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:  store,
		remote: rem,
		userID: userID,
		cfg:    cfg,
		status: StatusOffline,
	}
}

// Subscribe registers an observer for status and data-change events.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

// Status returns the engine's current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Close tears the engine down: the debounce timer is stopped and further
// notifications are suppressed. An already in-flight sync runs to completion
// silently; there is no cancellation.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.status = StatusOffline
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o.SyncStatusChanged(StatusOffline)
	}
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.status = s
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o.SyncStatusChanged(s)
	}
}

func (e *Engine) notifyDataChanged() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o.DataChanged()
	}
}

// begin claims the in-flight slot. Full sync and push share it: two
// concurrent push cycles could mark synced=true over a record the other
// cycle re-dirtied, so the guard is required, not cosmetic.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// FullSync runs one pull-then-push cycle. A call while a cycle is in flight
// is a no-op; it is neither queued nor retried, the next trigger tries again.
// A pull failure short-circuits the cycle: push runs only after a successful
// pull. Failures surface via the status observer, never as an error.
func (e *Engine) FullSync(ctx context.Context) {
	if !e.begin() {
		return
	}
	defer e.end()

	e.setStatus(StatusSyncing)

	changed, err := e.pull(ctx)
	if changed {
		e.notifyDataChanged()
	}
	if err != nil {
		e.cfg.Logger.Error("pull failed", "error", err)
		e.setStatus(StatusError)
		return
	}

	if err := e.push(ctx); err != nil {
		e.cfg.Logger.Error("push failed", "error", err)
		e.setStatus(StatusError)
		return
	}

	e.setStatus(StatusSynced)
}

// PushNow pushes dirty records immediately, outside the debounce window. Used
// for delete, where the tombstone should reach the remote as soon as
// possible. Best-effort: a failure leaves the records dirty for the next
// cycle.
func (e *Engine) PushNow(ctx context.Context) {
	if !e.begin() {
		return
	}
	defer e.end()

	if err := e.push(ctx); err != nil {
		e.cfg.Logger.Warn("push failed, records stay dirty", "error", err)
		e.setStatus(StatusError)
		return
	}
	e.setStatus(StatusSynced)
}

// MarkCardDirty flags a card as locally modified and schedules a debounced
// push.
func (e *Engine) MarkCardDirty(id string) error {
	if err := e.store.MarkCardDirty(id, domain.NowISO()); err != nil {
		return err
	}
	e.scheduleDebouncedPush()
	return nil
}

// MarkDeckDirty flags a deck as locally modified and schedules a debounced
// push.
func (e *Engine) MarkDeckDirty(id string) error {
	if err := e.store.MarkDeckDirty(id, domain.NowISO()); err != nil {
		return err
	}
	e.scheduleDebouncedPush()
	return nil
}

// scheduleDebouncedPush arms the process-wide push timer, resetting (not
// stacking) any pending one. At most one trailing push fires per quiet
// period.
func (e *Engine) scheduleDebouncedPush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.cfg.Debounce, func() {
		e.PushNow(context.Background())
	})
}

// push uploads all dirty records, cards and decks independently. On success
// exactly the pushed ids are marked synced; acknowledged tombstones are then
// hard-removed locally. On failure all affected records stay dirty.
func (e *Engine) push(ctx context.Context) error {
	if err := e.pushCards(ctx); err != nil {
		return err
	}
	return e.pushDecks(ctx)
}

func (e *Engine) pushCards(ctx context.Context) error {
	dirty, err := e.store.UnsyncedCards()
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	rows := make([]remote.CardRow, len(dirty))
	ids := make([]string, len(dirty))
	for i, c := range dirty {
		rows[i] = remote.CardRowFrom(c, e.userID)
		ids[i] = c.ID
	}
	if err := e.remote.UpsertCards(ctx, rows); err != nil {
		return err
	}
	if err := e.store.MarkCardsSynced(ids); err != nil {
		return err
	}
	for _, c := range dirty {
		if c.Deleted {
			if err := e.store.HardDeleteCard(c.ID); err != nil {
				return err
			}
		}
	}
	e.cfg.Logger.Info("pushed cards", "count", len(ids))
	return nil
}

func (e *Engine) pushDecks(ctx context.Context) error {
	dirty, err := e.store.UnsyncedDecks()
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	rows := make([]remote.DeckRow, len(dirty))
	ids := make([]string, len(dirty))
	for i, d := range dirty {
		rows[i] = remote.DeckRowFrom(d, e.userID)
		ids[i] = d.ID
	}
	if err := e.remote.UpsertDecks(ctx, rows); err != nil {
		return err
	}
	if err := e.store.MarkDecksSynced(ids); err != nil {
		return err
	}
	for _, d := range dirty {
		if d.Deleted {
			if err := e.store.HardDeleteDeck(d.ID); err != nil {
				return err
			}
		}
	}
	e.cfg.Logger.Info("pushed decks", "count", len(ids))
	return nil
}

// pull fetches all remote rows for the identity and merges them with
// last-write-wins: a remote row strictly newer than the local record wins
// wholesale, anything else preserves the local record. Returns whether local
// data changed.
func (e *Engine) pull(ctx context.Context) (bool, error) {
	changed := false

	cardRows, err := e.remote.SelectCards(ctx, e.userID)
	if err != nil {
		return changed, err
	}
	for _, row := range cardRows {
		applied, err := e.mergeCard(row)
		if err != nil {
			return changed, err
		}
		changed = changed || applied
	}

	deckRows, err := e.remote.SelectDecks(ctx, e.userID)
	if err != nil {
		return changed, err
	}
	for _, row := range deckRows {
		applied, err := e.mergeDeck(row)
		if err != nil {
			return changed, err
		}
		changed = changed || applied
	}

	return changed, nil
}

func (e *Engine) mergeCard(row remote.CardRow) (bool, error) {
	local, err := e.store.GetCard(row.ID)
	if err != nil {
		return false, err
	}

	if local == nil {
		if row.Deleted {
			// A tombstone with no local counterpart never materializes.
			return false, nil
		}
		card := row.Card()
		if err := e.store.PutCard(&card); err != nil {
			return false, err
		}
		return true, nil
	}

	// Last write wins, strictly: ties keep local.
	if domain.EpochMillis(row.UpdatedAt) <= domain.EpochMillis(local.UpdatedAt) {
		return false, nil
	}
	if row.Deleted {
		if err := e.store.HardDeleteCard(row.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	card := row.Card()
	// Image payloads never travel; a remote win keeps the local copies.
	card.QuestionImage = local.QuestionImage
	card.AnswerImage = local.AnswerImage
	if err := e.store.PutCard(&card); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) mergeDeck(row remote.DeckRow) (bool, error) {
	local, err := e.store.GetDeck(row.ID)
	if err != nil {
		return false, err
	}

	if local == nil {
		if row.Deleted {
			return false, nil
		}
		deck := row.Deck()
		if err := e.store.PutDeck(&deck); err != nil {
			return false, err
		}
		return true, nil
	}

	if domain.EpochMillis(row.UpdatedAt) <= domain.EpochMillis(local.UpdatedAt) {
		return false, nil
	}
	if row.Deleted {
		if err := e.store.HardDeleteDeck(row.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	deck := row.Deck()
	if err := e.store.PutDeck(&deck); err != nil {
		return false, err
	}
	return true, nil
}

// Apply applies one realtime change event directly to the local store,
// mirroring pull's per-row logic minus the timestamp comparison: realtime
// events are taken as the newest state at emission time. Returns whether
// local data changed.
func (e *Engine) Apply(change remote.Change) (bool, error) {
	switch change.Table {
	case "cards":
		return e.applyCardChange(change)
	case "decks":
		return e.applyDeckChange(change)
	default:
		return false, fmt.Errorf("unknown realtime table %q", change.Table)
	}
}

func changeRowID(change remote.Change) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	payload := change.Old
	if len(payload) == 0 {
		payload = change.New
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.ID == "" {
		return "", fmt.Errorf("realtime %s event without a row id", change.Type)
	}
	return probe.ID, nil
}

func (e *Engine) applyCardChange(change remote.Change) (bool, error) {
	if change.Type == remote.ChangeDelete {
		id, err := changeRowID(change)
		if err != nil {
			return false, err
		}
		return true, e.store.HardDeleteCard(id)
	}

	var row remote.CardRow
	if err := json.Unmarshal(change.New, &row); err != nil {
		return false, fmt.Errorf("failed to decode card change: %w", err)
	}
	if row.Deleted {
		return true, e.store.HardDeleteCard(row.ID)
	}

	card := row.Card()
	if local, err := e.store.GetCard(row.ID); err != nil {
		return false, err
	} else if local != nil {
		card.QuestionImage = local.QuestionImage
		card.AnswerImage = local.AnswerImage
	}
	return true, e.store.PutCard(&card)
}

func (e *Engine) applyDeckChange(change remote.Change) (bool, error) {
	if change.Type == remote.ChangeDelete {
		id, err := changeRowID(change)
		if err != nil {
			return false, err
		}
		return true, e.store.HardDeleteDeck(id)
	}

	var row remote.DeckRow
	if err := json.Unmarshal(change.New, &row); err != nil {
		return false, fmt.Errorf("failed to decode deck change: %w", err)
	}
	if row.Deleted {
		return true, e.store.HardDeleteDeck(row.ID)
	}
	deck := row.Deck()
	return true, e.store.PutDeck(&deck)
}

// Run consumes realtime change events until the channel closes or ctx is
// cancelled, applying each and notifying observers after changes land.
func (e *Engine) Run(ctx context.Context, changes <-chan remote.Change) {
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			applied, err := e.Apply(change)
			if err != nil {
				e.cfg.Logger.Warn("failed to apply realtime change", "table", change.Table, "type", change.Type, "error", err)
				continue
			}
			if applied {
				e.notifyDataChanged()
			}
		case <-ctx.Done():
			return
		}
	}
}
