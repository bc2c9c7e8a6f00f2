package core

import (
	"sync"
	"time"

	"github.com/reportbot/reportbot/pkg/models"
)

// CollectionRegistry tracks, per channel, whether a collection window is open
// and which thread anchors it. It enforces at most one open window per
// channel: opening a window for a channel that already has one replaces it.
type CollectionRegistry interface {
	// StartCollection opens (or replaces) the window for channelID. When a
	// window is replaced, any contributions ledgered under the old window are
	// discarded through the registered discard hook.
	StartCollection(channelID, anchorThreadID string) models.CollectionWindow
	IsOpen(channelID string) bool
	// AnchorFor returns the anchor thread ID for the channel's open window,
	// or false if no window is open.
	AnchorFor(channelID string) (string, bool)
	// WithAnchor runs fn with the channel's current anchor while holding the
	// registry lock, so StartCollection cannot interleave with fn. fn must
	// not call back into the registry.
	WithAnchor(channelID string, fn func(anchor string, open bool))
	// OpenWindows returns a copy of all currently open windows.
	OpenWindows() []models.CollectionWindow
	// CloseAll atomically closes every open window and returns the channel
	// IDs that were open. Used only by the aggregation engine at cycle end.
	CloseAll() []string
}

// DiscardFunc drops a channel's ledgered contributions when its window is
// replaced, returning how many were discarded.
type DiscardFunc func(channelID string) int

// ReplacedFunc observes window replacements for logging.
type ReplacedFunc func(channelID string, discarded int)

type collectionRegistry struct {
	mu         sync.Mutex
	windows    map[string]models.CollectionWindow
	discard    DiscardFunc
	onReplaced ReplacedFunc
	now        func() time.Time
}

// NewCollectionRegistry creates a CollectionRegistry. discard may be nil if
// no ledger is attached (tests); onReplaced may be nil.
func NewCollectionRegistry(discard DiscardFunc, onReplaced ReplacedFunc) CollectionRegistry {
	return &collectionRegistry{
		windows:    make(map[string]models.CollectionWindow),
		discard:    discard,
		onReplaced: onReplaced,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *collectionRegistry) StartCollection(channelID, anchorThreadID string) models.CollectionWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.windows[channelID]
	w := models.CollectionWindow{
		ChannelID:      channelID,
		AnchorThreadID: anchorThreadID,
		OpenedAt:       r.now(),
	}
	r.windows[channelID] = w

	// Install and discard form one critical section. Record appends under
	// this same lock via WithAnchor, so the discard sees every contribution
	// of the old window and never touches one recorded under the new anchor.
	// Lock order is registry then ledger everywhere.
	if replaced {
		discarded := 0
		if r.discard != nil {
			discarded = r.discard(channelID)
		}
		if r.onReplaced != nil {
			r.onReplaced(channelID, discarded)
		}
	}
	return w
}

func (r *collectionRegistry) WithAnchor(channelID string, fn func(anchor string, open bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[channelID]
	fn(w.AnchorThreadID, ok)
}

func (r *collectionRegistry) IsOpen(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.windows[channelID]
	return ok
}

func (r *collectionRegistry) AnchorFor(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[channelID]
	if !ok {
		return "", false
	}
	return w.AnchorThreadID, true
}

func (r *collectionRegistry) OpenWindows() []models.CollectionWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	windows := make([]models.CollectionWindow, 0, len(r.windows))
	for _, w := range r.windows {
		windows = append(windows, w)
	}
	return windows
}

func (r *collectionRegistry) CloseAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := make([]string, 0, len(r.windows))
	for id := range r.windows {
		channels = append(channels, id)
	}
	r.windows = make(map[string]models.CollectionWindow)
	return channels
}
