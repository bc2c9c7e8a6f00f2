package core

import (
	"sync"

	"github.com/reportbot/reportbot/pkg/models"
)

// AnchorSource pins a channel's window state for the duration of a callback:
// fn observes the current anchor and no replacement can begin until fn
// returns. CollectionRegistry satisfies this.
type AnchorSource interface {
	WithAnchor(channelID string, fn func(anchor string, open bool))
}

// IngestResult is the outcome of recording one inbound reply.
type IngestResult struct {
	Accepted bool
	Reason   models.RejectReason
}

// ReportLedger is the append-only record of contributions for the currently
// open collection windows. Rejections are silent to the end user by design;
// callers surface them only to logs.
type ReportLedger interface {
	// Record appends the contribution iff its channel has an open window and
	// replyThreadID matches the window's anchor.
	Record(c models.Contribution, replyThreadID string) IngestResult
	// Snapshot returns the channel's contributions in arrival order without
	// consuming them.
	Snapshot(channelID string) []models.Contribution
	// Drain returns the channel's contributions in arrival order and clears
	// them, atomically with respect to concurrent Record calls: anything
	// recorded strictly before the drain is included, anything after is not.
	Drain(channelID string) []models.Contribution
	// Drop discards the channel's contributions, returning how many were
	// dropped. Used when a collection window is replaced.
	Drop(channelID string) int
}

type reportLedger struct {
	mu      sync.Mutex
	entries map[string][]models.Contribution
	anchors AnchorSource
}

// NewReportLedger creates a ReportLedger gated by the given anchor source.
func NewReportLedger(anchors AnchorSource) ReportLedger {
	return &reportLedger{
		entries: make(map[string][]models.Contribution),
		anchors: anchors,
	}
}

func (l *reportLedger) Record(c models.Contribution, replyThreadID string) IngestResult {
	var res IngestResult
	// Validate and append while the window state is pinned. A replacement
	// cannot land between the anchor check and the append, so its discard
	// sees every contribution of the old window and none of the new one.
	l.anchors.WithAnchor(c.ChannelID, func(anchor string, open bool) {
		switch {
		case !open:
			res = IngestResult{Reason: models.RejectNoActiveWindow}
		case replyThreadID != anchor:
			res = IngestResult{Reason: models.RejectWrongThread}
		default:
			l.mu.Lock()
			l.entries[c.ChannelID] = append(l.entries[c.ChannelID], c)
			l.mu.Unlock()
			res = IngestResult{Accepted: true}
		}
	})
	return res
}

func (l *reportLedger) Snapshot(channelID string) []models.Contribution {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[channelID]
	out := make([]models.Contribution, len(entries))
	copy(out, entries)
	return out
}

func (l *reportLedger) Drain(channelID string) []models.Contribution {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[channelID]
	delete(l.entries, channelID)
	return entries
}

func (l *reportLedger) Drop(channelID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries[channelID])
	delete(l.entries, channelID)
	return n
}
