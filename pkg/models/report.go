// Package models defines the shared data model for the report bot:
// collection windows, contributions, summary results, and archived
// aggregation records.
package models

import "time"

// CollectionWindow represents one open collection period for one channel.
// At most one window exists per channel at any time; a new start-collection
// request replaces the old window and discards its contributions.
type CollectionWindow struct {
	ChannelID      string    `json:"channel_id"`
	AnchorThreadID string    `json:"anchor_thread_id"`
	OpenedAt       time.Time `json:"opened_at"`
}

// Contribution is one team member's status-update reply, valid only while
// its channel has an open window whose anchor matches the reply's thread.
type Contribution struct {
	ChannelID         string    `json:"channel_id"`
	AuthorID          string    `json:"author_id"`
	AuthorDisplayName string    `json:"author_display_name"`
	Text              string    `json:"text"`
	ArrivedAt         time.Time `json:"arrived_at"`
}

// RejectReason explains why an inbound reply was not ledgered.
type RejectReason string

const (
	// RejectNoActiveWindow means the channel has no open collection window.
	RejectNoActiveWindow RejectReason = "no_active_window"
	// RejectWrongThread means the reply belongs to a thread other than the
	// channel's current anchor.
	RejectWrongThread RejectReason = "wrong_thread"
)

// ChannelSummaryResult is the output of summarizing one subteam group's
// contributions within a single aggregation cycle.
type ChannelSummaryResult struct {
	ChannelID         string   `json:"channel_id"`
	ChannelName       string   `json:"channel_name"`
	SubteamLabel      string   `json:"subteam_label"`
	MemberChannelIDs  []string `json:"member_channel_ids,omitempty"`
	SummaryText       string   `json:"summary_text"`
	ContributionCount int      `json:"contribution_count"`
	Degraded          bool     `json:"degraded,omitempty"`
	Truncated         bool     `json:"truncated,omitempty"`
}

// AggregationRecord is the persisted result of one full aggregation cycle.
// Records are immutable once written; the archive is append-only. Date is not
// unique across records because manual triggers can run several cycles in one
// calendar day.
type AggregationRecord struct {
	ID                 string                 `json:"id"`
	Date               string                 `json:"date"`
	MasterSummaryText  string                 `json:"master_summary_text"`
	MeetingSummaryText string                 `json:"meeting_summary_text,omitempty"`
	PerChannel         []ChannelSummaryResult `json:"per_channel"`
	TotalContributions int                    `json:"total_contributions"`
	CreatedAt          time.Time              `json:"created_at"`
}
