package slack

import (
	"context"
	"fmt"

	"github.com/reportbot/reportbot/pkg/models"
)

// Publisher posts finished aggregation records to the master report channel.
// It implements core.MasterPublisher.
type Publisher struct {
	transport Transport
}

// NewPublisher creates a Publisher over the given transport.
func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport}
}

// PublishMaster posts the master report and, when present, the meeting
// summary as a threaded reply under it.
func (p *Publisher) PublishMaster(ctx context.Context, channelID string, record models.AggregationRecord) error {
	ts, err := p.transport.PostMessage(ctx, channelID,
		"\U0001f4ca Daily Master Report", masterReportBlocks(record))
	if err != nil {
		return fmt.Errorf("posting master report: %w", err)
	}

	if record.MeetingSummaryText != "" {
		reply := []Block{sectionBlock(record.MeetingSummaryText)}
		if err := p.transport.PostThreadReply(ctx, channelID, ts, "\U0001f4dd Meeting Summary", reply); err != nil {
			return fmt.Errorf("posting meeting summary reply: %w", err)
		}
	}
	return nil
}
