package slack

import (
	"fmt"

	"github.com/reportbot/reportbot/pkg/models"
)

// Block is a single Block Kit block.
type Block struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func headerBlock(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text}}
}

func sectionBlock(markdown string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: markdown}}
}

func dividerBlock() Block {
	return Block{Type: "divider"}
}

// collectionPromptBlocks is the thread-anchor message posted to a channel
// when a collection window opens.
func collectionPromptBlocks(subteam string) []Block {
	return []Block{
		headerBlock(fmt.Sprintf("\U0001f4dd Daily Report - %s", subteam)),
		sectionBlock("Please reply to this thread with what you accomplished today!"),
		dividerBlock(),
		sectionBlock("_Your report will be collected and summarized at the end of the day._"),
	}
}

// masterReportBlocks renders a completed aggregation record for the master
// channel.
func masterReportBlocks(record models.AggregationRecord) []Block {
	blocks := []Block{
		headerBlock("\U0001f4ca Daily Master Report"),
		sectionBlock(record.MasterSummaryText),
		dividerBlock(),
		sectionBlock("*Team Summaries:*"),
	}
	for _, r := range record.PerChannel {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*%s* (%s)\n%s",
			r.SubteamLabel, pluralReports(r.ContributionCount), r.SummaryText)))
	}
	return blocks
}

func pluralReports(n int) string {
	if n == 1 {
		return "1 report"
	}
	return fmt.Sprintf("%d reports", n)
}
