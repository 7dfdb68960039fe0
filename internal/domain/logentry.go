package domain

import "time"

// Speaker identifies which part of the workflow produced a log entry.
type Speaker string

const (
	SpeakerResearcher Speaker = "researcher"
	SpeakerJudge      Speaker = "judge"
	SpeakerExecutor   Speaker = "executor"
	SpeakerSystem     Speaker = "system"
)

// Sentiment tags a log entry for the observability stream.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// LogEntry is one line of the resolution narration. Entries are append-only
// and globally ordered by creation; the global stream is truncated to a
// bounded trailing window (oldest dropped first), while a per-market derived
// view is retained for each market.
type LogEntry struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id,omitempty"`
	Speaker   Speaker   `json:"speaker"`
	Message   string    `json:"message"`
	Sentiment Sentiment `json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}
