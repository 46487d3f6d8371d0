package archive

import "time"

const transcriptVersion = "1.0"

// Transcript is the JSON document written for an evicted session.
type Transcript struct {
	Version      string    `json:"version"`
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActive   time.Time `json:"last_active"`
	EvictedAt    time.Time `json:"evicted_at"`
	UserTurns    int       `json:"user_turns"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages"`
}

// Message is a single conversation turn. System instructions are not archived.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	UserID       string `json:"user_id"`
	S3Key        string `json:"s3_key"`
	EvictedAt    string `json:"evicted_at"`
	UserTurns    int    `json:"user_turns"`
	MessageCount int    `json:"message_count"`
}
