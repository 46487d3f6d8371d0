// Package archive writes evicted conversation transcripts to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// S3API is the subset of the S3 client used by TranscriptArchive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TranscriptArchive stores transcripts of sessions dropped by the session store.
type TranscriptArchive struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewTranscriptArchive creates an archive. If bucket is empty, all operations are no-ops.
func NewTranscriptArchive(s3Client S3API, bucket string, logger *logging.Logger) *TranscriptArchive {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptArchive{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (a *TranscriptArchive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// SessionEvicted archives the session's transcript.
func (a *TranscriptArchive) SessionEvicted(ctx context.Context, session conversation.Session, evictedAt time.Time) error {
	if !a.Enabled() {
		return nil
	}
	return a.ArchiveTranscript(ctx, NewTranscript(session, evictedAt))
}

// NewTranscript converts a session into its archived form with PII scrubbed.
func NewTranscript(session conversation.Session, evictedAt time.Time) *Transcript {
	msgs := make([]Message, 0, len(session.History))
	for _, msg := range session.History {
		if msg.Role == conversation.ChatRoleSystem {
			continue
		}
		msgs = append(msgs, Message{Role: msg.Role, Content: msg.Content})
	}
	ScrubMessages(msgs)
	return &Transcript{
		Version:      transcriptVersion,
		UserID:       session.UserID,
		StartedAt:    session.CreatedAt.UTC(),
		LastActive:   session.LastActive.UTC(),
		EvictedAt:    evictedAt.UTC(),
		UserTurns:    session.UserTurns(),
		MessageCount: len(msgs),
		Messages:     msgs,
	}
}

// TranscriptKey is the object key for a transcript evicted at evictedAt.
func TranscriptKey(userID string, evictedAt time.Time) string {
	at := evictedAt.UTC()
	return fmt.Sprintf("transcripts/v1/%d/%02d/%02d/%s-%s.json",
		at.Year(), at.Month(), at.Day(), userID, at.Format("20060102T150405Z"))
}

// ArchiveTranscript writes a transcript as JSON to S3 and appends to the manifest.
func (a *TranscriptArchive) ArchiveTranscript(ctx context.Context, transcript *Transcript) error {
	if !a.Enabled() {
		return nil
	}
	if transcript.EvictedAt.IsZero() {
		transcript.EvictedAt = time.Now().UTC()
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("archive: marshal transcript: %w", err)
	}

	key := TranscriptKey(transcript.UserID, transcript.EvictedAt)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	a.logger.Info("archived transcript to S3",
		"user_id", transcript.UserID,
		"s3_key", key,
		"message_count", transcript.MessageCount,
	)

	entry := ManifestEntry{
		UserID:       transcript.UserID,
		S3Key:        key,
		EvictedAt:    transcript.EvictedAt.Format(time.RFC3339),
		UserTurns:    transcript.UserTurns,
		MessageCount: transcript.MessageCount,
	}
	if err := a.AppendManifest(ctx, transcript.EvictedAt, entry); err != nil {
		// The transcript itself is already stored.
		a.logger.Warn("failed to append manifest", "error", err, "user_id", transcript.UserID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// S3 has no append, so this is read-modify-write.
func (a *TranscriptArchive) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !a.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	at = at.UTC()
	manifestKey := fmt.Sprintf("transcripts/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	getResp, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		a.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

var _ conversation.EvictionSink = (*TranscriptArchive)(nil)
