package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valooran/patient-intake-system/internal/conversation"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func testSession() conversation.Session {
	started := time.Date(2026, 2, 12, 14, 0, 0, 0, time.UTC)
	return conversation.Session{
		UserID: "user-42",
		History: []conversation.ChatMessage{
			{Role: conversation.ChatRoleSystem, Content: "system prompt"},
			{Role: conversation.ChatRoleUser, Content: "I have a headache, email me at jo@example.com"},
			{Role: conversation.ChatRoleAssistant, Content: `{"reply":"How long has it lasted?"}`},
		},
		CreatedAt:  started,
		LastActive: started.Add(10 * time.Minute),
	}
}

func TestTranscriptArchive_SessionEvicted(t *testing.T) {
	mock := newMockS3()
	archive := NewTranscriptArchive(mock, "test-bucket", nil)
	evictedAt := time.Date(2026, 2, 12, 15, 4, 5, 0, time.UTC)

	require.NoError(t, archive.SessionEvicted(context.Background(), testSession(), evictedAt))

	// transcript + manifest
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "transcripts/v1/2026/02/12/user-42-20260212T150405Z.json", mock.putCalls[0].key)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, "user-42", decoded.UserID)
	assert.Equal(t, 1, decoded.UserTurns)
	require.Len(t, decoded.Messages, 2, "system prompt is not archived")
	assert.Contains(t, decoded.Messages[0].Content, "[EMAIL]")
	assert.NotContains(t, decoded.Messages[0].Content, "jo@example.com")

	assert.Equal(t, "transcripts/v1/manifests/2026-02.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, mock.putCalls[0].key, entry.S3Key)
}

func TestTranscriptArchive_Disabled(t *testing.T) {
	archive := NewTranscriptArchive(nil, "", nil)
	assert.False(t, archive.Enabled())
	assert.NoError(t, archive.SessionEvicted(context.Background(), testSession(), time.Now()))
}

func TestTranscriptArchive_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	archive := NewTranscriptArchive(mock, "test-bucket", nil)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, archive.AppendManifest(context.Background(), at, ManifestEntry{UserID: "a"}))
	require.NoError(t, archive.AppendManifest(context.Background(), at, ManifestEntry{UserID: "b"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestTranscriptArchive_ManifestReadFailureKeepsTranscript(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	archive := NewTranscriptArchive(mock, "test-bucket", nil)

	err := archive.SessionEvicted(context.Background(), testSession(), time.Now())
	require.NoError(t, err)
	assert.Len(t, mock.putCalls, 1)
}

func TestTranscriptArchive_WiredAsEvictionSink(t *testing.T) {
	mock := newMockS3()
	archive := NewTranscriptArchive(mock, "test-bucket", nil)
	store := conversation.NewMemorySessionStore(conversation.WithMaxSessions(1), conversation.WithEvictionSink(archive))

	ctx := context.Background()
	seed := conversation.ChatMessage{Role: conversation.ChatRoleSystem, Content: "seed"}
	_, err := store.Create(ctx, "first", seed)
	require.NoError(t, err)
	_, err = store.Create(ctx, "second", seed)
	require.NoError(t, err)

	require.NotEmpty(t, mock.putCalls)
	assert.Contains(t, mock.putCalls[0].key, "/first-")
}
