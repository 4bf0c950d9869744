package storage

import (
	"testing"
	"time"

	"github.com/poiesic/aisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRecord() *core.ChunkRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &core.ChunkRecord{
		ID:             "5f0c3c1e-7a4b-4bb1-9e61-2a8e3f0d8c11",
		OrganizationID: "org-1",
		EntityType:     core.EntityTypeConversation,
		EntityID:       "abc123",
		ChunkIndex:     2,
		TotalChunks:    3,
		Title:          "Trip planning",
		Content:        "USER: Plan a trip to Kyoto",
		ContentHash:    core.ContentHash("USER: Plan a trip to Kyoto"),
		Source:         "DEEPSEEK:travel",
		TokenCount:     8,
		Metadata:       map[string]string{"externalId": "c1", "model": "deepseek-chat", "appName": "travel"},
		Vector:         []float32{0.1, -0.5, 0.25, 1},
		InsertedAt:     now,
		UpdatedAt:      now.Add(time.Minute),
	}
}

func TestMarshalUnmarshalChunkRecord(t *testing.T) {
	tests := []struct {
		name   string
		record *core.ChunkRecord
	}{
		{"full record", fullRecord()},
		{"minimal record", &core.ChunkRecord{OrganizationID: "org", EntityType: "t", EntityID: "e"}},
		{"unicode content", &core.ChunkRecord{ID: "x", Title: "京都旅行", Content: "こんにちは 🌸"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalChunkRecord(tt.record)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalChunkRecord(data)
			require.NoError(t, err)
			assert.Equal(t, tt.record, decoded)
		})
	}
}

func TestUnmarshalChunkRecord_ZeroTimes(t *testing.T) {
	record := &core.ChunkRecord{ID: "x", OrganizationID: "org"}

	decoded, err := UnmarshalChunkRecord(MarshalChunkRecord(record))
	require.NoError(t, err)
	assert.True(t, decoded.InsertedAt.IsZero())
	assert.True(t, decoded.UpdatedAt.IsZero())
	assert.Nil(t, decoded.Metadata)
	assert.Nil(t, decoded.Vector)
}

func TestUnmarshalChunkRecord_Invalid(t *testing.T) {
	data := MarshalChunkRecord(fullRecord())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"truncated", data[:len(data)/2]},
		{"missing trailer", data[:len(data)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalChunkRecord(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestMarshalUnmarshalEmbeddingProfile(t *testing.T) {
	profile := &core.EmbeddingProfile{Model: "text-embedding-3-small", Dimension: 1536}

	decoded, err := UnmarshalEmbeddingProfile(MarshalEmbeddingProfile(profile))
	require.NoError(t, err)
	assert.Equal(t, profile, decoded)

	_, err = UnmarshalEmbeddingProfile(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestChunkFilter_Matches(t *testing.T) {
	record := fullRecord()

	tests := []struct {
		name   string
		filter ChunkFilter
		want   bool
	}{
		{"empty filter", ChunkFilter{}, true},
		{"entity match", ChunkFilter{EntityType: core.EntityTypeConversation, EntityID: "abc123"}, true},
		{"entity mismatch", ChunkFilter{EntityID: "other"}, false},
		{"exact source", ChunkFilter{Source: "DEEPSEEK:travel"}, true},
		{"exact source mismatch", ChunkFilter{Source: "DEEPSEEK"}, false},
		{"source prefix", ChunkFilter{SourcePrefix: "DEEPSEEK"}, true},
		{"source prefix mismatch", ChunkFilter{SourcePrefix: "CLAUDE"}, false},
		{"app suffix", ChunkFilter{SourceContains: ":travel"}, true},
		{"app suffix mismatch", ChunkFilter{SourceContains: ":coding"}, false},
		{"first only rejects later chunks", ChunkFilter{FirstOnly: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(record))
		})
	}
}
