package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/aisync/ai/mock"
	"github.com/poiesic/aisync/chunking"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/embedding"
	"github.com/poiesic/aisync/storage"
	"github.com/poiesic/aisync/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

type fixture struct {
	client *Client
	repo   storage.ChunkRepository
	mock   *mock.MockEmbedder
}

func newFixture(t *testing.T, chunkOpts ...chunking.Option) *fixture {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	m := mock.NewMockEmbedder()
	m.Dimension = testDim
	emb, err := embedding.NewEmbedder(m, "mock-model", testDim, embedding.WithRetry(0, time.Millisecond))
	require.NoError(t, err)

	chunker, err := chunking.NewChunker(chunking.ApproximateWordCounter{}, chunkOpts...)
	require.NoError(t, err)

	client, err := NewClient(repo, chunker, emb, WithRateLimit(10, 0))
	require.NoError(t, err)
	return &fixture{client: client, repo: repo, mock: m}
}

func doc(id, title, content, source string) Document {
	return Document{
		Title:      title,
		Content:    content,
		EntityType: core.EntityTypeConversation,
		EntityID:   id,
		Source:     source,
		Metadata:   map[string]string{"externalId": id},
	}
}

func TestNewClient_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewClient(nil, f.client.chunker, f.client.embedder)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewClient(f.repo, nil, f.client.embedder)
	assert.ErrorIs(t, err, ErrChunkerRequired)
	_, err = NewClient(f.repo, f.client.chunker, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewClient(f.repo, f.client.chunker, f.client.embedder, WithRateLimit(0, 0))
	assert.Error(t, err)
}

func TestCreateDocument(t *testing.T) {
	f := newFixture(t, chunking.WithChunkSize(20), chunking.WithChunkOverlap(4))
	ctx := context.Background()

	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	n, err := f.client.CreateDocument(ctx, "org", doc("conv1", "Long talk", strings.Join(words, " "), "CLAUDE:coding"))
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	count, err := f.client.Count(ctx, "org", core.EntityTypeConversation, "conv1")
	require.NoError(t, err)
	assert.Equal(t, n, count)

	chunks, err := f.client.GetChunks(ctx, "org", core.EntityTypeConversation, "conv1")
	require.NoError(t, err)
	ids := make(map[string]bool)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, n, chunk.TotalChunks)
		assert.Equal(t, "Long talk", chunk.Title)
		assert.Equal(t, "CLAUDE:coding", chunk.Source)
		assert.Equal(t, core.ContentHash(chunk.Content), chunk.ContentHash)
		assert.Len(t, chunk.Vector, testDim)
		assert.Equal(t, "conv1", chunk.Metadata["externalId"])
		assert.NotEmpty(t, chunk.ID)
		ids[chunk.ID] = true
	}
	assert.Len(t, ids, n, "chunk ids are unique")

	profile, err := f.repo.EmbeddingProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, &core.EmbeddingProfile{Model: "mock-model", Dimension: testDim}, profile)
}

func TestCreateDocument_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateDocument(ctx, "", doc("c", "t", "content", "CLAUDE"))
	assert.ErrorIs(t, err, core.ErrMissingOrganization)

	_, err = f.client.CreateDocument(ctx, "org", Document{Content: "content"})
	assert.ErrorIs(t, err, core.ErrMissingEntity)

	_, err = f.client.CreateDocument(ctx, "org", doc("c", "t", "  \n ", "CLAUDE"))
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Zero(t, f.mock.CallCount())
}

func TestCreateDocument_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mock.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("quota exceeded")
	}

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "t", "some content", "CLAUDE"))
	require.ErrorContains(t, err, "quota exceeded")

	count, err := f.client.Count(ctx, "org", core.EntityTypeConversation, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReplaceDocument(t *testing.T) {
	f := newFixture(t, chunking.WithChunkSize(8), chunking.WithChunkOverlap(2))
	ctx := context.Background()

	long := strings.Repeat("lorem ipsum dolor sit amet ", 6)
	before, err := f.client.CreateDocument(ctx, "org", doc("c1", "old", long, "CLAUDE"))
	require.NoError(t, err)
	require.Greater(t, before, 1)

	n, err := f.client.ReplaceDocument(ctx, "org", doc("c1", "new", "short answer", "CLAUDE:coding"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chunks, err := f.client.GetChunks(ctx, "org", core.EntityTypeConversation, "c1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].Title)
	assert.Equal(t, "CLAUDE:coding", chunks[0].Source)
	assert.Equal(t, 1, chunks[0].TotalChunks)
}

func TestReplaceDocument_EmbeddingFailureKeepsStoredChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "old", "original content", "CLAUDE"))
	require.NoError(t, err)

	f.mock.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}
	_, err = f.client.ReplaceDocument(ctx, "org", doc("c1", "new", "changed content", "CLAUDE"))
	require.ErrorContains(t, err, "provider down")

	chunks, err := f.client.GetChunks(ctx, "org", core.EntityTypeConversation, "c1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "old", chunks[0].Title)
}

func TestCreateDocument_EmbeddingMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SetEmbeddingProfile(ctx, &core.EmbeddingProfile{Model: "other-model", Dimension: 1536}))

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "t", "some content", "CLAUDE"))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Zero(t, f.mock.CallCount())
}

func TestSearchSimilar_Vector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "Kyoto", "plan a trip to kyoto temples", "DEEPSEEK:travel"))
	require.NoError(t, err)
	_, err = f.client.CreateDocument(ctx, "org", doc("c2", "Go", "refactor the golang http server", "CLAUDE:coding"))
	require.NoError(t, err)

	results, err := f.client.SearchSimilar(ctx, "org", "plan a trip to kyoto temples", SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Record.EntityID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	results, err = f.client.SearchSimilar(ctx, "org", "plan a trip to kyoto temples", SearchOptions{SourcePrefix: "CLAUDE"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "c2", r.Record.EntityID, "source filter applies to every path")
	}

	results, err = f.client.SearchSimilar(ctx, "other-org", "plan a trip to kyoto temples", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilar_TextFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "Kyoto itinerary", "three days of temples and gardens", "DEEPSEEK:travel"))
	require.NoError(t, err)
	_, err = f.client.CreateDocument(ctx, "org", doc("c2", "Budget", "monthly expenses spreadsheet", "CHATGPT:finance"))
	require.NoError(t, err)

	// unrelated wording keeps every cosine score under the threshold
	results, err := f.client.SearchSimilar(ctx, "org", "kyoto", SearchOptions{Threshold: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Record.EntityID)
	assert.GreaterOrEqual(t, results[0].Score, float32(0.5))

	results, err = f.client.SearchSimilar(ctx, "org", "zz", SearchOptions{Threshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, results, "terms shorter than three characters are ignored")
}

func TestSearchSimilar_EmbeddingFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "Budget review", "quarterly expenses", "CHATGPT:finance"))
	require.NoError(t, err)

	f.mock.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("service down")
	}
	results, err := f.client.SearchSimilar(ctx, "org", "budget", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Record.EntityID)
}

func TestSearchSimilar_DeduplicatesByContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := f.client.CreateDocument(ctx, "org", doc(id, "Same", "identical body text", "CLAUDE"))
		require.NoError(t, err)
	}
	_, err := f.client.CreateDocument(ctx, "org", doc("c4", "Same", "identical body text plus more", "CLAUDE"))
	require.NoError(t, err)

	results, err := f.client.SearchSimilar(ctx, "org", "identical body text", SearchOptions{Threshold: 0.1})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = f.client.SearchSimilar(ctx, "org", "identical body text", SearchOptions{Threshold: 0.1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t, chunking.WithChunkSize(8), chunking.WithChunkOverlap(2))
	ctx := context.Background()

	long := strings.Repeat("lorem ipsum dolor sit amet ", 6)
	_, err := f.client.CreateDocument(ctx, "org", doc("c1", "one", long, "CHATGPT:coding"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = f.client.CreateDocument(ctx, "org", doc("c2", "two", long, "CHATGPT"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = f.client.CreateDocument(ctx, "org", doc("c3", "three", long, "CLAUDE:coding"))
	require.NoError(t, err)

	docs, err := f.client.ListDocuments(ctx, "org", storage.ChunkFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"c3", "c2", "c1"}, []string{docs[0].EntityID, docs[1].EntityID, docs[2].EntityID})

	docs, err = f.client.ListDocuments(ctx, "org", storage.ChunkFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c2", docs[0].EntityID)

	docs, err = f.client.ListDocuments(ctx, "org", storage.ChunkFilter{}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	deleted, err := f.client.DeleteByEntity(ctx, "org", core.EntityTypeConversation, "c3")
	require.NoError(t, err)
	assert.Greater(t, deleted, 1)

	deleted, err = f.client.DeleteBySourcePrefix(ctx, "org", core.EntityTypeConversation, "CHATGPT")
	require.NoError(t, err)
	assert.Greater(t, deleted, 2)

	docs, err = f.client.ListDocuments(ctx, "org", storage.ChunkFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = f.client.DeleteBySourcePrefix(ctx, "org", core.EntityTypeConversation, "")
	assert.Error(t, err)
}
