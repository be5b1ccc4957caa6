package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkContents(t *testing.T, text string, cfg ChunkConfig) []string {
	t.Helper()
	chunks := ChunkContent(text, cfg, &DefaultUUIDGenerator{})
	contents := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}
	return contents
}

func TestChunkContent_EmptyInput(t *testing.T) {
	cfg := DefaultChunkConfig()
	assert.Empty(t, ChunkContent("", cfg, &DefaultUUIDGenerator{}))
	assert.Empty(t, ChunkContent("   \n\n\t  ", cfg, &DefaultUUIDGenerator{}))
	assert.Empty(t, ChunkContent("\x00\x00", cfg, &DefaultUUIDGenerator{}))
}

func TestChunkContent_Normalization(t *testing.T) {
	chunks := ChunkContent("  line one\r\nline\x00 two\r\n  ", DefaultChunkConfig(), &DefaultUUIDGenerator{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "line one\nline two", chunks[0].Content)
}

func TestChunkContent_TwoParagraphsFitOneChunk(t *testing.T) {
	chunks := ChunkContent("Paragraph one.\n\nParagraph two.", DefaultChunkConfig(), &DefaultUUIDGenerator{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Paragraph one.\n\nParagraph two.", chunks[0].Content)
	assert.Equal(t, len(chunks[0].Content), chunks[0].Size)
	assert.NotEmpty(t, chunks[0].ID)
	assert.Len(t, chunks[0].Checksum, 64)
	assert.GreaterOrEqual(t, chunks[0].TokenCount, 1)
}

func TestChunkContent_ParagraphAccumulation(t *testing.T) {
	p1 := strings.Repeat("a", 120)
	p2 := strings.Repeat("b", 120)
	p3 := strings.Repeat("c", 120)
	cfg := ChunkConfig{ChunkSize: 260, ChunkOverlap: 0}

	contents := chunkContents(t, p1+"\n\n"+p2+"\n\n"+p3, cfg)

	// p1+p2 plus separator is 242 <= 260; adding p3 would overflow.
	require.Len(t, contents, 2)
	assert.Equal(t, p1+"\n\n"+p2, contents[0])
	assert.Equal(t, p3, contents[1])
}

func TestChunkContent_OversizeParagraphIsWindowSplit(t *testing.T) {
	long := strings.Repeat("x", 700)
	cfg := ChunkConfig{ChunkSize: 300, ChunkOverlap: 100}

	contents := chunkContents(t, long, cfg)

	// Step 200: windows at 0, 200, and 400; the last one reaches the end.
	require.Len(t, contents, 3)
	assert.Equal(t, 300, len(contents[0]))
	assert.Equal(t, 300, len(contents[1]))
	assert.Equal(t, 300, len(contents[2]))

	// Consecutive windows share the overlap region.
	assert.Equal(t, contents[0][200:], contents[1][:100])
}

func TestChunkContent_NeverExceedsChunkSize(t *testing.T) {
	text := strings.Repeat("word ", 2000) + "\n\n" + strings.Repeat("z", 5000)
	cfg := ChunkConfig{ChunkSize: 400, ChunkOverlap: 50}

	for _, c := range ChunkContent(text, cfg, &DefaultUUIDGenerator{}) {
		assert.LessOrEqual(t, len([]rune(c.Content)), cfg.ChunkSize)
		assert.NotEmpty(t, c.Content)
	}
}

func TestChunkContent_MultibyteBoundsAreRuneMeasured(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("日本語テキスト ", 200))
	cfg := ChunkConfig{ChunkSize: 250, ChunkOverlap: 25}

	chunks := ChunkContent(text, cfg, &DefaultUUIDGenerator{})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, len([]rune(c.Content)), c.Size)
		assert.LessOrEqual(t, c.Size, cfg.ChunkSize)
	}
}

func TestChunkContent_MultibyteParagraphAccumulation(t *testing.T) {
	p1 := strings.Repeat("ä", 120)
	p2 := strings.Repeat("ö", 120)
	cfg := ChunkConfig{ChunkSize: 250, ChunkOverlap: 0}

	// 120+2+120 runes fit within 250 even though the byte length is larger.
	contents := chunkContents(t, p1+"\n\n"+p2, cfg)
	require.Len(t, contents, 1)
	assert.Equal(t, p1+"\n\n"+p2, contents[0])
}

func TestChunkContent_Deterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma. ", 400)
	cfg := ChunkConfig{ChunkSize: 500, ChunkOverlap: 120}

	first := chunkContents(t, text, cfg)
	second := chunkContents(t, text, cfg)
	assert.Equal(t, first, second)

	a := ChunkContent(text, cfg, &DefaultUUIDGenerator{})
	b := ChunkContent(text, cfg, &DefaultUUIDGenerator{})
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Checksum, b[i].Checksum)
		assert.NotEqual(t, a[i].ID, b[i].ID)
	}
}

func TestChunkConfig_Clamping(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 50, ChunkOverlap: 500}.normalize()
	assert.Equal(t, minChunkSize, cfg.ChunkSize)
	assert.Equal(t, minChunkSize-1, cfg.ChunkOverlap)

	cfg = ChunkConfig{}.normalize()
	assert.Equal(t, defaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 0, cfg.ChunkOverlap)

	cfg = ChunkConfig{ChunkSize: 1000, ChunkOverlap: -5}.normalize()
	assert.Equal(t, 0, cfg.ChunkOverlap)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, Checksum("abc"), Checksum("abc"))
	assert.NotEqual(t, Checksum("abc"), Checksum("abd"))
	assert.Len(t, Checksum(""), 64)
}
