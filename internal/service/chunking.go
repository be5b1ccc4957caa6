package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/tessera-ai/tessera/internal/domain"
)

// ChunkConfig controls normalization and chunking of ingested text.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

const (
	defaultChunkSize    = 1600
	minChunkSize        = 200
	defaultChunkOverlap = 200

	// charsPerToken is the rough character-to-token ratio used for the
	// per-chunk token estimate.
	charsPerToken = 4
)

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
	}
}

// normalize clamps the config to usable bounds: chunk size at least
// minChunkSize, overlap strictly below chunk size.
func (c ChunkConfig) normalize() ChunkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkSize < minChunkSize {
		c.ChunkSize = minChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize - 1
	}
	return c
}

// ChunkContent normalizes text and splits it into bounded, checksummed
// chunks. Paragraphs (blank-line separated) are greedily accumulated up to
// ChunkSize; oversize paragraphs are window-split with overlap. The sequence
// of chunk contents and checksums is deterministic for fixed input and
// config; only the ids are fresh per call. Empty or whitespace-only input
// yields no chunks.
func ChunkContent(text string, cfg ChunkConfig, idGen UUIDGenerator) []domain.Chunk {
	cfg = cfg.normalize()

	clean := normalizeText(text)
	if clean == "" {
		return nil
	}

	var pieces []string
	if utf8.RuneCountInString(clean) <= cfg.ChunkSize {
		pieces = []string{clean}
	} else {
		pieces = splitParagraphs(clean, cfg)
	}

	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, newChunk(piece, idGen))
	}
	return chunks
}

// normalizeText converts CRLF to LF, strips NUL bytes, and trims.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}

// splitParagraphs accumulates blank-line separated paragraphs into buffers of
// at most ChunkSize characters, window-splitting any paragraph that is itself
// oversize. All lengths are counted in runes.
func splitParagraphs(text string, cfg ChunkConfig) []string {
	paragraphs := splitOnBlankLines(text)

	out := make([]string, 0, 8)
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, p := range paragraphs {
		plen := utf8.RuneCountInString(p)
		sep := 0
		if bufLen > 0 {
			sep = 2 // "\n\n"
		}

		if bufLen+sep+plen <= cfg.ChunkSize {
			if sep > 0 {
				buf.WriteString("\n\n")
			}
			buf.WriteString(p)
			bufLen += sep + plen
			continue
		}

		flush()

		if plen > cfg.ChunkSize {
			out = append(out, slideWindows(p, cfg)...)
			continue
		}

		buf.WriteString(p)
		bufLen = plen
	}
	flush()

	return out
}

func splitOnBlankLines(text string) []string {
	parts := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// slideWindows splits oversize text using a window of ChunkSize runes and a
// step of ChunkSize-ChunkOverlap (minimum 1). Windows are trimmed; empty
// windows are dropped.
func slideWindows(text string, cfg ChunkConfig) []string {
	step := cfg.ChunkSize - cfg.ChunkOverlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	windows := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			windows = append(windows, window)
		}

		if end >= len(runes) {
			break
		}
	}
	return windows
}

func newChunk(content string, idGen UUIDGenerator) domain.Chunk {
	return domain.Chunk{
		ID:         idGen.NewString(),
		Content:    content,
		Size:       utf8.RuneCountInString(content),
		TokenCount: estimateTokens(content),
		Checksum:   Checksum(content),
	}
}

// Checksum returns the hex SHA-256 of chunk content, the per-source
// deduplication key.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func estimateTokens(content string) int {
	n := utf8.RuneCountInString(content) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}
