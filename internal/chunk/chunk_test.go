package chunk

import (
	"testing"

	"graphrag/internal/config"
)

func TestSplit_HeadingsAndSentences(t *testing.T) {
	text := "# Intro\nThis is one. This is two.\n## Details\nThird sentence here. Fourth one too."
	sentences := Split(text)
	if len(sentences) != 4 {
		t.Fatalf("expected 4 sentences, got %d", len(sentences))
	}
	if sentences[0].Section[0] != "Intro" {
		t.Fatalf("expected section Intro, got %v", sentences[0].Section)
	}
	if len(sentences[2].Section) != 2 || sentences[2].Section[1] != "Details" {
		t.Fatalf("expected nested section path, got %v", sentences[2].Section)
	}
	for i, s := range sentences {
		if s.Seq != i {
			t.Fatalf("expected monotonic seq, got %d at index %d", s.Seq, i)
		}
	}
}

func TestSplit_NoHeadings(t *testing.T) {
	sentences := Split("One sentence. Another sentence.")
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(sentences))
	}
	if sentences[0].Section != nil {
		t.Fatalf("expected empty section path, got %v", sentences[0].Section)
	}
}

func TestWindow_FewerSentencesThanWindow(t *testing.T) {
	sentences := Split("One. Two.")
	cfg := config.ChunkingConfig{WindowSentences: 4, Stride: 2, MaxChars: 1200}
	chunks := Window("doc1", sentences, cfg, "build-1")
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}
	if len(chunks[0].SentenceIDs) != 2 {
		t.Fatalf("expected both sentences in the one chunk, got %d", len(chunks[0].SentenceIDs))
	}
}

func TestWindow_StableIDAcrossReruns(t *testing.T) {
	sentences := Split("One. Two. Three. Four. Five. Six.")
	cfg := config.ChunkingConfig{WindowSentences: 3, Stride: 2, MaxChars: 1200}
	first := Window("doc1", sentences, cfg, "build-1")
	second := Window("doc1", sentences, cfg, "build-1")
	if len(first) != len(second) {
		t.Fatalf("expected stable chunk count, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected stable chunk id at %d, got %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestWindow_EmptyText(t *testing.T) {
	chunks := Window("doc1", nil, config.ChunkingConfig{}, "build-1")
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestWindow_OverlapBetweenAdjacentChunks(t *testing.T) {
	sentences := Split("One. Two. Three. Four. Five. Six. Seven. Eight.")
	cfg := config.ChunkingConfig{WindowSentences: 4, Stride: 2, MaxChars: 1200}
	chunks := Window("doc1", sentences, cfg, "build-1")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[1].WindowStart >= chunks[0].WindowEnd {
		t.Fatalf("expected overlap between adjacent chunks, got %d >= %d", chunks[1].WindowStart, chunks[0].WindowEnd)
	}
}
