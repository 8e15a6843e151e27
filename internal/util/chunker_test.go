package util

import "testing"

func TestChunkText(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := ChunkText(text, 10, 2)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	if chunks[0] != "abcdefghij" {
		t.Fatalf("unexpected first chunk: %s", chunks[0])
	}
}

func TestChunkTextWithoutOverlapCoversInput(t *testing.T) {
	chunks := ChunkText("aaaaabbbbbcc", 5, 0)
	want := []string{"aaaaa", "bbbbb", "cc"}
	if len(chunks) != len(want) {
		t.Fatalf("got %v", chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}
