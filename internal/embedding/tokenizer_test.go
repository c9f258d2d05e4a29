package embedding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func wordPieceVocab() map[string]int64 {
	tokens := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "a", "red", "car", "play", "##ing", "!"}
	vocab := make(map[string]int64)
	for i, tok := range tokens {
		vocab[tok] = int64(i)
	}
	return vocab
}

func sentencePieceVocab() map[string]int64 {
	tokens := []string{"<pad>", "</s>", "<unk>", "▁a", "▁red", "▁car", "▁play", "ing"}
	vocab := make(map[string]int64)
	for i, tok := range tokens {
		vocab[tok] = int64(i)
	}
	return vocab
}

func TestVocabTokenizer_WordPieceEncode(t *testing.T) {
	tok := NewVocabTokenizer(wordPieceVocab(), WordPiece)
	enc := tok.Encode("A red car playing!", 10)
	want := []int64{2, 4, 5, 6, 7, 8, 9, 3, 0, 0}
	if len(enc.InputIDs) != 10 {
		t.Fatalf("len = %d", len(enc.InputIDs))
	}
	for i := range want {
		if enc.InputIDs[i] != want[i] {
			t.Fatalf("ids = %v, want %v", enc.InputIDs, want)
		}
	}
	wantMask := []int64{1, 1, 1, 1, 1, 1, 1, 1, 0, 0}
	for i := range wantMask {
		if enc.AttentionMask[i] != wantMask[i] {
			t.Fatalf("mask = %v, want %v", enc.AttentionMask, wantMask)
		}
	}
}

func TestVocabTokenizer_unknownWord(t *testing.T) {
	tok := NewVocabTokenizer(wordPieceVocab(), WordPiece)
	enc := tok.Encode("zebra", 4)
	if enc.InputIDs[1] != 1 {
		t.Errorf("expected [UNK]=1, got %v", enc.InputIDs)
	}
}

func TestVocabTokenizer_truncates(t *testing.T) {
	tok := NewVocabTokenizer(wordPieceVocab(), WordPiece)
	enc := tok.Encode(strings.Repeat("red ", 50), 8)
	if len(enc.InputIDs) != 8 {
		t.Fatalf("len = %d", len(enc.InputIDs))
	}
	if enc.InputIDs[0] != 2 || enc.InputIDs[7] != 3 {
		t.Errorf("expected [CLS] ... [SEP], got %v", enc.InputIDs)
	}
}

func TestVocabTokenizer_EncodePair(t *testing.T) {
	tok := NewVocabTokenizer(wordPieceVocab(), WordPiece)
	enc := tok.EncodePair("red car", "a car", 10)
	wantIDs := []int64{2, 5, 6, 3, 4, 6, 3, 0, 0, 0}
	wantTypes := []int64{0, 0, 0, 0, 1, 1, 1, 0, 0, 0}
	for i := range wantIDs {
		if enc.InputIDs[i] != wantIDs[i] || enc.TokenTypeIDs[i] != wantTypes[i] {
			t.Fatalf("ids = %v types = %v, want %v %v", enc.InputIDs, enc.TokenTypeIDs, wantIDs, wantTypes)
		}
	}

	long := tok.EncodePair(strings.Repeat("red ", 20), "car", 8)
	if long.InputIDs[len(long.InputIDs)-1] != 3 {
		t.Errorf("pair should end with [SEP] after truncation, got %v", long.InputIDs)
	}
	if long.InputIDs[6] != 6 {
		t.Errorf("shorter side should survive truncation, got %v", long.InputIDs)
	}
}

func TestVocabTokenizer_SentencePiece(t *testing.T) {
	tok := NewVocabTokenizer(sentencePieceVocab(), SentencePiece)
	enc := tok.Encode("A red car, playing.", 8)
	want := []int64{3, 4, 5, 6, 7, 1, 0, 0}
	for i := range want {
		if enc.InputIDs[i] != want[i] {
			t.Fatalf("ids = %v, want %v", enc.InputIDs, want)
		}
	}
}

func TestLoadVocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("[PAD]\n[UNK]\nhello\n"), 0600); err != nil {
		t.Fatal(err)
	}
	vocab, err := LoadVocab(path)
	if err != nil {
		t.Fatal(err)
	}
	if vocab["hello"] != 2 {
		t.Errorf("hello = %d, want 2", vocab["hello"])
	}
	if _, err := LoadVocab(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing vocab")
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b\tc\n")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if len(SplitWords("")) != 0 {
		t.Error("empty string should return no words")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
