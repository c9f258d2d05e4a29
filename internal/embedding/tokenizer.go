package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Encoding is the model input produced by a Tokenizer. All slices have the requested length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Tokenizer produces padded token IDs for transformer encoders.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
	EncodePair(first, second string, maxTokens int) Encoding
}

// VocabStyle selects how words are split into vocabulary pieces.
type VocabStyle int

const (
	// WordPiece is the BERT scheme: [CLS] a [SEP] b [SEP], continuation pieces prefixed "##".
	WordPiece VocabStyle = iota
	// SentencePiece marks word starts with "▁" and terminates sequences with </s>.
	SentencePiece
)

const spaceMarker = "▁"

// VocabTokenizer is a greedy longest-match tokenizer over a vocabulary file.
type VocabTokenizer struct {
	vocab map[string]int64
	style VocabStyle
	pad   int64
	unk   int64
	cls   int64
	sep   int64
	eos   int64
}

// LoadVocab reads a vocabulary file with one token per line; the line number is the token ID.
func LoadVocab(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if _, exists := vocab[token]; !exists {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return vocab, nil
}

// NewVocabTokenizer builds a tokenizer from a vocabulary. Special token IDs are looked up
// by their conventional names for the style.
func NewVocabTokenizer(vocab map[string]int64, style VocabStyle) *VocabTokenizer {
	t := &VocabTokenizer{vocab: vocab, style: style}
	switch style {
	case SentencePiece:
		t.pad = lookup(vocab, 0, "<pad>")
		t.eos = lookup(vocab, 1, "</s>")
		t.unk = lookup(vocab, 2, "<unk>")
		t.cls, t.sep = -1, t.eos
	default:
		t.pad = lookup(vocab, 0, "[PAD]")
		t.unk = lookup(vocab, 100, "[UNK]")
		t.cls = lookup(vocab, 101, "[CLS]")
		t.sep = lookup(vocab, 102, "[SEP]")
		t.eos = t.sep
	}
	return t
}

// LoadVocabTokenizer is LoadVocab followed by NewVocabTokenizer.
func LoadVocabTokenizer(path string, style VocabStyle) (*VocabTokenizer, error) {
	vocab, err := LoadVocab(path)
	if err != nil {
		return nil, err
	}
	return NewVocabTokenizer(vocab, style), nil
}

func lookup(vocab map[string]int64, def int64, names ...string) int64 {
	for _, n := range names {
		if id, ok := vocab[n]; ok {
			return id
		}
	}
	return def
}

// Encode tokenizes a single sequence and pads it to maxTokens.
func (t *VocabTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens <= 0 {
		maxTokens = 64
	}
	pieces := t.tokenize(text)
	var ids []int64
	switch t.style {
	case SentencePiece:
		pieces = truncateIDs(pieces, maxTokens-1)
		ids = append(pieces, t.eos)
	default:
		pieces = truncateIDs(pieces, maxTokens-2)
		ids = append([]int64{t.cls}, pieces...)
		ids = append(ids, t.sep)
	}
	return t.padTo(ids, nil, maxTokens)
}

// EncodePair tokenizes a sequence pair for cross-encoders, truncating the longer side first.
func (t *VocabTokenizer) EncodePair(first, second string, maxTokens int) Encoding {
	if maxTokens <= 0 {
		maxTokens = 128
	}
	a := t.tokenize(first)
	b := t.tokenize(second)
	special := 3
	if t.style == SentencePiece {
		special = 2
	}
	for len(a)+len(b) > maxTokens-special && (len(a) > 0 || len(b) > 0) {
		if len(a) >= len(b) {
			a = a[:len(a)-1]
		} else {
			b = b[:len(b)-1]
		}
	}

	var ids, types []int64
	if t.style != SentencePiece {
		ids = append(ids, t.cls)
		types = append(types, 0)
	}
	for _, id := range a {
		ids = append(ids, id)
		types = append(types, 0)
	}
	ids = append(ids, t.sep)
	types = append(types, 0)
	for _, id := range b {
		ids = append(ids, id)
		types = append(types, 1)
	}
	ids = append(ids, t.sep)
	types = append(types, 1)
	return t.padTo(ids, types, maxTokens)
}

func (t *VocabTokenizer) padTo(ids, types []int64, maxTokens int) Encoding {
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}
	for i := range enc.InputIDs {
		if i < len(ids) {
			enc.InputIDs[i] = ids[i]
			enc.AttentionMask[i] = 1
			if types != nil {
				enc.TokenTypeIDs[i] = types[i]
			}
			continue
		}
		enc.InputIDs[i] = t.pad
	}
	return enc
}

func truncateIDs(ids []int64, n int) []int64 {
	if n < 0 {
		n = 0
	}
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}

func (t *VocabTokenizer) tokenize(text string) []int64 {
	var out []int64
	switch t.style {
	case SentencePiece:
		for _, word := range SplitWords(canonicalize(text)) {
			out = append(out, t.greedy(spaceMarker+word, "")...)
		}
	default:
		for _, word := range splitPunct(strings.ToLower(text)) {
			out = append(out, t.greedy(word, "##")...)
		}
	}
	return out
}

// greedy splits word into the longest vocabulary pieces from the left. Continuation pieces
// carry contPrefix. WordPiece maps an unsplittable word to a single [UNK]; SentencePiece
// emits <unk> for the offending rune and carries on.
func (t *VocabTokenizer) greedy(word, contPrefix string) []int64 {
	runes := []rune(word)
	if len(runes) > 100 {
		return []int64{t.unk}
	}
	var ids []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var found int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = contPrefix + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			if t.style != SentencePiece {
				return []int64{t.unk}
			}
			ids = append(ids, t.unk)
			start++
			continue
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// canonicalize lowercases text and strips punctuation, the normalization SigLIP text
// towers were trained with.
func canonicalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitPunct splits on whitespace and isolates punctuation runes as their own words.
func splitPunct(text string) []string {
	var words []string
	for _, w := range SplitWords(text) {
		var cur []rune
		for _, r := range w {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				if len(cur) > 0 {
					words = append(words, string(cur))
					cur = cur[:0]
				}
				words = append(words, string(r))
				continue
			}
			cur = append(cur, r)
		}
		if len(cur) > 0 {
			words = append(words, string(cur))
		}
	}
	return words
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
