package embedding

import (
	"hash/fnv"
	"strings"
)

// BERT special token IDs and the bucket count for hashed word IDs.
const (
	clsTokenID      = 101
	sepTokenID      = 102
	simpleVocabSize = 30000
	defaultSeqLen   = 256
)

// Tokenizer produces the three BERT-style model inputs for a text:
// input_ids, attention_mask, and token_type_ids, each maxTokens long.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer splits on whitespace and hashes each word into a fixed ID
// range. The IDs are buckets, not real vocabulary entries, so it cannot
// reproduce a trained tokenizer's output; it exists to drive the model input
// shape when no vocabulary file is available.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] word-hashes [SEP] padded to maxTokens, with the
// attention mask covering the occupied positions. A maxTokens below 2 cannot
// hold the frame tokens and falls back to the default sequence length.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = defaultSeqLen
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	words := SplitWords(text)
	if cut := maxTokens - 2; len(words) > cut {
		words = words[:cut]
	}

	inputIDs[0] = clsTokenID
	for i, word := range words {
		inputIDs[i+1] = int64(HashString(word) % simpleVocabSize)
	}
	inputIDs[len(words)+1] = sepTokenID
	for i := 0; i < len(words)+2; i++ {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on Unicode whitespace. It is the shared word
// boundary rule for the tokenizer, the mock embedder, and word counting.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString returns the FNV-1a hash of s, used to bucket words into token
// IDs and embedding dimensions.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
