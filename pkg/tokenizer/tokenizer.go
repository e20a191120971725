// Package tokenizer counts tokens for backends that do not report usage.
// OpenAI models are counted with their BPE encoding; other families get a
// ratio-based estimate.
package tokenizer

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Encodings are embedded so counting never reaches the network.
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// encodings caches the BPE encoding per model name. A nil entry records a
// model tiktoken does not know.
var encodings sync.Map

// CountTokens estimates tokens as the larger of a word-based and a
// character-based count. Empty text counts as zero.
func CountTokens(text string) int {
	return countWith(text, 4.0)
}

// CountTokensForModel counts exactly when model has a known encoding and
// otherwise adjusts the characters-per-token ratio by model family.
func CountTokensForModel(text, model string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return countWith(text, 3.5)
	case strings.Contains(m, "llama"), strings.Contains(m, "mistral"), strings.Contains(m, "qwen"):
		return countWith(text, 3.8)
	}
	if enc := encodingFor(m); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return CountTokens(text)
}

func encodingFor(model string) *tiktoken.Tiktoken {
	if v, ok := encodings.Load(model); ok {
		return v.(*tiktoken.Tiktoken)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Debug("no token encoding for model, estimating", "model", model, "error", err)
		enc = nil
	}
	v, _ := encodings.LoadOrStore(model, enc)
	return v.(*tiktoken.Tiktoken)
}

func countWith(text string, charsPerToken float64) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	byWords := len(strings.Fields(text)) * 4 / 3
	byChars := int(float64(utf8.RuneCountInString(text))/charsPerToken + 0.5)
	return max(byWords, byChars, 1)
}
