package textproc

import (
	"math"
	"strings"
)

// DefaultTokensPerWord: schwedischer Rechtstext ergibt in BPE-Tokenizern etwa
// 1,3 Tokens pro Wort. Die Schätzung ist nicht tokenizer-genau.
const DefaultTokensPerWord = 1.3

// EstimateTokens schätzt die Tokenanzahl mit DefaultTokensPerWord.
func EstimateTokens(s string) int {
	return EstimateTokensWith(s, DefaultTokensPerWord)
}

// EstimateTokensWith: ceil(Wörter × perWord), mindestens 1 für nicht-leeren Text.
func EstimateTokensWith(s string, perWord float64) int {
	if perWord <= 0 {
		perWord = DefaultTokensPerWord
	}
	words := WordCount(s)
	if words == 0 {
		if strings.TrimSpace(s) == "" {
			return 0
		}
		return 1
	}
	return int(math.Ceil(float64(words)*perWord - 1e-9))
}

// WordCount zählt durch Leerraum getrennte Wörter.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
