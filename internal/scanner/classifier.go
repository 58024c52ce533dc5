package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"sitemedic/internal/models"
)

const (
	// EntropyThreshold flags likely packed or encrypted payloads.
	EntropyThreshold = 7.5
	// EntropyMinSize keeps tiny files from tripping the entropy check.
	EntropyMinSize = 200
)

// Match is one classified signal about a file's content.
type Match struct {
	Kind     string
	Severity string
	Detail   string
}

// Classifier evaluates file content against the compiled rule set.
// All stages run unconditionally; a file can match several.
type Classifier struct {
	rules *RuleSet
}

// NewClassifier builds a classifier over a compiled rule set.
func NewClassifier(rules *RuleSet) *Classifier {
	return &Classifier{rules: rules}
}

// Classify runs every detection stage over the bytes actually read and
// returns the content hash plus all matches. Decoding is lossy and never
// fails: binary content degrades to hash + entropy checks.
func (c *Classifier) Classify(buf []byte, path string) (string, []Match) {
	sum := sha256.Sum256(buf)
	hash := hex.EncodeToString(sum[:])

	var matches []Match

	// Regex stages see the bytes as text; invalid UTF-8 just won't match.
	text := string(buf)
	for _, r := range c.rules.match(text) {
		detail := r.Detail
		if r.Kind == models.KindSignatureMatch {
			detail = fmt.Sprintf("rule %s", r.ID)
			if r.Detail != "" {
				detail = fmt.Sprintf("rule %s: %s", r.ID, r.Detail)
			}
		}
		matches = append(matches, Match{Kind: r.Kind, Severity: r.Severity, Detail: detail})
	}

	if ent := Entropy(buf); ent >= EntropyThreshold && len(buf) >= EntropyMinSize {
		matches = append(matches, Match{
			Kind:     models.KindHighEntropy,
			Severity: models.SeverityMedium,
			Detail:   fmt.Sprintf("%.2f bits/byte", ent),
		})
	}

	return hash, matches
}

// Entropy computes the Shannon entropy of data in bits per byte.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	length := float64(len(data))
	e := 0.0
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / length
		e -= p * math.Log2(p)
	}
	return e
}
