// Package namegen generates short, memorable adjective-noun-digit names
// for sessions and panes, drawing a fresh adjective, noun and digit when a
// candidate collides with one already taken.
package namegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"able", "agile", "amber", "arid", "bold", "brave", "brisk", "calm",
	"clever", "coral", "crisp", "dapper", "eager", "easy", "fair", "fleet",
	"fond", "fresh", "gentle", "glad", "golden", "happy", "keen", "kind",
	"lively", "lucky", "mellow", "merry", "mild", "neat", "nimble", "plain",
	"quiet", "quick", "ready", "rosy", "sharp", "shy", "silent", "sleek",
	"sly", "smart", "snug", "solid", "spry", "stark", "steady", "sturdy",
	"sunny", "sure", "swift", "tidy", "trim", "vivid", "warm", "wise",
}

var nouns = []string{
	"acorn", "anchor", "arrow", "aspen", "badger", "basin", "beacon", "birch",
	"brook", "canyon", "cedar", "cinder", "clover", "comet", "coral", "cove",
	"crane", "creek", "delta", "ember", "falcon", "fern", "finch", "fjord",
	"forge", "glade", "grove", "harbor", "heron", "hollow", "island", "ivy",
	"lagoon", "lantern", "lark", "ledge", "maple", "marsh", "meadow", "mesa",
	"otter", "owl", "pebble", "pine", "plateau", "quarry", "quartz", "reef",
	"ridge", "river", "slate", "sparrow", "summit", "thicket", "tundra", "willow",
}

// maxNameBytes is the ≤15-byte cap on generated names.
const maxNameBytes = 15

// maxRetries bounds collision-avoidance loops; with 56×56 adjective/noun
// pairs and 10 digit suffixes there are well over 30,000 combinations.
const maxRetries = 100

// Generate produces an adjective-noun-digit name not present in taken.
// taken is checked as a set (case-sensitive, exact match). Returns an error
// only in the astronomically unlikely case that maxRetries candidates all
// collide.
func Generate(taken map[string]bool) (string, error) {
	for i := 0; i < maxRetries; i++ {
		adj, err := pick(adjectives)
		if err != nil {
			return "", err
		}
		noun, err := pick(nouns)
		if err != nil {
			return "", err
		}
		digit, err := pick([]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"})
		if err != nil {
			return "", err
		}
		name := adj + "-" + noun + digit
		if len(name) > maxNameBytes {
			// Truncate the adjective to fit, preserving the noun+digit
			// suffix that carries most of the name's memorability.
			overflow := len(name) - maxNameBytes
			if overflow >= len(adj) {
				continue
			}
			name = adj[:len(adj)-overflow] + "-" + noun + digit
		}
		if !taken[name] {
			return name, nil
		}
	}
	return "", fmt.Errorf("namegen: failed to generate a unique name after %d retries", maxRetries)
}

func pick(choices []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(choices))))
	if err != nil {
		return "", fmt.Errorf("namegen: random selection: %w", err)
	}
	return choices[n.Int64()], nil
}
