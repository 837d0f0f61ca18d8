// Package simhash fingerprints the tag structure of a page so audit entries
// from the same portal layout can be grouped, and layout drift spotted.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the number of consecutive tags hashed together.
const shingleSize = 3

// Layout returns a 64-bit SimHash of the sequence of opening tags in
// htmlStr. Text, attributes and closing tags are ignored, so two renders of
// the same template with different data share a fingerprint. Input without
// tags yields 0.
func Layout(htmlStr string) uint64 {
	tags := openTags(htmlStr)
	if len(tags) == 0 {
		return 0
	}
	features := shingles(tags)
	if len(features) == 0 {
		features = tags
	}
	return hashFeatures(features)
}

// Distance is the number of differing bits between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func hashFeatures(features []string) uint64 {
	var weights [64]int
	for _, f := range features {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<bit) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var fp uint64
	for bit, w := range weights {
		if w > 0 {
			fp |= 1 << bit
		}
	}
	return fp
}

func openTags(htmlStr string) []string {
	z := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

func shingles(tags []string) []string {
	if len(tags) < shingleSize {
		return nil
	}
	out := make([]string, 0, len(tags)-shingleSize+1)
	for i := 0; i+shingleSize <= len(tags); i++ {
		out = append(out, strings.Join(tags[i:i+shingleSize], ">"))
	}
	return out
}
