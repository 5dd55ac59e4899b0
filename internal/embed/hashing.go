package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingEncoder is an offline bag-of-words encoder. Each lowercase token
// is hashed into one of Dimensions buckets. It needs no network access,
// so it backs dry runs and tests; its similarities track word overlap only.
type HashingEncoder struct {
	dimensions int
}

// NewHashingEncoder creates a hashing encoder with the given width
func NewHashingEncoder(dimensions int) *HashingEncoder {
	if dimensions <= 0 {
		dimensions = 4096
	}
	return &HashingEncoder{dimensions: dimensions}
}

// Model returns a name that encodes the width, so caches never mix widths
func (e *HashingEncoder) Model() string {
	return fmt.Sprintf("hashing-bow-%d", e.dimensions)
}

// Encode returns a term-count vector per text
func (e *HashingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dimensions)
		for _, tok := range tokenize(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[h.Sum32()%uint32(e.dimensions)]++
		}
		vectors[i] = v
	}
	return vectors, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
