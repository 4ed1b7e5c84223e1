// Package rag retrieves ranked policy and guideline passages with provenance
// metadata. The engine only depends on the Retriever interface; the bundled
// implementation is a local lexical index loaded from a YAML corpus.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"copilot/pkg/logx"
)

// ErrStore indicates the retrieval backend itself failed (as opposed to an
// empty result, which is not an error).
var ErrStore = errors.New("rag store error")

// Chunk is one retrieved passage with provenance metadata.
type Chunk struct {
	ID          string  `json:"id" yaml:"id"`
	Text        string  `json:"text" yaml:"text"`
	Marketplace string  `json:"marketplace,omitempty" yaml:"marketplace,omitempty"`
	Section     string  `json:"section,omitempty" yaml:"section,omitempty"`
	Source      string  `json:"source,omitempty" yaml:"source,omitempty"`
	Score       float64 `json:"score,omitempty" yaml:"-"`
}

// Query is one retrieval request. Marketplace and Section are optional
// filters; TopK <= 0 uses the retriever's default.
type Query struct {
	Text        string
	Marketplace string
	Section     string
	TopK        int
}

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]Chunk, error)
}

// Index is an in-memory lexical index over a policy corpus. Ranking is
// term-overlap scoring, good enough for the bundled corpus and fully
// deterministic.
type Index struct {
	chunks      []Chunk
	defaultTopK int
	maxTopK     int
	logger      *logx.Logger
}

type corpusFile struct {
	Chunks []Chunk `yaml:"chunks"`
}

// NewIndex builds an index over the given chunks.
func NewIndex(chunks []Chunk, defaultTopK, maxTopK int) *Index {
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	return &Index{
		chunks:      chunks,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      logx.NewLogger("rag"),
	}
}

// LoadIndex reads a YAML corpus file and builds an index over it.
func LoadIndex(path string, defaultTopK, maxTopK int) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read corpus %s: %v", ErrStore, path, err)
	}
	var corpus corpusFile
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("%w: parse corpus %s: %v", ErrStore, path, err)
	}
	for i, c := range corpus.Chunks {
		if c.ID == "" || c.Text == "" {
			return nil, fmt.Errorf("%w: corpus %s: chunk %d missing id or text", ErrStore, path, i)
		}
	}
	return NewIndex(corpus.Chunks, defaultTopK, maxTopK), nil
}

// Retrieve ranks the corpus against the query and returns at most TopK
// chunks (capped at the index maximum). Chunks with zero overlap are
// dropped.
func (ix *Index) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	topK := q.TopK
	if topK <= 0 {
		topK = ix.defaultTopK
	}
	if topK > ix.maxTopK {
		topK = ix.maxTopK
	}

	terms := tokenize(q.Text)
	type scored struct {
		chunk Chunk
		pos   int
	}
	var hits []scored
	for i, c := range ix.chunks {
		if q.Marketplace != "" && c.Marketplace != "" && !strings.EqualFold(c.Marketplace, q.Marketplace) {
			continue
		}
		if q.Section != "" && c.Section != "" && !strings.EqualFold(c.Section, q.Section) {
			continue
		}
		score := overlapScore(terms, c.Text)
		if score <= 0 {
			continue
		}
		c.Score = score
		hits = append(hits, scored{chunk: c, pos: i})
	}

	// Corpus order breaks score ties so results are stable.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].chunk.Score != hits[j].chunk.Score {
			return hits[i].chunk.Score > hits[j].chunk.Score
		}
		return hits[i].pos < hits[j].pos
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}

	ix.logger.Debug("retrieve query=%q marketplace=%q section=%q top_k=%d hits=%d",
		q.Text, q.Marketplace, q.Section, topK, len(out))
	return out, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func overlapScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matches++
		}
	}
	return float64(matches) / float64(len(terms))
}
