package rag

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"finchat/pkg/chunk"
	"finchat/pkg/metric"

	"go.uber.org/zap"
)

const defaultTopK = 6

var questionYearRE = regexp.MustCompile(`\b(19\d{2}|20\d{2}|2100)\b`)

// Retriever picks the chunks relevant to a question. Chunks whose year or
// metric the question names come first; nearest neighbours from the index
// fill the rest. Without an index the most recent years fill the rest.
type Retriever struct {
	index *Index
	topK  int
	log   *zap.Logger
}

func NewRetriever(index *Index, topK int, log *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{index: index, topK: topK, log: log.Named("retriever")}
}

func (r *Retriever) Retrieve(ctx context.Context, companyID uint, question string, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	selected := make([]chunk.Chunk, 0, r.topK)
	picked := map[string]bool{}
	add := func(c chunk.Chunk) bool {
		if picked[c.ID] || len(selected) >= r.topK {
			return len(selected) < r.topK
		}
		picked[c.ID] = true
		selected = append(selected, c)
		return len(selected) < r.topK
	}

	for _, c := range mentioned(question, chunks) {
		if !add(c) {
			break
		}
	}

	if len(selected) < r.topK && r.index != nil {
		if _, err := r.index.Sync(ctx, companyID, chunks); err != nil {
			return nil, err
		}
		vec, err := r.index.Embed(ctx, question)
		if err != nil {
			return nil, err
		}
		hits, err := r.index.Search(ctx, companyID, vec, r.topK)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]chunk.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}
		for _, h := range hits {
			if c, ok := byID[h.ID]; ok && !add(c) {
				break
			}
		}
	}

	if len(selected) < r.topK {
		for _, c := range recentFirst(chunks) {
			if !add(c) {
				break
			}
		}
	}
	r.log.Debug("chunks retrieved",
		zap.Uint("company_id", companyID),
		zap.Int("candidates", len(chunks)),
		zap.Int("selected", len(selected)))
	return selected, nil
}

// mentioned returns the chunks matching the years and metrics named in the
// question, most recent year first. A dimension the question leaves out
// matches everything.
func mentioned(question string, chunks []chunk.Chunk) []chunk.Chunk {
	years := map[int]bool{}
	for _, m := range questionYearRE.FindAllString(question, -1) {
		if y, err := strconv.Atoi(m); err == nil {
			years[y] = true
		}
	}
	metrics := map[metric.Metric]bool{}
	for _, m := range metric.Mentions(question) {
		metrics[m] = true
	}
	if len(years) == 0 && len(metrics) == 0 {
		return nil
	}
	var out []chunk.Chunk
	for _, c := range chunks {
		if (len(years) == 0 || years[c.Year]) && (len(metrics) == 0 || metrics[c.Metric]) {
			out = append(out, c)
		}
	}
	return recentFirst(out)
}

func recentFirst(chunks []chunk.Chunk) []chunk.Chunk {
	out := append([]chunk.Chunk(nil), chunks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return metric.Order(out[i].Metric) < metric.Order(out[j].Metric)
	})
	return out
}
