package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"finchat/pkg/chunk"

	"github.com/alphadose/haxmap"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

var errQueryEmbeddingOnly = errors.New("documents must carry precomputed embeddings")

// Hit is one retrieved chunk with its similarity to the question.
type Hit struct {
	ID         string
	Text       string
	Metadata   map[string]string
	Similarity float32
}

// Index is the vector index: one chromem collection per company. A
// collection is rebuilt only when the fingerprint of the company's chunks
// changes.
type Index struct {
	db       *chromem.DB
	embedder Embedder
	log      *zap.Logger

	fingerprints *haxmap.Map[uint, string]
	locks        *haxmap.Map[uint, *sync.Mutex]
}

// NewIndex opens a persistent index under path, or an in-memory one when path
// is empty. The embedder should already be wrapped by a CallPolicy.
func NewIndex(path string, embedder Embedder, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}
	return &Index{
		db:           db,
		embedder:     embedder,
		log:          log.Named("index"),
		fingerprints: haxmap.New[uint, string](),
		locks:        haxmap.New[uint, *sync.Mutex](),
	}, nil
}

func collectionName(companyID uint) string {
	return "company_" + strconv.FormatUint(uint64(companyID), 10)
}

// embeddingFunc is never expected to run: documents are added with vectors and
// queries use QueryEmbedding.
func embeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errQueryEmbeddingOnly
}

func (ix *Index) lock(companyID uint) *sync.Mutex {
	mu, _ := ix.locks.GetOrSet(companyID, &sync.Mutex{})
	return mu
}

// Sync makes the company's collection hold exactly chunks. Nothing is embedded
// when the fingerprint is unchanged since the last successful sync.
func (ix *Index) Sync(ctx context.Context, companyID uint, chunks []chunk.Chunk) (rebuilt bool, err error) {
	fp := chunk.Fingerprint(chunks)
	mu := ix.lock(companyID)
	mu.Lock()
	defer mu.Unlock()

	name := collectionName(companyID)
	if cur, ok := ix.fingerprints.Get(companyID); ok && cur == fp && ix.db.GetCollection(name, embeddingFunc) != nil {
		IndexSyncs.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = ix.embedder.Embed(ctx, texts)
		if err != nil {
			IndexSyncs.WithLabelValues("error").Inc()
			return false, fmt.Errorf("embed chunks: %w", err)
		}
	}

	if err := ix.db.DeleteCollection(name); err != nil {
		IndexSyncs.WithLabelValues("error").Inc()
		return false, fmt.Errorf("reset collection %s: %w", name, err)
	}
	coll, err := ix.db.GetOrCreateCollection(name, map[string]string{"company_id": strconv.FormatUint(uint64(companyID), 10)}, embeddingFunc)
	if err != nil {
		IndexSyncs.WithLabelValues("error").Inc()
		return false, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	if len(chunks) > 0 {
		docs := make([]chromem.Document, len(chunks))
		for i, c := range chunks {
			docs[i] = chromem.Document{
				ID:        c.ID,
				Content:   c.Text,
				Metadata:  c.Metadata,
				Embedding: vectors[i],
			}
		}
		// concurrency of 1 since embeddings are already computed
		if err := coll.AddDocuments(ctx, docs, 1); err != nil {
			IndexSyncs.WithLabelValues("error").Inc()
			return false, fmt.Errorf("adding documents: %w", err)
		}
	}
	ix.fingerprints.Set(companyID, fp)
	IndexSyncs.WithLabelValues("rebuilt").Inc()
	ix.log.Debug("collection rebuilt", zap.String("collection", name), zap.Int("documents", len(chunks)))
	return true, nil
}

// Search returns up to k nearest chunks to the question vector.
func (ix *Index) Search(ctx context.Context, companyID uint, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	coll := ix.db.GetCollection(collectionName(companyID), embeddingFunc)
	if coll == nil {
		return nil, nil
	}
	// chromem requires nResults <= doc count
	n := coll.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := coll.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Text: r.Content, Metadata: r.Metadata, Similarity: r.Similarity}
	}
	return hits, nil
}

// Invalidate forces the next Sync to rebuild, e.g. after an upload.
func (ix *Index) Invalidate(companyID uint) {
	ix.fingerprints.Del(companyID)
}

// Drop removes the company's collection.
func (ix *Index) Drop(companyID uint) error {
	mu := ix.lock(companyID)
	mu.Lock()
	defer mu.Unlock()
	ix.fingerprints.Del(companyID)
	if err := ix.db.DeleteCollection(collectionName(companyID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Embed embeds a single question with the index's embedder, as a search
// query when the embedder tells queries and documents apart.
func (ix *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedQuery(ctx, ix.embedder, text)
}

// Collections returns the number of company collections held.
func (ix *Index) Collections() int {
	return len(ix.db.ListCollections())
}
