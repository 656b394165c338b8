// Package catalog loads entity catalogs (YAML or JSON files) into the
// SQLite store, embedding entries that carry no vector.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"hdql/internal/embedder"
	"hdql/internal/store"
)

const (
	embedBatchSize = 32

	// MetaEmbedder records which embedder produced the stored vectors.
	MetaEmbedder = "embedder"
)

// ErrNoFiles is returned when the inputs name no catalog files.
var ErrNoFiles = errors.New("no catalog files found")

// Stats reports load results.
type Stats struct {
	FilesTotal       int
	FilesFailed      int
	EntitiesTotal    int
	EntitiesLoaded   int
	EntitiesSkipped  int
	EntitiesEmbedded int
	Reset            bool
}

// ProgressFunc is called after each stored batch.
type ProgressFunc func(loaded, total int)

// Loader writes catalog files to a store.
type Loader struct {
	store      *store.SQLiteStore
	embedder   embedder.Embedder
	workers    int
	logger     *slog.Logger
	onProgress ProgressFunc
}

type Option func(*Loader)

// WithWorkers sets the number of decode workers.
func WithWorkers(n int) Option {
	return func(l *Loader) { l.workers = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) { l.onProgress = fn }
}

func New(s *store.SQLiteStore, emb embedder.Embedder, opts ...Option) *Loader {
	l := &Loader{
		store:    s,
		embedder: emb,
		workers:  runtime.NumCPU(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.workers <= 0 {
		l.workers = 1
	}
	return l
}

// WithProgressFunc returns a copy of l that reports progress to fn.
func (l *Loader) WithProgressFunc(fn ProgressFunc) *Loader {
	c := *l
	c.onProgress = fn
	return &c
}

// Load reads every catalog file named by inputs and upserts its entities.
// Entities whose content is unchanged since the last load are skipped.
// When the embedder differs from the one that produced the stored vectors
// the store is cleared first. Files that fail to decode are logged and
// reported in the returned error; the rest are still loaded.
func (l *Loader) Load(ctx context.Context, inputs []string) (*Stats, error) {
	var stats Stats

	last, err := l.store.GetMeta(MetaEmbedder)
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	if last != "" && last != l.embedder.Name() {
		l.logger.Info("embedder changed, clearing stored vectors", "from", last, "to", l.embedder.Name())
		if err := l.store.DeleteAll(); err != nil {
			return nil, fmt.Errorf("delete all entities: %w", err)
		}
		stats.Reset = true
	}

	err = l.runPipeline(ctx, inputs, &stats)
	if err == nil || stats.EntitiesLoaded > 0 {
		if merr := l.store.SetMeta(MetaEmbedder, l.embedder.Name()); merr != nil {
			return &stats, errors.Join(err, fmt.Errorf("set meta: %w", merr))
		}
	}
	return &stats, err
}

// decodedFile is the entities read from one catalog file.
type decodedFile struct {
	info     FileInfo
	entities []store.Entity
}

func (l *Loader) runPipeline(ctx context.Context, inputs []string, stats *Stats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errMu sync.Mutex
		errs  []error
	)
	fail := func(err error, fatal bool) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
		if fatal {
			cancel()
		}
	}

	var filesTotal, filesFailed, entitiesTotal atomic.Int64

	// Stage 1: Walk
	fileCh, walkErrCh := Walk(inputs)

	// Stage 2: Decode (N workers)
	decodedCh := make(chan decodedFile, l.workers)
	var decodeWg sync.WaitGroup
	for range l.workers {
		decodeWg.Add(1)
		go func() {
			defer decodeWg.Done()
			for fi := range fileCh {
				filesTotal.Add(1)
				if ctx.Err() != nil {
					continue
				}
				data, err := os.ReadFile(fi.Path)
				if err == nil {
					var ents []store.Entity
					if ents, err = Decode(data); err == nil {
						entitiesTotal.Add(int64(len(ents)))
						decodedCh <- decodedFile{info: fi, entities: ents}
						continue
					}
				}
				filesFailed.Add(1)
				l.logger.Warn("skipping catalog file", "path", fi.RelPath, "error", err)
				fail(fmt.Errorf("%s: %w", fi.RelPath, err), false)
			}
		}()
	}
	go func() {
		decodeWg.Wait()
		close(decodedCh)
	}()

	var embedded int

	// Stage 3: Dedupe, skip unchanged, embed (1 worker, batches of embedBatchSize)
	batchCh := make(chan []store.Record, 4)
	var embedWg sync.WaitGroup
	embedWg.Add(1)
	go func() {
		defer embedWg.Done()
		defer close(batchCh)

		seen := make(map[string]string)
		var pending []store.Record
		flushed := 0
		flush := func() bool {
			if len(pending) == 0 {
				return true
			}
			n, err := l.embedPending(ctx, pending)
			if err != nil {
				fail(fmt.Errorf("embedding failed: %w", err), true)
				return false
			}
			flushed += n
			select {
			case batchCh <- pending:
			case <-ctx.Done():
				return false
			}
			pending = nil
			return true
		}

		for df := range decodedCh {
			if ctx.Err() != nil {
				continue
			}
			for _, e := range df.entities {
				key := e.Key()
				if prev, ok := seen[key]; ok {
					fail(fmt.Errorf("%s: duplicate entity %s (first defined in %s): %w", df.info.RelPath, key, prev, store.ErrDuplicateEntity), true)
					break
				}
				seen[key] = df.info.RelPath

				hash, err := contentHash(&e, l.embedder.Name())
				if err != nil {
					fail(fmt.Errorf("%s: hash %s: %w", df.info.RelPath, key, err), true)
					break
				}
				existing, err := l.store.GetEntityHash(e.Type, e.Name)
				if err == nil && existing == hash {
					continue // unchanged
				}
				pending = append(pending, store.Record{Entity: e, Source: df.info.RelPath, Hash: hash})
				if len(pending) >= embedBatchSize && !flush() {
					break
				}
			}
		}
		if ctx.Err() == nil {
			flush()
		}
		embedded = flushed
	}()

	// Stage 4: Store (1 worker)
	var storeWg sync.WaitGroup
	storeWg.Add(1)
	go func() {
		defer storeWg.Done()
		for batch := range batchCh {
			if ctx.Err() != nil {
				continue
			}
			if err := l.store.UpsertEntities(batch); err != nil {
				fail(fmt.Errorf("storage failed: %w", err), true)
				continue
			}
			stats.EntitiesLoaded += len(batch)
			if l.onProgress != nil {
				l.onProgress(stats.EntitiesLoaded, int(entitiesTotal.Load()))
			}
		}
	}()

	// Wait for all stages to complete.
	storeWg.Wait()
	embedWg.Wait()

	if err := <-walkErrCh; err != nil {
		return fmt.Errorf("walk error: %w", err)
	}

	stats.FilesTotal = int(filesTotal.Load())
	stats.FilesFailed = int(filesFailed.Load())
	stats.EntitiesTotal = int(entitiesTotal.Load())
	stats.EntitiesSkipped = stats.EntitiesTotal - stats.EntitiesLoaded
	stats.EntitiesEmbedded = embedded

	if stats.FilesTotal == 0 {
		return ErrNoFiles
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return ctx.Err()
}

// embedPending fills in vectors for records that have none and returns how
// many it embedded.
func (l *Loader) embedPending(ctx context.Context, recs []store.Record) (int, error) {
	var (
		idx   []int
		texts []string
	)
	for i := range recs {
		if recs[i].Entity.Vector == nil {
			idx = append(idx, i)
			texts = append(texts, embedText(&recs[i].Entity))
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}
	vecs, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for k, i := range idx {
		recs[i].Entity.Vector = vecs[k]
	}
	return len(texts), nil
}
