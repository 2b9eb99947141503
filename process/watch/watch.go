// Package watch ingests balance sheets dropped into a directory. File names
// carry the target company: "<company_id>__<anything>.csv|xlsx". Processed
// files move to processed/, rejected ones to failed/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finchat/pkg/companies"
	"finchat/pkg/ingest"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	// a file is picked up once it has not changed for settleDelay
	settleDelay  = 300 * time.Millisecond
	debounceTick = 250 * time.Millisecond
)

var dropNameRE = regexp.MustCompile(`^(\d+)__.+$`)

// Ingester is the part of ingest.Service the watcher needs.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Outcome, error)
}

type Options struct {
	Dir     string
	Workers int
	DryRun  bool
	// Template is copied for every file; CompanyID, FileName and Data are
	// filled in per file.
	Template ingest.Request
}

// Stats counts what a scan did.
type Stats struct {
	Seen     int64
	Ingested int64
	Failed   int64
	Skipped  int64
}

type Watcher struct {
	opts     Options
	ingester Ingester
	log      *zap.Logger
	stats    Stats
}

func New(opts Options, ingester Ingester, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Watcher{opts: opts, ingester: ingester, log: log.Named("watch")}
}

// ParseName returns the company id encoded in a drop file name.
func ParseName(name string) (uint, bool) {
	base := filepath.Base(name)
	if !isSupportedExt(base) {
		return 0, false
	}
	m := dropNameRE.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		// hidden and office lock files
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ListFiles returns the supported files directly under dir, sorted.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Scan processes every file currently in the directory and returns when done.
func (w *Watcher) Scan(ctx context.Context) (Stats, error) {
	files, err := ListFiles(w.opts.Dir)
	if err != nil {
		return Stats{}, err
	}
	w.log.Info("scanning", zap.String("dir", w.opts.Dir), zap.Int("files", len(files)), zap.Int("workers", w.opts.Workers))
	ch := make(chan string, len(files))
	for _, f := range files {
		ch <- f
	}
	close(ch)
	w.runWorkerPool(ctx, ch)
	return w.Stats(), nil
}

// Watch scans once, then processes files as they appear until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.opts.Dir); err != nil {
		return err
	}
	w.log.Info("watching", zap.String("dir", w.opts.Dir))

	fileCh := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runWorkerPool(ctx, fileCh)
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(fileCh)
			<-done
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				close(fileCh)
				<-done
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				name := filepath.Base(ev.Name)
				if isSupportedExt(name) {
					pending[name] = time.Now()
				}
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > settleDelay {
					delete(pending, name)
					fileCh <- name
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				close(fileCh)
				<-done
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) Stats() Stats {
	return Stats{
		Seen:     atomic.LoadInt64(&w.stats.Seen),
		Ingested: atomic.LoadInt64(&w.stats.Ingested),
		Failed:   atomic.LoadInt64(&w.stats.Failed),
		Skipped:  atomic.LoadInt64(&w.stats.Skipped),
	}
}

func (w *Watcher) runWorkerPool(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				w.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

func (w *Watcher) processFile(ctx context.Context, name string) {
	atomic.AddInt64(&w.stats.Seen, 1)
	log := w.log.With(zap.String("file", name))
	companyID, ok := ParseName(name)
	if !ok {
		atomic.AddInt64(&w.stats.Skipped, 1)
		log.Debug("skip: name does not start with <company_id>__")
		return
	}
	path := filepath.Join(w.opts.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("read failed", zap.Error(err))
		}
		atomic.AddInt64(&w.stats.Skipped, 1)
		return
	}
	if w.opts.DryRun {
		atomic.AddInt64(&w.stats.Skipped, 1)
		log.Info("dry-run", zap.Uint("company_id", companyID), zap.Int("bytes", len(data)))
		return
	}

	req := w.opts.Template
	req.CompanyID = companyID
	req.FileName = strings.TrimPrefix(name, strconv.FormatUint(uint64(companyID), 10)+"__")
	req.Data = data
	out, err := w.ingester.Ingest(ctx, req)
	if err != nil {
		atomic.AddInt64(&w.stats.Failed, 1)
		log.Warn("ingest failed", zap.Uint("company_id", companyID), zap.Error(err))
		if ingest.IsStructural(err) || errors.Is(err, companies.ErrNotFound) {
			w.move(path, FailedDir)
		}
		return
	}
	atomic.AddInt64(&w.stats.Ingested, 1)
	log.Info("ingested",
		zap.Uint("company_id", companyID),
		zap.Uint("batch_id", out.Batch.ID),
		zap.Int("facts", out.Batch.FactCount),
		zap.Int("warnings", len(out.Warnings)))
	w.move(path, ProcessedDir)
}

// move renames path into sub/ next to it, adding a timestamp when the target
// exists.
func (w *Watcher) move(path, sub string) {
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.log.Warn("mkdir failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(target, ext), time.Now().UnixNano(), ext)
	}
	if err := os.Rename(path, target); err != nil {
		w.log.Warn("move failed", zap.String("file", path), zap.Error(err))
	}
}
