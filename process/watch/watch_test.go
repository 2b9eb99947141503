package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"finchat/models"
	"finchat/pkg/extract"
	"finchat/pkg/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	mu   sync.Mutex
	reqs []ingest.Request
}

func (f *fakeIngester) Ingest(_ context.Context, req ingest.Request) (*ingest.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if req.CompanyID == 13 {
		return &ingest.Outcome{Batch: &models.UploadBatch{ID: 2, Status: models.BatchFailed}}, extract.ErrNoYearColumnsFound
	}
	return &ingest.Outcome{Batch: &models.UploadBatch{ID: 1, Status: models.BatchSuccess, FactCount: 3}}, nil
}

func TestParseName(t *testing.T) {
	cases := []struct {
		name string
		id   uint
		ok   bool
	}{
		{"7__balance.csv", 7, true},
		{"12__FY 2023.XLSX", 12, true},
		{"0__zero.csv", 0, false},
		{"balance.csv", 0, false},
		{"7_balance.csv", 0, false},
		{"7__scan.pdf", 0, false},
		{"~$7__lock.xlsx", 0, false},
	}
	for _, c := range cases {
		id, ok := ParseName(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		assert.Equal(t, c.id, id, c.name)
	}
}

func TestScanMovesFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("Item,2023\nRevenue,1\n"), 0644))
	}
	write("7__good.csv")
	write("13__bad.csv")
	write("notes.csv")
	write("readme.txt")

	fake := &fakeIngester{}
	w := New(Options{Dir: dir, Workers: 2, Template: ingest.Request{ContentType: "text/csv"}}, fake, nil)
	stats, err := w.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Seen)
	assert.Equal(t, int64(1), stats.Ingested)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Skipped)

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "7__good.csv"))
	assert.FileExists(t, filepath.Join(dir, FailedDir, "13__bad.csv"))
	assert.FileExists(t, filepath.Join(dir, "notes.csv"))
	assert.FileExists(t, filepath.Join(dir, "readme.txt"))

	require.Len(t, fake.reqs, 2)
	for _, r := range fake.reqs {
		assert.Equal(t, "text/csv", r.ContentType)
		if r.CompanyID == 7 {
			assert.Equal(t, "good.csv", r.FileName)
		}
	}
}

func TestScanDryRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7__good.csv"), []byte("x"), 0644))
	fake := &fakeIngester{}
	stats, err := New(Options{Dir: dir, Workers: 1, DryRun: true}, fake, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Empty(t, fake.reqs)
	assert.FileExists(t, filepath.Join(dir, "7__good.csv"))
}
