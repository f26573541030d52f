// Package loadtest provides load testing utilities for the time log index.
//
// It writes realistic fiscal year log files, indexes them through the
// syncer and then runs concurrent report queries against the index to
// check that readers stay fast and never see a half-replaced file while a
// writer re-indexes it.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timelog/tl/internal/timelog/db"
	"github.com/timelog/tl/internal/timelog/logfile"
	"github.com/timelog/tl/internal/timelog/schema"
	tlsync "github.com/timelog/tl/internal/timelog/sync"
)

// FirstDay is the date of the first generated entry, the start of a fiscal
// year.
var FirstDay = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)

// workday is the block layout of every generated day.
var workday = [][2]schema.Clock{
	{9 * 60, 10*60 + 30},
	{10*60 + 30, 12 * 60},
	{13 * 60, 15 * 60},
	{15 * 60, 17*60 + 15},
}

// EntriesPerDay is the number of entries generated for each day.
var EntriesPerDay = len(workday)

// TestIndex is an indexed set of generated log files.
type TestIndex struct {
	DB     *db.DB
	Syncer tlsync.Syncer
	Dirs   tlsync.Dirs

	// Files lists the generated log files in fiscal year order.
	Files []string

	Days      int
	Entries   int
	LastDay   time.Time
	Projects  []string
	Tags      []string
	IndexTime time.Duration
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestIndex writes numDays days of entries under dir and indexes them.
//
// Every day gets EntriesPerDay back-to-back entries with a lunch gap.
// Projects and tags are picked with a fixed seed so runs are repeatable.
func CreateTestIndex(dir string, numDays int) (*TestIndex, error) {
	if numDays <= 0 {
		return nil, fmt.Errorf("numDays must be positive, got %d", numDays)
	}

	dirs := tlsync.Dirs{
		Logs:     filepath.Join(dir, "logs"),
		Projects: filepath.Join(dir, "projects"),
	}
	if err := os.MkdirAll(dirs.Logs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ti := &TestIndex{
		Dirs:     dirs,
		Days:     numDays,
		Projects: []string{"Website", "Billing", "Research", "Support"},
		Tags:     []string{"meeting", "review", "writing", "deploy", "email"},
	}
	if err := ti.writeLogs(); err != nil {
		return nil, err
	}

	database, err := db.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ti.DB = database
	ti.Syncer = tlsync.New(database, dirs, log.New(io.Discard, "", 0))

	started := time.Now()
	res, err := ti.Syncer.Initialize(context.Background())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to index test logs: %w", err)
	}
	if err := res.Err(); err != nil {
		_ = database.Close()
		return nil, err
	}
	ti.IndexTime = time.Since(started)

	return ti, nil
}

func (ti *TestIndex) writeLogs() error {
	rng := rand.New(rand.NewSource(42))
	contents := make(map[string]string)
	var labels []string

	for d := 0; d < ti.Days; d++ {
		date := FirstDay.AddDate(0, 0, d)
		label := schema.FiscalYearLabel(date)
		content, ok := contents[label]
		if !ok {
			content = logfile.NewLogFile(label)
			labels = append(labels, label)
		}

		for i, block := range workday {
			e := schema.TimeEntry{
				Date:    date,
				Start:   block[0],
				End:     block[1],
				Task:    fmt.Sprintf("Task %d.%d", d, i),
				Project: ti.Projects[rng.Intn(len(ti.Projects))],
				Tags:    []string{ti.Tags[rng.Intn(len(ti.Tags))]},
			}
			var err error
			if content, _, err = logfile.InsertEntry(content, e); err != nil {
				return fmt.Errorf("failed to generate entry for %s: %w", date.Format(schema.DateLayout), err)
			}
			ti.Entries++
		}
		contents[label] = content
		ti.LastDay = date
	}

	for _, label := range labels {
		path := filepath.Join(ti.Dirs.Logs, schema.LogFileName(label))
		if err := os.WriteFile(path, []byte(contents[label]), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		ti.Files = append(ti.Files, path)
	}
	return nil
}

// Close closes the test index connection.
func (ti *TestIndex) Close() error {
	if ti.DB != nil {
		return ti.DB.Close()
	}
	return nil
}

// query runs one of the report queries, chosen by n.
func (ti *TestIndex) query(ctx context.Context, n int) ([]schema.TimeEntry, error) {
	day := FirstDay.AddDate(0, 0, n%ti.Days)
	switch n % 3 {
	case 0:
		return ti.DB.ListEntries(ctx, db.EntryFilter{Date: day.Format(schema.DateLayout)})
	case 1:
		end := day.AddDate(0, 0, 6)
		return ti.DB.ListEntries(ctx, db.EntryFilter{
			From: day.Format(schema.DateLayout),
			To:   end.Format(schema.DateLayout),
		})
	default:
		return ti.DB.ListEntries(ctx, db.EntryFilter{Tag: ti.Tags[n%len(ti.Tags)]})
	}
}

// RunConcurrentQueries simulates numReaders report readers at once.
//
// Each reader performs queriesPerReader queries, cycling through day,
// week and tag reports, recording latency for each.
// Returns aggregated latency statistics.
func (ti *TestIndex) RunConcurrentQueries(numReaders int, queriesPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup

	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerReader)
			ctx := context.Background()

			for j := 0; j < queriesPerReader; j++ {
				start := time.Now()
				_, err := ti.query(ctx, readerID*queriesPerReader+j)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", readerID, j, err)
					break
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for range errorsChan {
		errorCount++
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyConsistentReads runs readers against the first generated day while
// a writer keeps re-indexing the file that holds it. Because a file is
// replaced in one transaction, every read must see the complete day.
func (ti *TestIndex) VerifyConsistentReads(numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)
	key := FirstDay.Format(schema.DateLayout)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			res, err := ti.Syncer.SyncFile(ctx, ti.Files[0])
			if err != nil {
				if ctx.Err() == nil {
					errorsChan <- fmt.Errorf("writer failed to sync: %w", err)
				}
				return
			}
			if err := res.Err(); err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("writer failed to sync: %w", err)
				return
			}
		}
	}()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			for ctx.Err() == nil {
				entries, err := ti.DB.ListEntries(ctx, db.EntryFilter{Date: key})
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d failed: %w", readerID, err)
					}
					return
				}
				if len(entries) != EntriesPerDay {
					errorsChan <- fmt.Errorf("reader %d saw %d entries for %s, want %d", readerID, len(entries), key, EntriesPerDay)
					return
				}
				for _, e := range entries {
					if e.Source == "" || e.DurationMinutes() <= 0 {
						errorsChan <- fmt.Errorf("reader %d found a broken entry: %+v", readerID, e)
						return
					}
				}

				time.Sleep(1 * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// WriteStats formats latency statistics to w.
func (s *LatencyStats) WriteStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// GetStats returns statistics about the test index.
func (ti *TestIndex) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"days":        ti.Days,
		"entries":     ti.Entries,
		"files":       len(ti.Files),
		"index_ms":    ti.IndexTime.Milliseconds(),
		"first_day":   FirstDay.Format(schema.DateLayout),
		"last_day":    ti.LastDay.Format(schema.DateLayout),
		"entries_day": EntriesPerDay,
	}
}
