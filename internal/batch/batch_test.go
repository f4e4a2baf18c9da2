package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avatarmap/internal/batch"
	"avatarmap/internal/collector"
	"avatarmap/internal/failure"
	"avatarmap/internal/fetch"
	"avatarmap/internal/testsupport"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	delay    time.Duration
	active   atomic.Int32
	maxSeen  atomic.Int32
	onCalled func(fetch.Request)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[req.Identifier]++
	err := f.fail[req.Identifier]
	f.mu.Unlock()
	if f.onCalled != nil {
		f.onCalled(req)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err != nil {
		return fetch.Result{Attempts: 2}, err
	}
	if req.ImageURL == "" {
		return fetch.Result{Attempts: 1}, nil
	}
	return fetch.Result{Attempts: 1, Files: []fetch.File{{Name: req.Slug, Path: "img/" + req.Slug + ".png", Width: 73, Height: 73, Format: "png"}}}, nil
}

func (f *fakeFetcher) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func TestRunPartialFailureDoesNotAbort(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail["Broken"] = failure.Wrap(failure.ErrTransient, "twitter", "download", "Broken", errors.New("boom"))

	set := collector.NewSet()
	set.Add("Alice", "http://x/a.png")
	set.Add("Broken", "http://x/b.png")
	set.Add("Bob", "")
	set.Add("Zed", "http://x/z.png")

	report, err := batch.NewRunner(fetcher, 2, nil).Run(context.Background(), "twitter", set.Entries())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Count(batch.StatusFetched) != 2 || report.Count(batch.StatusFailed) != 1 || report.Count(batch.StatusEmpty) != 1 {
		t.Fatalf("unexpected outcome counts: %+v", report.Outcomes)
	}
	m := report.Mapping()
	if keys := m.Keys(); len(keys) != 2 || keys[0] != "alice" || keys[1] != "zed" {
		t.Fatalf("unexpected mapping keys %v", keys)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0].Entry.Name != "Broken" || failed[0].Err == nil {
		t.Fatalf("unexpected failed outcomes %+v", failed)
	}
	for _, name := range []string{"Alice", "Broken", "Bob", "Zed"} {
		if got := fetcher.callCount(name); got != 1 {
			t.Fatalf("expected %s attempted once, got %d", name, got)
		}
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 3} {
		t.Run(fmt.Sprintf("limit-%d", limit), func(t *testing.T) {
			fetcher := newFakeFetcher()
			fetcher.delay = 10 * time.Millisecond

			set := collector.NewSet()
			for i := 0; i < 12; i++ {
				set.Add(fmt.Sprintf("user%02d", i), "http://x/u.png")
			}
			report, err := batch.NewRunner(fetcher, limit, nil).Run(context.Background(), "s", set.Entries())
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if got := int(fetcher.maxSeen.Load()); got > limit {
				t.Fatalf("expected at most %d concurrent fetches, saw %d", limit, got)
			}
			if report.Count(batch.StatusFetched) != 12 {
				t.Fatalf("expected all fetched, got %d", report.Count(batch.StatusFetched))
			}
		})
	}
}

func TestRunMappingIsIndependentOfConcurrency(t *testing.T) {
	set := collector.NewSet()
	for _, name := range []string{"delta", "Alpha", "charlie", "Bravo", "echo"} {
		set.Add(name, "http://x/"+name)
	}
	entries := set.Entries()

	serial, err := batch.NewRunner(newFakeFetcher(), 1, nil).Run(context.Background(), "s", entries)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	parallel, err := batch.NewRunner(newFakeFetcher(), 4, nil).Run(context.Background(), "s", entries)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}
	a, b := serial.Mapping().Keys(), parallel.Mapping().Keys()
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Fatalf("expected identical mappings, got %v and %v", a, b)
	}
	for i, outcome := range parallel.Outcomes {
		if outcome.Entry.Key != entries[i].Key {
			t.Fatalf("expected outcomes in input order, got %q at %d", outcome.Entry.Key, i)
		}
	}
}

func TestRunSkipsSlugCollisions(t *testing.T) {
	fetcher := newFakeFetcher()
	set := collector.NewSet()
	set.Add("Zach Leat", "http://x/1")
	set.Add("zach-leat", "http://x/2")

	report, err := batch.NewRunner(fetcher, 1, nil).Run(context.Background(), "twitter", set.Entries())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Count(batch.StatusCollision) != 1 || report.Count(batch.StatusFetched) != 1 {
		t.Fatalf("unexpected outcomes %+v", report.Outcomes)
	}
	// "zach leat" sorts before "zach-leat" and owns the slug.
	if fetcher.callCount("Zach Leat") != 1 || fetcher.callCount("zach-leat") != 0 {
		t.Fatalf("expected only the first key fetched, calls %v", fetcher.calls)
	}
}

func TestRunCancellationIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newFakeFetcher()
	fetcher.onCalled = func(fetch.Request) { cancel() }

	set := collector.NewSet()
	set.AddAll("a", "b", "c")
	report, err := batch.NewRunner(fetcher, 1, nil).Run(ctx, "s", set.Entries())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if report.Count(batch.StatusCanceled) == 0 {
		t.Fatalf("expected canceled outcomes, got %+v", report.Outcomes)
	}
}

func TestRunFilesystemErrorIsFatal(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail["a"] = failure.Wrap(failure.ErrFilesystem, "s", "create cache dir", "", errors.New("read-only"))

	set := collector.NewSet()
	set.Add("a", "http://x/a")
	_, err := batch.NewRunner(fetcher, 1, nil).Run(context.Background(), "s", set.Entries())
	if !errors.Is(err, failure.ErrFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestRunWithRealFetcherDedupsCasings(t *testing.T) {
	server := testsupport.NewImageServer(t, 80, 80)
	cfg := testsupport.NewConfig(t)
	fetcher := fetch.New(fetch.OptionsFromConfig(cfg))

	entries := collector.Collect([]string{"Foo"}, []string{"foo", "FOO"})
	entries = collector.ResolveImages(entries, func(key string) string { return server.URL("/" + key) })

	report, err := batch.NewRunner(fetcher, 2, nil).Run(context.Background(), "twitter", entries)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if server.TotalHits() != 1 {
		t.Fatalf("expected exactly one request, got %d", server.TotalHits())
	}
	if keys := report.Mapping().Keys(); len(keys) != 1 || keys[0] != "foo" {
		t.Fatalf("expected one mapping entry, got %v", keys)
	}
}
