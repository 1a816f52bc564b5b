package libsift

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/driversift/driversift"
	"github.com/driversift/driversift/filter"
)

// DatasetServer serves a fixed body under a fixed ETag and counts probes.
type datasetServer struct {
	srv   *httptest.Server
	body  []byte
	heads atomic.Int64
}

func newDatasetServer(t *testing.T, body []byte) *datasetServer {
	t.Helper()
	d := &datasetServer{body: body}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"test"`)
		switch r.Method {
		case http.MethodHead:
			d.heads.Add(1)
		case http.MethodGet:
			w.Write(d.body)
		}
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func testdata(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestSift(ctx context.Context, t *testing.T, d *datasetServer, dir string) *Sift {
	t.Helper()
	s, err := New(ctx, &Options{
		URL:         d.srv.URL,
		DatasetFile: filepath.Join(dir, "drivers.json"),
		HeadersFile: filepath.Join(dir, "headers.json"),
		Client:      d.srv.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("EndToEnd", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, testdata(t, "drivers.json"))
		dir := t.TempDir()
		s := newTestSift(ctx, t, d, dir)

		report, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := report.Len(), 1; got != want {
			t.Errorf("got: %d drivers, want: %d", got, want)
		}
		got, err := os.ReadFile(s.OutputFile())
		if err != nil {
			t.Fatal(err)
		}
		want := testdata(t, "drivers_processed.json")
		if !cmp.Equal(string(got), string(want)) {
			t.Error(cmp.Diff(string(got), string(want)))
		}
	})

	t.Run("ProbeGate", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, testdata(t, "drivers.json"))
		dir := t.TempDir()
		s := newTestSift(ctx, t, d, dir)

		// Back-to-back passes land within the probe interval; the second
		// must reuse the cache without touching the network.
		for i := 0; i < 2; i++ {
			if _, err := s.Run(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if got := d.heads.Load(); got != 1 {
			t.Errorf("got: %d probes, want: 1", got)
		}
	})

	t.Run("OfflineUsesCache", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, testdata(t, "drivers.json"))
		dir := t.TempDir()
		s, err := New(ctx, &Options{
			URL:           d.srv.URL,
			DatasetFile:   filepath.Join(dir, "drivers.json"),
			HeadersFile:   filepath.Join(dir, "headers.json"),
			Client:        d.srv.Client(),
			ProbeInterval: time.Nanosecond,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Run(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d.srv.Close()

		// The remote is gone but the cache is warm; the pass still reports.
		report, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := report.Len(), 1; got != want {
			t.Errorf("got: %d drivers, want: %d", got, want)
		}
	})

	t.Run("NoCacheNoRemote", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		srv := httptest.NewServer(http.NotFoundHandler())
		c := srv.Client()
		url := srv.URL
		srv.Close()
		dir := t.TempDir()
		s, err := New(ctx, &Options{
			URL:         url,
			DatasetFile: filepath.Join(dir, "drivers.json"),
			HeadersFile: filepath.Join(dir, "headers.json"),
			Client:      c,
		})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := s.Run(ctx); !errors.Is(err, driversift.ErrNotFound) {
			t.Errorf("got: %v, want kind: %v", err, driversift.ErrNotFound)
		}
	})

	t.Run("CorruptDataset", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, testdata(t, "drivers.json"))
		dir := t.TempDir()
		s, err := New(ctx, &Options{
			URL:           d.srv.URL,
			DatasetFile:   filepath.Join(dir, "drivers.json"),
			HeadersFile:   filepath.Join(dir, "headers.json"),
			Client:        d.srv.Client(),
			ProbeInterval: time.Nanosecond,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Run(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Damage the cached dataset. The validators still match, so the
		// next pass won't re-download, and the load must fail loudly.
		if err := os.WriteFile(filepath.Join(dir, "drivers.json"), []byte(`[{"Id":`), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := s.Run(ctx); !errors.Is(err, driversift.ErrParse) {
			t.Errorf("got: %v, want kind: %v", err, driversift.ErrParse)
		}
	})

	t.Run("EmptyReportNotWritten", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, []byte(`[{"Id":"D1","KnownVulnerableSamples":[{"ImportedFunctions":["nothing"]}]}]`))
		dir := t.TempDir()
		s := newTestSift(ctx, t, d, dir)

		report, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := report.Len(), 0; got != want {
			t.Errorf("got: %d drivers, want: %d", got, want)
		}
		if _, err := os.Stat(s.OutputFile()); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("report file written anyway: %v", err)
		}
	})

	t.Run("CustomSpec", func(t *testing.T) {
		ctx := zlog.Test(context.Background(), t)
		d := newDatasetServer(t, testdata(t, "drivers.json"))
		dir := t.TempDir()
		s, err := New(ctx, &Options{
			URL:         d.srv.URL,
			DatasetFile: filepath.Join(dir, "drivers.json"),
			HeadersFile: filepath.Join(dir, "headers.json"),
			Client:      d.srv.Client(),
			Spec: filter.Spec{
				{"MmMapIoSpace"},
				{"ZwOpenProcess", "MmMapIoSpace"},
			},
			Fields: []string{"filename"},
		})
		if err != nil {
			t.Fatal(err)
		}

		report, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Both samples of the first driver import MmMapIoSpace.
		if got, want := report.Len(), 1; got != want {
			t.Errorf("got: %d drivers, want: %d", got, want)
		}
		b, err := os.ReadFile(s.OutputFile())
		if err != nil {
			t.Fatal(err)
		}
		want := "{\n    \"11111111-aaaa-4bbb-8ccc-000000000001\": {\n        \"filename\": [\n            \"iqvw64e.sys\",\n            \"other.sys\"\n        ]\n    }\n}\n"
		if !cmp.Equal(string(b), want) {
			t.Error(cmp.Diff(string(b), want))
		}
	})
}

func TestOutputFile(t *testing.T) {
	t.Parallel()

	tt := []struct {
		In, Want string
	}{
		{"drivers.json", "drivers_processed.json"},
		{"cache/drivers.json", "cache/drivers_processed.json"},
		{"drivers.dat", "drivers_processed.json"},
		{"drivers", "drivers_processed.json"},
	}
	for _, tc := range tt {
		if got := outputFile(tc.In); got != tc.Want {
			t.Errorf("%q: got: %q, want: %q", tc.In, got, tc.Want)
		}
	}
}
