// Package libsift ties the feed and filter stages into one runnable unit:
// refresh the dataset cache if the remote changed, load it, select samples,
// and write the report next to the cache.
package libsift

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"golang.org/x/time/rate"

	"github.com/driversift/driversift"
	"github.com/driversift/driversift/feed"
	"github.com/driversift/driversift/filter"
	"github.com/driversift/driversift/internal/jsonfile"
)

// Sift is a configured fetch-and-filter pipeline.
//
// A Sift is not safe for concurrent use.
type Sift struct {
	updater   *feed.Updater
	probeGate *rate.Limiter
	spec      filter.Spec
	fields    []string
	dataset   string
	output    string
}

// New returns a Sift ready for Run.
func New(ctx context.Context, opts *Options) (*Sift, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libsift/New")
	if opts == nil {
		opts = &Options{}
	}
	dataset := opts.DatasetFile
	if dataset == "" {
		dataset = DefaultDatasetFile
	}
	headers := opts.HeadersFile
	if headers == "" {
		headers = DefaultHeadersFile
	}
	u, err := feed.NewUpdater(feed.Config{
		URL:            opts.URL,
		DatasetFile:    dataset,
		HeadersFile:    headers,
		RequestTimeout: driversift.Duration(opts.RequestTimeout),
	}, opts.Client)
	if err != nil {
		return nil, err
	}
	interval := opts.ProbeInterval
	if interval == 0 {
		interval = DefaultProbeInterval
	}
	s := &Sift{
		updater:   u,
		probeGate: rate.NewLimiter(rate.Every(interval), 1),
		spec:      opts.Spec,
		fields:    opts.Fields,
		dataset:   dataset,
		output:    outputFile(dataset),
	}
	zlog.Debug(ctx).
		Str("dataset", s.dataset).
		Str("output", s.output).
		Msg("initialized")
	return s, nil
}

// OutputFile reports where Run writes the report.
func (s *Sift) OutputFile() string {
	return s.output
}

// Run performs one refresh-load-select pass.
//
// A refresh failure is not fatal: it's logged and the pass continues on
// whatever is cached. A dataset that's missing, unparsable, or of the wrong
// shape at load time is fatal; there's nothing sensible to fall back to.
// When writing a non-empty report fails, the Report is returned along with
// the error so the caller still has the result in hand.
func (s *Sift) Run(ctx context.Context) (*filter.Report, error) {
	ref := uuid.New()
	ctx = zlog.ContextWithValues(ctx,
		"component", "libsift/Sift.Run",
		"ref", ref.String())
	zlog.Info(ctx).Msg("starting pass")
	defer zlog.Info(ctx).Msg("finished pass")

	if s.probeGate.Allow() {
		changed, err := s.updater.Sync(ctx)
		switch {
		case err != nil:
			zlog.Error(ctx).
				Err(err).
				Msg("dataset refresh failed, continuing with cached data")
		case changed:
			zlog.Info(ctx).Msg("cache refreshed")
		}
	} else {
		zlog.Debug(ctx).Msg("probed recently, skipping refresh")
	}

	var records []json.RawMessage
	if err := jsonfile.Load(s.dataset, &records); err != nil {
		return nil, fmt.Errorf("libsift: unable to load dataset: %w", err)
	}
	report, err := filter.Process(ctx, records, s.spec, s.fields)
	if err != nil {
		return nil, err
	}
	if report.Len() == 0 {
		zlog.Info(ctx).Msg("nothing selected, skipping report write")
		return report, nil
	}
	if err := jsonfile.Store(ctx, s.output, report); err != nil {
		return report, fmt.Errorf("libsift: unable to write report: %w", err)
	}
	zlog.Info(ctx).
		Str("file", s.output).
		Int("drivers", report.Len()).
		Msg("report written")
	return report, nil
}

// OutputFile derives the report path from the dataset path: the extension is
// replaced with "_processed.json".
func outputFile(dataset string) string {
	return strings.TrimSuffix(dataset, filepath.Ext(dataset)) + "_processed.json"
}
