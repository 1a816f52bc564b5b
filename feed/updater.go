// Package feed implements retrieval and change-tracked caching of the
// LOLDrivers dataset.
//
// An Updater probes the remote endpoint with a metadata-only request and
// downloads the body only when the advertised cache validators differ from
// the pair recorded alongside the cached dataset. The dataset and validator
// files are only ever replaced together, after a download has parsed.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/quay/zlog"

	"github.com/driversift/driversift"
	"github.com/driversift/driversift/internal/httputil"
	"github.com/driversift/driversift/internal/jsonfile"
)

const (
	// DefaultURL is the default place to look for the driver dataset.
	DefaultURL = `https://www.loldrivers.io/api/drivers.json`

	defaultRequestTimeout = 1 * time.Minute
	name                  = `loldrivers`
)

// Config is the configuration honored by an Updater.
type Config struct {
	// URL overrides the default dataset endpoint.
	URL string `json:"url" yaml:"url"`
	// DatasetFile is the file the dataset body is cached in.
	DatasetFile string `json:"dataset_file" yaml:"dataset_file"`
	// HeadersFile is the file the validator pair is recorded in.
	HeadersFile string `json:"headers_file" yaml:"headers_file"`
	// RequestTimeout bounds every individual request. Zero means one minute.
	RequestTimeout driversift.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// Updater keeps the local dataset cache current with the remote endpoint.
type Updater struct {
	client      *http.Client
	url         *url.URL
	datasetFile string
	headersFile string
	timeout     time.Duration
}

// NewUpdater returns an Updater configured per cfg, using c for all requests.
//
// A nil c uses http.DefaultClient.
func NewUpdater(cfg Config, c *http.Client) (*Updater, error) {
	if cfg.DatasetFile == "" || cfg.HeadersFile == "" {
		return nil, errors.New("feed: both cache file paths must be provided")
	}
	if c == nil {
		c = http.DefaultClient
	}
	us := DefaultURL
	if cfg.URL != "" {
		us = cfg.URL
	}
	u, err := url.Parse(us)
	if err != nil {
		return nil, fmt.Errorf("feed: bad URL %q: %w", us, err)
	}
	to := defaultRequestTimeout
	if cfg.RequestTimeout != 0 {
		to = time.Duration(cfg.RequestTimeout)
	}
	return &Updater{
		client:      c,
		url:         u,
		datasetFile: cfg.DatasetFile,
		headersFile: cfg.HeadersFile,
		timeout:     to,
	}, nil
}

// Name returns the feed name.
func (u *Updater) Name() string { return name }

// Probe reports the validators the remote currently advertises, using a
// metadata-only request.
func (u *Updater) Probe(ctx context.Context) (CacheHeaders, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "feed/Updater.Probe")
	var h CacheHeaders

	tctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(tctx, http.MethodHead, u.url.String(), nil)
	if err != nil {
		return h, err
	}
	res, err := u.client.Do(req)
	if err != nil {
		return h, &driversift.Error{
			Op:    `feed/Updater.Probe`,
			Kind:  driversift.ErrTransient,
			Inner: err,
		}
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return h, fmt.Errorf("feed: probe of %q: %w", u.url.String(), err)
	}
	h = headersFrom(res.Header)
	zlog.Debug(ctx).
		Str("etag", deref(h.ETag)).
		Str("last-modified", deref(h.LastModified)).
		Msg("probed remote validators")
	return h, nil
}

// Sync performs one conditional refresh of the cache files.
//
// It reports true when a new dataset body was downloaded, parsed and
// committed. Any failure along the way reports false with both cache files
// exactly as they were.
func (u *Updater) Sync(ctx context.Context) (bool, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "feed/Updater.Sync",
		"url", u.url.String())

	var prior CacheHeaders
	force := false
	err := jsonfile.Load(u.headersFile, &prior)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, driversift.ErrNotFound):
		zlog.Info(ctx).
			Str("file", u.headersFile).
			Msg("no validators recorded, downloading")
		force = true
	case errors.Is(err, driversift.ErrParse) || errors.Is(err, driversift.ErrShape):
		zlog.Warn(ctx).
			Err(err).
			Str("file", u.headersFile).
			Msg("recorded validators unreadable, downloading")
		force = true
	default:
		return false, err
	}

	cur, err := u.Probe(ctx)
	if err != nil {
		return false, err
	}
	if !force && cur.Equal(prior) {
		zlog.Info(ctx).Msg("dataset unchanged")
		return false, nil
	}

	if err := u.fetch(ctx, cur); err != nil {
		return false, err
	}
	zlog.Info(ctx).
		Str("file", u.datasetFile).
		Msg("dataset updated")
	return true, nil
}

// Fetch downloads and parses the dataset body, then commits it along with
// the validators that prompted the download.
//
// The dataset commits first: a crash between the two renames leaves the old
// validator pair next to a new dataset, which costs a re-download on the
// next run instead of wrongly reporting the cache current.
func (u *Updater) fetch(ctx context.Context, cur CacheHeaders) error {
	ctx = zlog.ContextWithValues(ctx, "component", "feed/Updater.fetch")

	tctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(tctx, http.MethodGet, u.url.String(), nil)
	if err != nil {
		return err
	}
	res, err := u.client.Do(req)
	if err != nil {
		return &driversift.Error{
			Op:    `feed/Updater.fetch`,
			Kind:  driversift.ErrTransient,
			Inner: err,
		}
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return fmt.Errorf("feed: fetch of %q: %w", u.url.String(), err)
	}

	z, err := newReader(bufio.NewReader(res.Body))
	if err != nil {
		return fmt.Errorf("feed: unable to read body: %w", err)
	}
	defer z.Close()
	var records []json.RawMessage
	if err := json.NewDecoder(z).Decode(&records); err != nil {
		return &driversift.Error{
			Op:      `feed/Updater.fetch`,
			Kind:    driversift.ErrParse,
			Message: "unable to decode dataset",
			Inner:   err,
		}
	}

	if err := jsonfile.Store(ctx, u.datasetFile, records); err != nil {
		return fmt.Errorf("feed: unable to commit dataset: %w", err)
	}
	if err := jsonfile.Store(ctx, u.headersFile, &cur); err != nil {
		return fmt.Errorf("feed: unable to commit validators: %w", err)
	}
	zlog.Debug(ctx).
		Int("records", len(records)).
		Msg("committed dataset")
	return nil
}
