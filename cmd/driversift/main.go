// Command driversift mirrors the LOLDrivers dataset into a local cache and
// reports, per driver, the samples whose imports put them in reach of the
// configured capability groups. The report lands next to the dataset cache
// and is echoed on stdout.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driversift/driversift/filter"
	"github.com/driversift/driversift/libsift"
)

// Config this struct is using the goconfig library for simple flag and env var
// parsing. See: https://github.com/crgimenes/goconfig
type Config struct {
	APIURL      string `cfgDefault:"https://www.loldrivers.io/api/drivers.json" cfg:"API_URL" cfgHelper:"Dataset endpoint."`
	DatasetFile string `cfgDefault:"drivers.json" cfg:"DATASET_FILE" cfgHelper:"File the dataset is cached in. The report is written next to it."`
	HeadersFile string `cfgDefault:"headers.json" cfg:"HEADERS_FILE" cfgHelper:"File the remote's cache validators are recorded in."`
	GroupFiles  string `cfg:"GROUP_FILES" cfgHelper:"Comma-separated list of files, one imported function per line, one capability group per file. Fewer than two files engages the built-in groups."`
	LogLevel    string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warn, error."`
	Timeout     string `cfgDefault:"1m" cfg:"TIMEOUT" cfgHelper:"Per-request timeout, as a Go duration."`
}

func main() {
	var conf Config
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel(conf)).
		With().
		Timestamp().
		Logger()
	zlog.Set(&l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	timeout, err := time.ParseDuration(conf.Timeout)
	if err != nil {
		zlog.Error(ctx).Err(err).Str("timeout", conf.Timeout).Msg("bad timeout")
		os.Exit(1)
	}
	spec, err := filter.LoadGroups(groupFiles(conf)...)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("unable to load capability groups")
		os.Exit(1)
	}

	s, err := libsift.New(ctx, &libsift.Options{
		URL:            conf.APIURL,
		DatasetFile:    conf.DatasetFile,
		HeadersFile:    conf.HeadersFile,
		Spec:           spec,
		RequestTimeout: timeout,
	})
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("unusable configuration")
		os.Exit(1)
	}

	report, err := s.Run(ctx)
	switch {
	case err == nil:
	case report != nil:
		// The pass produced a report but couldn't write it; say so and
		// still print the result.
		zlog.Error(ctx).Err(err).Msg("unable to write report")
	default:
		zlog.Error(ctx).Err(err).Msg("run failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report); err != nil {
		zlog.Error(ctx).Err(err).Msg("unable to print report")
	}
}

func groupFiles(conf Config) []string {
	var ps []string
	for _, p := range strings.Split(conf.GroupFiles, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, p)
		}
	}
	return ps
}

func logLevel(conf Config) zerolog.Level {
	switch strings.ToLower(conf.LogLevel) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
