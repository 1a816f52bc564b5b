package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quay/zlog"

	"github.com/driversift/driversift"
)

// Process reduces a dataset to a Report of the requested sample members,
// scoped to samples whose imports satisfy spec.
//
// The dataset is the decoded top-level array of the cached dataset document.
// Records are held strictly to the documented shape; the first violation
// aborts with an error of kind [driversift.ErrShape] naming the record's
// position.
//
// A nil spec, or one with fewer than two groups, is replaced by
// [DefaultSpec]. One deliberately supplied group is discarded by this rule
// too; longstanding behavior, kept for compatibility. Empty fields are
// replaced by [DefaultFields]. Field names are compared against lower-cased
// sample member names, so only lower-case names ever select anything.
func Process(ctx context.Context, dataset []json.RawMessage, spec Spec, fields []string) (*Report, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "filter/Process")
	if len(spec) < 2 {
		zlog.Debug(ctx).
			Int("supplied", len(spec)).
			Msg("too few groups, using the default spec")
		spec = DefaultSpec()
	}
	if len(fields) == 0 {
		fields = DefaultFields()
	}

	r := newReport(fields)
	for i, raw := range dataset {
		var d driversift.Driver
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("filter: record %d: %w", i, err)
		}
		for _, s := range d.Samples {
			if !spec.Match(s.ImportedFunctions) {
				continue
			}
			b := r.bucket(d.ID)
			for _, f := range s.Fields {
				n := strings.ToLower(f.Name)
				if _, ok := b[n]; !ok {
					continue
				}
				b[n] = append(b[n], f.Value)
			}
		}
	}
	zlog.Debug(ctx).
		Int("records", len(dataset)).
		Int("reported", r.Len()).
		Msg("processed dataset")
	return r, nil
}

// Report is the processed result: for every driver with at least one
// matching sample, the requested members of those samples.
//
// A Report marshals as a JSON object, but not through a Go map: drivers
// appear in the order their first sample matched, members in requested
// order, and member values in the order samples supplied them, duplicates
// included.
type Report struct {
	fields  []string
	order   []string
	drivers map[string]map[string][]json.RawMessage
}

func newReport(fields []string) *Report {
	r := &Report{
		fields:  make([]string, 0, len(fields)),
		drivers: make(map[string]map[string][]json.RawMessage),
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		r.fields = append(r.fields, f)
	}
	return r
}

// Bucket returns the member buckets for the named driver, creating one empty
// bucket per requested field on first use.
func (r *Report) bucket(id string) map[string][]json.RawMessage {
	b, ok := r.drivers[id]
	if !ok {
		b = make(map[string][]json.RawMessage, len(r.fields))
		for _, f := range r.fields {
			b[f] = []json.RawMessage{}
		}
		r.drivers[id] = b
		r.order = append(r.order, id)
	}
	return b
}

// Len reports the number of drivers in the Report.
func (r *Report) Len() int {
	return len(r.order)
}

// MarshalJSON implements [json.Marshaler].
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.order {
		if i != 0 {
			buf.WriteByte(',')
		}
		if err := encode(&buf, id); err != nil {
			return nil, err
		}
		buf.WriteString(`:{`)
		b := r.drivers[id]
		for j, f := range r.fields {
			if j != 0 {
				buf.WriteByte(',')
			}
			if err := encode(&buf, f); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := encode(&buf, b[f]); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
