// Package driversift holds the types shared between the feed and filter
// stages of the driversift tooling.
//
// The dataset served by loldrivers.io is a JSON array of driver records.
// Only two members of a record are load-bearing: the driver's "Id" and its
// "KnownVulnerableSamples" array. Everything else rides along untyped so the
// filter stage can copy requested members back out byte-for-byte.
package driversift

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Driver is one record of the vulnerable-driver dataset.
type Driver struct {
	// ID is the record's "Id" member. Records without one decode with an
	// empty ID and are still processed.
	ID string
	// Samples are the record's known-vulnerable samples.
	Samples []Sample
}

// Sample is one binary sample attached to a Driver.
//
// Fields holds every member of the sample object in document order with the
// original key spelling and the raw value bytes. Members are reported in
// encounter order downstream, so the usual map decoding is no good here.
type Sample struct {
	// ImportedFunctions is the decoded "ImportedFunctions" member, if any.
	// A missing or null member leaves it empty.
	ImportedFunctions []string
	// Fields are all members of the sample, in document order.
	Fields []Field
}

// Field is a single sample member.
type Field struct {
	Name  string
	Value json.RawMessage
}

// Assert the decoders are wired up.
var (
	_ json.Unmarshaler = (*Driver)(nil)
	_ json.Unmarshaler = (*Sample)(nil)
)

// UnmarshalJSON implements json.Unmarshaler.
//
// The decode is strict about shape: the record must be a JSON object and
// must have a "KnownVulnerableSamples" member. Violations report ErrShape.
func (d *Driver) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return &Error{
			Op:      `driversift: decode driver`,
			Kind:    ErrShape,
			Message: "record is not a JSON object",
			Inner:   err,
		}
	}
	if m == nil {
		return &Error{
			Op:      `driversift: decode driver`,
			Kind:    ErrShape,
			Message: "record is not a JSON object",
		}
	}
	if raw, ok := m[`Id`]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &d.ID); err != nil {
			return &Error{
				Op:      `driversift: decode driver`,
				Kind:    ErrShape,
				Message: `"Id" is not a string`,
				Inner:   err,
			}
		}
	}
	raw, ok := m[`KnownVulnerableSamples`]
	if !ok || isNull(raw) {
		return &Error{
			Op:      `driversift: decode driver`,
			Kind:    ErrShape,
			Message: fmt.Sprintf(`record %q has no "KnownVulnerableSamples" member`, d.ID),
		}
	}
	if err := json.Unmarshal(raw, &d.Samples); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &Error{
				Op:      `driversift: decode driver`,
				Kind:    ErrShape,
				Message: fmt.Sprintf(`record %q: bad "KnownVulnerableSamples"`, d.ID),
				Inner:   err,
			}
		}
		// Sample decode errors already carry their kind.
		return fmt.Errorf("driversift: decode driver %q: %w", d.ID, err)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Members are recorded in document order.
func (s *Sample) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &Error{
			Op:      `driversift: decode sample`,
			Kind:    ErrShape,
			Message: "sample is not a JSON object",
		}
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		// Inside an object, the next token is always the member name.
		name := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		s.Fields = append(s.Fields, Field{Name: name, Value: raw})
		if name != `ImportedFunctions` || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, &s.ImportedFunctions); err != nil {
			return &Error{
				Op:      `driversift: decode sample`,
				Kind:    ErrShape,
				Message: `"ImportedFunctions" is not an array of strings`,
				Inner:   err,
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func isNull(b json.RawMessage) bool {
	return string(bytes.TrimSpace(b)) == `null`
}
