// Package jsonfile implements whole-file JSON reads and writes for the
// handful of files the tool owns.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quay/zlog"

	"github.com/driversift/driversift"
)

// Load reads the file at path and decodes it into v.
//
// An absent file reports ErrNotFound, undecodable content reports ErrParse,
// and decodable content of the wrong type reports ErrShape, so callers can
// distinguish "never fetched" from "damaged" with [errors.Is].
func Load(path string, v any) error {
	const op = `jsonfile: load`
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, fs.ErrNotExist):
		return &driversift.Error{
			Op:      op,
			Kind:    driversift.ErrNotFound,
			Message: path,
			Inner:   err,
		}
	default:
		return &driversift.Error{
			Op:      op,
			Kind:    driversift.ErrInternal,
			Message: path,
			Inner:   err,
		}
	}
	err = json.Unmarshal(b, v)
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, nil):
	case errors.As(err, &syntaxErr):
		return &driversift.Error{
			Op:      op,
			Kind:    driversift.ErrParse,
			Message: path,
			Inner:   err,
		}
	case errors.As(err, &typeErr):
		return &driversift.Error{
			Op:      op,
			Kind:    driversift.ErrShape,
			Message: path,
			Inner:   err,
		}
	default:
		// Unmarshaler errors pass through untouched so their kinds survive.
		return fmt.Errorf("jsonfile: load %s: %w", path, err)
	}
	return nil
}

// Store encodes v and atomically replaces the file at path with the result.
//
// The encoding is pretty-printed with four-space indents and HTML escaping
// off. The bytes are spooled to a temporary file next to the target so the
// rename never crosses a filesystem, and a failed store leaves any previous
// file as it was.
func Store(ctx context.Context, path string, v any) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("jsonfile: unable to create spool file: %w", err)
	}
	name := f.Name()
	rm := true
	defer func() {
		if rm {
			if err := os.Remove(name); err != nil {
				zlog.Warn(ctx).Err(err).Msg("unable to remove unsuccessful spool file")
			}
		}
	}()
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("jsonfile: unable to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonfile: unable to flush %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("jsonfile: unable to commit %s: %w", path, err)
	}
	rm = false
	return nil
}
