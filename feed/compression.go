package feed

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type compression int

const (
	cmpGzip compression = iota
	cmpZstd
	cmpXz
	cmpNone
)

var cmpHeaders = [...][]byte{
	{0x1F, 0x8B, 0x08},                   // cmpGzip
	{0x28, 0xB5, 0x2F, 0xFD},             // cmpZstd
	{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}, // cmpXz
}

func detectCompression(b []byte) compression {
	for c, h := range cmpHeaders {
		if len(b) < len(h) {
			continue
		}
		if bytes.Equal(h, b[:len(h)]) {
			return compression(c)
		}
	}
	return cmpNone
}

// NewReader wraps br in the decompressor its leading bytes call for.
//
// Mirrors serve the dataset compressed with whatever they like and the
// content-type header can't be trusted, so the magic bytes decide.
func newReader(br *bufio.Reader) (io.ReadCloser, error) {
	b, err := br.Peek(6)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch detectCompression(b) {
	case cmpGzip:
		g, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return g, nil
	case cmpZstd:
		z, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return z.IOReadCloser(), nil
	case cmpXz:
		x, err := xz.NewReader(br)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(x), nil
	}
	return io.NopCloser(br), nil
}
