package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownFormat is returned when a payload is neither JSON text nor
// a recognized compression container.
var ErrUnknownFormat = errors.New("payload is neither JSON nor a known compression format")

// Format identifies the detected payload container.
type Format uint8

const (
	// FormatJSON indicates plain, uncompressed JSON text.
	FormatJSON Format = iota
	// FormatGzip indicates a gzip member (the producer's default).
	FormatGzip
	// FormatZstd indicates a zstd frame.
	FormatZstd
	// FormatLZ4 indicates an lz4 frame.
	FormatLZ4
	// FormatUnknown indicates an unrecognized payload.
	FormatUnknown
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Shared zstd decoder, initialized once. Safe for concurrent use via
// DecodeAll.
var (
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
		)
	})
	return zstdDec
}

// Sniff detects the container format of a payload without decoding it.
//
// Plain JSON is recognized by its leading byte ('{' or '[', after
// optional whitespace); compressed containers by their frame magic.
func Sniff(data []byte) Format {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return FormatJSON
		}
		break
	}
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return FormatGzip
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return FormatZstd
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x04, 0x22, 0x4d, 0x18}):
		return FormatLZ4
	default:
		return FormatUnknown
	}
}

// Decompress returns the JSON text contained in a payload, inflating
// it first if it is wrapped in a compression container.
func Decompress(data []byte) ([]byte, error) {
	switch f := Sniff(data); f {
	case FormatJSON:
		return data, nil
	case FormatGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return out, nil
	case FormatZstd:
		out, err := zstdDecoder().DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case FormatLZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out, nil
	default:
		return nil, ErrUnknownFormat
	}
}

// Decode sniffs, decompresses and unmarshals a payload into v using
// the given codec (codec.Default if nil).
func Decode(data []byte, v any, c Codec) error {
	if c == nil {
		c = Default
	}
	text, err := Decompress(data)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(text, v); err != nil {
		return fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	return nil
}
