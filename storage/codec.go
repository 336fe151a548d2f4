// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how backends encode values at rest.
type Compression string

// Supported compression types.
const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Encoded values start with a one byte marker so that a store can read values
// written under a different compression setting.
const (
	markerRaw  byte = 0x00
	markerZstd byte = 0x01
)

// Zstd encoder/decoder for reuse. Both are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd encoder: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd decoder: " + err.Error())
	}
}

// Encode prefixes data with its marker, compressing it if requested.
func Encode(data []byte, c Compression) []byte {
	switch c {
	case CompressionZstd:
		out := make([]byte, 1, len(data)/2+1)
		out[0] = markerZstd
		return zstdEncoder.EncodeAll(data, out)
	default:
		out := make([]byte, 1+len(data))
		out[0] = markerRaw
		copy(out[1:], data)
		return out
	}
}

// Decode reverses Encode.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrCorruptValue
	}

	switch data[0] {
	case markerRaw:
		out := make([]byte, len(data)-1)
		copy(out, data[1:])
		return out, nil
	case markerZstd:
		out, err := zstdDecoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown marker %#x", ErrCorruptValue, data[0])
	}
}

// ParseCompression validates a configured compression name. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}
