package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic number, little endian
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressed wraps a backend so blobs are stored zstd-compressed.
// Blobs written before compression was enabled are returned unchanged.
type Compressed struct {
	inner   Backend
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Ensure Compressed implements the interface
var _ Backend = (*Compressed)(nil)

// NewCompressed wraps inner with zstd compression
func NewCompressed(inner Backend) (*Compressed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Compressed{inner: inner, encoder: encoder, decoder: decoder}, nil
}

func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(blob, zstdMagic) {
		return blob, nil
	}
	out, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	return out, nil
}

func (c *Compressed) Set(ctx context.Context, key string, blob []byte) error {
	return c.inner.Set(ctx, key, c.encoder.EncodeAll(blob, nil))
}

// Close releases the codec and closes the wrapped backend
func (c *Compressed) Close() error {
	c.decoder.Close()
	_ = c.encoder.Close()
	return c.inner.Close()
}
