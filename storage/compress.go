package storage

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

type compressed struct {
	Storage
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Compressed returns a Storage that zstd compresses values before they are
// written to the given Storage.
func Compressed(s Storage) (Storage, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &compressed{
		Storage: s,
		enc:     enc,
		dec:     dec,
	}, nil
}

func (c *compressed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	value, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("error decompressing value %x: %w", key, err)
	}
	return value, nil
}

func (c *compressed) Put(ctx context.Context, key string, content []byte) error {
	return c.Storage.Put(ctx, key, c.enc.EncodeAll(content, nil))
}
