// Package storage persists inventory snapshots between sessions and keeps an
// audit ledger of applied commands.
package storage

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses storage-format snapshots. Safe for concurrent use.
type Codec struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (c *Codec) init() {
	c.once.Do(func() {
		c.enc, c.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if c.err != nil {
			return
		}
		c.dec, c.err = zstd.NewReader(nil)
	})
}

// Encode compresses b.
func (c *Codec) Encode(b []byte) ([]byte, error) {
	c.init()
	if c.err != nil {
		return nil, fmt.Errorf("zstd init: %w", c.err)
	}
	return c.enc.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

// Decode decompresses b.
func (c *Codec) Decode(b []byte) ([]byte, error) {
	c.init()
	if c.err != nil {
		return nil, fmt.Errorf("zstd init: %w", c.err)
	}
	out, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
