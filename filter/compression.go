// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package filter

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// decompressor mirrors compr.Decompressor, loosened for the
// guess-and-grow caller below: rather than requiring an exactly-sized
// dst and erroring out otherwise, it returns the decoded slice
// directly, erroring only when dst's capacity isn't big enough to
// hold the whole decoded payload.
type decompressor interface {
	Name() string
	Decompress(src, dst []byte) ([]byte, error)
}

var zstdDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	zstdDecoder = d
}

type zstdDecompressor struct{ dec *zstd.Decoder }

func (zstdDecompressor) Name() string { return "zstd" }

// DecodeAll appends to dst and grows it itself as needed, so a single
// call always succeeds regardless of dst's guessed capacity.
func (z zstdDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, dst[:0])
}

type s2Decompressor struct{}

func (s2Decompressor) Name() string { return "s2" }

func (s2Decompressor) Decompress(src, dst []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if n > cap(dst) {
		return nil, fmt.Errorf("decoded size %d exceeds buffer capacity %d", n, cap(dst))
	}
	return s2.Decode(dst[:n], src)
}

func decompressionByName(name string) decompressor {
	switch name {
	case "zstd":
		return zstdDecompressor{zstdDecoder}
	case "s2":
		return s2Decompressor{}
	default:
		return nil
	}
}

// maxCompressedGrow bounds the doubling loop below so a corrupt
// bytecode program (or adversarial input) can't run the process out
// of memory chasing a decompressed size that never fits.
const maxCompressedGrow = 1 << 30 // 1 GiB

// Compression is the built-in "compression" filter. Its first
// argument is the algorithm name; an optional second NUM/VAR argument
// is a decompressed-size hint. Any further (STR key, value) pairs
// tune codec options — neither s2 nor zstd decoding has per-call
// tunables worth exposing here, so they are accepted but otherwise
// ignored; a fixed decoder is built once in init.
func Compression(ctx *Context) error {
	if len(ctx.Args) < 1 || ctx.Args[0].Kind != ValueString {
		return fmt.Errorf("filter: compression: missing algorithm-name argument")
	}
	algo := ctx.Args[0].Str
	dc := decompressionByName(algo)
	if dc == nil {
		return fmt.Errorf("filter: compression: unknown algorithm %q", algo)
	}

	d := ctx.Decl
	size := 0
	if len(ctx.Args) >= 2 && ctx.Args[1].Kind == ValueNumber {
		size = int(ctx.Args[1].Num)
	}
	if size <= 0 {
		size = len(d.Buf) * 2
		if size == 0 {
			size = 4096
		}
	}

	var out []byte
	var err error
	for ; size <= maxCompressedGrow; size *= 2 {
		out, err = dc.Decompress(d.Buf, make([]byte, 0, size))
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("filter: compression: %s: %w", algo, err)
	}

	d.Buf = out
	if d.ElemSize <= 0 {
		d.ElemSize = 1
	}
	d.Nmemb = len(d.Buf) / d.ElemSize
	return nil
}
