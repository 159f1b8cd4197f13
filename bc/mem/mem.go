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

// Package mem represents the flat memory region that every bytecode
// stream and every string literal is addressed into: a single []byte
// plus a length, with every reference into it expressed as a byte
// offset rather than a pointer.
package mem

import (
	"fmt"

	"github.com/fspecgo/fspec/bc"
)

// Region is a flat, immutable-during-execution byte buffer. The data
// area holding string literals lives in a Region; every STR argument
// is an Off into one. The bytecode stream itself is passed around as
// a plain []byte.
type Region struct {
	Data []byte
}

// Len returns the number of bytes in the region.
func (r Region) Len() int { return len(r.Data) }

// String reads the length-prefixed string stored at off: an
// fspec_strsz byte count followed by that many bytes. The returned
// string has no trailing NUL in storage; callers that need a C
// string should append one themselves.
func (r Region) String(off bc.Off) (string, error) {
	o := int(off)
	if o < 0 || o+int(bc.SizeofStrsz) > len(r.Data) {
		return "", fmt.Errorf("mem: string offset %d out of range (region len %d)", off, len(r.Data))
	}
	n := int(bc.Strsz(r.Data[o]))
	start := o + int(bc.SizeofStrsz)
	end := start + n
	if end > len(r.Data) {
		return "", fmt.Errorf("mem: string at offset %d (len %d) exceeds region (len %d)", off, n, len(r.Data))
	}
	return string(r.Data[start:end]), nil
}

// Slice returns the sub-region [start, end), bounds-checked.
func (r Region) Slice(start, end int) ([]byte, error) {
	if start < 0 || end > len(r.Data) || start > end {
		return nil, fmt.Errorf("mem: slice [%d:%d) out of range (region len %d)", start, end, len(r.Data))
	}
	return r.Data[start:end], nil
}
