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

// Package render formats a declaration's buffer as a single `name:
// value` line, the way the original dumper's print_dec/print_hex/
// print_str/print_array did, with the same array-layout thresholds.
package render

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fspecgo/fspec/bc"
	"github.com/fspecgo/fspec/bc/decl"
)

const elementsPerLine = 8

// Render writes d's current buffer to w as one declaration line,
// formatted per d.Visual.
func Render(w io.Writer, d *decl.Declaration) error {
	switch d.Visual {
	case bc.VisualNul:
		_, err := fmt.Fprintf(w, "%s: ...\n", d.Name)
		return err
	case bc.VisualStr:
		return renderString(w, d)
	case bc.VisualHex:
		return renderArray(w, d, "0x", hexElement)
	case bc.VisualDec:
		return renderArray(w, d, "", decElement)
	default:
		return fmt.Errorf("render: %s: unrenderable visual %s", d.Name, d.Visual)
	}
}

func renderString(w io.Writer, d *decl.Declaration) error {
	if bytes.IndexByte(d.Buf, '\n') >= 0 {
		_, err := fmt.Fprintf(w, "%s:\n```\n%s\n```\n", d.Name, d.Buf)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", d.Name, d.Buf)
	return err
}

func renderArray(w io.Writer, d *decl.Declaration, prefix string, elemFn func([]byte) string) error {
	n := d.Nmemb
	elems := make([]string, n)
	sz := d.ElemSize
	for i := 0; i < n; i++ {
		start := i * sz
		end := start + sz
		if end > len(d.Buf) {
			end = len(d.Buf)
		}
		if start > len(d.Buf) {
			start = len(d.Buf)
		}
		elems[i] = prefix + elemFn(d.Buf[start:end])
	}

	switch {
	case n <= 1:
		v := ""
		if n == 1 {
			v = elems[0]
		}
		_, err := fmt.Fprintf(w, "%s: %s\n", d.Name, v)
		return err
	case n <= elementsPerLine:
		_, err := fmt.Fprintf(w, "%s: { %s }\n", d.Name, strings.Join(elems, ", "))
		return err
	default:
		var sb strings.Builder
		sb.WriteString(d.Name)
		sb.WriteString(": {\n")
		for i, e := range elems {
			if i%elementsPerLine == 0 {
				sb.WriteString("    ")
			}
			sb.WriteString(e)
			last := i+1 == n
			if !last {
				sb.WriteString(",")
			}
			if last || (i+1)%elementsPerLine == 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("}\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}
}

// leUint64 reinterprets up to the first 8 bytes of buf as a
// little-endian unsigned integer, the same clamping rule VAR
// resolution uses, applied here too so DEC rendering of an over-wide
// element degrades the same way.
func leUint64(buf []byte) uint64 {
	n := len(buf)
	if n > 8 {
		n = 8
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func decElement(buf []byte) string {
	return strconv.FormatUint(leUint64(buf), 10)
}

// hexElement prints buf (little-endian) as hex digits in natural
// (most-significant-byte-first) reading order, suppressing leading
// zero bytes but always keeping the least-significant byte so
// trailing zero bytes that are part of the value are never dropped;
// an all-zero buffer prints as a single "0".
func hexElement(buf []byte) string {
	if len(buf) == 0 {
		return "0"
	}
	start := len(buf) - 1
	for start > 0 && buf[start] == 0 {
		start--
	}
	if start == 0 && buf[0] == 0 {
		return "0"
	}
	var sb strings.Builder
	for i := start; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02x", buf[i])
	}
	return sb.String()
}
