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

package render

import (
	"bytes"
	"testing"

	"github.com/fspecgo/fspec/bc"
	"github.com/fspecgo/fspec/bc/decl"
)

func render(t *testing.T, d *decl.Declaration) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, d); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestRenderSingleHexByte(t *testing.T) {
	d := &decl.Declaration{Name: "byte", Visual: bc.VisualHex, ElemSize: 1, Nmemb: 1, Buf: []byte{0xAB}}
	if got, want := render(t, d), "byte: 0xab\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderArrayInline(t *testing.T) {
	d := &decl.Declaration{Name: "data", Visual: bc.VisualHex, ElemSize: 1, Nmemb: 3, Buf: []byte{0x10, 0x20, 0x30}}
	if got, want := render(t, d), "data: { 0x10, 0x20, 0x30 }\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderDecimalArray(t *testing.T) {
	d := &decl.Declaration{
		Name: "words", Visual: bc.VisualDec, ElemSize: 2, Nmemb: 3,
		Buf: []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00},
	}
	if got, want := render(t, d), "words: { 1, 2, 3 }\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderVisualSwitchDecThenHex(t *testing.T) {
	dec := &decl.Declaration{Name: "x", Visual: bc.VisualDec, ElemSize: 1, Nmemb: 1, Buf: []byte{0x0a}}
	hex := &decl.Declaration{Name: "x", Visual: bc.VisualHex, ElemSize: 1, Nmemb: 1, Buf: []byte{0x0a}}
	if got, want := render(t, dec), "x: 10\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := render(t, hex), "x: 0x0a\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderStringNoNewlineIsNotFenced(t *testing.T) {
	d := &decl.Declaration{Name: "s", Visual: bc.VisualStr, ElemSize: 1, Nmemb: 4, Buf: []byte("abcd")}
	if got, want := render(t, d), "s: abcd\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderStringWithNewlineIsFenced(t *testing.T) {
	d := &decl.Declaration{Name: "s", Visual: bc.VisualStr, ElemSize: 1, Nmemb: 6, Buf: []byte("Hi\nbye")}
	got := render(t, d)
	want := "s:\n```\nHi\nbye\n```\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderNul(t *testing.T) {
	d := &decl.Declaration{Name: "pad", Visual: bc.VisualNul}
	if got, want := render(t, d), "pad: ...\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderHexAllZeroIsSingleDigit(t *testing.T) {
	d := &decl.Declaration{Name: "z", Visual: bc.VisualHex, ElemSize: 4, Nmemb: 1, Buf: []byte{0, 0, 0, 0}}
	if got, want := render(t, d), "z: 0x0\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderHexKeepsTrailingZeroByte(t *testing.T) {
	// value 0x0100 stored little-endian as [0x00, 0x01]; the trailing
	// (least-significant) zero byte is part of the value and must not
	// be trimmed away along with the leading zero bytes.
	d := &decl.Declaration{Name: "v", Visual: bc.VisualHex, ElemSize: 2, Nmemb: 1, Buf: []byte{0x00, 0x01}}
	if got, want := render(t, d), "v: 0x0100\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderMultilineArray(t *testing.T) {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = byte(i + 1)
	}
	d := &decl.Declaration{Name: "many", Visual: bc.VisualHex, ElemSize: 1, Nmemb: 10, Buf: buf}
	got := render(t, d)
	want := "many: {\n    0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,\n    0x09, 0x0a\n}\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
