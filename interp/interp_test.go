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

package interp

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/fspecgo/fspec/bc"
	"github.com/fspecgo/fspec/bc/decl"
	"github.com/fspecgo/fspec/bc/mem"
	"github.com/fspecgo/fspec/filter"
)

// asm assembles a bytecode program and its string data area for
// tests, the same way bc/decl's asmBuilder does but extended with
// GOTO/FILTER/VISUAL and nested declaration bodies.
type asm struct {
	code []byte
	data []byte
}

func (a *asm) argTag(tag bc.ArgTag, payload []byte) *asm {
	a.code = append(a.code, byte(bc.OpArg), byte(tag))
	a.code = append(a.code, payload...)
	return a
}

func (a *asm) argNum(v uint64) *asm {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	return a.argTag(bc.ArgNum, p[:])
}

func (a *asm) argVar(v uint16) *asm {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], v)
	return a.argTag(bc.ArgVar, p[:])
}

func (a *asm) argOffRaw(v uint32) *asm {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	return a.argTag(bc.ArgOff, p[:])
}

func (a *asm) argEOF() *asm { return a.argTag(bc.ArgEOF, nil) }

func (a *asm) argStr(s string) *asm {
	off := len(a.data)
	a.data = append(a.data, byte(len(s)))
	a.data = append(a.data, s...)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(off))
	return a.argTag(bc.ArgStr, p[:])
}

func (a *asm) header(declCount int) *asm {
	a.code = append(a.code, byte(bc.OpHeader))
	return a.argNum(1).argNum(uint64(declCount))
}

// declaration emits a DECLARATION op for id, patching its body-length
// OFF argument once body has appended every op belonging to it.
func (a *asm) declaration(kind bc.DeclKind, id int, name string, body func(*asm)) *asm {
	declStart := len(a.code)
	a.code = append(a.code, byte(bc.OpDeclaration))
	a.argNum(uint64(kind)).argNum(uint64(id))
	offArgPos := len(a.code) + 2 // skip ARG opcode byte + tag byte
	a.argOffRaw(0)
	a.argStr(name)
	body(a)
	bodyEnd := len(a.code)
	binary.LittleEndian.PutUint32(a.code[offArgPos:offArgPos+4], uint32(bodyEnd-declStart))
	return a
}

func (a *asm) read(width uint64) *asm {
	a.code = append(a.code, byte(bc.OpRead))
	return a.argNum(width)
}

func (a *asm) readMultNum(v uint64) *asm { return a.argNum(v) }
func (a *asm) readMultVar(id uint16) *asm { return a.argVar(id) }
func (a *asm) readUntilEOF() *asm         { return a.argEOF() }

func (a *asm) visual(v bc.Visual) *asm {
	a.code = append(a.code, byte(bc.OpVisual))
	return a.argNum(uint64(v))
}

func (a *asm) goTo(target uint16) *asm {
	a.code = append(a.code, byte(bc.OpGoto))
	return a.argVar(target)
}

func (a *asm) filterName(name string) *asm {
	a.code = append(a.code, byte(bc.OpFilter))
	return a.argStr(name)
}

// run builds the declaration table from a and executes it against
// input, returning everything written to the output sink.
func run(t *testing.T, a *asm, declCount int, input []byte) string {
	t.Helper()
	table, err := decl.Setup(a.code, mem.Region{Data: a.data}, len(a.code))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if table.Entry == nil {
		t.Fatal("Setup: no STRUCT entry point found")
	}
	var out bytes.Buffer
	ctx := NewContext(a.code, mem.Region{Data: a.data}, table, bytes.NewReader(input), filter.NewDefaultRegistry(), &out)
	if err := Run(ctx, table.Entry.Start, table.Entry.End); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestScenarioSingleHexByte(t *testing.T) {
	a := &asm{}
	a.header(1)
	a.declaration(bc.KindStruct, 0, "byte", func(a *asm) {
		a.read(8)
		a.visual(bc.VisualHex)
	})
	got := run(t, a, 1, []byte{0xAB})
	if want := "byte: 0xab\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScenarioArrayLengthFromPriorField(t *testing.T) {
	a := &asm{}
	a.header(3)
	a.declaration(bc.KindMember, 0, "n", func(a *asm) {
		a.read(8)
		a.visual(bc.VisualDec)
	})
	a.declaration(bc.KindMember, 1, "data", func(a *asm) {
		a.read(8)
		a.readMultVar(0)
		a.visual(bc.VisualHex)
	})
	a.declaration(bc.KindStruct, 2, "root", func(a *asm) {
		a.goTo(0)
		a.goTo(1)
	})
	got := run(t, a, 3, []byte{0x03, 0x10, 0x20, 0x30})
	if want := "n: 3\ndata: { 0x10, 0x20, 0x30 }\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScenarioReadUntilEOF(t *testing.T) {
	a := &asm{}
	a.header(1)
	a.declaration(bc.KindStruct, 0, "words", func(a *asm) {
		a.read(16)
		a.readUntilEOF()
		a.visual(bc.VisualDec)
	})
	got := run(t, a, 1, []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00})
	if want := "words: { 1, 2, 3 }\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScenarioStringWithEncodingFilter(t *testing.T) {
	a := &asm{}
	a.header(1)
	a.declaration(bc.KindStruct, 0, "s", func(a *asm) {
		a.read(8)
		a.readMultNum(4)
		a.filterName("encoding")
		a.argStr("UTF-8")
		a.visual(bc.VisualStr)
	})
	got := run(t, a, 1, []byte("test"))
	if want := "s: test\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScenarioVisualSwitch(t *testing.T) {
	a := &asm{}
	a.header(3)
	a.declaration(bc.KindMember, 0, "x", func(a *asm) {
		a.read(8)
	})
	a.declaration(bc.KindMember, 1, "x", func(a *asm) {
		a.read(8)
		a.visual(bc.VisualHex)
	})
	a.declaration(bc.KindStruct, 2, "root", func(a *asm) {
		a.goTo(0)
		a.goTo(1)
	})
	got := run(t, a, 3, []byte{0x0a, 0x0a})
	if want := "x: 10\nx: 0x0a\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScenarioMultilineStringIsFenced(t *testing.T) {
	a := &asm{}
	a.header(1)
	a.declaration(bc.KindStruct, 0, "s", func(a *asm) {
		a.read(8)
		a.readUntilEOF()
		a.visual(bc.VisualStr)
	})
	got := run(t, a, 1, []byte("Hi\nbye"))
	if !strings.Contains(got, "```\nHi\nbye\n```") {
		t.Fatalf("expected fenced block, got %q", got)
	}
}

func TestFilterUnknownNameWarnsAndContinues(t *testing.T) {
	a := &asm{}
	a.header(1)
	a.declaration(bc.KindStruct, 0, "x", func(a *asm) {
		a.read(8)
		a.filterName("not-a-real-filter")
		a.visual(bc.VisualDec)
	})
	table, err := decl.Setup(a.code, mem.Region{Data: a.data}, len(a.code))
	if err != nil {
		t.Fatal(err)
	}
	var out, warn bytes.Buffer
	ctx := NewContext(a.code, mem.Region{Data: a.data}, table, bytes.NewReader([]byte{5}), filter.NewDefaultRegistry(), &out)
	ctx.Warn = &warn
	if err := Run(ctx, table.Entry.Start, table.Entry.End); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if warn.Len() == 0 {
		t.Fatal("expected a warning for the unknown filter")
	}
	if want := "x: 5\n"; out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}
