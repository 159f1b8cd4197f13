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

// Package decl holds the declaration table: the per-field metadata
// and growable read buffer that the interpreter (package interp)
// fills in as it executes a bytecode program, and the Setup pass
// that builds the table's skeleton from a single forward walk over
// the bytecode before execution begins.
package decl

import (
	"github.com/fspecgo/fspec/bc"
	"github.com/fspecgo/fspec/bc/mem"
	"github.com/fspecgo/fspec/bc/walk"
)

// Declaration is one declared field or container: its identity (from
// the bytecode), and the buffer the interpreter accumulates its read
// bytes into.
type Declaration struct {
	ID     int
	Kind   bc.DeclKind
	Name   string
	Visual bc.Visual

	// Start and End delimit the bytecode slice that forms this
	// declaration's body: from its DECLARATION op up to (but not
	// including) the op its OFF argument points at.
	Start, End int

	ElemSize int // bytes per element, set by a READ
	Nmemb    int // current element count

	Buf []byte // accumulates read bytes; len(Buf) == ElemSize*Nmemb
}

// Table is the declaration table: densely numbered from zero, sized
// from the bytecode's HEADER op.
type Table struct {
	Decls []*Declaration
	// Entry is the program's entry point: the last KindStruct
	// declaration encountered during Setup.
	Entry *Declaration

	names *nameIndex // built lazily by ByName
}

// ByID returns the declaration with the given id, or nil if it is
// out of range.
func (t *Table) ByID(id bc.Var) *Declaration {
	i := int(id)
	if i < 0 || i >= len(t.Decls) {
		return nil
	}
	return t.Decls[i]
}

// Setup performs the single forward pass over code[0:end]: it locates
// the opening HEADER op, reads its declaration count, and then visits
// every DECLARATION op, filling
// in that declaration's kind, id, name, and body bounds. data is the
// bytecode's string/data area, used to resolve the declaration's name
// argument.
func Setup(code []byte, data mem.Region, end int) (*Table, error) {
	if end <= 0 || end > len(code) {
		return nil, bc.Errorf(0, "decl: empty or out-of-range bytecode")
	}
	if bc.Op(code[0]) != bc.OpHeader {
		return nil, bc.Errorf(0, "bytecode does not begin with HEADER")
	}

	countPos, ok, err := walk.OpGetArg(code, 0, end, 2, bc.ArgNum.Bit())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bc.Errorf(0, "HEADER is missing its declaration-count argument")
	}
	countArg, err := walk.Decode(code, countPos, end)
	if err != nil {
		return nil, err
	}

	t := &Table{Decls: make([]*Declaration, countArg.Num)}
	for i := range t.Decls {
		t.Decls[i] = &Declaration{ID: i}
	}
	seen := make([]bool, len(t.Decls))

	pos := 0
	for {
		next, has, err := walk.NextOp(code, pos, end, true)
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		pos = next
		if bc.Op(code[pos]) != bc.OpDeclaration {
			continue
		}

		kind, id, bodyEnd, name, err := declArgs(code, data, pos, end)
		if err != nil {
			return nil, err
		}
		if id < 0 || id >= len(t.Decls) {
			return nil, bc.Errorf(pos, "declaration id %d out of range (table has %d slots)", id, len(t.Decls))
		}
		if seen[id] {
			return nil, bc.Errorf(pos, "declaration id %d redeclared (existing buffer at setup time)", id)
		}
		seen[id] = true

		d := t.Decls[id]
		d.Kind = kind
		d.Name = name
		d.Visual = bc.VisualDec
		d.Start = pos
		d.End = bodyEnd
		d.Buf = nil

		if kind == bc.KindStruct {
			t.Entry = d
		}
	}

	return t, nil
}

func declArgs(code []byte, data mem.Region, declPos, end int) (kind bc.DeclKind, id, bodyEnd int, name string, err error) {
	kindPos, ok, err := walk.OpGetArg(code, declPos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return 0, 0, 0, "", err
	}
	if !ok {
		return 0, 0, 0, "", bc.Errorf(declPos, "DECLARATION is missing its kind argument")
	}
	kindArg, err := walk.Decode(code, kindPos, end)
	if err != nil {
		return 0, 0, 0, "", err
	}
	if !bc.DeclKind(kindArg.Num).Valid() {
		return 0, 0, 0, "", bc.Errorf(kindPos, "invalid declaration kind %d", kindArg.Num)
	}

	idPos, ok, err := walk.ArgNext(code, kindPos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return 0, 0, 0, "", err
	}
	if !ok {
		return 0, 0, 0, "", bc.Errorf(declPos, "DECLARATION is missing its id argument")
	}
	idArg, err := walk.Decode(code, idPos, end)
	if err != nil {
		return 0, 0, 0, "", err
	}

	offPos, ok, err := walk.ArgNext(code, idPos, end, 1, bc.ArgOff.Bit())
	if err != nil {
		return 0, 0, 0, "", err
	}
	if !ok {
		return 0, 0, 0, "", bc.Errorf(declPos, "DECLARATION is missing its body-length argument")
	}
	offArg, err := walk.Decode(code, offPos, end)
	if err != nil {
		return 0, 0, 0, "", err
	}

	namePos, ok, err := walk.ArgNext(code, offPos, end, 1, bc.ArgStr.Bit())
	if err != nil {
		return 0, 0, 0, "", err
	}
	if !ok {
		return 0, 0, 0, "", bc.Errorf(declPos, "DECLARATION is missing its name argument")
	}
	nameArg, err := walk.Decode(code, namePos, end)
	if err != nil {
		return 0, 0, 0, "", err
	}
	nm, err := data.String(nameArg.Off)
	if err != nil {
		return 0, 0, 0, "", err
	}

	return bc.DeclKind(kindArg.Num), int(idArg.Num), declPos + int(offArg.Off), nm, nil
}
