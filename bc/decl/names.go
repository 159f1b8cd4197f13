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

package decl

import "github.com/dchest/siphash"

// nameIndexKey0/Key1 are fixed siphash keys for the name index. The
// index is only ever consulted within a single process run (a
// debug/disassembly lookup path, not the bytecode contract itself),
// so a fixed key is fine: there is no adversarial-hash-flooding
// concern across process boundaries.
const (
	nameIndexKey0 = 0x6670_6563_6673_5f31
	nameIndexKey1 = 0x6e61_6d65_5f69_6478
)

// nameIndex is a small open-addressed table mapping a declaration's
// name to its *Declaration, built lazily the first time ByName is
// called. It exists for debug/disassembly tooling (cmd/fspecdump's
// -decl flag resolves a user-supplied declaration name through it)
// and is never consulted by the interpreter's hot path, which
// always resolves by dense id via Table.ByID.
type nameIndex struct {
	slots []*Declaration
}

func buildNameIndex(decls []*Declaration) *nameIndex {
	n := 1
	for n < len(decls)*2 {
		n <<= 1
	}
	if n == 0 {
		n = 1
	}
	idx := &nameIndex{slots: make([]*Declaration, n)}
	mask := uint64(n - 1)
	for _, d := range decls {
		h := siphash.Hash(nameIndexKey0, nameIndexKey1, []byte(d.Name))
		for i := h & mask; ; i = (i + 1) & mask {
			if idx.slots[i] == nil {
				idx.slots[i] = d
				break
			}
		}
	}
	return idx
}

func (idx *nameIndex) lookup(name string) (*Declaration, bool) {
	if idx == nil || len(idx.slots) == 0 {
		return nil, false
	}
	mask := uint64(len(idx.slots) - 1)
	h := siphash.Hash(nameIndexKey0, nameIndexKey1, []byte(name))
	for i, probed := h&mask, 0; probed < len(idx.slots); i, probed = (i+1)&mask, probed+1 {
		d := idx.slots[i]
		if d == nil {
			return nil, false
		}
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// ByName returns the declaration with the given name, or nil if none
// was declared under that name. The lookup table is built on first
// use and cached on the Table.
func (t *Table) ByName(name string) *Declaration {
	if t.names == nil {
		t.names = buildNameIndex(t.Decls)
	}
	d, _ := t.names.lookup(name)
	return d
}
