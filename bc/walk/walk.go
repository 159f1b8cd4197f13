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

// Package walk implements the bytecode walker: given a byte slice and
// a position in it, it finds the next opcode, finds an opcode's nth
// argument, and decodes an argument's payload. It never validates
// anything beyond the shape of the stream itself (unknown opcodes,
// unknown argument tags, and argument-tag mismatches are all
// reported as *bc.Error); semantic validation (e.g. a VAR argument
// pointing at a declaration id that doesn't exist) is the caller's
// job.
package walk

import (
	"encoding/binary"

	"github.com/fspecgo/fspec/bc"
)

// NextOp advances from start past its own opcode byte (and, past its
// argument payload if the opcode at start is ARG) and returns the
// position of the next opcode at or after that point. When skipArgs
// is true, ARG opcodes are skipped transparently and never returned;
// when false, an ARG opcode is returned like any other so the caller
// can read its payload. ok is false once end is reached.
func NextOp(code []byte, start, end int, skipArgs bool) (pos int, ok bool, err error) {
	if start < 0 || end > len(code) || start >= end {
		return 0, false, nil
	}

	off := 1
	if code[start] == byte(bc.OpArg) {
		al, err := argLen(code, start+1, end)
		if err != nil {
			return 0, false, err
		}
		off += al
	}

	for op := start + off; op < end; {
		b := code[op]
		if !bc.Op(b).Valid() {
			return 0, false, bc.Errorf(op, "unexpected opcode %d", b)
		}
		if skipArgs && bc.Op(b) == bc.OpArg {
			al, err := argLen(code, op+1, end)
			if err != nil {
				return 0, false, err
			}
			op += 1 + al
			continue
		}
		return op, true, nil
	}
	return 0, false, nil
}

// OpGetArg finds op's nth associated argument (1-based) by repeatedly
// consuming the immediately-following ARG opcodes, stopping at the
// first non-ARG op. It returns the position of the argument's tag
// byte. If the found argument's tag is not permitted by expect, the
// call returns a *bc.Error (a contract violation by the emitter).
func OpGetArg(code []byte, start, end, nth int, expect bc.Mask) (tagPos int, ok bool, err error) {
	cur := start
	found := -1
	for i := 0; i < nth; i++ {
		next, has, err := NextOp(code, cur, end, false)
		if err != nil {
			return 0, false, err
		}
		if !has {
			return 0, false, nil
		}
		if bc.Op(code[next]) != bc.OpArg {
			return 0, false, nil
		}
		found = next + 1
		cur = next
	}
	if found < 0 {
		return 0, false, nil
	}
	tag := bc.ArgTag(code[found])
	if !tag.Valid() {
		return 0, false, bc.Errorf(found, "unexpected argument tag %d", code[found])
	}
	if !expect.Has(tag) {
		return 0, false, bc.Errorf(found, "got unexpected argument of type %s", tag)
	}
	return found, true, nil
}

// ArgNext is identical to OpGetArg, but anchored at an existing
// argument's tag position instead of an opcode position, so callers
// can iterate the remaining arguments of the same op.
func ArgNext(code []byte, argTagPos, end, nth int, expect bc.Mask) (tagPos int, ok bool, err error) {
	return OpGetArg(code, argTagPos-1, end, nth, expect)
}

// Arg is a decoded argument payload.
type Arg struct {
	Tag    bc.ArgTag
	TagPos int
	Num    bc.Num // ArgNum
	Var    bc.Var // ArgVar
	Off    bc.Off // ArgOff, or the data-area offset for ArgStr
	Dat    []byte // ArgDat, the inline payload
}

// Decode reads the tag at tagPos and decodes its payload.
func Decode(code []byte, tagPos, end int) (Arg, error) {
	if tagPos < 0 || tagPos >= end {
		return Arg{}, bc.Errorf(tagPos, "argument tag position out of range")
	}
	tag := bc.ArgTag(code[tagPos])
	if !tag.Valid() {
		return Arg{}, bc.Errorf(tagPos, "unexpected argument tag %d", code[tagPos])
	}
	a := Arg{Tag: tag, TagPos: tagPos}
	p := tagPos + 1
	switch tag {
	case bc.ArgNum:
		v, err := readUint(code, p, end, bc.SizeofNum)
		if err != nil {
			return Arg{}, err
		}
		a.Num = bc.Num(v)
	case bc.ArgVar:
		v, err := readUint(code, p, end, bc.SizeofVar)
		if err != nil {
			return Arg{}, err
		}
		a.Var = bc.Var(v)
	case bc.ArgOff:
		v, err := readUint(code, p, end, bc.SizeofOff)
		if err != nil {
			return Arg{}, err
		}
		a.Off = bc.Off(v)
	case bc.ArgStr:
		v, err := readUint(code, p, end, bc.SizeofOff)
		if err != nil {
			return Arg{}, err
		}
		a.Off = bc.Off(v)
	case bc.ArgDat:
		l, err := readUint(code, p, end, bc.SizeofOff)
		if err != nil {
			return Arg{}, err
		}
		n := int(l)
		start := p + bc.SizeofOff
		if start+n > end {
			return Arg{}, bc.Errorf(tagPos, "DAT argument of length %d exceeds bytecode bounds", n)
		}
		a.Dat = code[start : start+n]
	case bc.ArgEOF:
		// no payload
	}
	return a, nil
}

// argLen returns the total byte length of the tag byte plus its
// payload, given the position of the tag byte itself. It is used by
// NextOp to know how far to jump over an argument without fully
// decoding it.
func argLen(code []byte, tagPos, end int) (int, error) {
	if tagPos < 0 || tagPos >= end {
		return 0, bc.Errorf(tagPos, "argument tag position out of range")
	}
	tag := bc.ArgTag(code[tagPos])
	if !tag.Valid() {
		return 0, bc.Errorf(tagPos, "unexpected argument tag %d", code[tagPos])
	}

	switch tag {
	case bc.ArgNum:
		return 1 + bc.SizeofNum, nil
	case bc.ArgVar:
		return 1 + bc.SizeofVar, nil
	case bc.ArgOff, bc.ArgStr:
		return 1 + bc.SizeofOff, nil
	case bc.ArgDat:
		l, err := readUint(code, tagPos+1, end, bc.SizeofOff)
		if err != nil {
			return 0, err
		}
		return 1 + bc.SizeofOff + int(l), nil
	case bc.ArgEOF:
		return 1, nil
	default:
		return 0, bc.Errorf(tagPos, "unexpected argument tag %d", tag)
	}
}

func readUint(code []byte, pos, end, width int) (uint64, error) {
	if pos < 0 || pos+width > end || pos+width > len(code) {
		return 0, bc.Errorf(pos, "truncated argument payload (need %d bytes)", width)
	}
	switch width {
	case 1:
		return uint64(code[pos]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(code[pos : pos+2])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(code[pos : pos+4])), nil
	case 8:
		return binary.LittleEndian.Uint64(code[pos : pos+8]), nil
	default:
		return 0, bc.Errorf(pos, "unsupported payload width %d", width)
	}
}
