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

package main

import (
	"encoding/binary"
	"fmt"

	"github.com/fspecgo/fspec/bc/mem"
)

// A compiled bytecode file on disk is a 4-byte little-endian code
// length followed by the code stream, followed immediately by the
// data area (string literals, etc.) that the code's STR arguments
// address into. This framing is this CLI's own concern, not part of
// the bit-exact bytecode contract: the front end that produces these
// files is out of scope, so this is simply the simplest container
// that lets fspecdump recover the two regions decl.Setup needs from a
// single path argument.
func splitContainer(raw []byte) (code []byte, data mem.Region, err error) {
	const lenPrefix = 4
	if len(raw) < lenPrefix {
		return nil, mem.Region{}, fmt.Errorf("truncated bytecode file (%d bytes)", len(raw))
	}
	codeLen := int(binary.LittleEndian.Uint32(raw[:lenPrefix]))
	if codeLen < 0 || lenPrefix+codeLen > len(raw) {
		return nil, mem.Region{}, fmt.Errorf("code length %d exceeds file size %d", codeLen, len(raw))
	}
	code = raw[lenPrefix : lenPrefix+codeLen]
	data = mem.Region{Data: raw[lenPrefix+codeLen:]}
	return code, data, nil
}
