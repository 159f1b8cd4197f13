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
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// namedEncodings maps the source-encoding names a spec author would
// write in a FILTER op to their golang.org/x/text encoding. This
// plays the role iconv's "from" argument plays in the original: a
// small, extensible name table rather than a full codec registry.
var namedEncodings = map[string]encoding.Encoding{
	"UTF-8":        encoding.Nop,
	"UTF8":         encoding.Nop,
	"ASCII":        encoding.Nop,
	"UTF-16LE":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"UTF-16BE":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"UTF-16":       unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"ISO-8859-1":   charmap.ISO8859_1,
	"LATIN1":       charmap.ISO8859_1,
	"ISO-8859-15":  charmap.ISO8859_15,
	"WINDOWS-1250": charmap.Windows1250,
	"WINDOWS-1251": charmap.Windows1251,
	"WINDOWS-1252": charmap.Windows1252,
	"CP1252":       charmap.Windows1252,
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, ok := namedEncodings[strings.ToUpper(name)]; ok {
		return enc, nil
	}
	return nil, fmt.Errorf("filter: encoding: unknown source encoding %q", name)
}

// Encoding is the built-in "encoding" filter. Its first argument
// (after the filter name, which the caller has already consumed) is
// the source encoding name; it converts the declaration's buffer from
// that encoding to the host's encoding (UTF-8, since this module
// targets a UTF-8 locale rather than querying nl_langinfo the way the
// original C dumper did) and recomputes Nmemb for the converted byte
// count.
func Encoding(ctx *Context) error {
	if len(ctx.Args) < 1 || ctx.Args[0].Kind != ValueString {
		return fmt.Errorf("filter: encoding: missing source-encoding argument")
	}
	from := ctx.Args[0].Str
	enc, err := lookupEncoding(from)
	if err != nil {
		return err
	}

	d := ctx.Decl
	out, _, err := transform.Bytes(enc.NewDecoder(), d.Buf)
	if err != nil && err != transform.ErrShortDst {
		return fmt.Errorf("filter: encoding: converting from %s: %w", from, err)
	}

	d.Buf = out
	if d.ElemSize <= 0 {
		d.ElemSize = 1
	}
	d.Nmemb = len(d.Buf) / d.ElemSize
	return nil
}
