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

package mem

import (
	"testing"

	"github.com/fspecgo/fspec/bc"
)

func TestRegionString(t *testing.T) {
	r := Region{Data: []byte{5, 'h', 'e', 'l', 'l', 'o'}}
	s, err := r.String(0)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Fatalf("String() = %q, want %q", s, "hello")
	}
}

func TestRegionStringOutOfRange(t *testing.T) {
	r := Region{Data: []byte{5, 'h', 'i'}}
	if _, err := r.String(0); err == nil {
		t.Fatal("expected error for truncated string")
	}
	if _, err := r.String(bc.Off(100)); err == nil {
		t.Fatal("expected error for out-of-range offset")
	}
}

func TestRegionSlice(t *testing.T) {
	r := Region{Data: []byte{1, 2, 3, 4}}
	s, err := r.Slice(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 2 || s[0] != 2 || s[1] != 3 {
		t.Fatalf("Slice(1,3) = %v", s)
	}
	if _, err := r.Slice(3, 1); err == nil {
		t.Fatal("expected error for inverted slice")
	}
	if _, err := r.Slice(0, 10); err == nil {
		t.Fatal("expected error for out-of-range slice")
	}
}
