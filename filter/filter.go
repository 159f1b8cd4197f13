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

// Package filter implements the fspec filter registry: a name ->
// function table that the interpreter (package interp) consults
// whenever it executes a FILTER op. A filter is a pure function that
// may replace a declaration's buffer contents; it must leave the
// declaration's ElemSize unchanged and recompute Nmemb.
//
// The registry is an open interface point: callers can Register
// additional filters under new names without touching the bytecode
// format, since filters are looked up by string name at runtime.
package filter

import (
	"golang.org/x/exp/maps"

	"github.com/fspecgo/fspec/bc/decl"
)

// ValueKind distinguishes the two shapes a filter argument value can
// take once resolved by the interpreter.
type ValueKind byte

const (
	ValueNumber ValueKind = iota
	ValueString
)

// Value is a single resolved FILTER-op argument: a NUM, or a VAR
// whose referenced declaration's current Visual marks it as
// number-shaped, collapse to ValueNumber; a STR, or a VAR whose
// Visual is Str, resolve to ValueString.
type Value struct {
	Kind ValueKind
	Num  uint64
	Str  string
}

// Context is what a Filter receives: the declaration whose buffer it
// may replace, and the arguments that followed the filter's name
// argument on the FILTER op, already resolved by the interpreter.
type Context struct {
	Decl *decl.Declaration
	Args []Value
}

// Filter is a named, pure transformation applied to a declaration's
// buffer between reading and rendering.
type Filter func(ctx *Context) error

// Registry is a name -> Filter table.
type Registry struct {
	filters map[string]Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{filters: map[string]Filter{}}
}

// NewDefaultRegistry returns a registry with the two built-in
// filters (encoding, compression) already registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("encoding", Encoding)
	r.Register("compression", Compression)
	return r
}

// Register adds or replaces the filter named name.
func (r *Registry) Register(name string, f Filter) {
	r.filters[name] = f
}

// Lookup returns the filter registered under name, or (nil, false) if
// no filter is registered under that name. A missing filter is not
// fatal: callers are expected to warn and continue.
func (r *Registry) Lookup(name string) (Filter, bool) {
	f, ok := r.filters[name]
	return f, ok
}

// Names returns the registered filter names, for diagnostic messages.
func (r *Registry) Names() []string {
	return maps.Keys(r.filters)
}
