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
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/fspecgo/fspec/filter"
)

// filterAlias describes one entry of a -filters YAML file: a name a
// FILTER op in the bytecode can reference directly, expanding to one
// of the two built-ins with a fixed set of leading arguments already
// supplied. This lets a bytecode emitter write `FILTER "latin1-text"`
// instead of repeating `FILTER "encoding" "ISO-8859-1"` at every
// declaration that needs it.
//
//	latin1-text:
//	  base: encoding
//	  args: ["ISO-8859-1"]
//	game-assets:
//	  base: compression
//	  args: ["zstd"]
type filterAlias struct {
	Base string   `json:"base"`
	Args []string `json:"args"`
}

func loadFilterAliases(registry *filter.Registry, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("-filters: %w", err)
	}
	var aliases map[string]filterAlias
	if err := yaml.Unmarshal(raw, &aliases); err != nil {
		return fmt.Errorf("-filters: %s: %w", path, err)
	}

	for name, alias := range aliases {
		base, ok := registry.Lookup(alias.Base)
		if !ok {
			return fmt.Errorf("-filters: alias %q: unknown base filter %q (known: %v)", name, alias.Base, registry.Names())
		}
		preset := make([]filter.Value, len(alias.Args))
		for i, a := range alias.Args {
			preset[i] = filter.Value{Kind: filter.ValueString, Str: a}
		}
		registry.Register(name, aliasFilter(base, preset))
	}
	return nil
}

// aliasFilter returns a Filter that runs base with preset prepended
// to whatever arguments the bytecode's FILTER op itself supplied.
func aliasFilter(base filter.Filter, preset []filter.Value) filter.Filter {
	return func(ctx *filter.Context) error {
		args := make([]filter.Value, 0, len(preset)+len(ctx.Args))
		args = append(args, preset...)
		args = append(args, ctx.Args...)
		return base(&filter.Context{Decl: ctx.Decl, Args: args})
	}
}
