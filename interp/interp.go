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

// Package interp runs a bytecode program built by package bc/decl
// against an input byte stream, rendering each declaration through
// package render as its body is left. The dispatch loop is
// structured as one small function per opcode the way vm/interp.go
// dispatches the sneller bytecode.
package interp

import (
	"bufio"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/fspecgo/fspec/bc"
	"github.com/fspecgo/fspec/bc/decl"
	"github.com/fspecgo/fspec/bc/mem"
	"github.com/fspecgo/fspec/bc/walk"
	"github.com/fspecgo/fspec/filter"
	"github.com/fspecgo/fspec/internal/bitio"
	"github.com/fspecgo/fspec/render"
)

// Context is the interpreter's full state: the bytecode and its data
// area, the declaration table built by decl.Setup, the input stream,
// the filter registry, and the output sink. current is the
// "inside/outside" flag tracking which declaration's body is open;
// nil means outside.
type Context struct {
	Code    []byte
	Data    mem.Region
	Table   *decl.Table
	Filters *filter.Registry
	Out     io.Writer

	// Warn receives a line of text for every non-fatal condition (an
	// unregistered filter name). It may be nil, in which case
	// warnings are discarded.
	Warn io.Writer

	// RunID tags this Context's execution so a fatal error can be
	// correlated with a specific invocation in logs.
	RunID uuid.UUID

	br      *bufio.Reader
	current *decl.Declaration
}

// NewContext wraps in for buffered, peekable reads (needed by GOTO's
// EOF-sensing multiplicity) and returns a ready-to-run Context.
func NewContext(code []byte, data mem.Region, table *decl.Table, in io.Reader, filters *filter.Registry, out io.Writer) *Context {
	return &Context{
		Code:    code,
		Data:    data,
		Table:   table,
		Filters: filters,
		Out:     out,
		RunID:   uuid.New(),
		br:      bufio.NewReader(in),
	}
}

func (ctx *Context) warnf(format string, args ...any) {
	if ctx.Warn == nil {
		return
	}
	fmt.Fprintf(ctx.Warn, "warning: "+format+"\n", args...)
}

func (ctx *Context) atEOF() (bool, error) {
	_, err := ctx.br.Peek(1)
	switch err {
	case nil:
		return false, nil
	case io.EOF:
		return true, nil
	default:
		return false, err
	}
}

// RunProgram executes table's entry-point declaration body, wrapping
// any fatal error with ctx.RunID so a failure can be correlated with
// a specific invocation (the CLI's -trace output prints the same id
// up front).
func RunProgram(ctx *Context, table *decl.Table) error {
	if table.Entry == nil {
		return fmt.Errorf("interp: run %s: no STRUCT entry point declared", ctx.RunID)
	}
	if err := Run(ctx, table.Entry.Start, table.Entry.End); err != nil {
		return fmt.Errorf("interp: run %s: %w", ctx.RunID, err)
	}
	return nil
}

// Run executes code[start:end]. It is re-entrant: GOTO calls Run
// recursively on a target declaration's body, which has its own
// start/end bounds and begins with current reset to outside.
func Run(ctx *Context, start, end int) error {
	if ctx.Table == nil {
		return bc.Errorf(start, "interp: no declaration table")
	}
	pos := start
	for {
		if ctx.current != nil && pos == ctx.current.End {
			if err := render.Render(ctx.Out, ctx.current); err != nil {
				return err
			}
			ctx.current = nil
		}
		if pos >= end {
			break
		}

		op := bc.Op(ctx.Code[pos])
		if !op.Valid() {
			return bc.Errorf(pos, "unexpected opcode %d", ctx.Code[pos])
		}

		switch op {
		case bc.OpHeader:
			// no-op during execution; its fields were consumed by setup.
		case bc.OpDeclaration:
			if err := ctx.doDeclaration(pos, end); err != nil {
				return err
			}
		case bc.OpRead:
			if err := ctx.doRead(pos, end); err != nil {
				return err
			}
		case bc.OpGoto:
			if err := ctx.doGoto(pos, end); err != nil {
				return err
			}
		case bc.OpFilter:
			if err := ctx.doFilter(pos, end); err != nil {
				return err
			}
		case bc.OpVisual:
			if err := ctx.doVisual(pos, end); err != nil {
				return err
			}
		default:
			return bc.Errorf(pos, "unexpected opcode %s during execution", op)
		}

		next, ok, err := walk.NextOp(ctx.Code, pos, end, true)
		if err != nil {
			return err
		}
		if !ok {
			pos = end
			continue
		}
		pos = next
	}
	return nil
}

func (ctx *Context) doDeclaration(pos, end int) error {
	kindPos, ok, err := walk.OpGetArg(ctx.Code, pos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "DECLARATION is missing its kind argument")
	}
	idPos, ok, err := walk.ArgNext(ctx.Code, kindPos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "DECLARATION is missing its id argument")
	}
	idArg, err := walk.Decode(ctx.Code, idPos, end)
	if err != nil {
		return err
	}
	d := ctx.Table.ByID(bc.Var(idArg.Num))
	if d == nil {
		return bc.Errorf(pos, "DECLARATION references out-of-range id %d", idArg.Num)
	}
	d.Buf = d.Buf[:0]
	d.Nmemb = 0
	ctx.current = d
	return nil
}

// readArgMask permits the argument shapes READ's multiplier arguments
// may take: a count (NUM), a length reference (VAR), emitter-only
// metadata (STR, ignored at runtime), or the until-EOF sentinel.
var readArgMask = bc.ArgNum.Bit() | bc.ArgVar.Bit() | bc.ArgStr.Bit() | bc.ArgEOF.Bit()

func (ctx *Context) doRead(pos, end int) error {
	if ctx.current == nil {
		return bc.Errorf(pos, "READ outside a declaration body")
	}
	widthPos, ok, err := walk.OpGetArg(ctx.Code, pos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "READ is missing its width argument")
	}
	widthArg, err := walk.Decode(ctx.Code, widthPos, end)
	if err != nil {
		return err
	}
	elemSize := bitio.BytesForBits(int(widthArg.Num))
	if elemSize <= 0 {
		elemSize = 1
	}
	d := ctx.current
	d.ElemSize = elemSize

	nmemb := 0
	any := false
	cur := widthPos

loop:
	for {
		next, ok, err := walk.ArgNext(ctx.Code, cur, end, 1, readArgMask)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cur = next
		arg, err := walk.Decode(ctx.Code, cur, end)
		if err != nil {
			return err
		}

		switch arg.Tag {
		case bc.ArgStr:
			// emitter metadata only; ignored at runtime.
			continue

		case bc.ArgEOF:
			any = true
			chunk := nmemb
			if chunk < 1 {
				chunk = 1
			}
			for {
				data, got, short, rerr := readElements(ctx.br, elemSize, chunk)
				if rerr != nil {
					return rerr
				}
				d.Buf = append(d.Buf, data...)
				nmemb += got
				if short || got < chunk {
					break
				}
			}

		case bc.ArgNum, bc.ArgVar:
			any = true
			v, err := ctx.resolveNumeric(arg)
			if err != nil {
				return err
			}
			if v == 0 {
				// Whole READ is a no-op; stop examining further args.
				break loop
			}
			n := int(v)
			if nmemb > 1 {
				n *= nmemb
			}
			data, got, _, rerr := readElements(ctx.br, elemSize, n)
			if rerr != nil {
				return rerr
			}
			d.Buf = append(d.Buf, data...)
			nmemb += got

		default:
			return bc.Errorf(cur, "unexpected READ argument type %s", arg.Tag)
		}
	}

	if !any {
		data, got, _, rerr := readElements(ctx.br, elemSize, 1)
		if rerr != nil {
			return rerr
		}
		d.Buf = append(d.Buf, data...)
		nmemb += got
	}

	d.Nmemb = nmemb
	return nil
}

// readElements attempts to read n elements of elemSize bytes each
// from r. A short read (including immediate EOF) is not an error: it
// terminates the read cleanly, returning however many whole elements
// were actually obtained.
func readElements(r io.Reader, elemSize, n int) (data []byte, got int, short bool, err error) {
	if n <= 0 || elemSize <= 0 {
		return nil, 0, false, nil
	}
	buf := make([]byte, n*elemSize)
	nr, rerr := io.ReadFull(r, buf)
	full := nr / elemSize
	data = buf[:full*elemSize]
	got = full
	switch rerr {
	case nil:
		return data, got, false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return data, got, true, nil
	default:
		return nil, 0, false, rerr
	}
}

var gotoMultMask = bc.ArgNum.Bit() | bc.ArgVar.Bit() | bc.ArgEOF.Bit()

func (ctx *Context) doGoto(pos, end int) error {
	targetPos, ok, err := walk.OpGetArg(ctx.Code, pos, end, 1, bc.ArgVar.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "GOTO is missing its target argument")
	}
	targetArg, err := walk.Decode(ctx.Code, targetPos, end)
	if err != nil {
		return err
	}
	target := ctx.Table.ByID(targetArg.Var)
	if target == nil {
		return bc.Errorf(pos, "GOTO target declaration %d does not exist", targetArg.Var)
	}

	multPos, hasMult, err := walk.ArgNext(ctx.Code, targetPos, end, 1, gotoMultMask)
	if err != nil {
		return err
	}

	ctx.current = nil

	if !hasMult {
		return Run(ctx, target.Start, target.End)
	}

	multArg, err := walk.Decode(ctx.Code, multPos, end)
	if err != nil {
		return err
	}

	if multArg.Tag == bc.ArgEOF {
		for {
			eof, err := ctx.atEOF()
			if err != nil {
				return err
			}
			if eof {
				return nil
			}
			if err := Run(ctx, target.Start, target.End); err != nil {
				return err
			}
		}
	}

	v, err := ctx.resolveNumeric(multArg)
	if err != nil {
		return err
	}
	for i := uint64(0); i < v; i++ {
		if err := Run(ctx, target.Start, target.End); err != nil {
			return err
		}
	}
	return nil
}

var filterArgMask = bc.ArgNum.Bit() | bc.ArgVar.Bit() | bc.ArgStr.Bit()

func (ctx *Context) doFilter(pos, end int) error {
	if ctx.current == nil {
		return bc.Errorf(pos, "FILTER outside a declaration body")
	}
	namePos, ok, err := walk.OpGetArg(ctx.Code, pos, end, 1, bc.ArgStr.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "FILTER is missing its name argument")
	}
	nameArg, err := walk.Decode(ctx.Code, namePos, end)
	if err != nil {
		return err
	}
	name, err := ctx.Data.String(nameArg.Off)
	if err != nil {
		return err
	}

	var args []filter.Value
	cur := namePos
	for {
		next, ok, err := walk.ArgNext(ctx.Code, cur, end, 1, filterArgMask)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cur = next
		arg, err := walk.Decode(ctx.Code, cur, end)
		if err != nil {
			return err
		}
		val, err := ctx.resolveFilterValue(arg)
		if err != nil {
			return err
		}
		args = append(args, val)
	}

	f, ok := ctx.Filters.Lookup(name)
	if !ok {
		ctx.warnf("unknown filter %q", name)
		return nil
	}
	return f(&filter.Context{Decl: ctx.current, Args: args})
}

func (ctx *Context) doVisual(pos, end int) error {
	if ctx.current == nil {
		return bc.Errorf(pos, "VISUAL outside a declaration body")
	}
	visPos, ok, err := walk.OpGetArg(ctx.Code, pos, end, 1, bc.ArgNum.Bit())
	if err != nil {
		return err
	}
	if !ok {
		return bc.Errorf(pos, "VISUAL is missing its mode argument")
	}
	visArg, err := walk.Decode(ctx.Code, visPos, end)
	if err != nil {
		return err
	}
	v := bc.Visual(visArg.Num)
	if !v.Valid() {
		return bc.Errorf(visPos, "invalid visual mode %d", visArg.Num)
	}
	ctx.current.Visual = v
	return nil
}

// resolveNumeric turns a NUM or VAR argument into a plain number: a
// VAR's referenced declaration's buffer is read as little-endian
// unsigned over its first ElemSize bytes.
func (ctx *Context) resolveNumeric(arg walk.Arg) (uint64, error) {
	switch arg.Tag {
	case bc.ArgNum:
		return uint64(arg.Num), nil
	case bc.ArgVar:
		d := ctx.Table.ByID(arg.Var)
		if d == nil {
			return 0, bc.Errorf(arg.TagPos, "VAR references unknown declaration %d", arg.Var)
		}
		return declNumericValue(d), nil
	default:
		return 0, bc.Errorf(arg.TagPos, "expected NUM or VAR argument, got %s", arg.Tag)
	}
}

func (ctx *Context) resolveFilterValue(arg walk.Arg) (filter.Value, error) {
	switch arg.Tag {
	case bc.ArgStr:
		s, err := ctx.Data.String(arg.Off)
		if err != nil {
			return filter.Value{}, err
		}
		return filter.Value{Kind: filter.ValueString, Str: s}, nil
	case bc.ArgNum:
		return filter.Value{Kind: filter.ValueNumber, Num: uint64(arg.Num)}, nil
	case bc.ArgVar:
		d := ctx.Table.ByID(arg.Var)
		if d == nil {
			return filter.Value{}, bc.Errorf(arg.TagPos, "VAR references unknown declaration %d", arg.Var)
		}
		if d.Visual == bc.VisualStr {
			return filter.Value{Kind: filter.ValueString, Str: string(d.Buf)}, nil
		}
		return filter.Value{Kind: filter.ValueNumber, Num: declNumericValue(d)}, nil
	default:
		return filter.Value{}, bc.Errorf(arg.TagPos, "unexpected filter argument type %s", arg.Tag)
	}
}

// declNumericValue reinterprets the first ElemSize bytes (clamped to
// 8) of d's buffer as a little-endian unsigned integer. Bytes beyond
// the native 64-bit width are ignored.
func declNumericValue(d *decl.Declaration) uint64 {
	n := d.ElemSize
	if n > len(d.Buf) {
		n = len(d.Buf)
	}
	if n > 8 {
		n = 8
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(d.Buf[i])
	}
	return v
}
