/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sink

import (
	"testing"

	"github.com/cloudwego/codesink/ir"
	"github.com/stretchr/testify/require"
)

func single(bb *ir.BasicBlock, v ir.IrNode) map[ir.IrNode]*Candidate {
	return map[ir.IrNode]*Candidate{v: newCandidate(bb, IntraLoopSink, v)}
}

func TestLocalScheduler_MovesNextToUse(t *testing.T) {
	b := ir.NewBuilder("local", 8)
	x := b.Arg(0, ir.I32)
	v := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(5))
	f := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(6))
	u := b.Binary(ir.IrOpMul, ir.I32, v, f)
	b.Return(u)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	ls := NewLocalScheduler(ctx, false)
	require.Equal(t, 1, ls.Schedule(fn.Root, single(fn.Root, b.Def(v))))
	require.Equal(t, []ir.IrNode{b.Def(f), b.Def(v), b.Def(u)}, fn.Root.Ins)

	/* a second run finds it in place */
	require.Zero(t, ls.Schedule(fn.Root, single(fn.Root, b.Def(v))))
}

func TestLocalScheduler_HoistsLoads(t *testing.T) {
	b := ir.NewBuilder("hoist", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	ld := b.Load(ir.I32, buf)
	a := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	y := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(2))
	z := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(3))
	u := b.Binary(ir.IrOpAdd, ir.I32, ld, a)
	b.Return(u, y, z)
	fn := b.Func()

	/* far enough back, nothing to do */
	ctx := newTestContext(fn, testOptions())
	require.Zero(t, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(ld))))

	/* one instruction of slack */
	o := testOptions()
	o.LoadSchedulingInstr = 1
	ctx = newTestContext(fn, o)
	require.Equal(t, 1, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(ld))))
	require.Equal(t, []ir.IrNode{b.Def(a), b.Def(y), b.Def(ld), b.Def(z), b.Def(u)}, fn.Root.Ins)
}

func TestLocalScheduler_LoadsStopAtAliasingWrites(t *testing.T) {
	b := ir.NewBuilder("writes", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	ld := b.Load(ir.I32, buf)
	b.Store(x, buf)
	a := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	b.Return(b.Binary(ir.IrOpAdd, ir.I32, ld, a))
	fn := b.Func()
	before := fn.String()
	o := testOptions()
	o.LoadSchedulingInstr = 0
	ctx := newTestContext(fn, o)
	require.Zero(t, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(ld))))
	require.Equal(t, before, fn.String())
}

func TestLocalScheduler_LoadsPassDisjointWrites(t *testing.T) {
	b := ir.NewBuilder("disjoint", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	p := b.Alloca(4)
	ld := b.Load(ir.I32, buf)
	st := b.Store(x, p)
	a := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	u := b.Binary(ir.IrOpAdd, ir.I32, ld, a)
	b.Return(u)
	fn := b.Func()

	/* sunk to the use, then hoisted back up to the store */
	ctx := newTestContext(fn, testOptions())
	require.Equal(t, 1, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(ld))))
	require.Equal(t, []ir.IrNode{b.Def(p), st, b.Def(ld), b.Def(a), b.Def(u)}, fn.Root.Ins)
}

// macro builds two adjacent matrix ops, the second one consuming v.
func macro(shared bool) (*ir.Builder, ir.Reg, ir.Reg, ir.Reg, ir.Reg) {
	vt := ir.Vec(ir.F32, 8)
	b := ir.NewBuilder("dpas", 8)
	acc := b.Arg(0, vt)
	x := b.Arg(1, vt)
	y := b.Arg(2, vt)
	acc2 := b.Arg(3, vt)
	v := b.Binary(ir.IrOpFAdd, vt, x, x)
	f := b.Binary(ir.IrOpFMul, vt, y, y)
	d1 := b.MatrixMulAdd(vt, acc, x, y)
	var d2 ir.Reg
	if shared {
		d2 = b.MatrixMulAdd(vt, d1, v, y)
	} else {
		d2 = b.MatrixMulAdd(vt, acc2, v, f)
	}
	b.Return(d1, d2, f)
	return b, v, f, d1, d2
}

func TestLocalScheduler_KeepsMacrosWhole(t *testing.T) {
	b, v, f, d1, d2 := macro(true)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.Equal(t, 1, NewLocalScheduler(ctx, true).Schedule(fn.Root, single(fn.Root, b.Def(v))))
	require.Equal(t, []ir.IrNode{b.Def(f), b.Def(v), b.Def(d1), b.Def(d2)}, fn.Root.Ins)
}

func TestLocalScheduler_AggressiveSplitsIndependentMacros(t *testing.T) {
	b, v, f, d1, d2 := macro(false)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.Equal(t, 1, NewLocalScheduler(ctx, true).Schedule(fn.Root, single(fn.Root, b.Def(v))))
	require.Equal(t, []ir.IrNode{b.Def(f), b.Def(d1), b.Def(v), b.Def(d2)}, fn.Root.Ins)
}

func TestLocalScheduler_NonAggressiveKeepsIndependentMacros(t *testing.T) {
	b, v, f, d1, d2 := macro(false)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.Equal(t, 1, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(v))))
	require.Equal(t, []ir.IrNode{b.Def(f), b.Def(v), b.Def(d1), b.Def(d2)}, fn.Root.Ins)
}

func TestLocalScheduler_SkipsMacroUses(t *testing.T) {
	b, v, _, _, _ := macro(true)
	fn := b.Func()
	before := fn.String()
	o := testOptions()
	o.SkipDPASMacro = true
	ctx := newTestContext(fn, o)
	require.Zero(t, NewLocalScheduler(ctx, false).Schedule(fn.Root, single(fn.Root, b.Def(v))))
	require.Equal(t, before, fn.String())
}

func TestLocalScheduler_BlockReadGroupStaysTogether(t *testing.T) {
	vt := ir.Vec(ir.I32, 8)
	b := ir.NewBuilder("payload", 8)
	x := b.Arg(0, ir.I32)
	base := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	p := b.PayloadCreate(base)
	s := b.PayloadSet(p, 0, x)
	r := b.PayloadRead(vt, p)
	f1 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	f2 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(2))
	u := b.Binary(ir.IrOpAdd, vt, r, r)
	b.Return(u, f1, f2)
	fn := b.Func()

	o := testOptions()
	o.BlockReadSchedulingInstr = 0
	ctx := newTestContext(fn, o)
	c := newCandidate(fn.Root, IntraLoopSink, b.Def(p), s, b.Def(r))
	owner := map[ir.IrNode]*Candidate{b.Def(p): c, s: c, b.Def(r): c}
	require.True(t, c.IsBlockRead())
	require.Equal(t, 3, NewLocalScheduler(ctx, false).Schedule(fn.Root, owner))
	require.Equal(t, []ir.IrNode{b.Def(f1), b.Def(f2), b.Def(p), s, b.Def(r), b.Def(u)}, fn.Root.Ins)
}

func TestLocalScheduler_BlockReadStaysAfterStoreBetweenMembers(t *testing.T) {
	vt := ir.Vec(ir.I32, 8)
	b := ir.NewBuilder("payload", 8)
	x := b.Arg(0, ir.I32)
	base := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	p := b.PayloadCreate(base)
	s := b.PayloadSet(p, 0, x)
	st := b.Store(x, base)
	r := b.PayloadRead(vt, p)
	f1 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	f2 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(2))
	u := b.Binary(ir.IrOpAdd, vt, r, r)
	b.Return(u, f1, f2)
	fn := b.Func()

	o := testOptions()
	o.BlockReadSchedulingInstr = 0
	ctx := newTestContext(fn, o)
	c := newCandidate(fn.Root, IntraLoopSink, b.Def(p), s, b.Def(r))
	owner := map[ir.IrNode]*Candidate{b.Def(p): c, s: c, b.Def(r): c}
	require.Equal(t, 3, NewLocalScheduler(ctx, false).Schedule(fn.Root, owner))
	require.Equal(t, []ir.IrNode{st, b.Def(f1), b.Def(f2), b.Def(p), s, b.Def(r), b.Def(u)}, fn.Root.Ins)
}

func TestLocalScheduler_AddressGroupStaysAfterStoreBetweenMembers(t *testing.T) {
	b := ir.NewBuilder("coarse", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	p := b.LEA(buf, x)
	st := b.Store(x, buf)
	ld := b.Load(ir.I32, p)
	f1 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	f2 := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(2))
	u := b.Binary(ir.IrOpAdd, ir.I32, ld, f1)
	b.Return(u, f2)
	fn := b.Func()

	o := testOptions()
	o.LoadSchedulingInstr = 0
	ctx := newTestContext(fn, o)
	c := newCandidate(fn.Root, IntraLoopSink, b.Def(p), b.Def(ld))
	owner := map[ir.IrNode]*Candidate{b.Def(p): c, b.Def(ld): c}
	require.Equal(t, 2, NewLocalScheduler(ctx, false).Schedule(fn.Root, owner))
	require.Equal(t, []ir.IrNode{st, b.Def(f1), b.Def(f2), b.Def(p), b.Def(ld), b.Def(u)}, fn.Root.Ins)
	require.Less(t, fn.Root.IndexOf(st), fn.Root.IndexOf(b.Def(ld)))
}

func TestLocalScheduler_ReaderNeverPassesStoreBetweenMembers(t *testing.T) {
	b := ir.NewBuilder("crossing", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	ld := b.Load(ir.I32, buf)
	b.Store(x, buf)
	a := b.Binary(ir.IrOpAdd, ir.I32, ld, ir.Ri(1))
	f := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(2))
	b.Return(b.Binary(ir.IrOpAdd, ir.I32, a, f))
	fn := b.Func()
	before := fn.String()

	o := testOptions()
	o.LoadSchedulingInstr = 0
	ctx := newTestContext(fn, o)
	c := newCandidate(fn.Root, IntraLoopSink, b.Def(ld), b.Def(a))
	owner := map[ir.IrNode]*Candidate{b.Def(ld): c, b.Def(a): c}
	require.Zero(t, NewLocalScheduler(ctx, false).Schedule(fn.Root, owner))
	require.Equal(t, before, fn.String())
}
