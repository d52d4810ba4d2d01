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
	"bytes"
	"testing"

	"github.com/cloudwego/codesink/internal/irgen"
	"github.com/cloudwego/codesink/internal/opts"
	"github.com/cloudwego/codesink/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() opts.Options {
	o := opts.GetDefaultOptions()
	o.CodeSinkingMinSize = 0
	o.LoopSinkingMinSize = 0
	return o
}

func newTestContext(fn *ir.Func, o opts.Options) *Context {
	return NewContext(fn, o, Oracles{})
}

// branchy builds
//
//	bb_0 -> bb_1 (return), bb_2 (uses v)
func branchy() (*ir.Builder, ir.Reg) {
	b := ir.NewBuilder("branchy", 8)
	c := b.Arg(0, ir.I1)
	x := b.Arg(1, ir.I32)
	left, right := b.Block(), b.Block()
	v := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Return()
	b.SetBlock(right)
	b.Return(b.Binary(ir.IrOpMul, ir.I32, v, x))
	return b, v
}

func TestClassify_Kinds(t *testing.T) {
	b := ir.NewBuilder("kinds", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	cst := b.Arg(2, ir.Ptr(ir.SpaceConstant))
	w := b.Cast(ir.IrCastZExt, ir.I64, x)
	n := b.Cast(ir.IrCastTrunc, ir.I16, x)
	f := b.Cast(ir.IrCastZExt, ir.I32, b.Compare(ir.IrCmpEq, x, ir.Ri(0)))
	p := b.Cast(ir.IrCastBitcast, ir.Ptr(ir.SpaceGeneric), buf)
	ld := b.Load(ir.I32, buf)
	lc := b.Load(ir.I32, cst)
	lv := b.LoadVolatile(ir.I32, buf)
	cp := b.Call(ir.I32, "pure", ir.IrCall{}, x)
	cr := b.Call(ir.I32, "reader", ir.IrCall{ReadMem: true}, buf)
	cc := b.Call(ir.I32, "barrier", ir.IrCall{Convergent: true})
	cw := b.Call(ir.I32, "writer", ir.IrCall{WriteMem: true}, buf)
	ev := b.ExtractValue(ir.I32, x, 0)
	al := b.Alloca(16)
	st := b.Store(x, buf)
	in := b.Input(ir.F32, 0)
	b.Return(w, n, f, p, ld, lc, lv, cp, cr, cc, cw, ev, al, in)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	aa := ctx.Oracles.Alias

	tests := []struct {
		name     string
		v        ir.IrNode
		barriers bool
		want     Safety
	}{
		{"widening cast", b.Def(w), false, _Reducing},
		{"narrowing cast", b.Def(n), false, _Pure},
		{"flag cast", b.Def(f), false, _Pure},
		{"pointer cast", b.Def(p), false, _Pure},
		{"load", b.Def(ld), false, _Aliased},
		{"load after store", b.Def(ld), true, _Unmovable},
		{"constant load", b.Def(lc), true, _Pure},
		{"volatile load", b.Def(lv), false, _Unmovable},
		{"pure call", b.Def(cp), true, _Pure},
		{"reading call", b.Def(cr), false, _Aliased},
		{"reading call after store", b.Def(cr), true, _Unmovable},
		{"convergent call", b.Def(cc), false, _Unmovable},
		{"writing call", b.Def(cw), false, _Unmovable},
		{"extract value", b.Def(ev), false, _Unmovable},
		{"alloca", b.Def(al), false, _Unmovable},
		{"store", st, false, _Unmovable},
		{"input", b.Def(in), true, _Reducing},
		{"terminator", fn.Root.Term, false, _Unmovable},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Classify(fn, tc.v, tc.barriers, true, aa), tc.name)
	}

	/* restricted mode */
	assert.Equal(t, _Unmovable, Classify(fn, b.Def(w), false, false, aa))
	assert.Equal(t, _Reducing, Classify(fn, b.Def(in), false, false, aa))
	assert.True(t, IsPointerCast(b.Def(p)))
	assert.False(t, IsPointerCast(b.Def(w)))
}

func TestResolver_SameBlockUseFails(t *testing.T) {
	b := ir.NewBuilder("local", 8)
	x := b.Arg(0, ir.I32)
	v := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	b.Return(b.Binary(ir.IrOpMul, ir.I32, v, v))
	ctx := newTestContext(b.Func(), testOptions())
	res := NewResolver(ctx)
	_, ok := res.Resolve(b.Def(v))
	require.False(t, ok)
	_, ok = res.ResolveLoopAware(b.Def(v))
	require.False(t, ok)
}

func TestResolver_PhiUseCountsInIncomingBlock(t *testing.T) {
	b := ir.NewBuilder("phi", 8)
	c := b.Arg(0, ir.I1)
	x := b.Arg(1, ir.I32)
	left, right, join := b.Block(), b.Block(), b.Block()
	v := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Jump(join)
	b.SetBlock(right)
	b.Jump(join)
	b.SetBlock(join)
	phi := b.Phi(ir.I32)
	phi.Add(left, v)
	phi.Add(right, ir.Ri(0))
	b.Return(phi.R)

	ctx := newTestContext(b.Func(), testOptions())
	res := NewResolver(ctx)
	tgt, ok := res.Resolve(b.Def(v))
	require.True(t, ok)
	require.Equal(t, left, tgt)

	/* repeated queries agree */
	for i := 0; i < 4; i++ {
		again, ok := res.Resolve(b.Def(v))
		require.True(t, ok)
		require.Same(t, tgt, again)
	}
}

func TestResolver_StaysOutOfLoops(t *testing.T) {
	b := ir.NewBuilder("loop", 8)
	n := b.Arg(0, ir.I32)
	pre, hdr, exit := b.Block(), b.Block(), b.Block()
	v := b.Binary(ir.IrOpMul, ir.I32, n, n)
	b.Jump(pre)
	b.SetBlock(pre)
	b.Jump(hdr)
	b.SetBlock(hdr)
	iv := b.Phi(ir.I32)
	iv.Add(pre, ir.Ri(0))
	next := b.Binary(ir.IrOpAdd, ir.I32, iv.R, v)
	iv.Add(hdr, next)
	b.Branch(b.Compare(ir.IrCmpLt, next, n), hdr, exit)
	b.SetBlock(exit)
	b.Return()

	ctx := newTestContext(b.Func(), testOptions())
	res := NewResolver(ctx)
	tgt, ok := res.Resolve(b.Def(v))
	require.True(t, ok)
	require.Equal(t, hdr, tgt)
	pl, ok := res.ResolveLoopAware(b.Def(v))
	require.True(t, ok)
	require.Equal(t, pre, pl.Target)
	require.False(t, pl.OuterLoop)
}

func TestCodeSinking_SinksIntoUseBlock(t *testing.T) {
	b, v := branchy()
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.True(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, fn.Blocks[2], fn.BlockOf(b.Def(v)))
	require.Equal(t, b.Def(v), fn.Blocks[2].Ins[0])
	require.Equal(t, 1, ctx.Stats.Moved)
	require.Zero(t, ctx.Stats.BlocksRolledBack)
}

func TestCodeSinking_MinSizeAndDisable(t *testing.T) {
	b, v := branchy()
	fn := b.Func()
	o := testOptions()
	o.CodeSinkingMinSize = 1000
	require.False(t, NewCodeSinking(newTestContext(fn, o)).Apply())
	o = testOptions()
	o.DisableCodeSinking = true
	require.False(t, NewCodeSinking(newTestContext(fn, o)).Apply())
	require.Equal(t, fn.Root, fn.BlockOf(b.Def(v)))
}

// wideOperand builds a block where sinking a narrow extract drags its wide
// source vector into the live-out set.
func wideOperand() (*ir.Builder, ir.Reg, string) {
	b := ir.NewBuilder("wide", 8)
	c := b.Arg(0, ir.I1)
	x := b.Arg(1, ir.Vec(ir.I32, 8))
	buf := b.Arg(2, ir.Ptr(ir.SpaceGlobal))
	left, right := b.Block(), b.Block()
	a := b.Binary(ir.IrOpAdd, ir.Vec(ir.I32, 8), x, x)
	e := b.ExtractElement(a, ir.Ri(0))
	b.Store(a, buf)
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Return()
	b.SetBlock(right)
	b.Return(e)
	return b, e, b.Func().String()
}

func TestCodeSinking_RollbackRestoresOrder(t *testing.T) {
	b, _, before := wideOperand()
	fn := b.Func()
	o := testOptions()
	o.PressureMargin = 0
	ctx := newTestContext(fn, o)
	require.False(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, before, fn.String())
	require.Equal(t, 1, ctx.Stats.BlocksRolledBack)
	require.Zero(t, ctx.Stats.Moved)
}

func TestCodeSinking_MarginAllowsGrowth(t *testing.T) {
	b, e, _ := wideOperand()
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.True(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, []ir.IrNode{b.Def(e)}, fn.Blocks[2].Ins)
	require.Equal(t, 1, ctx.Stats.Moved)
}

func TestCodeSinking_NoMovableInstructions(t *testing.T) {
	b := ir.NewBuilder("fixed", 8)
	x := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	p := b.Alloca(4)
	b.Store(x, p)
	b.Store(x, buf)
	b.Prefetch(buf)
	b.Return()
	fn := b.Func()
	before := fn.String()
	ctx := newTestContext(fn, testOptions())
	p0 := ctx.Oracles.Pressure.MaxPressure()
	require.False(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, before, fn.String())
	require.Equal(t, p0, ctx.Oracles.Pressure.MaxPressure())
	require.Equal(t, Stats{}, *ctx.Stats)
}

func TestCodeSinking_ComparesSinkNextToUse(t *testing.T) {
	b := ir.NewBuilder("flags", 8)
	c := b.Arg(0, ir.I1)
	x := b.Arg(1, ir.I32)
	left, right := b.Block(), b.Block()
	f := b.Compare(ir.IrCmpLt, x, ir.Ri(8))
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Return()
	b.SetBlock(right)
	y := b.Binary(ir.IrOpMul, ir.I32, x, x)
	z := b.Select(f, y, x)
	b.Return(z)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.True(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, []ir.IrNode{b.Def(y), b.Def(f), b.Def(z)}, right.Ins)
}

func TestCodeSinking_GradientsAreCounted(t *testing.T) {
	b := ir.NewBuilder("grad", 8)
	c := b.Arg(0, ir.I1)
	tex := b.Arg(1, ir.Ptr(ir.SpaceResource))
	uv := b.Input(ir.Vec(ir.F32, 2), 0)
	left, right := b.Block(), b.Block()
	s := b.SampleGrad(ir.Vec(ir.F32, 4), tex, uv)
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Return()
	b.SetBlock(right)
	b.Return(s)
	fn := b.Func()
	ctx := newTestContext(fn, testOptions())
	require.True(t, NewCodeSinking(ctx).Apply())
	require.Equal(t, right, fn.BlockOf(b.Def(s)))
	require.Equal(t, 1, ctx.Stats.GradientSunk)
}

func TestCodeSinking_KeepsDominance(t *testing.T) {
	for seed := int64(0); seed < 40; seed++ {
		fn := irgen.Func(seed, irgen.DefaultConfig)
		ctx := newTestContext(fn, testOptions())
		NewCodeSinking(ctx).Apply()
		requireDominance(t, ctx)
	}
}

// requireDominance checks every use against its definition.
func requireDominance(t *testing.T, ctx *Context) {
	t.Helper()
	fn := ctx.Fn
	for _, bb := range fn.Blocks {
		for _, v := range append(append([]ir.IrNode(nil), bb.Ins...), bb.Term) {
			for _, r := range ir.Operands(v) {
				d := ctx.Uses.Def(r)
				if d == nil {
					continue
				}
				db := fn.BlockOf(d)
				if db == bb {
					require.True(t, isPhi(d) || fn.Comes(d, v), "%s used before its definition in %s", r, fn.Name)
				} else {
					require.True(t, ctx.Dom.Dominates(db, bb), "%s does not dominate its use in bb_%d", r, bb.Id)
				}
			}
		}
		for _, p := range bb.Phi {
			for _, in := range p.Incoming() {
				r := *p.V[in]
				if d := ctx.Uses.Def(r); r.IsValue() && d != nil {
					require.True(t, ctx.Dom.Dominates(fn.BlockOf(d), in), "%s does not reach bb_%d", r, in.Id)
				}
			}
		}
	}
}

func TestTracer_DoesNotChangeResults(t *testing.T) {
	seed := int64(7)
	plain := irgen.Func(seed, irgen.DefaultConfig)
	NewCodeSinking(newTestContext(plain, testOptions())).Apply()

	var buf bytes.Buffer
	traced := irgen.Func(seed, irgen.DefaultConfig)
	o := testOptions()
	o.Trace = &buf
	NewCodeSinking(newTestContext(traced, o)).Apply()
	require.Equal(t, plain.String(), traced.String())

	var nt *Tracer
	require.False(t, nt.Enabled())
	nt.Printf("ignored %d", 1)
	nt.Dump("ignored", 1)
}
