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

package analysis

import (
	"testing"

	"github.com/cloudwego/codesink/internal/irgen"
	"github.com/cloudwego/codesink/ir"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"
)

// diamond builds
//
//	bb_0 -> bb_1, bb_2 -> bb_3
func diamond() (*ir.Builder, ir.Reg, ir.Reg) {
	b := ir.NewBuilder("diamond", 8)
	c := b.Arg(0, ir.I1)
	x := b.Arg(1, ir.I32)
	left, right, join := b.Block(), b.Block(), b.Block()
	v := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	b.Branch(c, left, right)
	b.SetBlock(left)
	b.Jump(join)
	b.SetBlock(right)
	w := b.Binary(ir.IrOpMul, ir.I32, v, x)
	b.Jump(join)
	b.SetBlock(join)
	phi := b.Phi(ir.I32)
	phi.Add(left, v)
	phi.Add(right, w)
	b.Return(phi.R)
	return b, v, w
}

// counted builds a normalized loop
//
//	bb_0 -> bb_1 (preheader) -> bb_2 (header, latch) -> bb_3 (exit)
func counted() (*ir.Builder, ir.Reg) {
	b := ir.NewBuilder("counted", 16)
	n := b.Arg(0, ir.I32)
	buf := b.Arg(1, ir.Ptr(ir.SpaceGlobal))
	pre, hdr, exit := b.Block(), b.Block(), b.Block()
	b.Jump(pre)
	b.SetBlock(pre)
	inv := b.Binary(ir.IrOpMul, ir.I32, n, ir.Ri(4))
	b.Jump(hdr)
	b.SetBlock(hdr)
	iv := b.Phi(ir.I32)
	iv.Add(pre, ir.Ri(0))
	next := b.Binary(ir.IrOpAdd, ir.I32, iv.R, inv)
	b.Store(next, b.LEA(buf, iv.R))
	iv.Add(hdr, next)
	b.Branch(b.Compare(ir.IrCmpLt, next, n), hdr, exit)
	b.SetBlock(exit)
	b.Return()
	return b, inv
}

func TestDominator_Diamond(t *testing.T) {
	b, _, _ := diamond()
	fn := b.Func()
	dt := BuildDominatorTree(fn)
	root, left, right, join := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	require.Equal(t, root, dt.Idom(join))
	require.Nil(t, dt.Idom(root))
	require.True(t, dt.Dominates(root, right))
	require.False(t, dt.Dominates(left, join))
	require.True(t, dt.Dominates(join, join))
	require.Equal(t, root, dt.NearestCommonDominator(left, right))
	require.Equal(t, left, dt.NearestCommonDominator(nil, left))
	require.Equal(t, 1, dt.Depth[join.Id])
}

func TestDominator_PostOrderVisitsChildrenFirst(t *testing.T) {
	fn := irgen.Func(1, irgen.DefaultConfig)
	dt := BuildDominatorTree(fn)
	seen := make(map[*ir.BasicBlock]bool)
	order := dt.PostOrder()
	require.Len(t, order, len(dt.Depth))
	for _, bb := range order {
		for _, c := range dt.Children(bb) {
			require.True(t, seen[c], "bb_%d visited before its child bb_%d", bb.Id, c.Id)
		}
		seen[bb] = true
	}
	require.Equal(t, fn.Root, order[len(order)-1])
}

func TestDominator_MatchesGonum(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		fn := irgen.Func(seed, irgen.DefaultConfig)
		dt := BuildDominatorTree(fn)
		g := simple.NewDirectedGraph()
		for _, bb := range fn.Blocks {
			g.AddNode(simple.Node(bb.Id))
		}
		for _, bb := range fn.Blocks {
			for _, s := range bb.Succ() {
				if s != bb {
					g.SetEdge(g.NewEdge(simple.Node(bb.Id), simple.Node(s.Id)))
				}
			}
		}
		ref := flow.Dominators(simple.Node(fn.Root.Id), g)
		for _, bb := range fn.Blocks {
			idom := dt.Idom(bb)
			want := ref.DominatorOf(int64(bb.Id))
			if want == nil {
				require.Nil(t, idom, "seed %d, bb_%d", seed, bb.Id)
			} else {
				require.NotNil(t, idom, "seed %d, bb_%d", seed, bb.Id)
				require.Equal(t, want.ID(), int64(idom.Id), "seed %d, bb_%d", seed, bb.Id)
			}
		}
	}
}

func TestPostDominator_Diamond(t *testing.T) {
	b, _, _ := diamond()
	fn := b.Func()
	pdt := BuildPostDominatorTree(fn)
	root, left, right, join := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	require.True(t, pdt.PostDominates(join, root))
	require.True(t, pdt.PostDominates(join, left))
	require.False(t, pdt.PostDominates(left, root))
	require.False(t, pdt.PostDominates(right, root))
	require.Equal(t, join, pdt.Ipdom(right))
	require.Nil(t, pdt.Ipdom(join))
}

func TestPostDominator_Loop(t *testing.T) {
	b, _ := counted()
	fn := b.Func()
	pdt := BuildPostDominatorTree(fn)
	pre, hdr, exit := fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	require.True(t, pdt.PostDominates(hdr, pre))
	require.True(t, pdt.PostDominates(exit, hdr))
	require.False(t, pdt.PostDominates(pre, hdr))
}

func TestLoopInfo_Counted(t *testing.T) {
	b, _ := counted()
	fn := b.Func()
	li := BuildLoopInfo(fn, BuildDominatorTree(fn))
	pre, hdr, exit := fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	require.Len(t, li.Top, 1)
	l := li.Top[0]
	require.Equal(t, hdr, l.Header)
	require.Equal(t, hdr, l.Latch)
	require.Equal(t, pre, l.Preheader)
	require.Equal(t, []*ir.BasicBlock{hdr}, l.Blocks)
	require.True(t, l.Contains(hdr))
	require.False(t, l.Contains(exit))
	require.Equal(t, l, li.LoopFor(hdr))
	require.Nil(t, li.LoopFor(pre))
	require.Equal(t, 1, li.Depth(hdr))
	require.Equal(t, 0, li.Depth(exit))
}

func TestLoopInfo_NestingPreorder(t *testing.T) {
	b := ir.NewBuilder("nested", 8)
	n := b.Arg(0, ir.I32)
	opre, ohdr, ipre, ihdr, olatch, exit := b.Block(), b.Block(), b.Block(), b.Block(), b.Block(), b.Block()
	b.Jump(opre)
	b.SetBlock(opre)
	b.Jump(ohdr)
	b.SetBlock(ohdr)
	i := b.Phi(ir.I32)
	i.Add(opre, ir.Ri(0))
	b.Jump(ipre)
	b.SetBlock(ipre)
	b.Jump(ihdr)
	b.SetBlock(ihdr)
	j := b.Phi(ir.I32)
	j.Add(ipre, ir.Ri(0))
	jn := b.Binary(ir.IrOpAdd, ir.I32, j.R, ir.Ri(1))
	j.Add(ihdr, jn)
	b.Branch(b.Compare(ir.IrCmpLt, jn, n), ihdr, olatch)
	b.SetBlock(olatch)
	in := b.Binary(ir.IrOpAdd, ir.I32, i.R, ir.Ri(1))
	i.Add(olatch, in)
	b.Branch(b.Compare(ir.IrCmpLt, in, n), ohdr, exit)
	b.SetBlock(exit)
	b.Return()

	fn := b.Func()
	li := BuildLoopInfo(fn, BuildDominatorTree(fn))
	loops := li.Preorder()
	require.Len(t, loops, 2)
	require.Equal(t, ohdr, loops[0].Header)
	require.Equal(t, ihdr, loops[1].Header)
	require.Equal(t, loops[0], loops[1].Parent)
	require.Equal(t, 2, loops[1].Depth)
	require.True(t, loops[0].ContainsLoop(loops[1]))
	require.False(t, loops[1].ContainsLoop(loops[0]))
	require.Equal(t, opre, loops[0].Preheader)
	require.Equal(t, olatch, loops[0].Latch)
	require.Equal(t, ipre, loops[1].Preheader)
	require.Equal(t, loops[1], li.LoopFor(ihdr))
	require.Equal(t, loops[0], li.LoopFor(olatch))
}

func TestLiveness_Diamond(t *testing.T) {
	b, v, w := diamond()
	fn := b.Func()
	lv := ComputeLiveness(fn)
	root, left, right, join := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	x := ir.Ra(1)
	require.True(t, lv.Out[root].Has(v))
	require.True(t, lv.Out[root].Has(x))
	require.True(t, lv.In[root].Has(x))
	require.False(t, lv.In[root].Has(v))
	require.True(t, lv.Out[left].Has(v))
	require.False(t, lv.Out[left].Has(w))
	require.True(t, lv.Out[right].Has(w))
	require.False(t, lv.Out[right].Has(v))
	require.Len(t, lv.In[join], 0)
}

func TestPressure_Divergent(t *testing.T) {
	b, v, _ := diamond()
	fn := b.Func()
	bp := NewPressure(fn, nil, 32)
	require.Equal(t, 32, bp.ValueBytes(v))
	require.Equal(t, 0, bp.ValueBytes(ir.Ri(1)))
	require.Equal(t, 2, bp.BytesToRegisters(33))
	require.Equal(t, 0, bp.BytesToRegisters(0))

	/* bb_2 holds v and x live-in, then w */
	require.Equal(t, 64, bp.BlockPressure(fn.Blocks[2]))
	require.Equal(t, 3, bp.MaxPressure())
}

func TestPressure_Uniform(t *testing.T) {
	b, v, _ := diamond()
	fn := b.Func()
	uni := ComputeUniformity(fn, ir.BuildDefUse(fn))
	require.True(t, uni.IsUniform(v))
	bp := NewPressure(fn, uni, 32)
	require.Equal(t, 4, bp.ValueBytes(v))
}

func TestPressure_Loop(t *testing.T) {
	b, inv := counted()
	fn := b.Func()
	li := BuildLoopInfo(fn, BuildDominatorTree(fn))
	bp := NewPressure(fn, nil, 32)
	require.Equal(t, 64, bp.ValueBytes(inv))
	require.Greater(t, bp.LoopPressure(li.Top[0]), 0)
}

func TestUniformity_Divergence(t *testing.T) {
	b := ir.NewBuilder("divergent", 16)
	x := b.Arg(0, ir.I32)
	lid := b.LocalId(0)
	u := b.Binary(ir.IrOpAdd, ir.I32, x, ir.Ri(1))
	d := b.Binary(ir.IrOpAdd, ir.I32, lid, u)
	root, then, join := b.Current(), b.Block(), b.Block()
	b.Branch(b.Compare(ir.IrCmpLt, d, x), then, join)
	b.SetBlock(then)
	b.Jump(join)
	b.SetBlock(join)
	phi := b.Phi(ir.I32)
	phi.Add(root, u)
	phi.Add(then, u)
	b.Return(phi.R)

	fn := b.Func()
	uni := ComputeUniformity(fn, ir.BuildDefUse(fn))
	require.True(t, uni.IsUniform(x))
	require.True(t, uni.IsUniform(u))
	require.False(t, uni.IsUniform(lid))
	require.False(t, uni.IsUniform(d))
	require.False(t, uni.IsUniform(phi.R))
	require.True(t, uni.IsUniform(ir.Ri(3)))
}

func TestAlias_Spaces(t *testing.T) {
	b := ir.NewBuilder("alias", 8)
	g := b.Arg(0, ir.Ptr(ir.SpaceGlobal))
	c := b.Arg(1, ir.Ptr(ir.SpaceConstant))
	h := b.Arg(2, ir.Ptr(ir.SpaceGlobal))
	gen := b.Arg(3, ir.Ptr(ir.SpaceGeneric))
	s1 := b.Alloca(16)
	s2 := b.Alloca(16)
	s1o := b.LEA(s1, ir.Ri(4))
	b.Return()

	fn := b.Func()
	aa := NewAlias(fn, ir.BuildDefUse(fn))
	require.False(t, aa.MayAlias(g, c))
	require.True(t, aa.MayAlias(g, h))
	require.True(t, aa.MayAlias(gen, c))
	require.False(t, aa.MayAlias(s1, s2))
	require.True(t, aa.MayAlias(s1, s1o))
	require.False(t, aa.MayAlias(s2, s1o))
	require.True(t, aa.ReadOnly(c))
	require.False(t, aa.ReadOnly(g))
}
