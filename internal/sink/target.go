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
	"github.com/cloudwego/codesink/ir"
)

// Resolver finds the lowest legal block an instruction may be moved to.
type Resolver struct {
	ctx *Context
}

func NewResolver(ctx *Context) *Resolver {
	return &Resolver{ctx: ctx}
}

// Resolve returns the nearest common dominator of all use blocks of v. Phi
// uses count in their incoming block. It fails when a non-phi use sits in the
// defining block, when no common dominator exists, or when the result is the
// defining block itself.
func (self *Resolver) Resolve(v ir.IrNode) (*ir.BasicBlock, bool) {
	tgt, ok := self.lca(v)
	if !ok || tgt == self.ctx.Fn.BlockOf(v) {
		return nil, false
	} else {
		return tgt, true
	}
}

func (self *Resolver) lca(v ir.IrNode) (*ir.BasicBlock, bool) {
	r, ok := ir.Value(v)
	if !ok {
		return nil, false
	}

	/* walk every use */
	cur := self.ctx.Fn.BlockOf(v)
	tgt := (*ir.BasicBlock)(nil)
	uses := self.ctx.Uses.Uses(r)
	for _, u := range uses {
		ub := u.Block(self.ctx.Fn)
		if !u.IsPhi() && ub == cur {
			return nil, false
		}
		if tgt = self.ctx.Dom.NearestCommonDominator(tgt, ub); tgt == nil {
			return nil, false
		}
	}

	/* must not escape the definition */
	if tgt == nil || !self.ctx.Dom.Dominates(cur, tgt) {
		return nil, false
	}
	return tgt, true
}

// Placement is the outcome of a loop-aware resolution.
type Placement struct {
	Target    *ir.BasicBlock
	Uses      []ir.IrNode // users of the value placed in Target, program order
	OuterLoop bool        // Target lies in a different loop than the definition
}

// ResolveLoopAware is Resolve that never moves an instruction into a loop
// that does not contain its current loop. The target walks up the dominator
// tree until it is outside any such loop, shader inputs excepted.
func (self *Resolver) ResolveLoopAware(v ir.IrNode) (Placement, bool) {
	tgt, ok := self.lca(v)
	if !ok {
		return Placement{}, false
	}

	/* walk up until a legal loop */
	cur := self.ctx.Fn.BlockOf(v)
	curLoop := self.ctx.Loops.LoopFor(cur)
	for tgt != nil && tgt != cur {
		tgtLoop := self.ctx.Loops.LoopFor(tgt)
		if _, input := v.(*ir.IrInput); input || tgtLoop == nil || (curLoop != nil && tgtLoop.ContainsLoop(curLoop)) {
			return Placement{
				Target:    tgt,
				Uses:      self.usesIn(v, tgt),
				OuterLoop: tgtLoop != curLoop,
			}, true
		}
		tgt = self.ctx.Dom.Idom(tgt)
	}
	return Placement{}, false
}

// usesIn returns the users of v held by bb, in program order.
func (self *Resolver) usesIn(v ir.IrNode, bb *ir.BasicBlock) []ir.IrNode {
	r, _ := ir.Value(v)
	set := make(map[ir.IrNode]bool)
	for _, u := range self.ctx.Uses.Users(r) {
		if self.ctx.Fn.BlockOf(u) == bb {
			set[u] = true
		}
	}
	ret := make([]ir.IrNode, 0, len(set))
	for _, p := range bb.Phi {
		if set[p] {
			ret = append(ret, p)
		}
	}
	for _, p := range bb.Ins {
		if set[p] {
			ret = append(ret, p)
		}
	}
	if bb.Term != nil && set[bb.Term] {
		ret = append(ret, bb.Term)
	}
	return ret
}

// AllUsesDominatedBy reports whether bb dominates every use block of v.
func (self *Resolver) AllUsesDominatedBy(v ir.IrNode, bb *ir.BasicBlock) bool {
	r, ok := ir.Value(v)
	if !ok {
		return false
	}
	for _, u := range self.ctx.Uses.Uses(r) {
		if !self.ctx.Dom.Dominates(bb, u.Block(self.ctx.Fn)) {
			return false
		}
	}
	return true
}
