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
	"github.com/cloudwego/codesink/internal/analysis"
	"github.com/cloudwego/codesink/ir"
)

// CodeSinking moves instructions down the dominator tree, toward their uses,
// whenever that does not grow the live-out footprint of the source block by
// more than the configured margin.
type CodeSinking struct {
	ctx      *Context
	res      *Resolver
	local    map[ir.IrNode]bool
	localBBs []*ir.BasicBlock
}

func NewCodeSinking(ctx *Context) *CodeSinking {
	return &CodeSinking{
		ctx:   ctx,
		res:   NewResolver(ctx),
		local: make(map[ir.IrNode]bool),
	}
}

// Apply runs the pass to a fixed point and reports whether anything moved.
func (self *CodeSinking) Apply() bool {
	fn := self.ctx.Fn
	if self.ctx.Opts.DisableCodeSinking || fn.NumInstrs() < self.ctx.Opts.CodeSinkingMinSize {
		self.ctx.Trace.Printf("sink: skipping %s (%d instructions)", fn.Name, fn.NumInstrs())
		return false
	}

	/* sink until nothing changes */
	changed := false
	for moved := true; moved; {
		moved = false
		analysis.NewBasicBlockIter(self.ctx.Dom).ForEach(func(bb *ir.BasicBlock) {
			moved = self.processBlock(bb) || moved
		})
		changed = changed || moved
	}

	/* move the deferred instructions next to their uses */
	for _, bb := range self.localBBs {
		if n := self.localSink(bb); n != 0 {
			changed = true
			self.ctx.Stats.LocalMoved += n
		}
	}

	/* clear the deferred set */
	self.localBBs = nil
	self.local = make(map[ir.IrNode]bool)
	return changed
}

func (self *CodeSinking) defer_(bb *ir.BasicBlock, v ir.IrNode) {
	self.local[v] = true
	for _, p := range self.localBBs {
		if p == bb {
			return
		}
	}
	self.localBBs = append(self.localBBs, bb)
}

// LiveOutBytes estimates the live-out register footprint of bb: the total
// size of the values it defines that are used in another block.
func (self *CodeSinking) LiveOutBytes(bb *ir.BasicBlock) int {
	nb := 0
	for _, v := range bb.Ins {
		if r, ok := ir.Value(v); ok && self.ctx.UsedOutside(v, bb) {
			nb += self.ctx.Fn.TypeOf(r).Size()
		}
	}
	return nb
}

func (self *CodeSinking) onlyDebugUses(r ir.Reg) bool {
	for _, u := range self.ctx.Uses.Users(r) {
		if _, ok := u.(*ir.IrDebugValue); !ok {
			return false
		}
	}
	return true
}

func (self *CodeSinking) processBlock(bb *ir.BasicBlock) bool {
	if len(bb.Ins) == 0 {
		return false
	}

	/* live-out pressure before sinking */
	fn := self.ctx.Fn
	p0 := self.LiveOutBytes(bb)

	/* the scan order is fixed before anything moves */
	var moved []ir.IrNode
	var anchors []ir.IrNode
	var stores []ir.IrNode
	var gradients int
	scan := append([]ir.IrNode(nil), bb.Ins...)
	prev := ir.IrNode(bb.Term)

	/* walk the block bottom-up */
	for i := len(scan) - 1; i >= 0; i-- {
		v := scan[i]
		r, def := ir.Value(v)

		/* barriers and instructions without meaningful uses */
		if ir.MayWriteMemory(v) {
			stores = append(stores, v)
			prev = v
			continue
		}
		if _, dbg := v.(*ir.IrDebugValue); dbg || !def || self.onlyDebugUses(r) {
			prev = v
			continue
		}

		/* try to sink it */
		anchor := prev
		prev = v
		if self.sinkInstruction(bb, v, len(stores) != 0) {
			moved = append(moved, v)
			anchors = append(anchors, anchor)
			if ComputesGradient(v) {
				gradients++
			}
		}
	}

	/* nothing moved */
	if len(moved) == 0 {
		return false
	}

	/* re-measure, undo everything when the live-out footprint grew */
	if p1 := self.LiveOutBytes(bb); p1 > p0+self.ctx.Opts.PressureMargin {
		for i, v := range moved {
			fn.MoveBefore(v, bb, anchors[i])
		}
		self.ctx.Stats.BlocksRolledBack++
		self.ctx.Trace.Printf("sink: bb_%d rolled back, live-out %d -> %d bytes", bb.Id, p0, p1)
		return false
	}

	/* keep the changes */
	self.ctx.Stats.Moved += len(moved)
	self.ctx.Stats.GradientSunk += gradients
	return true
}

func (self *CodeSinking) sinkInstruction(bb *ir.BasicBlock, v ir.IrNode, barriers bool) bool {
	fn := self.ctx.Fn
	sf := Classify(fn, v, barriers, self.ctx.Opts.EnableGeneralSinking, self.ctx.Oracles.Alias)
	if !sf.Movable {
		return false
	}

	/* find the block to sink to */
	var tgt *ir.BasicBlock
	var uses []ir.IrNode
	if !sf.AliasConcern {
		pl, ok := self.res.ResolveLoopAware(v)
		if !ok {
			if sf.ReducesPressure {
				self.defer_(bb, v)
			}
			return false
		}

		/* avoid motion that keeps the execution frequency but may extend live ranges */
		if sf.ReducesPressure || pl.OuterLoop || !self.ctx.PostDom.PostDominates(pl.Target, bb) {
			tgt, uses = pl.Target, pl.Uses
		}
	} else {
		tgt, uses = self.immediateSuccessor(bb, v)
	}

	/* no suitable block */
	if tgt == nil {
		return false
	}

	/* place it */
	switch {
	case !sf.ReducesPressure || sf.AliasConcern:
		fn.MoveAfter(v, tgt, nil)
	case len(uses) == 0:
		fn.MoveBefore(v, tgt, nil)
	case len(uses) == 1 && !isPhi(uses[0]):
		fn.MoveBefore(v, tgt, uses[0])
	default:
		fn.MoveAfter(v, tgt, nil)
		self.defer_(tgt, v)
	}
	self.ctx.Trace.Printf("sink: %s  bb_%d -> bb_%d", v, bb.Id, tgt.Id)
	return true
}

// immediateSuccessor picks the sink target of an alias-concerned instruction:
// a successor that is only entered from bb, lies in the same loop and
// dominates every use.
func (self *CodeSinking) immediateSuccessor(bb *ir.BasicBlock, v ir.IrNode) (*ir.BasicBlock, []ir.IrNode) {
	loop := self.ctx.Loops.LoopFor(bb)
	for _, s := range bb.Succ() {
		if s == bb || len(s.Pred) != 1 || s.Pred[0] != bb {
			continue
		}
		if self.ctx.Loops.LoopFor(s) != loop {
			continue
		}
		if self.res.AllUsesDominatedBy(v, s) {
			return s, self.res.usesIn(v, s)
		}
	}
	return nil, nil
}

// localSink moves every deferred instruction of bb right before its first
// use in bb.
func (self *CodeSinking) localSink(bb *ir.BasicBlock) int {
	n := 0
	fn := self.ctx.Fn
	scan := append([]ir.IrNode(nil), bb.Ins...)
	if bb.Term != nil {
		scan = append(scan, bb.Term)
	}

	/* first use in program order wins */
	for _, use := range scan {
		for _, r := range ir.Operands(use) {
			def := self.ctx.Uses.Def(r)
			if def == nil || !self.local[def] || fn.BlockOf(def) != bb {
				continue
			}
			if nextOf(bb, def) != use {
				fn.MoveBefore(def, bb, use)
				n++
			}
			delete(self.local, def)
		}
	}
	return n
}

// nextOf returns the instruction right after v, the terminator for the last
// one.
func nextOf(bb *ir.BasicBlock, v ir.IrNode) ir.IrNode {
	if i := bb.IndexOf(v); i >= 0 && i+1 < len(bb.Ins) {
		return bb.Ins[i+1]
	} else {
		return bb.Term
	}
}

func isPhi(v ir.IrNode) bool {
	_, ok := v.(*ir.IrPhi)
	return ok
}
