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

type Mode uint8

const (
	NoSink Mode = iota
	FullSink
	SinkWhileRegpressureIsHigh
)

func (self Mode) String() string {
	switch self {
	case NoSink:
		return "NoSink"
	case FullSink:
		return "FullSink"
	case SinkWhileRegpressureIsHigh:
		return "SinkWhileRegpressureIsHigh"
	default:
		return "???"
	}
}

// LoopSinking moves loop invariant computations from preheaders back into
// the loop bodies when the loop runs out of registers.
type LoopSinking struct {
	ctx   *Context
	local *LocalScheduler
}

func NewLoopSinking(ctx *Context) *LoopSinking {
	return &LoopSinking{
		ctx:   ctx,
		local: NewLocalScheduler(ctx, false),
	}
}

type _ModeRecord struct {
	Loop      int
	Pressure  int
	Threshold int
	Target    int
	Mass      int
}

// Apply processes every loop, outer loops first, and reports whether any of
// them was committed.
func (self *LoopSinking) Apply() bool {
	fn := self.ctx.Fn
	if self.ctx.Opts.DisableLoopSinking || fn.NumInstrs() < self.ctx.Opts.LoopSinkingMinSize {
		self.ctx.Trace.Printf("loopsink: skipping %s (%d instructions)", fn.Name, fn.NumInstrs())
		return false
	}
	changed := false
	for _, l := range self.ctx.Loops.Preorder() {
		changed = self.processLoop(l) || changed
	}
	return changed
}

func (self *LoopSinking) pressure(l *analysis.Loop) int {
	return self.ctx.Oracles.Pressure.LoopPressure(l) + self.ctx.Opts.ExternalPressure
}

// selectMode compares the loop pressure against the sinking threshold and
// checks the preheader holds enough sinkable values to close the gap.
func (self *LoopSinking) selectMode(l *analysis.Loop, p0 int) Mode {
	o := &self.ctx.Opts
	if o.ForceLoopSinking {
		return FullSink
	}

	/* 2D block reads are sunk as far as possible */
	if o.Enable2dBlockReads && o.Force2dBlockReadsMaxSink {
		for _, v := range l.Preheader.Ins {
			if _, ok := v.(*ir.IrPayloadRead); ok {
				return FullSink
			}
		}
	}

	/* not under pressure */
	if p0 <= o.SinkThreshold() {
		return NoSink
	}

	/* enough mass to make a difference */
	g := newGrouper(self.ctx, l, o.ForceLoadsLoopSink || o.EnableLoadsLoopSink)
	mass := g.Mass(g.build())
	excess := p0 - o.TargetPressure()
	self.ctx.Trace.Dump("loopsink: mode inputs", _ModeRecord{
		Loop:      l.Header.Id,
		Pressure:  p0,
		Threshold: o.SinkThreshold(),
		Target:    o.TargetPressure(),
		Mass:      mass,
	})
	if mass*100 < excess*o.LoopSinkMinMassPercent {
		return NoSink
	} else {
		return SinkWhileRegpressureIsHigh
	}
}

func (self *LoopSinking) processLoop(l *analysis.Loop) bool {
	if l.Preheader == nil || l.Latch == nil {
		self.ctx.Trace.Printf("loopsink: %s is not normalized", l)
		return false
	}

	/* pick the mode */
	p0 := self.pressure(l)
	mode := self.selectMode(l, p0)
	self.ctx.Trace.Printf("loopsink: %s pressure=%d mode=%s", l, p0, mode)
	if mode == NoSink {
		return false
	}

	/* snapshot every block the loop may touch */
	snap := self.ctx.Fn.Snapshot(append([]*ir.BasicBlock{l.Preheader}, l.Blocks...)...)
	owner := make(map[ir.IrNode]*Candidate)
	var applied []*Candidate

	/* sink rounds */
	loads := self.ctx.Opts.ForceLoadsLoopSink
	for it := 0; it < self.ctx.Opts.LoopSinkMaxIterations; it++ {
		n := self.round(l, mode, loads, owner, &applied)
		if mode == SinkWhileRegpressureIsHigh && self.pressure(l) < self.ctx.Opts.TargetPressure() {
			break
		}
		if n == 0 {
			if loads || !self.ctx.Opts.EnableLoadsLoopSink {
				break
			}
			loads = true
		}
	}

	/* move loads already in the loop closer to their uses */
	if self.ctx.Opts.EnableLoadsRescheduling {
		self.reschedule(l, owner)
	}

	/* last resort: split macros where it is safe */
	if self.ctx.Opts.LateRescheduling && self.pressure(l) >= self.ctx.Opts.TargetPressure() {
		aggressive := NewLocalScheduler(self.ctx, true)
		for _, bb := range l.Blocks {
			self.ctx.Stats.LocalMoved += aggressive.Schedule(bb, owner)
		}
	}

	/* nothing happened at all */
	if snap.Unchanged() {
		return false
	}

	/* keep it or revert everything */
	p1 := self.pressure(l)
	if self.shouldRollback(p0, p1) {
		snap.Restore()
		self.ctx.Stats.LoopsRolledBack++
		self.ctx.Trace.Printf("loopsink: %s rolled back, pressure %d -> %d", l, p0, p1)
		return false
	}

	/* commit */
	for _, c := range applied {
		for _, m := range c.Members {
			self.ctx.Fn.Tag(m, "sink")
		}
		self.ctx.Stats.LoopSunk += len(c.Members)
	}
	self.ctx.Stats.LoopsSunk++
	self.ctx.Trace.Printf("loopsink: %s committed, pressure %d -> %d", l, p0, p1)
	return true
}

func (self *LoopSinking) shouldRollback(p0 int, p1 int) bool {
	o := &self.ctx.Opts
	switch {
	case o.ForceRollback:
		return true
	case o.DisableRollback:
		return false
	case p1 >= p0:
		return true
	default:
		return p1 > o.RollbackThreshold() && o.CanIncreaseBudget
	}
}

// round builds, refines and applies one set of candidates. It returns the
// number of candidates applied.
func (self *LoopSinking) round(l *analysis.Loop, mode Mode, loads bool, owner map[ir.IrNode]*Candidate, applied *[]*Candidate) int {
	g := newGrouper(self.ctx, l, loads)
	cands := g.build()
	if len(cands) == 0 {
		return 0
	}

	/* keep the profitable ones */
	lv := analysis.ComputeLiveness(self.ctx.Fn)
	cands = g.refine(cands, lv.In[l.Header])
	if self.ctx.Trace.Enabled() {
		for _, c := range cands {
			self.ctx.Trace.Printf("loopsink: candidate %s", c)
		}
	}

	/* apply bottom-up, so the preheader order is kept at the targets */
	n := 0
	cur := self.pressure(l)
	touched := make(map[*ir.BasicBlock]bool)
	for _, c := range cands {
		if mode == SinkWhileRegpressureIsHigh && cur < self.ctx.Opts.TargetPressure() {
			break
		}
		if !self.stillValid(c) {
			continue
		}
		c.Apply(self.ctx.Fn)

		/* a move that does not help is taken back right away */
		if mode == SinkWhileRegpressureIsHigh {
			if p := self.pressure(l); p > cur {
				c.Undo(self.ctx.Fn)
				continue
			} else {
				cur = p
			}
		}
		for _, m := range c.Members {
			owner[m] = c
		}
		*applied = append(*applied, c)
		touched[c.Target] = true
		n++
	}

	/* then bring them next to their uses */
	for _, bb := range l.Blocks {
		if touched[bb] {
			self.ctx.Stats.LocalMoved += self.local.Schedule(bb, owner)
		}
	}
	return n
}

// stillValid checks that the target of c dominates every use it has right
// now. Targets are computed before anything moves, a use left behind by an
// undone group is no longer covered.
func (self *LoopSinking) stillValid(c *Candidate) bool {
	for _, r := range c.Values() {
		for _, u := range self.ctx.Uses.Uses(r) {
			if !c.Contains(u.Node) && !self.ctx.Dom.Dominates(c.Target, u.Block(self.ctx.Fn)) {
				return false
			}
		}
	}
	return true
}

// reschedule treats load sequences already inside the loop as intra-loop
// candidates and moves them next to their first use.
func (self *LoopSinking) reschedule(l *analysis.Loop, owner map[ir.IrNode]*Candidate) {
	for _, bb := range l.Blocks {
		if self.ctx.Loops.LoopFor(bb) != l {
			continue
		}
		local := make(map[ir.IrNode]*Candidate)
		for k, v := range owner {
			local[k] = v
		}
		for _, v := range append([]ir.IrNode(nil), bb.Ins...) {
			if local[v] != nil {
				continue
			}
			if c := self.intraCandidate(bb, v, local); c != nil {
				for _, m := range c.Members {
					local[m] = c
				}
			}
		}
		self.ctx.Stats.LocalMoved += self.local.Schedule(bb, local)
	}
}

func (self *LoopSinking) intraCandidate(bb *ir.BasicBlock, v ir.IrNode, taken map[ir.IrNode]*Candidate) *Candidate {
	fn := self.ctx.Fn
	du := self.ctx.Uses
	switch p := v.(type) {
	case *ir.IrLoad:
		if p.Volatile {
			return nil
		}
		members := []ir.IrNode{v}

		/* take a single-use address computation along */
		if self.ctx.Opts.CoarserRescheduling {
			if lea, ok := du.Def(p.Mem).(*ir.IrLEA); ok && taken[lea] == nil && fn.BlockOf(lea) == bb && len(du.Users(lea.R)) == 1 {
				members = []ir.IrNode{lea, v}
			}
		}
		return newCandidate(bb, IntraLoopSink, members...)
	case *ir.IrPayloadRead:
		create, ok := du.Def(p.P).(*ir.IrPayloadCreate)
		if !ok || fn.BlockOf(create) != bb || taken[create] != nil {
			return nil
		}
		set := map[ir.IrNode]bool{create: true, v: true}
		for _, u := range du.Users(p.P) {
			if u == v {
				continue
			}
			if s, ok := u.(*ir.IrPayloadSet); !ok || fn.BlockOf(s) != bb || taken[s] != nil {
				return nil
			}
			set[u] = true
		}
		members := make([]ir.IrNode, 0, len(set))
		for _, m := range bb.Ins {
			if set[m] {
				members = append(members, m)
			}
		}
		return newCandidate(bb, IntraLoopSink, members...)
	default:
		return nil
	}
}
