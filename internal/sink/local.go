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
	"sort"

	"github.com/cloudwego/codesink/ir"
)

// LocalScheduler places candidates right before their first use within a
// block. Memory reading candidates are then hoisted back a few instructions
// to hide their latency.
type LocalScheduler struct {
	ctx        *Context
	Aggressive bool
}

func NewLocalScheduler(ctx *Context, aggressive bool) *LocalScheduler {
	return &LocalScheduler{
		ctx:        ctx,
		Aggressive: aggressive,
	}
}

// Schedule places every candidate of owner that lives in bb and returns the
// number of instructions moved. Later candidates go first, so a candidate
// feeding another one ends up right before it.
func (self *LocalScheduler) Schedule(bb *ir.BasicBlock, owner map[ir.IrNode]*Candidate) int {
	var cands []*Candidate
	seen := make(map[*Candidate]bool)

	/* candidates with all members in this block */
	for _, v := range bb.Ins {
		if c := owner[v]; c != nil && !seen[c] {
			seen[c] = true
			if self.allIn(bb, c) {
				cands = append(cands, c)
			}
		}
	}

	/* bottom-up by their last member */
	sort.SliceStable(cands, func(i int, j int) bool {
		return bb.IndexOf(cands[i].Last()) > bb.IndexOf(cands[j].Last())
	})

	/* place them one by one */
	n := 0
	for _, c := range cands {
		n += self.place(bb, c)
	}
	return n
}

func (self *LocalScheduler) allIn(bb *ir.BasicBlock, c *Candidate) bool {
	for _, m := range c.Members {
		if self.ctx.Fn.BlockOf(m) != bb {
			return false
		}
	}
	return true
}

// body returns the instructions of bb followed by its terminator.
func body(bb *ir.BasicBlock) []ir.IrNode {
	ret := make([]ir.IrNode, 0, len(bb.Ins)+1)
	ret = append(ret, bb.Ins...)
	if bb.Term != nil {
		ret = append(ret, bb.Term)
	}
	return ret
}

func (self *LocalScheduler) firstUse(ins []ir.IrNode, c *Candidate) int {
	vals := make(map[ir.Reg]bool)
	for _, r := range c.Values() {
		vals[r] = true
	}
	for i, v := range ins {
		if c.Contains(v) {
			continue
		}
		for _, r := range ir.Operands(v) {
			if vals[r] {
				return i
			}
		}
	}
	return -1
}

func isDPAS(v ir.IrNode) bool {
	_, ok := v.(*ir.IrMatrixMulAdd)
	return ok
}

// shareOperand reports whether two adjacent matrix ops depend on each other
// or read a common value.
func shareOperand(a ir.IrNode, b ir.IrNode) bool {
	ops := make(map[ir.Reg]bool)
	for _, r := range ir.Operands(a) {
		ops[r] = true
	}
	if r, ok := ir.Value(a); ok {
		ops[r] = true
	}
	for _, r := range ir.Operands(b) {
		if ops[r] {
			return true
		}
	}
	return false
}

func (self *LocalScheduler) place(bb *ir.BasicBlock, c *Candidate) int {
	fn := self.ctx.Fn
	ins := body(bb)
	pos := make(map[ir.IrNode]int, len(ins))
	for i, v := range ins {
		pos[v] = i
	}

	/* the first use must come after the whole group */
	at := self.firstUse(ins, c)
	if at < 0 || at < pos[c.Last()] {
		return 0
	}

	/* never split a matrix-op macro unless allowed to */
	if isDPAS(ins[at]) && at > 0 && isDPAS(ins[at-1]) && !c.Contains(ins[at-1]) {
		if self.ctx.Opts.SkipDPASMacro {
			return 0
		}
		if self.ctx.Opts.AvoidSplittingDPAS && !(self.Aggressive && !shareOperand(ins[at-1], ins[at])) {
			for at > 0 && isDPAS(ins[at-1]) && !c.Contains(ins[at-1]) {
				at--
			}
		}
	}

	/* memory readers never cross a conflicting write in either direction */
	if c.IsLoad() {
		rd := self.firstReader(pos, c)
		for i := pos[c.Head()] + 1; i < at; i++ {
			if c.Contains(ins[i]) || !ir.MayWriteMemory(ins[i]) || !self.conflicts(ins[i], c) {
				continue
			}

			/* a write in between the members is only passed by non-readers */
			if i < pos[c.Last()] {
				if i > rd {
					return 0
				}
				continue
			}
			at = i
			break
		}

		/* then give them a head start */
		at = self.hoist(ins, at, c)
	}

	/* already in place */
	if at < len(ins) && self.contiguousBefore(bb, c, ins[at]) {
		return 0
	}

	/* move the members in order */
	for _, m := range c.Members {
		fn.MoveBefore(m, bb, ins[at])
	}
	return len(c.Members)
}

// hoist walks back from at by the configured latency distance, stopping at
// the block top, the group itself, operand definitions and memory writes.
func (self *LocalScheduler) hoist(ins []ir.IrNode, at int, c *Candidate) int {
	dist := self.ctx.Opts.LoadSchedulingInstr
	if c.IsBlockRead() {
		dist = self.ctx.Opts.BlockReadSchedulingInstr
	}
	ops := make(map[ir.Reg]bool)
	for _, m := range c.Members {
		for _, r := range ir.Operands(m) {
			ops[r] = true
		}
	}
	for k := 0; k < dist && at > 0; k++ {
		p := ins[at-1]
		if c.Contains(p) {
			break
		}
		if r, ok := ir.Value(p); ok && ops[r] {
			break
		}
		if ir.MayWriteMemory(p) {
			if _, prefetch := p.(*ir.IrPrefetch); !prefetch {
				break
			}
		}
		at--
	}
	return at
}

// firstReader returns the position of the first member that reads memory.
func (self *LocalScheduler) firstReader(pos map[ir.IrNode]int, c *Candidate) int {
	for _, m := range c.Members {
		if ir.MayReadMemory(m) {
			return pos[m]
		}
	}
	return pos[c.Last()]
}

func (self *LocalScheduler) conflicts(w ir.IrNode, c *Candidate) bool {
	for _, m := range c.Members {
		if !ir.MayReadMemory(m) {
			continue
		}
		mem := addressOf(m)
		if p, ok := m.(*ir.IrPayloadRead); ok {
			if pc, ok := self.ctx.Uses.Def(p.P).(*ir.IrPayloadCreate); ok {
				mem = pc.Base
			}
		}
		if conflicts(self.ctx.Oracles.Alias, w, mem) {
			return true
		}
	}
	return false
}

// contiguousBefore reports whether the members already sit back to back right
// before v.
func (self *LocalScheduler) contiguousBefore(bb *ir.BasicBlock, c *Candidate, v ir.IrNode) bool {
	i := len(bb.Ins)
	if v != ir.IrNode(bb.Term) {
		i = bb.IndexOf(v)
	}
	n := len(c.Members)
	if i < n {
		return false
	}
	for k, m := range c.Members {
		if bb.Ins[i-n+k] != m {
			return false
		}
	}
	return true
}
