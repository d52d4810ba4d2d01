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
	"strings"

	"github.com/cloudwego/codesink/internal/analysis"
	"github.com/cloudwego/codesink/ir"
)

// _Grouper builds the candidates of one loop from its preheader.
type _Grouper struct {
	ctx    *Context
	loop   *analysis.Loop
	pre    *ir.BasicBlock
	loads  bool
	owner  map[ir.IrNode]*Candidate
	writes []ir.IrNode
}

func newGrouper(ctx *Context, l *analysis.Loop, loads bool) *_Grouper {
	ret := &_Grouper{
		ctx:   ctx,
		loop:  l,
		pre:   l.Preheader,
		loads: loads,
		owner: make(map[ir.IrNode]*Candidate),
	}
	for _, bb := range l.Blocks {
		for _, v := range bb.Ins {
			if ir.MayWriteMemory(v) {
				ret.writes = append(ret.writes, v)
			}
		}
	}
	return ret
}

// build returns the candidates of the preheader, bottom-up.
func (self *_Grouper) build() []*Candidate {
	var ret []*Candidate
	scan := append([]ir.IrNode(nil), self.pre.Ins...)

	/* walk the preheader bottom-up, users are grouped before their operands */
	for i := len(scan) - 1; i >= 0; i-- {
		v := scan[i]
		if self.owner[v] != nil {
			continue
		}
		if c := self.candidateFor(v); c != nil && self.resolve(c) {
			for _, m := range c.Members {
				self.owner[m] = c
			}
			ret = append(ret, c)
		}
	}
	return ret
}

func (self *_Grouper) candidateFor(v ir.IrNode) *Candidate {
	switch p := v.(type) {
	case *ir.IrPayloadRead:
		if self.ctx.Opts.Enable2dBlockReads {
			return self.payloadGroup(p)
		} else {
			return nil
		}
	case *ir.IrInsertElement:
		if self.ctx.Opts.EnableVectorShuffle {
			if c := self.shuffleGroup(p); c != nil {
				return c
			}
		}
	}
	return self.singleton(v)
}

func (self *_Grouper) singleton(v ir.IrNode) *Candidate {
	if _, ok := ir.Value(v); !ok {
		return nil
	}

	/* must be movable at all */
	sf := Classify(self.ctx.Fn, v, false, true, self.ctx.Oracles.Alias)
	if !sf.Movable {
		return nil
	}

	/* memory reads are gated behind the loads switch and the whole-loop check */
	if ir.MayReadMemory(v) {
		if !self.loads || (sf.AliasConcern && self.hazard(v, addressOf(v))) {
			return nil
		}
		return newCandidate(self.pre, MaybeSink, v)
	}

	/* always-sink kinds */
	if _, input := v.(*ir.IrInput); input || IsPointerCast(v) || sf.ReducesPressure {
		return newCandidate(self.pre, Sink, v)
	} else {
		return newCandidate(self.pre, MaybeSink, v)
	}
}

// addressOf returns the pointer a memory reader reads from, Rz when unknown.
func addressOf(v ir.IrNode) ir.Reg {
	switch p := v.(type) {
	case *ir.IrLoad:
		return p.Mem
	case *ir.IrSample:
		return p.Tex
	default:
		return ir.Rz
	}
}

// hazard reports whether a read of mem issued at v could observe a different
// value once moved into the loop: any may-alias write after v in the
// preheader or anywhere in the loop.
func (self *_Grouper) hazard(v ir.IrNode, mem ir.Reg) bool {
	if mem != ir.Rz && self.ctx.Oracles.Alias.ReadOnly(mem) {
		return false
	}
	writes := self.writes
	for i := self.pre.IndexOf(v) + 1; i < len(self.pre.Ins); i++ {
		if ir.MayWriteMemory(self.pre.Ins[i]) {
			writes = append(writes, self.pre.Ins[i])
		}
	}
	for _, w := range writes {
		if conflicts(self.ctx.Oracles.Alias, w, mem) {
			return true
		}
	}
	return false
}

// conflicts reports whether the memory write w may clobber mem. Prefetches
// never change memory.
func conflicts(aa AliasOracle, w ir.IrNode, mem ir.Reg) bool {
	switch p := w.(type) {
	case *ir.IrPrefetch:
		return false
	case *ir.IrStore:
		return mem == ir.Rz || aa.MayAlias(mem, p.Mem)
	default:
		return true
	}
}

func (self *_Grouper) payloadGroup(read *ir.IrPayloadRead) *Candidate {
	du := self.ctx.Uses
	create, ok := du.Def(read.P).(*ir.IrPayloadCreate)
	if !ok || self.ctx.Fn.BlockOf(create) != self.pre {
		return nil
	}

	/* the payload must be used by its field sets and this read only */
	set := map[ir.IrNode]bool{create: true, read: true}
	for _, u := range du.Users(read.P) {
		if u == ir.IrNode(read) {
			continue
		}
		if p, ok := u.(*ir.IrPayloadSet); !ok || p.P != read.P || self.ctx.Fn.BlockOf(p) != self.pre {
			return nil
		}
		set[u] = true
	}

	/* no write may slip between the read and its new position */
	if self.hazard(read, create.Base) {
		return nil
	}
	return newCandidate(self.pre, Sink, self.inOrder(set)...)
}

func (self *_Grouper) shuffleGroup(last *ir.IrInsertElement) *Candidate {
	du := self.ctx.Uses
	fn := self.ctx.Fn
	set := make(map[ir.IrNode]bool)
	src := ir.Rz
	lanes := make(map[int64]bool)

	/* walk the insert chain backwards */
	for cur := last; cur != nil; {
		set[cur] = true
		ext, ok := du.Def(cur.E).(*ir.IrExtractElement)
		if !ok || fn.BlockOf(ext) != self.pre || !cur.Idx.IsConst() || !ext.Idx.IsConst() {
			return nil
		}
		if len(du.Users(ext.R)) != 1 {
			return nil
		}
		if src == ir.Rz {
			src = ext.V
		} else if src != ext.V {
			return nil
		}
		if lanes[ext.Idx.Imm()] {
			return nil
		}
		lanes[ext.Idx.Imm()] = true
		set[ext] = true

		/* previous link of the chain */
		if cur.V == ir.Ru {
			break
		}
		prev, ok := du.Def(cur.V).(*ir.IrInsertElement)
		if !ok || fn.BlockOf(prev) != self.pre {
			return nil
		}
		if users := du.Users(prev.R); len(users) != 1 || users[0] != ir.IrNode(cur) {
			return nil
		}
		cur = prev
	}

	/* the chain must repack the whole source vector */
	n := fn.TypeOf(src).NumLanes()
	if len(lanes) != n {
		return nil
	}
	for i := 0; i < n; i++ {
		if !lanes[int64(i)] {
			return nil
		}
	}
	return newCandidate(self.pre, MaybeSink, self.inOrder(set)...)
}

func (self *_Grouper) inOrder(set map[ir.IrNode]bool) []ir.IrNode {
	ret := make([]ir.IrNode, 0, len(set))
	for _, v := range self.pre.Ins {
		if set[v] {
			ret = append(ret, v)
		}
	}
	return ret
}

// resolve computes the target of c: the nearest common dominator of every
// use outside the group, uses by other candidates counting at their target.
// The target is lifted out of nested loops, and every use must lie inside
// the loop.
func (self *_Grouper) resolve(c *Candidate) bool {
	fn := self.ctx.Fn
	dt := self.ctx.Dom
	tgt := (*ir.BasicBlock)(nil)

	/* every external use */
	for _, r := range c.Values() {
		for _, u := range self.ctx.Uses.Uses(r) {
			if c.Contains(u.Node) {
				continue
			}
			ub := u.Block(fn)
			if oc := self.owner[u.Node]; oc != nil {
				ub = oc.Target
			}
			if !self.loop.Contains(ub) {
				return false
			}
			if tgt = dt.NearestCommonDominator(tgt, ub); tgt == nil {
				return false
			}
		}
	}

	/* nothing inside the loop needs it */
	if tgt == nil {
		return false
	}

	/* stay out of nested loops */
	for tgt != nil && self.ctx.Loops.LoopFor(tgt) != self.loop {
		tgt = dt.Idom(tgt)
	}
	if tgt == nil || !self.loop.Contains(tgt) {
		return false
	}
	c.Target = tgt
	return true
}

// externalValues returns the values of c used outside of the group.
func (self *_Grouper) externalValues(c *Candidate) []ir.Reg {
	var ret []ir.Reg
	for _, r := range c.Values() {
		for _, u := range self.ctx.Uses.Users(r) {
			if !c.Contains(u) {
				ret = append(ret, r)
				break
			}
		}
	}
	return ret
}

// Mass is the register footprint the candidates would take out of the
// loop-carried live set.
func (self *_Grouper) Mass(cands []*Candidate) int {
	nb := 0
	for _, c := range cands {
		for _, r := range self.externalValues(c) {
			nb += self.ctx.Oracles.Pressure.ValueBytes(r)
		}
	}
	return self.ctx.Oracles.Pressure.BytesToRegisters(nb)
}

// newOperands returns the operands c would newly pull into the loop: values
// defined outside of any candidate that are not already live into it.
func (self *_Grouper) newOperands(c *Candidate, livein analysis.RegSet) []ir.Reg {
	seen := make(map[ir.Reg]bool)
	var ret []ir.Reg
	for _, m := range c.Members {
		for _, r := range ir.Operands(m) {
			if d := self.ctx.Uses.Def(r); d != nil && self.owner[d] != nil {
				continue
			}
			if !seen[r] && !livein.Has(r) {
				seen[r] = true
				ret = append(ret, r)
			}
		}
	}
	sort.Slice(ret, func(i int, j int) bool { return ret[i] < ret[j] })
	return ret
}

func regkey(rr []ir.Reg) string {
	buf := make([]string, 0, len(rr))
	for _, r := range rr {
		buf = append(buf, r.String())
	}
	return strings.Join(buf, ",")
}

// refine promotes the profitable MaybeSink candidates to Sink and drops the
// rest, along with every candidate that feeds a dropped one.
func (self *_Grouper) refine(cands []*Candidate, livein analysis.RegSet) []*Candidate {
	var keys []string
	groups := make(map[string][]*Candidate)
	operands := make(map[string][]ir.Reg)

	/* group the tentative candidates by the operands they need */
	for _, c := range cands {
		if c.Worthiness != MaybeSink {
			continue
		}
		ops := self.newOperands(c, livein)
		key := regkey(ops)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
			operands[key] = ops
		}
		groups[key] = append(groups[key], c)
	}

	/* decide every group, loads accepted on the way anchor new address chains */
	done := make(map[string]bool, len(keys))
	for changed := true; changed; {
		changed = false
		chain := self.loadChain(cands)
		for _, key := range keys {
			if !done[key] && self.profitable(groups[key], operands[key], chain) {
				for _, c := range groups[key] {
					c.Worthiness = Sink
				}
				done[key] = true
				changed = true
			}
		}
	}

	/* whatever is left is not worth it */
	for _, key := range keys {
		if !done[key] {
			for _, c := range groups[key] {
				c.Worthiness = Unknown
			}
		}
	}

	/* an accepted candidate must not feed a rejected one */
	for changed := true; changed; {
		changed = false
		for _, c := range cands {
			if c.Worthiness == Sink && self.feedsRejected(c) {
				c.Worthiness = Unknown
				changed = true
			}
		}
	}

	/* keep the accepted ones, bottom-up */
	ret := make([]*Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Worthiness == Sink {
			ret = append(ret, c)
		} else {
			for _, m := range c.Members {
				delete(self.owner, m)
			}
		}
	}
	return ret
}

func (self *_Grouper) feedsRejected(c *Candidate) bool {
	for _, r := range c.Values() {
		for _, u := range self.ctx.Uses.Users(r) {
			if oc := self.owner[u]; oc != nil && oc != c && oc.Worthiness != Sink {
				return true
			}
		}
	}
	return false
}

func (self *_Grouper) profitable(group []*Candidate, ops []ir.Reg, chain map[*Candidate]bool) bool {
	po := self.ctx.Oracles.Pressure

	/* rule 1: many uniform values for few operands */
	if len(group) >= len(ops)+self.ctx.Opts.LoopSinkMinSaveUniform && self.allUniform(group, ops) {
		return true
	}

	/* rule 2: address computations of sunk loads */
	if self.ctx.Opts.EnableLoadChain {
		all := true
		for _, c := range group {
			all = all && chain[c]
		}
		if all {
			return true
		}
	}

	/* rule 3: net savings */
	saved := 0
	for _, c := range group {
		for _, r := range self.externalValues(c) {
			saved += po.ValueBytes(r)
		}
	}
	for _, r := range ops {
		saved -= po.ValueBytes(r)
	}
	return saved >= self.ctx.Opts.LoopSinkMinSave*4*self.ctx.Fn.Width
}

func (self *_Grouper) allUniform(group []*Candidate, ops []ir.Reg) bool {
	uni := self.ctx.Oracles.Uniform
	for _, r := range ops {
		if !uni.IsUniform(r) {
			return false
		}
	}
	for _, c := range group {
		for _, r := range c.Values() {
			if !uni.IsUniform(r) {
				return false
			}
		}
	}
	return true
}

// loadChain returns the candidates that only compute addresses for loads
// that already sink, or for loads inside the loop when prepopulated.
func (self *_Grouper) loadChain(cands []*Candidate) map[*Candidate]bool {
	ret := make(map[*Candidate]bool)
	for changed := true; changed; {
		changed = false
		for _, c := range cands {
			if !ret[c] && c.Worthiness == MaybeSink && isAddressChain(c) && self.feedsLoadsOnly(c, ret) {
				ret[c] = true
				changed = true
			}
		}
	}
	return ret
}

func isAddressChain(c *Candidate) bool {
	for _, m := range c.Members {
		switch m.(type) {
		case *ir.IrLEA, *ir.IrBinaryExpr, *ir.IrCast:
		default:
			return false
		}
	}
	return true
}

func (self *_Grouper) feedsLoadsOnly(c *Candidate, chain map[*Candidate]bool) bool {
	for _, r := range c.Values() {
		for _, u := range self.ctx.Uses.Users(r) {
			if c.Contains(u) {
				continue
			}
			if oc := self.owner[u]; oc != nil {
				if !(chain[oc] || (oc.Worthiness == Sink && oc.IsLoad() && usesAsAddress(u, r))) {
					return false
				}
				continue
			}
			if !self.ctx.Opts.PrepopulateLoadChain || !usesAsAddress(u, r) || !self.loop.Contains(self.ctx.Fn.BlockOf(u)) {
				return false
			}
		}
	}
	return true
}

// usesAsAddress reports whether v reads memory through r.
func usesAsAddress(v ir.IrNode, r ir.Reg) bool {
	switch p := v.(type) {
	case *ir.IrLoad:
		return p.Mem == r
	case *ir.IrPayloadCreate:
		return p.Base == r
	case *ir.IrSample:
		return p.Tex == r
	default:
		return false
	}
}
