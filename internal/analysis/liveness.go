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
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/codesink/ir"
	"golang.org/x/exp/maps"
)

type RegSet map[ir.Reg]struct{}

func regset(rr ...ir.Reg) (rs RegSet) {
	rs = make(RegSet, len(rr))
	for _, r := range rr {
		rs.Add(r)
	}
	return
}

func (self RegSet) Add(r ir.Reg) {
	self[r] = struct{}{}
}

func (self RegSet) Has(r ir.Reg) bool {
	_, ok := self[r]
	return ok
}

func (self RegSet) Remove(r ir.Reg) {
	delete(self, r)
}

func (self RegSet) Union(rs RegSet) {
	for r := range rs {
		self.Add(r)
	}
}

func (self RegSet) Subtract(rs RegSet) {
	for r := range rs {
		self.Remove(r)
	}
}

func (self RegSet) Clone() (rs RegSet) {
	rs = make(RegSet, len(self))
	for r := range self {
		rs.Add(r)
	}
	return
}

func (self RegSet) Equals(rs RegSet) bool {
	if len(self) != len(rs) {
		return false
	}
	for r := range self {
		if !rs.Has(r) {
			return false
		}
	}
	return true
}

func (self RegSet) ToSlice() []ir.Reg {
	rr := maps.Keys(self)

	/* sort by register ID */
	sort.Slice(rr, func(i int, j int) bool { return rr[i] < rr[j] })
	return rr
}

func (self RegSet) String() string {
	nb := len(self)
	rs := make([]string, 0, nb)

	/* convert every register */
	for _, r := range self.ToSlice() {
		rs = append(rs, r.String())
	}

	/* join them together */
	return fmt.Sprintf(
		"{%s}",
		strings.Join(rs, ", "),
	)
}

// Liveness holds the live-in and live-out value sets of every block. Phi
// results are not part of the live-in set of their block, phi operands are
// live-out of the corresponding incoming block.
type Liveness struct {
	In  map[*ir.BasicBlock]RegSet
	Out map[*ir.BasicBlock]RegSet
}

// ComputeLiveness runs the backward dataflow to a fixed point. The result
// describes the function as it is now and must be recomputed after moves.
func ComputeLiveness(fn *ir.Func) *Liveness {
	gen := make(map[*ir.BasicBlock]RegSet, len(fn.Blocks))
	kill := make(map[*ir.BasicBlock]RegSet, len(fn.Blocks))
	edge := make(map[*ir.BasicBlock]RegSet, len(fn.Blocks))
	ret := &Liveness{
		In:  make(map[*ir.BasicBlock]RegSet, len(fn.Blocks)),
		Out: make(map[*ir.BasicBlock]RegSet, len(fn.Blocks)),
	}

	/* local sets of every block */
	for _, bb := range fn.Blocks {
		g, k := regset(), regset()
		for _, v := range bb.Phi {
			k.Add(v.R)
		}
		for _, v := range blockBody(bb) {
			for _, r := range ir.Operands(v) {
				if !k.Has(r) {
					g.Add(r)
				}
			}
			if r, ok := ir.Value(v); ok {
				k.Add(r)
			}
		}
		gen[bb], kill[bb] = g, k
		ret.In[bb], ret.Out[bb] = g.Clone(), regset()
	}

	/* phi operands flow out of their incoming blocks */
	for _, bb := range fn.Blocks {
		for _, v := range bb.Phi {
			for p, r := range v.V {
				if r.IsValue() {
					if edge[p] == nil {
						edge[p] = regset()
					}
					edge[p].Add(*r)
				}
			}
		}
	}

	/* iterate until nothing changes */
	for changed := true; changed; {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			bb := fn.Blocks[i]
			out := regset()
			out.Union(edge[bb])
			for _, s := range bb.Succ() {
				in := ret.In[s].Clone()
				for _, v := range s.Phi {
					in.Remove(v.R)
				}
				out.Union(in)
			}
			in := out.Clone()
			in.Subtract(kill[bb])
			in.Union(gen[bb])
			if !out.Equals(ret.Out[bb]) || !in.Equals(ret.In[bb]) {
				changed = true
				ret.Out[bb], ret.In[bb] = out, in
			}
		}
	}
	return ret
}

func blockBody(bb *ir.BasicBlock) []ir.IrNode {
	if bb.Term == nil {
		return bb.Ins
	}
	ret := make([]ir.IrNode, 0, len(bb.Ins)+1)
	ret = append(ret, bb.Ins...)
	return append(ret, bb.Term)
}
