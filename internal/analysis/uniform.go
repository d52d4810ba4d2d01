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
	"github.com/cloudwego/codesink/ir"
	"github.com/oleiade/lane"
)

// Uniformity tracks values that are identical across all SIMD lanes. It
// starts from the divergent sources (per-lane inputs, lane ids, convergent
// calls) and propagates divergence forward through the def-use graph. A
// divergent branch makes the phis of every block reachable from it divergent.
type Uniformity struct {
	divergent RegSet
}

func ComputeUniformity(fn *ir.Func, du *ir.DefUse) *Uniformity {
	q := lane.NewQueue()
	ret := &Uniformity{divergent: regset()}

	/* mark r as divergent and schedule its users */
	mark := func(r ir.Reg) {
		if r.IsValue() && !ret.divergent.Has(r) {
			ret.divergent.Add(r)
			q.Enqueue(r)
		}
	}

	/* find the divergence sources */
	for _, bb := range fn.Blocks {
		for _, v := range bb.Ins {
			switch p := v.(type) {
			case *ir.IrInput:
				mark(p.R)
			case *ir.IrLocalId:
				mark(p.R)
			case *ir.IrCall:
				if p.Convergent && p.R != ir.Rz {
					mark(p.R)
				}
			case *ir.IrLoad:
				if p.Volatile {
					mark(p.R)
				}
			}
		}
	}

	/* propagate to the users */
	for !q.Empty() {
		r := q.Dequeue().(ir.Reg)
		for _, u := range du.Uses(r) {
			switch p := u.Node.(type) {
			case *ir.IrCondBranch:
				for _, bb := range reachable(fn.BlockOf(p)) {
					if len(bb.Pred) > 1 {
						for _, phi := range bb.Phi {
							mark(phi.R)
						}
					}
				}
			case *ir.IrPayloadSet:
				mark(p.P)
			default:
				if d, ok := ir.Value(p); ok {
					mark(d)
				}
			}
		}
	}
	return ret
}

func reachable(bb *ir.BasicBlock) []*ir.BasicBlock {
	var ret []*ir.BasicBlock
	q := lane.NewQueue()
	vis := map[*ir.BasicBlock]bool{bb: true}
	for q.Enqueue(bb); !q.Empty(); {
		p := q.Dequeue().(*ir.BasicBlock)
		for _, s := range p.Succ() {
			if !vis[s] {
				vis[s] = true
				ret = append(ret, s)
				q.Enqueue(s)
			}
		}
	}
	return ret
}

// IsUniform reports whether r holds the same value in every lane. Constants
// and kernel arguments are always uniform.
func (self *Uniformity) IsUniform(r ir.Reg) bool {
	return !self.divergent.Has(r)
}
