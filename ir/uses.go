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

package ir

// Use is one use-edge of a value. Pred is the incoming block when the user
// is a phi, nil otherwise.
type Use struct {
	Node IrNode
	Pred *BasicBlock
}

// IsPhi reports whether the use is a phi incoming value.
func (self Use) IsPhi() bool {
	return self.Pred != nil
}

// Block returns the use block of u: the incoming block for phis, the block
// holding the user otherwise.
func (self Use) Block(fn *Func) *BasicBlock {
	if self.Pred != nil {
		return self.Pred
	} else {
		return fn.BlockOf(self.Node)
	}
}

// DefUse is the def-use table of a function. It only records edges, so it
// stays valid while instructions move between blocks.
type DefUse struct {
	defs map[Reg]IrNode
	uses map[Reg][]Use
}

func BuildDefUse(fn *Func) *DefUse {
	ret := &DefUse{
		defs: make(map[Reg]IrNode),
		uses: make(map[Reg][]Use),
	}
	for _, bb := range fn.Blocks {
		for _, v := range bb.Phi {
			ret.defs[v.R] = v
			for _, p := range v.Incoming() {
				if r := *v.V[p]; r.IsValue() {
					ret.uses[r] = append(ret.uses[r], Use{Node: v, Pred: p})
				}
			}
		}
		for _, v := range bb.Ins {
			ret.add(v)
		}
		if bb.Term != nil {
			ret.add(bb.Term)
		}
	}
	return ret
}

func (self *DefUse) add(v IrNode) {
	if r, ok := Value(v); ok {
		self.defs[r] = v
	}
	seen := make(map[Reg]bool, 4)
	for _, r := range Operands(v) {
		if !seen[r] {
			seen[r] = true
			self.uses[r] = append(self.uses[r], Use{Node: v})
		}
	}
}

// Def returns the instruction defining r, nil for arguments and constants.
func (self *DefUse) Def(r Reg) IrNode {
	return self.defs[r]
}

// Uses returns every use-edge of r. A user with several operands referring to
// r is listed once, a phi is listed once per incoming edge.
func (self *DefUse) Uses(r Reg) []Use {
	return self.uses[r]
}

func (self *DefUse) HasUses(r Reg) bool {
	return len(self.uses[r]) != 0
}

// Users returns the distinct instructions using r.
func (self *DefUse) Users(r Reg) []IrNode {
	uses := self.uses[r]
	ret := make([]IrNode, 0, len(uses))
	seen := make(map[IrNode]bool, len(uses))
	for _, u := range uses {
		if !seen[u.Node] {
			seen[u.Node] = true
			ret = append(ret, u.Node)
		}
	}
	return ret
}
