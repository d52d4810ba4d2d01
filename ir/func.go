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

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// Func is a function in SSA form. Instruction placement is tracked in a side
// owner table, so moving an instruction never invalidates use-edges.
type Func struct {
	Name   string
	Root   *BasicBlock
	Blocks []*BasicBlock
	Width  int
	types  map[Reg]Type
	owner  map[IrNode]*BasicBlock
	tags   map[IrNode]string
}

func NewFunc(name string, width int) *Func {
	if width <= 0 {
		panic("ir: execution width must be positive")
	}
	return &Func{
		Name:  name,
		Width: width,
		types: make(map[Reg]Type),
		owner: make(map[IrNode]*BasicBlock),
		tags:  make(map[IrNode]string),
	}
}

func (self *Func) TypeOf(r Reg) Type {
	if t, ok := self.types[r]; ok {
		return t
	} else {
		return Void
	}
}

func (self *Func) SetType(r Reg, t Type) {
	self.types[r] = t
}

// BlockOf returns the block that currently holds v, or nil.
func (self *Func) BlockOf(v IrNode) *BasicBlock {
	return self.owner[v]
}

// Attach records bb as the owner of v without touching any instruction list.
func (self *Func) Attach(bb *BasicBlock, v IrNode) {
	self.owner[v] = bb
}

func (self *Func) NumInstrs() int {
	n := 0
	for _, bb := range self.Blocks {
		n += len(bb.Phi) + len(bb.Ins)
		if bb.Term != nil {
			n++
		}
	}
	return n
}

func (self *Func) Tag(v IrNode, tag string) {
	self.tags[v] = tag
}

func (self *Func) TagOf(v IrNode) string {
	return self.tags[v]
}

func (self *Func) detach(v IrNode) {
	bb := self.owner[v]
	if bb == nil {
		panic(fmt.Sprintf("ir: instruction is not attached: %s", v))
	}
	if i := bb.IndexOf(v); i < 0 {
		panic(fmt.Sprintf("ir: instruction is not in the body of bb_%d: %s", bb.Id, v))
	} else {
		bb.Ins = slices.Delete(bb.Ins, i, i+1)
	}
}

func (self *Func) insert(v IrNode, bb *BasicBlock, i int) {
	bb.Ins = slices.Insert(bb.Ins, i, v)
	self.owner[v] = bb
}

// MoveBefore moves v into bb right before anchor. A nil anchor, or the block
// terminator, places v at the end of the block body.
func (self *Func) MoveBefore(v IrNode, bb *BasicBlock, anchor IrNode) {
	if v == anchor {
		return
	}
	self.detach(v)
	if anchor == nil || anchor == IrNode(bb.Term) {
		self.insert(v, bb, len(bb.Ins))
	} else if i := bb.IndexOf(anchor); i < 0 {
		panic(fmt.Sprintf("ir: anchor is not in bb_%d: %s", bb.Id, anchor))
	} else {
		self.insert(v, bb, i)
	}
}

// MoveAfter moves v into bb right after anchor. A nil anchor places v at the
// first insertion point of the block, after all phis.
func (self *Func) MoveAfter(v IrNode, bb *BasicBlock, anchor IrNode) {
	if v == anchor {
		return
	}
	self.detach(v)
	if anchor == nil {
		self.insert(v, bb, 0)
	} else if i := bb.IndexOf(anchor); i < 0 {
		panic(fmt.Sprintf("ir: anchor is not in bb_%d: %s", bb.Id, anchor))
	} else {
		self.insert(v, bb, i+1)
	}
}

// Comes reports whether a is placed before b within the same block. Phis come
// before every body instruction and the terminator comes last.
func (self *Func) Comes(a IrNode, b IrNode) bool {
	bb := self.owner[a]
	if bb == nil || bb != self.owner[b] {
		return false
	}
	return position(bb, a) < position(bb, b)
}

func position(bb *BasicBlock, v IrNode) int {
	if v == IrNode(bb.Term) {
		return len(bb.Ins)
	}
	if _, ok := v.(*IrPhi); ok {
		return -1
	}
	return bb.IndexOf(v)
}

func (self *Func) String() string {
	bbs := make([]*BasicBlock, len(self.Blocks))
	copy(bbs, self.Blocks)
	sort.Slice(bbs, func(i int, j int) bool { return bbs[i].Id < bbs[j].Id })
	ret := make([]string, 0, len(bbs)+1)
	ret = append(ret, fmt.Sprintf("func %s [width=%d]:", self.Name, self.Width))
	for _, bb := range bbs {
		ret = append(ret, bb.String())
	}
	return strings.Join(ret, "\n")
}

// Snapshot records the instruction order of a set of blocks so that it can be
// restored verbatim later on.
type Snapshot struct {
	fn  *Func
	bbs []*BasicBlock
	ins [][]IrNode
}

func (self *Func) Snapshot(bbs ...*BasicBlock) *Snapshot {
	ret := &Snapshot{fn: self}
	seen := make(map[*BasicBlock]bool, len(bbs))
	for _, bb := range bbs {
		if !seen[bb] {
			seen[bb] = true
			ret.bbs = append(ret.bbs, bb)
			ret.ins = append(ret.ins, slices.Clone(bb.Ins))
		}
	}
	return ret
}

// Restore puts every recorded block back into its recorded order. Recorded
// instructions that have since been moved to an unrecorded block are pulled
// back as well.
func (self *Snapshot) Restore() {
	recorded := make(map[*BasicBlock]bool, len(self.bbs))
	for _, bb := range self.bbs {
		recorded[bb] = true
	}

	/* pull strays out of unrecorded blocks */
	for _, ins := range self.ins {
		for _, v := range ins {
			if bb := self.fn.owner[v]; bb != nil && !recorded[bb] {
				self.fn.detach(v)
			}
		}
	}

	/* restore the recorded order */
	for i, bb := range self.bbs {
		bb.Ins = slices.Clone(self.ins[i])
		for _, v := range bb.Ins {
			self.fn.owner[v] = bb
		}
	}
}

// Unchanged reports whether every recorded block still has its recorded order.
func (self *Snapshot) Unchanged() bool {
	for i, bb := range self.bbs {
		if !slices.EqualFunc(bb.Ins, self.ins[i], func(a IrNode, b IrNode) bool { return a == b }) {
			return false
		}
	}
	return true
}
