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

// BasicBlockIter visits the dominator tree in post order, every block comes
// after all the blocks it dominates.
type BasicBlockIter struct {
	t *DominatorTree
	b *ir.BasicBlock
	s *lane.Stack
	v map[int]struct{}
}

func NewBasicBlockIter(dt *DominatorTree) *BasicBlockIter {
	st := lane.NewStack()
	st.Push(dt.Root)
	return &BasicBlockIter{
		t: dt,
		s: st,
		v: map[int]struct{}{dt.Root.Id: {}},
	}
}

func (self *BasicBlockIter) Next() bool {
	var tail bool
	var this *ir.BasicBlock

	/* scan until the stack is empty */
	for !self.s.Empty() {
		tail = true
		this = self.s.Head().(*ir.BasicBlock)

		/* add all the children */
		for _, p := range self.t.DominatorOf[this.Id] {
			if _, ok := self.v[p.Id]; !ok {
				tail = false
				self.v[p.Id] = struct{}{}
				self.s.Push(p)
				break
			}
		}

		/* all the children are visited, pop the current node */
		if tail {
			self.b = self.s.Pop().(*ir.BasicBlock)
			return true
		}
	}

	/* clear the basic block pointer to indicate no more blocks */
	self.b = nil
	return false
}

func (self *BasicBlockIter) Block() *ir.BasicBlock {
	return self.b
}

func (self *BasicBlockIter) ForEach(action func(bb *ir.BasicBlock)) {
	for self.Next() {
		action(self.b)
	}
}

// PostOrder returns the dominator-tree post order.
func (self *DominatorTree) PostOrder() []*ir.BasicBlock {
	ret := make([]*ir.BasicBlock, 0, len(self.Depth))
	NewBasicBlockIter(self).ForEach(func(bb *ir.BasicBlock) { ret = append(ret, bb) })
	return ret
}
