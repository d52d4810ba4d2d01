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

	"github.com/cloudwego/codesink/ir"
	"github.com/oleiade/lane"
)

// Loop is a natural loop. Latch and Preheader are nil when the loop is not in
// normalized form.
type Loop struct {
	Header    *ir.BasicBlock
	Latch     *ir.BasicBlock
	Preheader *ir.BasicBlock
	Blocks    []*ir.BasicBlock
	Parent    *Loop
	Children  []*Loop
	Depth     int
	body      map[*ir.BasicBlock]struct{}
}

func (self *Loop) Contains(bb *ir.BasicBlock) bool {
	_, ok := self.body[bb]
	return ok
}

// ContainsLoop reports whether l is self or nested inside self.
func (self *Loop) ContainsLoop(l *Loop) bool {
	for ; l != nil; l = l.Parent {
		if l == self {
			return true
		}
	}
	return false
}

func (self *Loop) String() string {
	return fmt.Sprintf("loop(bb_%d, depth=%d, blocks=%d)", self.Header.Id, self.Depth, len(self.Blocks))
}

type LoopInfo struct {
	Top   []*Loop
	loops []*Loop
	inner map[*ir.BasicBlock]*Loop
}

func BuildLoopInfo(fn *ir.Func, dt *DominatorTree) *LoopInfo {
	var hdrs []*ir.BasicBlock
	latches := make(map[*ir.BasicBlock][]*ir.BasicBlock)

	/* find all the back edges, the header must dominate the source */
	for _, bb := range fn.Blocks {
		for _, s := range bb.Succ() {
			if dt.Dominates(s, bb) {
				if latches[s] == nil {
					hdrs = append(hdrs, s)
				}
				latches[s] = append(latches[s], bb)
			}
		}
	}

	/* discover the loop bodies */
	loops := make([]*Loop, 0, len(hdrs))
	for _, h := range hdrs {
		loops = append(loops, naturalLoop(dt, h, latches[h]))
	}

	/* outer loops first, inner loops are strict subsets */
	sort.SliceStable(loops, func(i int, j int) bool {
		if len(loops[i].Blocks) != len(loops[j].Blocks) {
			return len(loops[i].Blocks) > len(loops[j].Blocks)
		} else {
			return loops[i].Header.Id < loops[j].Header.Id
		}
	})

	/* build the nesting */
	ret := &LoopInfo{inner: make(map[*ir.BasicBlock]*Loop)}
	for _, l := range loops {
		if p := ret.inner[l.Header]; p != nil {
			l.Parent = p
			l.Depth = p.Depth + 1
			p.Children = append(p.Children, l)
		} else {
			l.Depth = 1
			ret.Top = append(ret.Top, l)
		}
		for _, bb := range l.Blocks {
			ret.inner[bb] = l
		}
	}

	/* normalized form queries */
	for _, l := range loops {
		l.Latch = uniqueLatch(l)
		l.Preheader = uniquePreheader(l)
	}

	/* sort children by header for a stable preorder */
	sortLoops(ret.Top)
	for _, l := range loops {
		sortLoops(l.Children)
	}
	ret.loops = ret.preorder()
	return ret
}

func sortLoops(ll []*Loop) {
	sort.Slice(ll, func(i int, j int) bool { return ll[i].Header.Id < ll[j].Header.Id })
}

func naturalLoop(dt *DominatorTree, h *ir.BasicBlock, latches []*ir.BasicBlock) *Loop {
	q := lane.NewQueue()
	ret := &Loop{
		Header: h,
		body:   map[*ir.BasicBlock]struct{}{h: {}},
	}

	/* walk backwards from the latches until reaching the header */
	for _, p := range latches {
		if _, ok := ret.body[p]; !ok {
			ret.body[p] = struct{}{}
			q.Enqueue(p)
		}
	}
	for !q.Empty() {
		p := q.Dequeue().(*ir.BasicBlock)
		for _, v := range p.Pred {
			if _, ok := ret.body[v]; !ok && dt.Reachable(v) {
				ret.body[v] = struct{}{}
				q.Enqueue(v)
			}
		}
	}

	/* stable block list */
	for bb := range ret.body {
		ret.Blocks = append(ret.Blocks, bb)
	}
	sort.Slice(ret.Blocks, func(i int, j int) bool { return ret.Blocks[i].Id < ret.Blocks[j].Id })
	return ret
}

func uniqueLatch(l *Loop) *ir.BasicBlock {
	var ret *ir.BasicBlock
	for _, p := range l.Header.Pred {
		if l.Contains(p) {
			if ret != nil && ret != p {
				return nil
			}
			ret = p
		}
	}
	return ret
}

func uniquePreheader(l *Loop) *ir.BasicBlock {
	var ret *ir.BasicBlock
	for _, p := range l.Header.Pred {
		if !l.Contains(p) {
			if ret != nil && ret != p {
				return nil
			}
			ret = p
		}
	}
	if ret == nil || len(ret.Succ()) != 1 {
		return nil
	}
	return ret
}

func (self *LoopInfo) preorder() []*Loop {
	var ret []*Loop
	st := lane.NewStack()
	for i := len(self.Top) - 1; i >= 0; i-- {
		st.Push(self.Top[i])
	}
	for !st.Empty() {
		l := st.Pop().(*Loop)
		ret = append(ret, l)
		for i := len(l.Children) - 1; i >= 0; i-- {
			st.Push(l.Children[i])
		}
	}
	return ret
}

// Preorder returns every loop, each one before the loops nested in it.
func (self *LoopInfo) Preorder() []*Loop {
	return self.loops
}

// LoopFor returns the innermost loop containing bb, or nil.
func (self *LoopInfo) LoopFor(bb *ir.BasicBlock) *Loop {
	return self.inner[bb]
}

// Depth is the loop nesting depth of bb, zero outside of any loop.
func (self *LoopInfo) Depth(bb *ir.BasicBlock) int {
	if l := self.inner[bb]; l == nil {
		return 0
	} else {
		return l.Depth
	}
}
