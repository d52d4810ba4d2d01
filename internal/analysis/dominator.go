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

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 */

package analysis

import (
	"github.com/cloudwego/codesink/ir"
	"github.com/oleiade/lane"
)

type _LtNode struct {
	semi     int
	node     *ir.BasicBlock
	dom      *_LtNode
	label    *_LtNode
	parent   *_LtNode
	ancestor *_LtNode
	pred     []*_LtNode
	bucket   map[*_LtNode]struct{}
}

type _LengauerTarjan struct {
	nodes  []*_LtNode
	vertex map[int]int
}

func newLengauerTarjan() *_LengauerTarjan {
	return &_LengauerTarjan{
		vertex: make(map[int]int),
	}
}

func (self *_LengauerTarjan) dfs(bb *ir.BasicBlock) {
	i := len(self.nodes)
	self.vertex[bb.Id] = i

	/* create a new node */
	p := &_LtNode{
		semi:   i,
		node:   bb,
		bucket: make(map[*_LtNode]struct{}),
	}

	/* add to node list */
	p.label = p
	self.nodes = append(self.nodes, p)

	/* traverse the successors */
	for _, w := range bb.Succ() {
		idx, ok := self.vertex[w.Id]

		/* not visited yet */
		if !ok {
			self.dfs(w)
			idx = self.vertex[w.Id]
			self.nodes[idx].parent = p
		}

		/* add predecessors */
		q := self.nodes[idx]
		q.pred = append(q.pred, p)
	}
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
	if p.ancestor == nil {
		return p
	} else {
		self.compress(p)
		return p.label
	}
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
	q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
	if p.ancestor.ancestor != nil {
		self.compress(p.ancestor)
		if p.label.semi > p.ancestor.label.semi {
			p.label = p.ancestor.label
		}
		p.ancestor = p.ancestor.ancestor
	}
}

// DominatorTree maps every reachable block to its immediate dominator
// (DominatedBy) and to the blocks it immediately dominates (DominatorOf).
type DominatorTree struct {
	Root        *ir.BasicBlock
	Depth       map[int]int
	DominatedBy map[int]*ir.BasicBlock
	DominatorOf map[int][]*ir.BasicBlock
}

func minInt(a int, b int) int {
	if a < b {
		return a
	} else {
		return b
	}
}

func BuildDominatorTree(fn *ir.Func) *DominatorTree {
	bb := fn.Root
	domby := make(map[int]*ir.BasicBlock)
	domof := make(map[int][]*ir.BasicBlock)

	/* Step 1: Carry out a depth-first search of the problem graph. Number the vertices
	 * from 1 to n as they are reached during the search. Initialize the variables used
	 * in succeeding steps. */
	lt := newLengauerTarjan()
	lt.dfs(bb)

	/* perform Step 2 and Step 3 simultaneously */
	for i := len(lt.nodes) - 1; i > 0; i-- {
		p := lt.nodes[i]
		q := (*_LtNode)(nil)

		/* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
		 * Carry out the computation vertex by vertex in decreasing order by number. */
		for _, v := range p.pred {
			q = lt.eval(v)
			p.semi = minInt(p.semi, q.semi)
		}

		/* link the ancestor */
		lt.link(p.parent, p)
		lt.nodes[p.semi].bucket[p] = struct{}{}

		/* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
		for v := range p.parent.bucket {
			if q = lt.eval(v); q.semi < v.semi {
				v.dom = q
			} else {
				v.dom = p.parent
			}
		}

		/* clear the bucket */
		for v := range p.parent.bucket {
			delete(p.parent.bucket, v)
		}
	}

	/* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
	 * computation vertex by vertex in increasing order by number. */
	for _, p := range lt.nodes[1:] {
		if p.dom.node.Id != lt.nodes[p.semi].node.Id {
			p.dom = p.dom.dom
		}
	}

	/* map the dominator relations */
	for _, p := range lt.nodes[1:] {
		domby[p.node.Id] = p.dom.node
		domof[p.dom.node.Id] = append(domof[p.dom.node.Id], p.node)
	}

	/* construct the dominator tree */
	ret := &DominatorTree{
		Root:        bb,
		Depth:       make(map[int]int, len(lt.nodes)),
		DominatorOf: domof,
		DominatedBy: domby,
	}

	/* compute the depth of every node */
	q := lane.NewQueue()
	ret.Depth[bb.Id] = 0
	for q.Enqueue(bb); !q.Empty(); {
		p := q.Dequeue().(*ir.BasicBlock)
		for _, c := range domof[p.Id] {
			ret.Depth[c.Id] = ret.Depth[p.Id] + 1
			q.Enqueue(c)
		}
	}
	return ret
}

// Reachable reports whether bb is reachable from the root.
func (self *DominatorTree) Reachable(bb *ir.BasicBlock) bool {
	_, ok := self.Depth[bb.Id]
	return ok
}

// Idom returns the immediate dominator of bb, nil for the root and for
// unreachable blocks.
func (self *DominatorTree) Idom(bb *ir.BasicBlock) *ir.BasicBlock {
	return self.DominatedBy[bb.Id]
}

func (self *DominatorTree) Children(bb *ir.BasicBlock) []*ir.BasicBlock {
	return self.DominatorOf[bb.Id]
}

// Dominates reports whether a dominates b, every block dominates itself.
func (self *DominatorTree) Dominates(a *ir.BasicBlock, b *ir.BasicBlock) bool {
	da, ok1 := self.Depth[a.Id]
	db, ok2 := self.Depth[b.Id]

	/* unreachable blocks are not related */
	if !ok1 || !ok2 {
		return false
	}

	/* walk b up to the depth of a */
	for ; db > da; db-- {
		b = self.DominatedBy[b.Id]
	}
	return a == b
}

// NearestCommonDominator returns the deepest block dominating both a and b,
// or nil when either of them is unreachable. A nil a yields b.
func (self *DominatorTree) NearestCommonDominator(a *ir.BasicBlock, b *ir.BasicBlock) *ir.BasicBlock {
	if a == nil {
		if b != nil && self.Reachable(b) {
			return b
		} else {
			return nil
		}
	}

	/* both must be reachable */
	if !self.Reachable(a) || b == nil || !self.Reachable(b) {
		return nil
	}

	/* bring both blocks to the same depth */
	for self.Depth[a.Id] > self.Depth[b.Id] {
		a = self.DominatedBy[a.Id]
	}
	for self.Depth[b.Id] > self.Depth[a.Id] {
		b = self.DominatedBy[b.Id]
	}

	/* then walk up together */
	for a != b {
		a = self.DominatedBy[a.Id]
		b = self.DominatedBy[b.Id]
	}
	return a
}
