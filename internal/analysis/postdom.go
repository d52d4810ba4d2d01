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
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"
)

// PostDominatorTree answers post-dominance queries. It is computed as the
// dominator tree of the reversed CFG rooted at a virtual exit node that every
// returning block flows into.
type PostDominatorTree struct {
	fn   *ir.Func
	exit int64
	tree flow.DominatorTree
}

func BuildPostDominatorTree(fn *ir.Func) *PostDominatorTree {
	g := simple.NewDirectedGraph()
	exit := int64(-1)

	/* add every block as a node, block IDs are non-negative */
	for _, bb := range fn.Blocks {
		if int64(bb.Id) > exit {
			exit = int64(bb.Id)
		}
		g.AddNode(simple.Node(bb.Id))
	}

	/* a virtual exit node that post-dominates everything */
	exit++
	g.AddNode(simple.Node(exit))

	/* reversed edges, self loops carry no dominance information */
	for _, bb := range fn.Blocks {
		succ := bb.Succ()
		if len(succ) == 0 {
			g.SetEdge(g.NewEdge(simple.Node(exit), simple.Node(bb.Id)))
		}
		for _, s := range succ {
			if s != bb {
				g.SetEdge(g.NewEdge(simple.Node(s.Id), simple.Node(bb.Id)))
			}
		}
	}

	/* build the tree */
	return &PostDominatorTree{
		fn:   fn,
		exit: exit,
		tree: flow.Dominators(simple.Node(exit), g),
	}
}

func (self *PostDominatorTree) block(n graph.Node) *ir.BasicBlock {
	if n == nil || n.ID() == self.exit {
		return nil
	}
	for _, bb := range self.fn.Blocks {
		if int64(bb.Id) == n.ID() {
			return bb
		}
	}
	return nil
}

// Ipdom returns the immediate post-dominator of bb, nil when it is the
// virtual exit or when bb cannot reach an exit at all.
func (self *PostDominatorTree) Ipdom(bb *ir.BasicBlock) *ir.BasicBlock {
	return self.block(self.tree.DominatorOf(int64(bb.Id)))
}

// PostDominates reports whether every path from b to the function exit passes
// through a. Every block post-dominates itself.
func (self *PostDominatorTree) PostDominates(a *ir.BasicBlock, b *ir.BasicBlock) bool {
	if a == b {
		return true
	}
	for n := self.tree.DominatorOf(int64(b.Id)); n != nil; n = self.tree.DominatorOf(n.ID()) {
		if n.ID() == int64(a.Id) {
			return true
		}
		if n.ID() == self.exit {
			return false
		}
	}
	return false
}
