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
	"strings"
)

type BasicBlock struct {
	Id   int
	Phi  []*IrPhi
	Ins  []IrNode
	Pred []*BasicBlock
	Term IrTerminator
}

func (self *BasicBlock) Succ() []*BasicBlock {
	if self.Term == nil {
		return nil
	} else {
		return self.Term.Successors()
	}
}

// IndexOf returns the position of v in the block body, or -1.
func (self *BasicBlock) IndexOf(v IrNode) int {
	for i, p := range self.Ins {
		if p == v {
			return i
		}
	}
	return -1
}

// Contains reports whether v is one of the phis, body instructions or the
// terminator of the block.
func (self *BasicBlock) Contains(v IrNode) bool {
	if v == IrNode(self.Term) {
		return true
	}
	for _, p := range self.Phi {
		if IrNode(p) == v {
			return true
		}
	}
	return self.IndexOf(v) >= 0
}

// HasPred reports whether p is a CFG predecessor of the block.
func (self *BasicBlock) HasPred(p *BasicBlock) bool {
	for _, v := range self.Pred {
		if v == p {
			return true
		}
	}
	return false
}

func (self *BasicBlock) String() string {
	buf := make([]string, 0, len(self.Phi)+len(self.Ins)+2)
	buf = append(buf, fmt.Sprintf("bb_%d:", self.Id))
	for _, v := range self.Phi {
		buf = append(buf, "    "+v.String())
	}
	for _, v := range self.Ins {
		buf = append(buf, "    "+v.String())
	}
	if self.Term != nil {
		buf = append(buf, "    "+self.Term.String())
	}
	return strings.Join(buf, "\n")
}
