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
	"fmt"
	"strings"

	"github.com/cloudwego/codesink/ir"
)

type Worthiness uint8

const (
	Unknown Worthiness = iota
	MaybeSink
	Sink
	IntraLoopSink
)

var _WorthinessNames = [...]string{
	Unknown:       "unknown",
	MaybeSink:     "maybe",
	Sink:          "sink",
	IntraLoopSink: "intra",
}

func (self Worthiness) String() string {
	return _WorthinessNames[self]
}

// Candidate is a group of instructions that moves as a unit. Members are kept
// in program order and stay in that order wherever the group goes.
type Candidate struct {
	Members    []ir.IrNode
	Target     *ir.BasicBlock
	Worthiness Worthiness
	Source     *ir.BasicBlock
	Anchors    []ir.IrNode
	load       bool
	blockRead  bool
}

func newCandidate(src *ir.BasicBlock, w Worthiness, members ...ir.IrNode) *Candidate {
	if len(members) == 0 {
		panic("sink: empty candidate")
	}
	ret := &Candidate{
		Members:    members,
		Source:     src,
		Worthiness: w,
	}
	for _, m := range members {
		switch m.(type) {
		case *ir.IrPayloadRead:
			ret.load = true
			ret.blockRead = true
		case *ir.IrLoad, *ir.IrSample:
			ret.load = true
		}
	}
	return ret
}

func (self *Candidate) Head() ir.IrNode {
	return self.Members[0]
}

func (self *Candidate) Last() ir.IrNode {
	return self.Members[len(self.Members)-1]
}

// IsLoad reports groups that read memory.
func (self *Candidate) IsLoad() bool {
	return self.load
}

// IsBlockRead reports 2D block-read payload groups.
func (self *Candidate) IsBlockRead() bool {
	return self.blockRead
}

func (self *Candidate) Contains(v ir.IrNode) bool {
	for _, m := range self.Members {
		if m == v {
			return true
		}
	}
	return false
}

// Values returns the registers defined by the members.
func (self *Candidate) Values() []ir.Reg {
	ret := make([]ir.Reg, 0, len(self.Members))
	for _, m := range self.Members {
		if r, ok := ir.Value(m); ok {
			ret = append(ret, r)
		}
	}
	return ret
}

// Apply moves the group to the first insertion point of its target,
// recording undo anchors in the source block first.
func (self *Candidate) Apply(fn *ir.Func) {
	self.Anchors = make([]ir.IrNode, len(self.Members))
	for i, m := range self.Members {
		if fn.BlockOf(m) != self.Source {
			panic(fmt.Sprintf("sink: candidate member is not in bb_%d: %s", self.Source.Id, m))
		}
		self.Anchors[i] = nextOf(self.Source, m)
	}
	prev := ir.IrNode(nil)
	for _, m := range self.Members {
		fn.MoveAfter(m, self.Target, prev)
		prev = m
	}
}

// Undo puts the members back where Apply found them. It is only valid while
// nothing else has moved since Apply.
func (self *Candidate) Undo(fn *ir.Func) {
	if self.Anchors == nil {
		panic("sink: undoing a candidate that was never applied")
	}
	for i := len(self.Members) - 1; i >= 0; i-- {
		fn.MoveBefore(self.Members[i], self.Source, self.Anchors[i])
	}
	self.Anchors = nil
}

func (self *Candidate) String() string {
	ins := make([]string, 0, len(self.Members))
	for _, m := range self.Members {
		ins = append(ins, m.String())
	}
	tgt := "?"
	if self.Target != nil {
		tgt = fmt.Sprintf("bb_%d", self.Target.Id)
	}
	return fmt.Sprintf("[%s] bb_%d -> %s {%s}", self.Worthiness, self.Source.Id, tgt, strings.Join(ins, "; "))
}
