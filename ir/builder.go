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
)

// Builder constructs functions one instruction at a time. Every emitter
// appends to the current block and returns the defined register.
type Builder struct {
	fn   *Func
	bb   *BasicBlock
	defs map[Reg]IrNode
	next int
}

// NewBuilder returns a builder positioned at the root block of a new function.
func NewBuilder(name string, width int) *Builder {
	ret := &Builder{
		fn:   NewFunc(name, width),
		defs: make(map[Reg]IrNode),
	}
	ret.fn.Root = ret.Block()
	ret.bb = ret.fn.Root
	return ret
}

func (self *Builder) Func() *Func {
	return self.fn
}

// Block creates a new empty block, the current position is left untouched.
func (self *Builder) Block() *BasicBlock {
	bb := &BasicBlock{Id: len(self.fn.Blocks)}
	self.fn.Blocks = append(self.fn.Blocks, bb)
	return bb
}

func (self *Builder) SetBlock(bb *BasicBlock) {
	self.bb = bb
}

func (self *Builder) Current() *BasicBlock {
	return self.bb
}

// Def returns the instruction that defined r.
func (self *Builder) Def(r Reg) IrNode {
	return self.defs[r]
}

func (self *Builder) Arg(i int, t Type) Reg {
	r := Ra(i)
	self.fn.SetType(r, t)
	return r
}

func (self *Builder) value(t Type) Reg {
	r := Rv(self.next)
	self.next++
	self.fn.SetType(r, t)
	return r
}

func (self *Builder) emit(v IrNode) {
	if self.bb.Term != nil {
		panic(fmt.Sprintf("ir: emitting into terminated block bb_%d", self.bb.Id))
	}
	self.bb.Ins = append(self.bb.Ins, v)
	self.fn.Attach(self.bb, v)
	if r, ok := Value(v); ok {
		self.defs[r] = v
	}
}

func (self *Builder) def(t Type, f func(r Reg) IrNode) Reg {
	r := self.value(t)
	self.emit(f(r))
	return r
}

func (self *Builder) Alloca(size int) Reg {
	return self.def(Ptr(SpacePrivate), func(r Reg) IrNode { return &IrAlloca{R: r, Size: size} })
}

func (self *Builder) Input(t Type, id int) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrInput{R: r, Id: id} })
}

func (self *Builder) LocalId(dim int) Reg {
	return self.def(I32, func(r Reg) IrNode { return &IrLocalId{R: r, Dim: dim} })
}

func (self *Builder) Binary(op IrBinaryOp, t Type, x Reg, y Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrBinaryExpr{R: r, X: x, Y: y, Op: op} })
}

func (self *Builder) Unary(op IrUnaryOp, t Type, v Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrUnaryExpr{R: r, V: v, Op: op} })
}

func (self *Builder) Cast(op IrCastOp, t Type, v Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrCast{R: r, V: v, Op: op} })
}

func (self *Builder) Compare(op IrCompareOp, x Reg, y Reg) Reg {
	return self.def(I1, func(r Reg) IrNode { return &IrCompare{R: r, X: x, Y: y, Op: op} })
}

func (self *Builder) Select(c Reg, x Reg, y Reg) Reg {
	return self.def(self.fn.TypeOf(x), func(r Reg) IrNode { return &IrSelect{R: r, C: c, X: x, Y: y} })
}

func (self *Builder) LEA(mem Reg, off Reg) Reg {
	return self.def(self.fn.TypeOf(mem), func(r Reg) IrNode { return &IrLEA{R: r, Mem: mem, Off: off} })
}

func (self *Builder) ExtractElement(v Reg, idx Reg) Reg {
	t := self.fn.TypeOf(v)
	t.Lanes = 0
	return self.def(t, func(r Reg) IrNode { return &IrExtractElement{R: r, V: v, Idx: idx} })
}

func (self *Builder) InsertElement(v Reg, e Reg, idx Reg) Reg {
	return self.def(self.fn.TypeOf(v), func(r Reg) IrNode { return &IrInsertElement{R: r, V: v, E: e, Idx: idx} })
}

func (self *Builder) ExtractValue(t Type, v Reg, index int) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrExtractValue{R: r, V: v, Index: index} })
}

func (self *Builder) InsertValue(v Reg, e Reg, index int) Reg {
	return self.def(self.fn.TypeOf(v), func(r Reg) IrNode { return &IrInsertValue{R: r, V: v, E: e, Index: index} })
}

func (self *Builder) Load(t Type, mem Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrLoad{R: r, Mem: mem} })
}

func (self *Builder) LoadVolatile(t Type, mem Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrLoad{R: r, Mem: mem, Volatile: true} })
}

func (self *Builder) Store(v Reg, mem Reg) *IrStore {
	ret := &IrStore{V: v, Mem: mem}
	self.emit(ret)
	return ret
}

func (self *Builder) Prefetch(mem Reg) *IrPrefetch {
	ret := &IrPrefetch{Mem: mem}
	self.emit(ret)
	return ret
}

func (self *Builder) Sample(t Type, tex Reg, coord ...Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrSample{R: r, Tex: tex, Coord: coord} })
}

// SampleGrad emits a sample that computes its own derivatives.
func (self *Builder) SampleGrad(t Type, tex Reg, coord ...Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrSample{R: r, Tex: tex, Coord: coord, Gradient: true} })
}

// Call emits a call to fn. The call is pure unless attrs say otherwise, a
// void result type produces no value and returns Rz.
func (self *Builder) Call(t Type, fn string, attrs IrCall, in ...Reg) Reg {
	attrs.Fn = fn
	attrs.In = in
	if t.IsVoid() {
		attrs.R = Rz
		self.emit(&attrs)
		return Rz
	}
	return self.def(t, func(r Reg) IrNode {
		attrs.R = r
		return &attrs
	})
}

func (self *Builder) PayloadCreate(base Reg) Reg {
	return self.def(Payload, func(r Reg) IrNode { return &IrPayloadCreate{R: r, Base: base} })
}

func (self *Builder) PayloadSet(p Reg, field int, v Reg) *IrPayloadSet {
	ret := &IrPayloadSet{P: p, Field: field, V: v}
	self.emit(ret)
	return ret
}

func (self *Builder) PayloadRead(t Type, p Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrPayloadRead{R: r, P: p} })
}

func (self *Builder) MatrixMulAdd(t Type, acc Reg, a Reg, b Reg) Reg {
	return self.def(t, func(r Reg) IrNode { return &IrMatrixMulAdd{R: r, Acc: acc, A: a, B: b} })
}

func (self *Builder) DebugValue(v Reg) *IrDebugValue {
	ret := &IrDebugValue{V: v}
	self.emit(ret)
	return ret
}

// Phi adds an empty phi to the current block, incoming values are added with
// IrPhi.Add.
func (self *Builder) Phi(t Type) *IrPhi {
	ret := &IrPhi{R: self.value(t), V: make(map[*BasicBlock]*Reg)}
	self.bb.Phi = append(self.bb.Phi, ret)
	self.fn.Attach(self.bb, ret)
	self.defs[ret.R] = ret
	return ret
}

func (self *Builder) terminate(t IrTerminator) {
	if self.bb.Term != nil {
		panic(fmt.Sprintf("ir: bb_%d is already terminated", self.bb.Id))
	}
	self.bb.Term = t
	self.fn.Attach(self.bb, t)
	for _, s := range t.Successors() {
		if !s.HasPred(self.bb) {
			s.Pred = append(s.Pred, self.bb)
		}
	}
}

func (self *Builder) Jump(to *BasicBlock) {
	self.terminate(&IrBranch{To: to})
}

func (self *Builder) Branch(c Reg, t *BasicBlock, f *BasicBlock) {
	self.terminate(&IrCondBranch{V: c, T: t, F: f})
}

func (self *Builder) Return(rr ...Reg) {
	self.terminate(&IrReturn{R: rr})
}
