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

	"golang.org/x/exp/maps"
)

type IrNode interface {
	fmt.Stringer
	irnode()
}

func (*IrPhi) irnode()            {}
func (*IrBranch) irnode()         {}
func (*IrCondBranch) irnode()     {}
func (*IrReturn) irnode()         {}
func (*IrAlloca) irnode()         {}
func (*IrInput) irnode()          {}
func (*IrLocalId) irnode()        {}
func (*IrBinaryExpr) irnode()     {}
func (*IrUnaryExpr) irnode()      {}
func (*IrCast) irnode()           {}
func (*IrCompare) irnode()        {}
func (*IrSelect) irnode()         {}
func (*IrLEA) irnode()            {}
func (*IrExtractElement) irnode() {}
func (*IrInsertElement) irnode()  {}
func (*IrExtractValue) irnode()   {}
func (*IrInsertValue) irnode()    {}
func (*IrLoad) irnode()           {}
func (*IrStore) irnode()          {}
func (*IrPrefetch) irnode()       {}
func (*IrSample) irnode()         {}
func (*IrCall) irnode()           {}
func (*IrPayloadCreate) irnode()  {}
func (*IrPayloadSet) irnode()     {}
func (*IrPayloadRead) irnode()    {}
func (*IrMatrixMulAdd) irnode()   {}
func (*IrDebugValue) irnode()     {}

type IrUsages interface {
	IrNode
	Usages() []*Reg
}

type IrDefinitions interface {
	IrNode
	Definitions() []*Reg
}

type IrTerminator interface {
	IrNode
	Successors() []*BasicBlock
	irterminator()
}

func (*IrBranch) irterminator()     {}
func (*IrCondBranch) irterminator() {}
func (*IrReturn) irterminator()     {}

func regslicerepr(rr []Reg) string {
	ret := make([]string, 0, len(rr))
	for _, r := range rr {
		ret = append(ret, r.String())
	}
	return strings.Join(ret, ", ")
}

func regsliceref(v []Reg) (r []*Reg) {
	r = make([]*Reg, len(v))
	for i := range v {
		r[i] = &v[i]
	}
	return
}

func defref(r *Reg) []*Reg {
	if *r == Rz {
		return nil
	} else {
		return []*Reg{r}
	}
}

type IrPhi struct {
	R Reg
	V map[*BasicBlock]*Reg
}

// Incoming returns the incoming edges sorted by predecessor ID.
func (self *IrPhi) Incoming() []*BasicBlock {
	ret := maps.Keys(self.V)
	sort.Slice(ret, func(i int, j int) bool {
		return ret[i].Id < ret[j].Id
	})
	return ret
}

// Add sets the incoming value from bb.
func (self *IrPhi) Add(bb *BasicBlock, r Reg) {
	if self.V == nil {
		self.V = make(map[*BasicBlock]*Reg)
	}
	self.V[bb] = &r
}

func (self *IrPhi) String() string {
	ret := make([]string, 0, len(self.V))
	for _, bb := range self.Incoming() {
		ret = append(ret, fmt.Sprintf("bb_%d: %s", bb.Id, *self.V[bb]))
	}
	return fmt.Sprintf("%s = φ(%s)", self.R, strings.Join(ret, ", "))
}

func (self *IrPhi) Usages() []*Reg {
	ret := make([]*Reg, 0, len(self.V))
	for _, bb := range self.Incoming() {
		ret = append(ret, self.V[bb])
	}
	return ret
}

func (self *IrPhi) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrBranch struct {
	To *BasicBlock
}

func (self *IrBranch) String() string {
	return fmt.Sprintf("goto bb_%d", self.To.Id)
}

func (self *IrBranch) Successors() []*BasicBlock {
	return []*BasicBlock{self.To}
}

type IrCondBranch struct {
	V Reg
	T *BasicBlock
	F *BasicBlock
}

func (self *IrCondBranch) String() string {
	return fmt.Sprintf("if %s goto bb_%d else bb_%d", self.V, self.T.Id, self.F.Id)
}

func (self *IrCondBranch) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrCondBranch) Successors() []*BasicBlock {
	if self.T == self.F {
		return []*BasicBlock{self.T}
	} else {
		return []*BasicBlock{self.T, self.F}
	}
}

type IrReturn struct {
	R []Reg
}

func (self *IrReturn) String() string {
	return fmt.Sprintf("ret {%s}", regslicerepr(self.R))
}

func (self *IrReturn) Usages() []*Reg {
	return regsliceref(self.R)
}

func (self *IrReturn) Successors() []*BasicBlock {
	return nil
}

type IrAlloca struct {
	R    Reg
	Size int
}

func (self *IrAlloca) String() string {
	return fmt.Sprintf("%s = alloca %d", self.R, self.Size)
}

func (self *IrAlloca) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrInput reads a per-lane shader input (attribute interpolation).
type IrInput struct {
	R  Reg
	Id int
}

func (self *IrInput) String() string {
	return fmt.Sprintf("%s = input #%d", self.R, self.Id)
}

func (self *IrInput) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrLocalId struct {
	R   Reg
	Dim int
}

func (self *IrLocalId) String() string {
	return fmt.Sprintf("%s = local_id.%c", self.R, "xyz"[self.Dim%3])
}

func (self *IrLocalId) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrBinaryOp uint8

const (
	IrOpAdd IrBinaryOp = iota
	IrOpSub
	IrOpMul
	IrOpDiv
	IrOpAnd
	IrOpOr
	IrOpXor
	IrOpShl
	IrOpShr
	IrOpFAdd
	IrOpFMul
)

var _BinaryOpNames = [...]string{
	IrOpAdd:  "add",
	IrOpSub:  "sub",
	IrOpMul:  "mul",
	IrOpDiv:  "div",
	IrOpAnd:  "and",
	IrOpOr:   "or",
	IrOpXor:  "xor",
	IrOpShl:  "shl",
	IrOpShr:  "shr",
	IrOpFAdd: "fadd",
	IrOpFMul: "fmul",
}

func (self IrBinaryOp) String() string {
	return _BinaryOpNames[self]
}

type IrBinaryExpr struct {
	R  Reg
	X  Reg
	Y  Reg
	Op IrBinaryOp
}

func (self *IrBinaryExpr) String() string {
	return fmt.Sprintf("%s = %s %s, %s", self.R, self.Op, self.X, self.Y)
}

func (self *IrBinaryExpr) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrBinaryExpr) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrUnaryOp uint8

const (
	IrOpNegate IrUnaryOp = iota
	IrOpNot
	IrOpSqrt
	IrOpRsqrt
	IrOpSin
	IrOpCos
	IrOpExp
	IrOpLog
)

var _UnaryOpNames = [...]string{
	IrOpNegate: "neg",
	IrOpNot:    "not",
	IrOpSqrt:   "sqrt",
	IrOpRsqrt:  "rsqrt",
	IrOpSin:    "sin",
	IrOpCos:    "cos",
	IrOpExp:    "exp",
	IrOpLog:    "log",
}

func (self IrUnaryOp) String() string {
	return _UnaryOpNames[self]
}

// IsMath reports transcendental and root functions.
func (self IrUnaryOp) IsMath() bool {
	return self >= IrOpSqrt
}

type IrUnaryExpr struct {
	R  Reg
	V  Reg
	Op IrUnaryOp
}

func (self *IrUnaryExpr) String() string {
	return fmt.Sprintf("%s = %s %s", self.R, self.Op, self.V)
}

func (self *IrUnaryExpr) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrUnaryExpr) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrCastOp uint8

const (
	IrCastTrunc IrCastOp = iota
	IrCastZExt
	IrCastSExt
	IrCastFPTrunc
	IrCastFPExt
	IrCastFPToInt
	IrCastIntToFP
	IrCastBitcast
	IrCastPtrToInt
	IrCastIntToPtr
	IrCastAddrSpace
)

var _CastOpNames = [...]string{
	IrCastTrunc:     "trunc",
	IrCastZExt:      "zext",
	IrCastSExt:      "sext",
	IrCastFPTrunc:   "fptrunc",
	IrCastFPExt:     "fpext",
	IrCastFPToInt:   "fptoi",
	IrCastIntToFP:   "itofp",
	IrCastBitcast:   "bitcast",
	IrCastPtrToInt:  "ptrtoint",
	IrCastIntToPtr:  "inttoptr",
	IrCastAddrSpace: "addrspacecast",
}

func (self IrCastOp) String() string {
	return _CastOpNames[self]
}

type IrCast struct {
	R  Reg
	V  Reg
	Op IrCastOp
}

func (self *IrCast) String() string {
	return fmt.Sprintf("%s = %s %s", self.R, self.Op, self.V)
}

func (self *IrCast) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrCast) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrCompareOp uint8

const (
	IrCmpEq IrCompareOp = iota
	IrCmpNe
	IrCmpLt
	IrCmpLtu
	IrCmpGeu
	IrCmpFLt
)

var _CompareOpNames = [...]string{
	IrCmpEq:  "eq",
	IrCmpNe:  "ne",
	IrCmpLt:  "lt",
	IrCmpLtu: "ltu",
	IrCmpGeu: "geu",
	IrCmpFLt: "flt",
}

func (self IrCompareOp) String() string {
	return _CompareOpNames[self]
}

type IrCompare struct {
	R  Reg
	X  Reg
	Y  Reg
	Op IrCompareOp
}

func (self *IrCompare) String() string {
	return fmt.Sprintf("%s = cmp.%s %s, %s", self.R, self.Op, self.X, self.Y)
}

func (self *IrCompare) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrCompare) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrSelect struct {
	R Reg
	C Reg
	X Reg
	Y Reg
}

func (self *IrSelect) String() string {
	return fmt.Sprintf("%s = select %s, %s, %s", self.R, self.C, self.X, self.Y)
}

func (self *IrSelect) Usages() []*Reg {
	return []*Reg{&self.C, &self.X, &self.Y}
}

func (self *IrSelect) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrLEA computes Mem + Off, it never touches memory.
type IrLEA struct {
	R   Reg
	Mem Reg
	Off Reg
}

func (self *IrLEA) String() string {
	return fmt.Sprintf("%s = &(%s)[%s]", self.R, self.Mem, self.Off)
}

func (self *IrLEA) Usages() []*Reg {
	return []*Reg{&self.Mem, &self.Off}
}

func (self *IrLEA) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrExtractElement struct {
	R   Reg
	V   Reg
	Idx Reg
}

func (self *IrExtractElement) String() string {
	return fmt.Sprintf("%s = extractelement %s, %s", self.R, self.V, self.Idx)
}

func (self *IrExtractElement) Usages() []*Reg {
	return []*Reg{&self.V, &self.Idx}
}

func (self *IrExtractElement) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrInsertElement struct {
	R   Reg
	V   Reg
	E   Reg
	Idx Reg
}

func (self *IrInsertElement) String() string {
	return fmt.Sprintf("%s = insertelement %s, %s, %s", self.R, self.V, self.E, self.Idx)
}

func (self *IrInsertElement) Usages() []*Reg {
	return []*Reg{&self.V, &self.E, &self.Idx}
}

func (self *IrInsertElement) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrExtractValue selects one result of a multi-result producer.
type IrExtractValue struct {
	R     Reg
	V     Reg
	Index int
}

func (self *IrExtractValue) String() string {
	return fmt.Sprintf("%s = extractvalue %s, %d", self.R, self.V, self.Index)
}

func (self *IrExtractValue) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrExtractValue) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrInsertValue struct {
	R     Reg
	V     Reg
	E     Reg
	Index int
}

func (self *IrInsertValue) String() string {
	return fmt.Sprintf("%s = insertvalue %s, %s, %d", self.R, self.V, self.E, self.Index)
}

func (self *IrInsertValue) Usages() []*Reg {
	return []*Reg{&self.V, &self.E}
}

func (self *IrInsertValue) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrLoad struct {
	R        Reg
	Mem      Reg
	Volatile bool
}

func (self *IrLoad) String() string {
	if self.Volatile {
		return fmt.Sprintf("%s = load.volatile %s", self.R, self.Mem)
	} else {
		return fmt.Sprintf("%s = load %s", self.R, self.Mem)
	}
}

func (self *IrLoad) Usages() []*Reg {
	return []*Reg{&self.Mem}
}

func (self *IrLoad) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrStore struct {
	V        Reg
	Mem      Reg
	Volatile bool
}

func (self *IrStore) String() string {
	return fmt.Sprintf("store %s -> *%s", self.V, self.Mem)
}

func (self *IrStore) Usages() []*Reg {
	return []*Reg{&self.V, &self.Mem}
}

// IrPrefetch hints the cache hierarchy, it is modelled as a memory side
// effect that never changes memory contents.
type IrPrefetch struct {
	Mem Reg
}

func (self *IrPrefetch) String() string {
	return fmt.Sprintf("prefetch %s", self.Mem)
}

func (self *IrPrefetch) Usages() []*Reg {
	return []*Reg{&self.Mem}
}

type IrSample struct {
	R        Reg
	Tex      Reg
	Coord    []Reg
	Gradient bool
}

func (self *IrSample) String() string {
	op := "sample"
	if self.Gradient {
		op = "sample.grad"
	}
	return fmt.Sprintf("%s = %s %s, {%s}", self.R, op, self.Tex, regslicerepr(self.Coord))
}

func (self *IrSample) Usages() []*Reg {
	return append([]*Reg{&self.Tex}, regsliceref(self.Coord)...)
}

func (self *IrSample) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrCall calls an external function, R is Rz when the call returns nothing.
type IrCall struct {
	R          Reg
	Fn         string
	In         []Reg
	Convergent bool
	ReadMem    bool
	WriteMem   bool
}

func (self *IrCall) String() string {
	var attrs []string
	if self.Convergent {
		attrs = append(attrs, "convergent")
	}
	if self.ReadMem {
		attrs = append(attrs, "readmem")
	}
	if self.WriteMem {
		attrs = append(attrs, "writemem")
	}
	call := fmt.Sprintf("call %s(%s)", self.Fn, regslicerepr(self.In))
	if len(attrs) != 0 {
		call += " [" + strings.Join(attrs, " ") + "]"
	}
	if self.R == Rz {
		return call
	} else {
		return fmt.Sprintf("%s = %s", self.R, call)
	}
}

func (self *IrCall) Usages() []*Reg {
	return regsliceref(self.In)
}

func (self *IrCall) Definitions() []*Reg {
	return defref(&self.R)
}

// IrPayloadCreate builds the address payload of a 2D block read.
type IrPayloadCreate struct {
	R    Reg
	Base Reg
}

func (self *IrPayloadCreate) String() string {
	return fmt.Sprintf("%s = payload.create %s", self.R, self.Base)
}

func (self *IrPayloadCreate) Usages() []*Reg {
	return []*Reg{&self.Base}
}

func (self *IrPayloadCreate) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrPayloadSet updates one field of an address payload in place.
type IrPayloadSet struct {
	P     Reg
	Field int
	V     Reg
}

func (self *IrPayloadSet) String() string {
	return fmt.Sprintf("payload.set %s.%d = %s", self.P, self.Field, self.V)
}

func (self *IrPayloadSet) Usages() []*Reg {
	return []*Reg{&self.P, &self.V}
}

type IrPayloadRead struct {
	R Reg
	P Reg
}

func (self *IrPayloadRead) String() string {
	return fmt.Sprintf("%s = payload.read %s", self.R, self.P)
}

func (self *IrPayloadRead) Usages() []*Reg {
	return []*Reg{&self.P}
}

func (self *IrPayloadRead) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrMatrixMulAdd is a systolic multiply-accumulate, adjacent ones are issued
// by the hardware as a single macro.
type IrMatrixMulAdd struct {
	R   Reg
	Acc Reg
	A   Reg
	B   Reg
}

func (self *IrMatrixMulAdd) String() string {
	return fmt.Sprintf("%s = dpas %s, %s, %s", self.R, self.Acc, self.A, self.B)
}

func (self *IrMatrixMulAdd) Usages() []*Reg {
	return []*Reg{&self.Acc, &self.A, &self.B}
}

func (self *IrMatrixMulAdd) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrDebugValue struct {
	V Reg
}

func (self *IrDebugValue) String() string {
	return fmt.Sprintf("dbg.value %s", self.V)
}

func (self *IrDebugValue) Usages() []*Reg {
	return []*Reg{&self.V}
}

// Value returns the register defined by v, if any.
func Value(v IrNode) (Reg, bool) {
	if d, ok := v.(IrDefinitions); !ok {
		return Rz, false
	} else if rr := d.Definitions(); len(rr) == 0 {
		return Rz, false
	} else {
		return *rr[0], true
	}
}

// Operands returns the value operands of v, immediates and undef excluded.
func Operands(v IrNode) []Reg {
	use, ok := v.(IrUsages)
	if !ok {
		return nil
	}
	ret := make([]Reg, 0, 4)
	for _, r := range use.Usages() {
		if r.IsValue() {
			ret = append(ret, *r)
		}
	}
	return ret
}

// MayWriteMemory reports instructions with memory side effects.
func MayWriteMemory(v IrNode) bool {
	switch p := v.(type) {
	case *IrStore, *IrPrefetch:
		return true
	case *IrCall:
		return p.WriteMem
	case *IrLoad:
		return p.Volatile
	default:
		return false
	}
}

// MayReadMemory reports instructions whose result depends on memory.
func MayReadMemory(v IrNode) bool {
	switch p := v.(type) {
	case *IrLoad, *IrSample, *IrPayloadRead:
		return true
	case *IrCall:
		return p.ReadMem || p.WriteMem
	default:
		return false
	}
}
