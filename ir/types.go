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

// AddrSpace is the memory class a pointer value refers to.
type AddrSpace uint8

const (
	SpacePrivate AddrSpace = iota
	SpaceGlobal
	SpaceConstant
	SpaceLocal
	SpaceResource
	SpaceGeneric
)

var _SpaceNames = [...]string{
	SpacePrivate:  "private",
	SpaceGlobal:   "global",
	SpaceConstant: "constant",
	SpaceLocal:    "local",
	SpaceResource: "resource",
	SpaceGeneric:  "generic",
}

func (self AddrSpace) String() string {
	if int(self) < len(_SpaceNames) {
		return _SpaceNames[self]
	} else {
		return fmt.Sprintf("as(%d)", uint8(self))
	}
}

// ReadOnly reports buffer classes that can never be written by the kernel.
func (self AddrSpace) ReadOnly() bool {
	return self == SpaceConstant || self == SpaceResource
}

type TypeKind uint8

const (
	T_void TypeKind = iota
	T_int
	T_float
	T_ptr
	T_payload
)

type Type struct {
	Kind  TypeKind
	Bits  uint16
	Lanes uint16
	Space AddrSpace
}

var (
	Void    = Type{Kind: T_void}
	I1      = Type{Kind: T_int, Bits: 1}
	I8      = Type{Kind: T_int, Bits: 8}
	I16     = Type{Kind: T_int, Bits: 16}
	I32     = Type{Kind: T_int, Bits: 32}
	I64     = Type{Kind: T_int, Bits: 64}
	F16     = Type{Kind: T_float, Bits: 16}
	F32     = Type{Kind: T_float, Bits: 32}
	F64     = Type{Kind: T_float, Bits: 64}
	Payload = Type{Kind: T_payload, Bits: 64}
)

// Ptr returns a 64-bit pointer into the given address space.
func Ptr(space AddrSpace) Type {
	return Type{Kind: T_ptr, Bits: 64, Space: space}
}

// Vec returns a vector of n elements of the scalar type t.
func Vec(t Type, n int) Type {
	if n <= 0 || n > 0xffff {
		panic(fmt.Sprintf("ir: invalid vector length %d", n))
	}
	t.Lanes = uint16(n)
	return t
}

func (self Type) IsVoid() bool {
	return self.Kind == T_void
}

func (self Type) IsPtr() bool {
	return self.Kind == T_ptr
}

// IsFlag reports types that live in flag registers rather than GRFs.
func (self Type) IsFlag() bool {
	return self.Kind == T_int && self.Bits == 1 && self.Lanes <= 1
}

// NumLanes returns the vector length, scalars have one lane.
func (self Type) NumLanes() int {
	if self.Lanes == 0 {
		return 1
	} else {
		return int(self.Lanes)
	}
}

// ScalarBits is the width of a single element in bits.
func (self Type) ScalarBits() int {
	return int(self.Bits)
}

// Size is the allocation size in bytes, booleans occupy one byte.
func (self Type) Size() int {
	if self.Kind == T_void {
		return 0
	}
	n := (int(self.Bits) + 7) / 8
	return n * self.NumLanes()
}

func (self Type) String() string {
	var s string
	switch self.Kind {
	case T_void:
		return "void"
	case T_int:
		s = fmt.Sprintf("i%d", self.Bits)
	case T_float:
		s = fmt.Sprintf("f%d", self.Bits)
	case T_ptr:
		s = fmt.Sprintf("ptr(%s)", self.Space)
	case T_payload:
		s = "payload"
	default:
		s = "?"
	}
	if self.Lanes > 1 {
		return fmt.Sprintf("<%d x %s>", self.Lanes, s)
	} else {
		return s
	}
}
