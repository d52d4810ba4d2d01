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

type Reg uint64

const (
	_B_kind = 60
	_M_kind = 0x0f
)

const (
	_R_kind  = _M_kind << _B_kind
	_R_index = (1 << _B_kind) - 1
)

const (
	K_value = 0
	K_arg   = 1
	K_imm   = 2
	K_undef = 3
	K_zero  = 4
)

const (
	Ru Reg = K_undef << _B_kind
	Rz Reg = K_zero << _B_kind
)

func mkreg(kind uint64, index uint64) Reg {
	return Reg(((kind & _M_kind) << _B_kind) | (index & _R_index))
}

// Rv returns the SSA value register with index i.
func Rv(i int) Reg {
	if i < 0 {
		panic("ir: negative value index")
	} else {
		return mkreg(K_value, uint64(i))
	}
}

// Ra returns the register that holds the i-th function argument.
func Ra(i int) Reg {
	if i < 0 {
		panic("ir: negative argument index")
	} else {
		return mkreg(K_arg, uint64(i))
	}
}

// Ri returns an immediate operand, v must fit in 60 bits.
func Ri(v int64) Reg {
	return mkreg(K_imm, uint64(v))
}

func (self Reg) Kind() uint8 {
	return uint8((self & _R_kind) >> _B_kind)
}

func (self Reg) Index() int {
	return int(self & _R_index)
}

// Imm sign-extends the 60-bit immediate payload.
func (self Reg) Imm() int64 {
	return int64(self<<(64-_B_kind)) >> (64 - _B_kind)
}

// IsValue reports whether the register carries a run-time value that needs a
// physical register, i.e. an SSA value or a function argument.
func (self Reg) IsValue() bool {
	k := self.Kind()
	return k == K_value || k == K_arg
}

// IsConst reports immediates and undef.
func (self Reg) IsConst() bool {
	k := self.Kind()
	return k == K_imm || k == K_undef
}

func (self Reg) String() string {
	switch self.Kind() {
	case K_value:
		return fmt.Sprintf("%%%d", self.Index())
	case K_arg:
		return fmt.Sprintf("%%arg%d", self.Index())
	case K_imm:
		return fmt.Sprintf("$%d", self.Imm())
	case K_undef:
		return "undef"
	case K_zero:
		return "_"
	default:
		return fmt.Sprintf("%%?%d.%d", self.Kind(), self.Index())
	}
}
