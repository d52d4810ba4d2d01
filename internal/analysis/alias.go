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
)

// Alias is a type-based alias oracle. Pointers into different address spaces
// never alias, neither do pointers derived from distinct stack allocations.
type Alias struct {
	fn *ir.Func
	du *ir.DefUse
}

func NewAlias(fn *ir.Func, du *ir.DefUse) *Alias {
	return &Alias{fn: fn, du: du}
}

// base strips address arithmetic and pointer casts off p.
func (self *Alias) base(p ir.Reg) ir.Reg {
	for i := 0; i < 64; i++ {
		switch v := self.du.Def(p).(type) {
		case *ir.IrLEA:
			p = v.Mem
		case *ir.IrCast:
			if v.Op != ir.IrCastBitcast && v.Op != ir.IrCastAddrSpace {
				return p
			}
			p = v.V
		default:
			return p
		}
	}
	return p
}

func (self *Alias) isAlloca(p ir.Reg) bool {
	_, ok := self.du.Def(p).(*ir.IrAlloca)
	return ok
}

func (self *Alias) MayAlias(a ir.Reg, b ir.Reg) bool {
	ta := self.fn.TypeOf(a)
	tb := self.fn.TypeOf(b)

	/* different concrete address spaces are disjoint */
	if ta.IsPtr() && tb.IsPtr() && ta.Space != tb.Space {
		if ta.Space != ir.SpaceGeneric && tb.Space != ir.SpaceGeneric {
			return false
		}
	}

	/* stack allocations never alias anything but themselves */
	x, y := self.base(a), self.base(b)
	if x == y {
		return true
	}
	return !self.isAlloca(x) && !self.isAlloca(y)
}

// ReadOnly reports pointers into buffer classes the kernel cannot write.
func (self *Alias) ReadOnly(p ir.Reg) bool {
	t := self.fn.TypeOf(p)
	return t.IsPtr() && t.Space.ReadOnly()
}
