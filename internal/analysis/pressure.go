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

// Pressure estimates the register footprint of blocks and loops from the
// current liveness of the function. Uniform values occupy a single lane, every
// other value occupies one lane per SIMD channel.
type Pressure struct {
	fn  *ir.Func
	uni UniformityOracle
	reg int
}

func NewPressure(fn *ir.Func, uni UniformityOracle, registerBytes int) *Pressure {
	if registerBytes <= 0 {
		panic("pressure: register size must be positive")
	}
	return &Pressure{
		fn:  fn,
		uni: uni,
		reg: registerBytes,
	}
}

func (self *Pressure) ValueBytes(r ir.Reg) int {
	if !r.IsValue() {
		return 0
	}
	n := self.fn.TypeOf(r).Size()
	if self.uni != nil && self.uni.IsUniform(r) {
		return n
	} else {
		return n * self.fn.Width
	}
}

func (self *Pressure) BytesToRegisters(nb int) int {
	if nb <= 0 {
		return 0
	} else {
		return (nb + self.reg - 1) / self.reg
	}
}

// SetBytes is the total footprint of rs in bytes.
func (self *Pressure) SetBytes(rs RegSet) int {
	n := 0
	for r := range rs {
		n += self.ValueBytes(r)
	}
	return n
}

func (self *Pressure) peak(lv *Liveness, bb *ir.BasicBlock) int {
	live := lv.Out[bb].Clone()
	nb := self.SetBytes(live)
	max := nb

	/* walk the block bottom-up */
	body := blockBody(bb)
	for i := len(body) - 1; i >= 0; i-- {
		if r, ok := ir.Value(body[i]); ok && live.Has(r) {
			live.Remove(r)
			nb -= self.ValueBytes(r)
		}
		for _, r := range ir.Operands(body[i]) {
			if !live.Has(r) {
				live.Add(r)
				nb += self.ValueBytes(r)
			}
		}
		if nb > max {
			max = nb
		}
	}

	/* phi results are live right after the phis */
	if len(bb.Phi) != 0 {
		for _, v := range bb.Phi {
			if !live.Has(v.R) {
				nb += self.ValueBytes(v.R)
			}
		}
		if nb > max {
			max = nb
		}
	}
	return max
}

// BlockPressure is the maximum number of bytes live at any point of bb.
func (self *Pressure) BlockPressure(bb *ir.BasicBlock) int {
	return self.peak(ComputeLiveness(self.fn), bb)
}

// LoopPressure is the maximum pressure of any block in l, in registers.
func (self *Pressure) LoopPressure(l *Loop) int {
	lv := ComputeLiveness(self.fn)
	max := 0
	for _, bb := range l.Blocks {
		if n := self.peak(lv, bb); n > max {
			max = n
		}
	}
	return self.BytesToRegisters(max)
}

// MaxPressure is the maximum pressure of the whole function, in registers.
func (self *Pressure) MaxPressure() int {
	lv := ComputeLiveness(self.fn)
	max := 0
	for _, bb := range self.fn.Blocks {
		if n := self.peak(lv, bb); n > max {
			max = n
		}
	}
	return self.BytesToRegisters(max)
}
