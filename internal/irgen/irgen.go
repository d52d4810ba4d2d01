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

// Package irgen generates random structured programs for property tests.
package irgen

import (
	"github.com/brianvoe/gofakeit/v6"
	"github.com/cloudwego/codesink/ir"
)

type Config struct {
	Width   int
	Depth   int
	MaxIns  int
	Memory  bool
	Vectors bool
}

var DefaultConfig = Config{
	Width:   16,
	Depth:   3,
	MaxIns:  6,
	Memory:  true,
	Vectors: true,
}

type _Gen struct {
	f   *gofakeit.Faker
	b   *ir.Builder
	cfg Config
	buf ir.Reg
	cst ir.Reg
}

// Func returns a random function built from straight-line code, diamonds and
// normalized loops. Every value is used at least by the final return.
func Func(seed int64, cfg Config) *ir.Func {
	g := &_Gen{
		f:   gofakeit.New(seed),
		b:   ir.NewBuilder("random", cfg.Width),
		cfg: cfg,
	}
	x := g.b.Arg(0, ir.I32)
	y := g.b.Arg(1, ir.I32)
	g.buf = g.b.Arg(2, ir.Ptr(ir.SpaceGlobal))
	g.cst = g.b.Arg(3, ir.Ptr(ir.SpaceConstant))
	avail := g.region([]ir.Reg{x, y}, cfg.Depth)
	g.b.Return(g.pick(avail), g.pick(avail))
	return g.b.Func()
}

func (self *_Gen) pick(avail []ir.Reg) ir.Reg {
	return avail[self.f.Number(0, len(avail)-1)]
}

func (self *_Gen) straight(avail []ir.Reg) []ir.Reg {
	n := self.f.Number(1, self.cfg.MaxIns)
	for i := 0; i < n; i++ {
		var r ir.Reg
		switch self.f.Number(0, 9) {
		case 0:
			c := self.b.Compare(ir.IrCmpLt, self.pick(avail), self.pick(avail))
			r = self.b.Select(c, self.pick(avail), self.pick(avail))
		case 1:
			r = self.b.Unary(ir.IrOpNegate, ir.I32, self.pick(avail))
		case 2:
			if !self.cfg.Memory {
				r = self.b.Binary(ir.IrOpXor, ir.I32, self.pick(avail), ir.Ri(3))
			} else {
				r = self.b.Load(ir.I32, self.b.LEA(self.cst, self.pick(avail)))
			}
		case 3:
			if !self.cfg.Memory {
				r = self.b.Binary(ir.IrOpOr, ir.I32, self.pick(avail), self.pick(avail))
			} else {
				p := self.b.LEA(self.buf, self.pick(avail))
				r = self.b.Load(ir.I32, p)
				self.b.Store(self.pick(avail), p)
			}
		case 4:
			if !self.cfg.Vectors {
				r = self.b.Binary(ir.IrOpShl, ir.I32, self.pick(avail), ir.Ri(1))
			} else {
				v := self.b.InsertElement(ir.Ru, self.pick(avail), ir.Ri(0))
				self.b.Func().SetType(v, ir.Vec(ir.I32, 2))
				v = self.b.InsertElement(v, self.pick(avail), ir.Ri(1))
				r = self.b.ExtractElement(v, ir.Ri(int64(self.f.Number(0, 1))))
			}
		case 5:
			r = self.b.Cast(ir.IrCastSExt, ir.I64, self.pick(avail))
			r = self.b.Cast(ir.IrCastTrunc, ir.I32, r)
		default:
			op := []ir.IrBinaryOp{ir.IrOpAdd, ir.IrOpSub, ir.IrOpMul, ir.IrOpAnd}[self.f.Number(0, 3)]
			r = self.b.Binary(op, ir.I32, self.pick(avail), self.pick(avail))
		}
		avail = append(avail, r)
	}
	return avail
}

func (self *_Gen) region(avail []ir.Reg, depth int) []ir.Reg {
	avail = self.straight(avail)
	if depth <= 0 {
		return avail
	}
	switch self.f.Number(0, 2) {
	case 0:
		avail = self.diamond(avail, depth)
	case 1:
		avail = self.loop(avail, depth)
	}
	return self.straight(avail)
}

func (self *_Gen) diamond(avail []ir.Reg, depth int) []ir.Reg {
	then, other, join := self.b.Block(), self.b.Block(), self.b.Block()
	self.b.Branch(self.b.Compare(ir.IrCmpNe, self.pick(avail), ir.Ri(0)), then, other)

	/* both arms get their own scope */
	self.b.SetBlock(then)
	tv := self.region(avail, depth-1)
	tb := self.b.Current()
	self.b.Jump(join)
	self.b.SetBlock(other)
	fv := self.region(avail, depth-1)
	fb := self.b.Current()
	self.b.Jump(join)

	/* merge one value from each arm */
	self.b.SetBlock(join)
	phi := self.b.Phi(ir.I32)
	phi.Add(tb, tv[len(tv)-1])
	phi.Add(fb, fv[len(fv)-1])
	return append(avail, phi.R)
}

func (self *_Gen) loop(avail []ir.Reg, depth int) []ir.Reg {
	pre, hdr, exit := self.b.Block(), self.b.Block(), self.b.Block()
	self.b.Jump(pre)

	/* loop invariant values in the preheader */
	self.b.SetBlock(pre)
	inv := self.straight(avail)
	self.b.Jump(hdr)

	/* induction variable */
	self.b.SetBlock(hdr)
	iv := self.b.Phi(ir.I32)
	iv.Add(pre, ir.Ri(0))
	body := self.region(append(inv, iv.R), depth-1)
	next := self.b.Binary(ir.IrOpAdd, ir.I32, iv.R, ir.Ri(1))
	if self.cfg.Memory {
		self.b.Store(self.pick(body), self.b.LEA(self.buf, next))
	}
	latch := self.b.Current()
	iv.Add(latch, next)
	self.b.Branch(self.b.Compare(ir.IrCmpLt, next, self.pick(avail)), hdr, exit)

	/* only values dominating the exit survive */
	self.b.SetBlock(exit)
	return append(inv, next)
}
