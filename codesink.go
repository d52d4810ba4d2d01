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

// Package codesink moves instructions of a SIMD kernel closer to their uses to
// lower register pressure. Basic sinking pushes values down the dominator
// tree, loop sinking pulls loop invariant values from preheaders back into
// loops that run out of registers.
package codesink

import (
	"github.com/cloudwego/codesink/internal/analysis"
	"github.com/cloudwego/codesink/internal/opts"
	"github.com/cloudwego/codesink/internal/sink"
	"github.com/cloudwego/codesink/ir"
)

// Stats describes what a single Run did.
type Stats = sink.Stats

type (
	// Loop is a natural loop of the function being sunk, as handed to
	// PressureOracle.LoopPressure.
	Loop = analysis.Loop

	AliasOracle      = analysis.AliasOracle
	PressureOracle   = analysis.PressureOracle
	UniformityOracle = analysis.UniformityOracle
)

// Run sinks the instructions of fn in place. Basic sinking runs to a fixed
// point first, then every loop is processed outer loops first. The function
// either ends up with lower estimated pressure or is left unchanged.
func Run(fn *ir.Func, options ...Option) Stats {
	o := opts.GetDefaultOptions()
	for _, fp := range options {
		fp(&o)
	}

	/* both passes share the structural analyses, the CFG never changes */
	ctx := sink.NewContext(fn, o, sink.Oracles{
		Alias:    o.Alias,
		Pressure: o.Pressure,
		Uniform:  o.Uniform,
	})
	sink.NewCodeSinking(ctx).Apply()
	sink.NewLoopSinking(ctx).Apply()

	/* publish the final pressure for the register allocator */
	ctx.Stats.MaxPressure = ctx.Oracles.Pressure.MaxPressure()
	return *ctx.Stats
}

// Verify checks that every use of a value is dominated by its definition.
func Verify(fn *ir.Func) error {
	du := ir.BuildDefUse(fn)
	dt := analysis.BuildDominatorTree(fn)
	for _, bb := range fn.Blocks {
		if !dt.Reachable(bb) {
			continue
		}

		/* phi operands are used at the end of the incoming block */
		for _, p := range bb.Phi {
			for _, in := range p.Incoming() {
				if r := *p.V[in]; r.IsValue() {
					if d := du.Def(r); d != nil && dt.Reachable(in) && !dt.Dominates(fn.BlockOf(d), in) {
						return &DominanceError{Value: r, Block: bb.Id, Use: p.String()}
					}
				}
			}
		}

		/* everything else at its own position */
		for _, v := range append(append([]ir.IrNode(nil), bb.Ins...), bb.Term) {
			if v == nil {
				continue
			}
			for _, r := range ir.Operands(v) {
				d := du.Def(r)
				if d == nil {
					continue
				}
				if db := fn.BlockOf(d); db == bb {
					if _, phi := d.(*ir.IrPhi); !phi && !fn.Comes(d, v) {
						return &DominanceError{Value: r, Block: bb.Id, Use: v.String()}
					}
				} else if !dt.Dominates(db, bb) {
					return &DominanceError{Value: r, Block: bb.Id, Use: v.String()}
				}
			}
		}
	}
	return nil
}
