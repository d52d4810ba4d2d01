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
	"github.com/cloudwego/codesink/internal/analysis"
	"github.com/cloudwego/codesink/internal/opts"
	"github.com/cloudwego/codesink/ir"
)

type (
	AliasOracle      = analysis.AliasOracle
	PressureOracle   = analysis.PressureOracle
	UniformityOracle = analysis.UniformityOracle
)

// Oracles bundles the external queries the engines depend on. Nil fields are
// filled in with the default analyses.
type Oracles struct {
	Alias    AliasOracle
	Pressure PressureOracle
	Uniform  UniformityOracle
}

// Context is the per-function state shared by both engines. The CFG never
// changes while sinking, so the structural analyses stay valid throughout.
type Context struct {
	Fn      *ir.Func
	Uses    *ir.DefUse
	Dom     *analysis.DominatorTree
	PostDom *analysis.PostDominatorTree
	Loops   *analysis.LoopInfo
	Opts    opts.Options
	Oracles Oracles
	Trace   *Tracer
	Stats   *Stats
}

func NewContext(fn *ir.Func, o opts.Options, or Oracles) *Context {
	du := ir.BuildDefUse(fn)
	dt := analysis.BuildDominatorTree(fn)

	/* default oracles */
	if or.Uniform == nil {
		or.Uniform = analysis.ComputeUniformity(fn, du)
	}
	if or.Alias == nil {
		or.Alias = analysis.NewAlias(fn, du)
	}
	if or.Pressure == nil {
		or.Pressure = analysis.NewPressure(fn, or.Uniform, o.RegisterBytes)
	}

	/* build the context */
	return &Context{
		Fn:      fn,
		Uses:    du,
		Dom:     dt,
		PostDom: analysis.BuildPostDominatorTree(fn),
		Loops:   analysis.BuildLoopInfo(fn, dt),
		Opts:    o,
		Oracles: or,
		Trace:   NewTracer(o.Trace),
		Stats:   new(Stats),
	}
}

// UsedOutside reports whether any use of v lies outside bb. A phi use through
// an incoming edge from bb counts as inside.
func (self *Context) UsedOutside(v ir.IrNode, bb *ir.BasicBlock) bool {
	r, ok := ir.Value(v)
	if !ok {
		return false
	}
	for _, u := range self.Uses.Uses(r) {
		if u.IsPhi() {
			if u.Pred != bb {
				return true
			}
		} else if self.Fn.BlockOf(u.Node) != bb {
			return true
		}
	}
	return false
}
