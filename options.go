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

package codesink

import (
	"fmt"
	"io"

	"github.com/cloudwego/codesink/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithCodeSinking turns basic sinking on or off.
func WithCodeSinking(enable bool) Option {
	return func(o *opts.Options) { o.DisableCodeSinking = !enable }
}

// WithLoopSinking turns loop sinking on or off.
func WithLoopSinking(enable bool) Option {
	return func(o *opts.Options) { o.DisableLoopSinking = !enable }
}

// WithGeneralSinking controls whether basic sinking moves arithmetic, loads
// and calls. When turned off only compares and shader inputs are moved.
//
// The default value of this option is "true".
func WithGeneralSinking(enable bool) Option {
	return func(o *opts.Options) { o.EnableGeneralSinking = enable }
}

// WithMinFunctionSize sets the instruction counts below which basic sinking
// and loop sinking leave a function alone.
//
// The default values are "32" and "100".
func WithMinFunctionSize(code int, loop int) Option {
	if code < 0 || loop < 0 {
		panic(fmt.Sprintf("codesink: invalid minimum function size: %d, %d", code, loop))
	} else {
		return func(o *opts.Options) { o.CodeSinkingMinSize, o.LoopSinkingMinSize = code, loop }
	}
}

// WithPressureMargin sets how many bytes the live-out footprint of a block may
// grow before basic sinking reverts the block.
//
// The default value of this option is "64".
func WithPressureMargin(nb int) Option {
	if nb < 0 {
		panic(fmt.Sprintf("codesink: invalid pressure margin: %d", nb))
	} else {
		return func(o *opts.Options) { o.PressureMargin = nb }
	}
}

// WithRegisterBudget sets the number of registers available to a thread.
// Loop sinking starts once a loop exceeds the budget by the threshold delta,
// and aims for the budget minus the loop sink margin.
//
// The default value of this option is "128".
func WithRegisterBudget(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("codesink: invalid register budget: %d", n))
	} else {
		return func(o *opts.Options) { o.RegisterBudget = n }
	}
}

// WithRegisterBytes sets the size of a single register in bytes.
//
// The default value of this option is "32".
func WithRegisterBytes(nb int) Option {
	if nb <= 0 {
		panic(fmt.Sprintf("codesink: invalid register size: %d", nb))
	} else {
		return func(o *opts.Options) { o.RegisterBytes = nb }
	}
}

// WithExternalPressure adds registers that are live across every loop but
// invisible to the estimator, e.g. reserved by the caller.
func WithExternalPressure(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("codesink: invalid external pressure: %d", n))
	} else {
		return func(o *opts.Options) { o.ExternalPressure = n }
	}
}

// WithLoopSinkMargin sets how far below the register budget loop sinking
// tries to get.
//
// The default value of this option is "10".
func WithLoopSinkMargin(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("codesink: invalid loop sink margin: %d", n))
	} else {
		return func(o *opts.Options) { o.LoopSinkMargin = n }
	}
}

// WithLoopSinkThreshold sets how far above the register budget a loop must be
// before loop sinking starts, and above which an attempt is reverted when the
// budget may still be increased.
//
// The default values are "30" and "15".
func WithLoopSinkThreshold(delta int, rollback int) Option {
	if delta < 0 || rollback < 0 {
		panic(fmt.Sprintf("codesink: invalid loop sink thresholds: %d, %d", delta, rollback))
	} else {
		return func(o *opts.Options) { o.LoopSinkThresholdDelta, o.LoopSinkRollbackDelta = delta, rollback }
	}
}

// WithMinSave sets the smallest saving that makes a tentative group worth
// sinking: plain groups must save n 32-bit values per lane, uniform groups
// must outnumber their new operands by uniform.
//
// The default values are "1" and "6".
func WithMinSave(n int, uniform int) Option {
	if n < 0 || uniform < 0 {
		panic(fmt.Sprintf("codesink: invalid minimum save: %d, %d", n, uniform))
	} else {
		return func(o *opts.Options) { o.LoopSinkMinSave, o.LoopSinkMinSaveUniform = n, uniform }
	}
}

// WithMaxLoopSinkIterations bounds the number of sinking rounds per loop.
//
// The default value of this option is "10".
func WithMaxLoopSinkIterations(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("codesink: invalid loop sink iterations: %d", n))
	} else {
		return func(o *opts.Options) { o.LoopSinkMaxIterations = n }
	}
}

// WithLoadSinking controls whether loop sinking may move memory reads into
// loops once nothing else is left to move.
//
// The default value of this option is "true".
func WithLoadSinking(enable bool) Option {
	return func(o *opts.Options) { o.EnableLoadsLoopSink = enable }
}

// WithAggressiveRescheduling enables a last rescheduling round for loops that
// are still above target, which may split independent matrix-op macros.
func WithAggressiveRescheduling(enable bool) Option {
	return func(o *opts.Options) { o.LateRescheduling = enable }
}

// WithForceLoopSinking sinks every legal candidate regardless of pressure.
func WithForceLoopSinking(enable bool) Option {
	return func(o *opts.Options) { o.ForceLoopSinking = enable }
}

// WithTrace writes a human readable log of every decision to w. Tracing never
// changes the result.
func WithTrace(w io.Writer) Option {
	return func(o *opts.Options) { o.Trace = w }
}

// WithAliasOracle replaces the built-in type and base pointer alias analysis.
// A nil oracle restores the default.
func WithAliasOracle(aa AliasOracle) Option {
	return func(o *opts.Options) { o.Alias = aa }
}

// WithPressureOracle replaces the built-in liveness based pressure estimate,
// typically with the register allocator's own model. A nil oracle restores
// the default.
func WithPressureOracle(po PressureOracle) Option {
	return func(o *opts.Options) { o.Pressure = po }
}

// WithUniformityOracle replaces the built-in divergence analysis. A nil oracle
// restores the default.
func WithUniformityOracle(uo UniformityOracle) Option {
	return func(o *opts.Options) { o.Uniform = uo }
}

// SetRegisterBudget sets the default register budget for all runs from now on.
//
// This value can also be configured with the `CODESINK_REGISTER_BUDGET`
// environment variable.
//
// Returns the old opts.RegisterBudget value.
func SetRegisterBudget(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("codesink: invalid register budget: %d", n))
	}
	n, opts.RegisterBudget = opts.RegisterBudget, n
	return n
}

// SetPressureMargin sets the default pressure margin for all runs from now on.
//
// This value can also be configured with the `CODESINK_PRESSURE_MARGIN`
// environment variable.
//
// Returns the old opts.PressureMargin value.
func SetPressureMargin(nb int) int {
	if nb < 0 {
		panic(fmt.Sprintf("codesink: invalid pressure margin: %d", nb))
	}
	nb, opts.PressureMargin = opts.PressureMargin, nb
	return nb
}
