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
	"github.com/cloudwego/codesink/ir"
)

// Safety is the movability verdict of a single instruction.
type Safety struct {
	Movable         bool
	AliasConcern    bool
	ReducesPressure bool
}

var (
	_Unmovable = Safety{}
	_Pure      = Safety{Movable: true}
	_Reducing  = Safety{Movable: true, ReducesPressure: true}
	_Aliased   = Safety{Movable: true, AliasConcern: true}
)

// Classify decides whether v may be moved away from its current position.
// Barriers tells whether a memory write has been seen between v and the scan
// point, which blocks every alias-concerned instruction. General turns on
// sinking of everything except compares and shader inputs.
func Classify(fn *ir.Func, v ir.IrNode, barriers bool, general bool, aa AliasOracle) Safety {
	switch p := v.(type) {
	case *ir.IrAlloca, *ir.IrExtractValue:
		return _Unmovable
	case *ir.IrCall:
		if p.Convergent {
			return _Unmovable
		}
	case *ir.IrPhi, ir.IrTerminator, *ir.IrStore, *ir.IrPayloadSet, *ir.IrPrefetch, *ir.IrDebugValue:
		return _Unmovable
	case *ir.IrCompare, *ir.IrInput:
		return _Reducing
	}

	/* only the always-sink kinds above move in restricted mode */
	if !general {
		return _Unmovable
	}

	/* everything else, by kind */
	switch p := v.(type) {
	case *ir.IrCast:
		if castReducesPressure(fn, p) {
			return _Reducing
		} else {
			return _Pure
		}
	case *ir.IrLEA, *ir.IrInsertElement, *ir.IrExtractElement, *ir.IrInsertValue:
		return _Pure
	case *ir.IrUnaryExpr, *ir.IrBinaryExpr, *ir.IrSelect, *ir.IrLocalId:
		return _Pure
	case *ir.IrLoad:
		return classifyRead(p.Volatile, aa.ReadOnly(p.Mem), true, barriers)
	case *ir.IrSample:
		return classifyRead(false, aa.ReadOnly(p.Tex), fn.TypeOf(p.Tex).IsPtr(), barriers)
	case *ir.IrCall:
		return classifyCall(p, barriers)
	default:
		return _Unmovable
	}
}

func classifyRead(volatile bool, readonly bool, ptr bool, barriers bool) Safety {
	switch {
	case volatile:
		return _Unmovable
	case readonly || !ptr:
		return _Pure
	case barriers:
		return _Unmovable
	default:
		return _Aliased
	}
}

func classifyCall(p *ir.IrCall, barriers bool) Safety {
	switch {
	case p.R == ir.Rz || p.WriteMem:
		return _Unmovable
	case !p.ReadMem:
		return _Pure
	case barriers:
		return _Unmovable
	default:
		return _Aliased
	}
}

// castReducesPressure keeps flag lifetimes short. A cast out of a flag only
// trades flag pressure for GRF pressure, a cast into a flag or a widening cast
// is considered a reduction.
func castReducesPressure(fn *ir.Func, p *ir.IrCast) bool {
	src := fn.TypeOf(p.V)
	dst := fn.TypeOf(p.R)
	sb, db := src.ScalarBits()*src.NumLanes(), dst.ScalarBits()*dst.NumLanes()
	switch {
	case src.Kind == ir.T_ptr || dst.Kind == ir.T_ptr || sb == 0 || db == 0:
		return false
	case sb == 1:
		return false
	case db == 1:
		return true
	default:
		return sb < db
	}
}

// IsPointerCast reports casts that only reinterpret an address.
func IsPointerCast(v ir.IrNode) bool {
	if p, ok := v.(*ir.IrCast); ok {
		switch p.Op {
		case ir.IrCastBitcast, ir.IrCastIntToPtr, ir.IrCastPtrToInt, ir.IrCastAddrSpace:
			return true
		}
	}
	return false
}

// ComputesGradient reports samples that derive their own gradients, they are
// the motivating case for moving shader work out of uniform control flow.
func ComputesGradient(v ir.IrNode) bool {
	p, ok := v.(*ir.IrSample)
	return ok && p.Gradient
}
