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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultCodeSinkingMinSize     = 32  // skip functions smaller than 32 instructions
	_DefaultPressureMargin         = 64  // tolerated live-out growth of a block, in bytes
	_DefaultLoopSinkingMinSize     = 100 // skip loop sinking below 100 instructions
	_DefaultRegisterBudget         = 128 // registers available to a SIMD thread
	_DefaultRegisterBytes          = 32  // size of a single register
	_DefaultLoopSinkMargin         = 10  // sink until pressure < budget - 10
	_DefaultLoopSinkThresholdDelta = 30  // sink if pressure > budget + 30
	_DefaultLoopSinkRollbackDelta  = 15  // rollback if pressure > budget + 15
	_DefaultLoopSinkMinSave        = 1   // in 32-bit values
	_DefaultLoopSinkMinSaveUniform = 6   // candidates beyond the operands they pull in
	_DefaultLoopSinkMinMassPercent = 10  // preheader mass, in percent of the excess
	_DefaultLoopSinkMaxIterations  = 10  // rounds per loop
	_DefaultLoadSchedulingInstr    = 20  // backward search distance of loads
	_Default2dLoadSchedulingInstr  = 5   // backward search distance of 2D block reads
)

var (
	CodeSinkingMinSize       = parseOrDefault("CODESINK_MIN_SIZE", _DefaultCodeSinkingMinSize, 0)
	PressureMargin           = parseOrDefault("CODESINK_PRESSURE_MARGIN", _DefaultPressureMargin, 0)
	LoopSinkingMinSize       = parseOrDefault("CODESINK_LOOP_MIN_SIZE", _DefaultLoopSinkingMinSize, 0)
	RegisterBudget           = parseOrDefault("CODESINK_REGISTER_BUDGET", _DefaultRegisterBudget, 1)
	RegisterBytes            = parseOrDefault("CODESINK_REGISTER_BYTES", _DefaultRegisterBytes, 1)
	LoopSinkMargin           = parseOrDefault("CODESINK_LOOP_MARGIN", _DefaultLoopSinkMargin, 0)
	LoopSinkThresholdDelta   = parseOrDefault("CODESINK_LOOP_THRESHOLD_DELTA", _DefaultLoopSinkThresholdDelta, 0)
	LoopSinkRollbackDelta    = parseOrDefault("CODESINK_LOOP_ROLLBACK_DELTA", _DefaultLoopSinkRollbackDelta, 0)
	LoopSinkMinSave          = parseOrDefault("CODESINK_LOOP_MIN_SAVE", _DefaultLoopSinkMinSave, 0)
	LoopSinkMinSaveUniform   = parseOrDefault("CODESINK_LOOP_MIN_SAVE_UNIFORM", _DefaultLoopSinkMinSaveUniform, 0)
	LoopSinkMinMassPercent   = parseOrDefault("CODESINK_LOOP_MIN_MASS_PERCENT", _DefaultLoopSinkMinMassPercent, 0)
	LoopSinkMaxIterations    = parseOrDefault("CODESINK_LOOP_MAX_ITERATIONS", _DefaultLoopSinkMaxIterations, 1)
	LoadSchedulingInstr      = parseOrDefault("CODESINK_LOAD_SCHEDULING_INSTR", _DefaultLoadSchedulingInstr, 0)
	BlockReadSchedulingInstr = parseOrDefault("CODESINK_2D_LOAD_SCHEDULING_INSTR", _Default2dLoadSchedulingInstr, 0)
)

var (
	DisableCodeSinking       = parseBoolOrDefault("CODESINK_DISABLE", false)
	DisableLoopSinking       = parseBoolOrDefault("CODESINK_DISABLE_LOOP", false)
	EnableGeneralSinking     = parseBoolOrDefault("CODESINK_GENERAL", true)
	CanIncreaseBudget        = parseBoolOrDefault("CODESINK_CAN_INCREASE_BUDGET", false)
	ForceLoopSinking         = parseBoolOrDefault("CODESINK_FORCE_LOOP", false)
	EnableLoadsLoopSink      = parseBoolOrDefault("CODESINK_LOOP_LOADS", true)
	ForceLoadsLoopSink       = parseBoolOrDefault("CODESINK_LOOP_FORCE_LOADS", false)
	EnableLoadChain          = parseBoolOrDefault("CODESINK_LOOP_LOAD_CHAIN", true)
	PrepopulateLoadChain     = parseBoolOrDefault("CODESINK_LOOP_PREPOPULATE_LOAD_CHAIN", true)
	EnableLoadsRescheduling  = parseBoolOrDefault("CODESINK_LOOP_LOADS_RESCHEDULING", true)
	CoarserRescheduling      = parseBoolOrDefault("CODESINK_LOOP_COARSER_RESCHEDULING", false)
	Enable2dBlockReads       = parseBoolOrDefault("CODESINK_LOOP_2D_BLOCK_READS", true)
	EnableVectorShuffle      = parseBoolOrDefault("CODESINK_LOOP_VECTOR_SHUFFLE", true)
	ForceRollback            = parseBoolOrDefault("CODESINK_LOOP_FORCE_ROLLBACK", false)
	DisableRollback          = parseBoolOrDefault("CODESINK_LOOP_DISABLE_ROLLBACK", false)
	AvoidSplittingDPAS       = parseBoolOrDefault("CODESINK_LOOP_AVOID_SPLITTING_DPAS", true)
	Force2dBlockReadsMaxSink = parseBoolOrDefault("CODESINK_LOOP_FORCE_2D_MAX_SINK", true)
	LateRescheduling         = parseBoolOrDefault("CODESINK_LOOP_LATE_RESCHEDULING", false)
	SkipDPASMacro            = parseBoolOrDefault("CODESINK_LOOP_SKIP_DPAS_MACRO", false)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("codesink: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("codesink: value too small for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("codesink: invalid value for " + key)
	} else {
		return val
	}
}
