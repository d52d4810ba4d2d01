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
	"io"

	"github.com/cloudwego/codesink/internal/analysis"
)

// Options is the immutable configuration of a single run. Pressure figures
// are in registers unless the name says bytes.
type Options struct {
	DisableCodeSinking   bool
	EnableGeneralSinking bool
	CodeSinkingMinSize   int
	PressureMargin       int // bytes

	DisableLoopSinking bool
	ForceLoopSinking   bool
	LoopSinkingMinSize int
	RegisterBudget     int
	RegisterBytes      int
	CanIncreaseBudget  bool
	ExternalPressure   int

	LoopSinkMargin         int
	LoopSinkThresholdDelta int
	LoopSinkRollbackDelta  int
	LoopSinkMinSave        int
	LoopSinkMinSaveUniform int
	LoopSinkMinMassPercent int
	LoopSinkMaxIterations  int

	EnableLoadsLoopSink      bool
	ForceLoadsLoopSink       bool
	EnableLoadChain          bool
	PrepopulateLoadChain     bool
	EnableLoadsRescheduling  bool
	CoarserRescheduling      bool
	Enable2dBlockReads       bool
	EnableVectorShuffle      bool
	ForceRollback            bool
	DisableRollback          bool
	AvoidSplittingDPAS       bool
	Force2dBlockReadsMaxSink bool
	LateRescheduling         bool
	SkipDPASMacro            bool

	LoadSchedulingInstr      int
	BlockReadSchedulingInstr int

	Trace io.Writer

	/* host supplied oracles, nil means the built-in analysis */
	Alias    analysis.AliasOracle
	Pressure analysis.PressureOracle
	Uniform  analysis.UniformityOracle
}

// SinkThreshold is the loop pressure above which loop sinking starts.
func (self *Options) SinkThreshold() int {
	return self.RegisterBudget + self.LoopSinkThresholdDelta
}

// TargetPressure is the loop pressure loop sinking tries to reach.
func (self *Options) TargetPressure() int {
	return self.RegisterBudget - self.LoopSinkMargin
}

// RollbackThreshold is the loop pressure above which a failed attempt is
// reverted when the budget can still be increased.
func (self *Options) RollbackThreshold() int {
	return self.RegisterBudget + self.LoopSinkRollbackDelta
}

func GetDefaultOptions() Options {
	return Options{
		DisableCodeSinking:       DisableCodeSinking,
		EnableGeneralSinking:     EnableGeneralSinking,
		CodeSinkingMinSize:       CodeSinkingMinSize,
		PressureMargin:           PressureMargin,
		DisableLoopSinking:       DisableLoopSinking,
		ForceLoopSinking:         ForceLoopSinking,
		LoopSinkingMinSize:       LoopSinkingMinSize,
		RegisterBudget:           RegisterBudget,
		RegisterBytes:            RegisterBytes,
		CanIncreaseBudget:        CanIncreaseBudget,
		LoopSinkMargin:           LoopSinkMargin,
		LoopSinkThresholdDelta:   LoopSinkThresholdDelta,
		LoopSinkRollbackDelta:    LoopSinkRollbackDelta,
		LoopSinkMinSave:          LoopSinkMinSave,
		LoopSinkMinSaveUniform:   LoopSinkMinSaveUniform,
		LoopSinkMinMassPercent:   LoopSinkMinMassPercent,
		LoopSinkMaxIterations:    LoopSinkMaxIterations,
		EnableLoadsLoopSink:      EnableLoadsLoopSink,
		ForceLoadsLoopSink:       ForceLoadsLoopSink,
		EnableLoadChain:          EnableLoadChain,
		PrepopulateLoadChain:     PrepopulateLoadChain,
		EnableLoadsRescheduling:  EnableLoadsRescheduling,
		CoarserRescheduling:      CoarserRescheduling,
		Enable2dBlockReads:       Enable2dBlockReads,
		EnableVectorShuffle:      EnableVectorShuffle,
		ForceRollback:            ForceRollback,
		DisableRollback:          DisableRollback,
		AvoidSplittingDPAS:       AvoidSplittingDPAS,
		Force2dBlockReadsMaxSink: Force2dBlockReadsMaxSink,
		LateRescheduling:         LateRescheduling,
		SkipDPASMacro:            SkipDPASMacro,
		LoadSchedulingInstr:      LoadSchedulingInstr,
		BlockReadSchedulingInstr: BlockReadSchedulingInstr,
	}
}
