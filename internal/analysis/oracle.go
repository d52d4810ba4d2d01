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

type AliasOracle interface {
	MayAlias(a ir.Reg, b ir.Reg) bool
	ReadOnly(ptr ir.Reg) bool
}

// PressureOracle estimates register pressure. Loop and maximum figures are in
// registers, value sizes in bytes.
type PressureOracle interface {
	LoopPressure(l *Loop) int
	MaxPressure() int
	ValueBytes(r ir.Reg) int
	BytesToRegisters(nb int) int
}

type UniformityOracle interface {
	IsUniform(r ir.Reg) bool
}

var (
	_ AliasOracle      = (*Alias)(nil)
	_ PressureOracle   = (*Pressure)(nil)
	_ UniformityOracle = (*Uniformity)(nil)
)
