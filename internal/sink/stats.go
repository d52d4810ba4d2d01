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

// A Stats records what a code sinking run did to a function.
type Stats struct {
	Moved            int // instructions relocated to another block
	GradientSunk     int // gradient computing samples moved out of their block
	LocalMoved       int // instructions moved within their block
	BlocksRolledBack int
	LoopsSunk        int
	LoopsRolledBack  int
	LoopSunk         int // instructions moved into loops
	MaxPressure      int // in registers, after the run
}
