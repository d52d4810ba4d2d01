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

	"github.com/cloudwego/codesink/ir"
)

// DominanceError occures when a value is used at a point its definition does
// not dominate.
type DominanceError struct {
	Value ir.Reg
	Block int
	Use   string
}

func (self DominanceError) Error() string {
	return fmt.Sprintf("DominanceError(%s): not dominated at bb_%d: %s", self.Value, self.Block, self.Use)
}
