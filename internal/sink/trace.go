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
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Tracer writes human readable decisions to a writer. A nil *Tracer discards
// everything, so callers never need to check.
type Tracer struct {
	w   io.Writer
	cfg *spew.ConfigState
}

func NewTracer(w io.Writer) *Tracer {
	if w == nil {
		return nil
	}
	return &Tracer{
		w: w,
		cfg: &spew.ConfigState{
			Indent:                  "    ",
			SortKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			DisableMethods:          false,
		},
	}
}

func (self *Tracer) Printf(format string, args ...interface{}) {
	if self != nil {
		fmt.Fprintf(self.w, format+"\n", args...)
	}
}

// Dump writes a structured record under a heading.
func (self *Tracer) Dump(title string, v ...interface{}) {
	if self != nil {
		fmt.Fprintf(self.w, "%s:\n", title)
		self.cfg.Fdump(self.w, v...)
	}
}

func (self *Tracer) Enabled() bool {
	return self != nil
}
