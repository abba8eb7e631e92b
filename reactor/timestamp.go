// Copyright 2023 Kami
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reactor

import (
	"fmt"
	"time"
)

// Timestamp is a microsecond-resolution instant, independent of time.Time so
// that the poller and event loop never pay for monotonic/wall split logic
// they don't need.
type Timestamp struct {
	microSecondsSinceEpoch int64
}

// Now returns the current time.
func Now() Timestamp {
	return Timestamp{microSecondsSinceEpoch: time.Now().UnixMicro()}
}

// MicroSecondsSinceEpoch returns the raw microsecond count.
func (t Timestamp) MicroSecondsSinceEpoch() int64 {
	return t.microSecondsSinceEpoch
}

// Valid reports whether the timestamp has ever been set.
func (t Timestamp) Valid() bool {
	return t.microSecondsSinceEpoch > 0
}

// Format renders the timestamp as "YYYY/MM/DD HH:MM:SS".
func (t Timestamp) Format() string {
	tm := time.UnixMicro(t.microSecondsSinceEpoch).UTC()
	return fmt.Sprintf("%04d/%02d/%02d %02d:%02d:%02d",
		tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
}

// Before reports whether t is earlier than other.
func (t Timestamp) Before(other Timestamp) bool {
	return t.microSecondsSinceEpoch < other.microSecondsSinceEpoch
}
