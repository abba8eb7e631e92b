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

// ConnectionFunc fires at connection up/down transitions.
type ConnectionFunc func(conn *TcpConnection)

// MessageFunc fires when input is available on a connection.
type MessageFunc func(conn *TcpConnection, input *Buffer, receiveTime Timestamp)

// WriteCompleteFunc fires once a connection's output buffer has fully drained.
type WriteCompleteFunc func(conn *TcpConnection)

// HighWaterMarkFunc fires when pending output crosses the configured
// watermark, carrying the projected output size.
type HighWaterMarkFunc func(conn *TcpConnection, pendingBytes int)

// closeFunc is the internal TcpServer hook invoked from a connection's close
// path; it is not user-facing (users install ConnectionFunc instead).
type closeFunc func(conn *TcpConnection)
