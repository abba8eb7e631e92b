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

// ListenOption controls whether a TcpServer's listening socket sets
// SO_REUSEPORT.
type ListenOption int

const (
	// NoReusePort is the default: only one process may bind the port.
	NoReusePort ListenOption = iota
	// ReusePort lets multiple processes/sockets share the listening port.
	ReusePort
)
