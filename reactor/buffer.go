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

//go:build linux
// +build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

const (
	cheapPrepend = 8
	initialSize  = 1024
)

// Buffer is a resizable user-space byte buffer laid out as
// [prepend | readable | writable], with cheapPrepend reserved bytes ahead
// of the readable region so headers can be prepended without a copy.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer constructs a Buffer with the default initial capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(initialSize)
}

// NewBufferSize constructs a Buffer with a caller-chosen initial writable
// capacity (plus the fixed prepend reserve).
func NewBufferSize(initialCap int) *Buffer {
	return &Buffer{
		buf:    make([]byte, cheapPrepend+initialCap),
		reader: cheapPrepend,
		writer: cheapPrepend,
	}
}

// ReadableBytes returns the number of unread content bytes.
func (b *Buffer) ReadableBytes() int { return b.writer - b.reader }

// WritableBytes returns the number of free bytes after the writer index.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writer }

// PrependableBytes returns how many bytes precede the reader index.
func (b *Buffer) PrependableBytes() int { return b.reader }

// Peek returns the unread content without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.reader:b.writer] }

// BeginWrite returns the writable tail, sized WritableBytes().
func (b *Buffer) BeginWrite() []byte { return b.buf[b.writer:] }

// RetrieveAll discards all readable content.
func (b *Buffer) RetrieveAll() {
	b.reader = cheapPrepend
	b.writer = cheapPrepend
}

// Retrieve consumes up to n bytes of readable content.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.reader += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAllAsString consumes and returns all readable content as a string.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// RetrieveAsString consumes and returns n bytes of readable content.
func (b *Buffer) RetrieveAsString(n int) string {
	s := string(b.buf[b.reader : b.reader+n])
	b.Retrieve(n)
	return s
}

// EnsureWritableBytes grows the buffer, if needed, so WritableBytes() >= n.
func (b *Buffer) EnsureWritableBytes(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// Append copies data onto the writable tail, growing the buffer if needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritableBytes(len(data))
	copy(b.buf[b.writer:], data)
	b.writer += len(data)
}

// makeSpace implements the buffer's growth policy (spec.md §3 Buffer):
// shift the readable region down to the prepend mark if the combined
// reclaimable prepend slack and writable tail already cover n bytes;
// otherwise grow the backing slice to exactly fit.
func (b *Buffer) makeSpace(n int) {
	if b.PrependableBytes()-cheapPrepend+b.WritableBytes() >= n {
		readable := b.ReadableBytes()
		copy(b.buf[cheapPrepend:], b.buf[b.reader:b.writer])
		b.reader = cheapPrepend
		b.writer = b.reader + readable
		return
	}
	grown := make([]byte, b.writer+n)
	copy(grown, b.buf)
	b.buf = grown
}

// ReadFd reads once from fd into the buffer using scatter I/O: the
// writable tail plus a 64 KiB stack spill, so the kernel is drained in one
// syscall even when the buffer itself is still small (spec.md §4.6).
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extra [65536]byte

	writable := b.WritableBytes()
	var iovs []unix.Iovec
	if writable > 0 {
		iovs = append(iovs, unix.Iovec{Base: &b.buf[b.writer]})
		iovs[0].SetLen(writable)
	}

	useExtra := writable < len(extra)
	if useExtra {
		iovs = append(iovs, unix.Iovec{Base: &extra[0]})
		iovs[len(iovs)-1].SetLen(len(extra))
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return n, err
	}
	if n <= writable {
		b.writer += n
	} else {
		b.writer = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteFd writes the full readable region to fd in one syscall attempt.
func (b *Buffer) WriteFd(fd int) (int, error) {
	return unix.Write(fd, b.Peek())
}
