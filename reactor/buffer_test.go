//go:build linux
// +build linux

package reactor

import "testing"

func TestBufferAppendAndRetrieve(t *testing.T) {
	b := NewBuffer()
	if b.ReadableBytes() != 0 {
		t.Fatalf("new buffer ReadableBytes = %d, want 0", b.ReadableBytes())
	}
	b.Append([]byte("hello"))
	if b.ReadableBytes() != 5 {
		t.Fatalf("ReadableBytes = %d, want 5", b.ReadableBytes())
	}
	if got := string(b.Peek()); got != "hello" {
		t.Fatalf("Peek() = %q, want %q", got, "hello")
	}
	if got := b.RetrieveAllAsString(); got != "hello" {
		t.Fatalf("RetrieveAllAsString() = %q, want %q", got, "hello")
	}
	if b.ReadableBytes() != 0 {
		t.Fatalf("ReadableBytes after retrieve = %d, want 0", b.ReadableBytes())
	}
}

func TestBufferRetrievePartial(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("abcdef"))
	b.Retrieve(2)
	if got := string(b.Peek()); got != "cdef" {
		t.Fatalf("Peek() after partial retrieve = %q, want %q", got, "cdef")
	}
}

func TestBufferMakeSpaceShiftsInPlace(t *testing.T) {
	b := NewBufferSize(16)
	b.Append([]byte("0123456789")) // 10 bytes, 6 writable left
	b.Retrieve(8)                   // reader advances, freeing prepend slack
	before := len(b.buf)
	b.EnsureWritableBytes(12) // fits once the readable region shifts down
	if len(b.buf) != before {
		t.Fatalf("EnsureWritableBytes grew backing array to %d, want unchanged %d", len(b.buf), before)
	}
	if got := string(b.Peek()); got != "89" {
		t.Fatalf("Peek() after shift = %q, want %q", got, "89")
	}
}

func TestBufferMakeSpaceGrows(t *testing.T) {
	b := NewBufferSize(4)
	b.Append([]byte("abcd"))
	b.EnsureWritableBytes(100)
	if b.WritableBytes() < 100 {
		t.Fatalf("WritableBytes = %d, want >= 100", b.WritableBytes())
	}
	if got := string(b.Peek()); got != "abcd" {
		t.Fatalf("Peek() after grow = %q, want %q", got, "abcd")
	}
}
