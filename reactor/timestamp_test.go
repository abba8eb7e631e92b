package reactor

import "testing"

func TestTimestampValid(t *testing.T) {
	var zero Timestamp
	if zero.Valid() {
		t.Errorf("zero-value Timestamp reported Valid")
	}
	if !Now().Valid() {
		t.Errorf("Now() reported !Valid")
	}
}

func TestTimestampBefore(t *testing.T) {
	a := Timestamp{microSecondsSinceEpoch: 100}
	b := Timestamp{microSecondsSinceEpoch: 200}
	if !a.Before(b) {
		t.Errorf("expected a before b")
	}
	if b.Before(a) {
		t.Errorf("expected b not before a")
	}
	if a.Before(a) {
		t.Errorf("expected a not before itself")
	}
}

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp{microSecondsSinceEpoch: 1577836800000000} // 2020-01-01T00:00:00Z
	got := ts.Format()
	want := "2020/01/01 00:00:00"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
