package fileoper

import "testing"

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRead(t *testing.T) {
	content := []byte("hello world")

	if got := Read(content, 0, 5); !bytesEqual(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
	if got := Read(content, 6, 100); !bytesEqual(got, []byte("world")) {
		t.Fatalf("got %q", got)
	}
	if got := Read(content, len(content), 5); got != nil {
		t.Fatalf("expected nil at end-of-content offset, got %q", got)
	}
	if got := Read(content, -1, 5); got != nil {
		t.Fatalf("expected nil for negative offset, got %q", got)
	}
}

func TestWriteOverlay(t *testing.T) {
	content := []byte("hello world")
	got := Write(content, []byte("THERE"), 6)
	if !bytesEqual(got, []byte("hello THERE")) {
		t.Fatalf("got %q", got)
	}
}

func TestWritePastEndGrows(t *testing.T) {
	content := []byte("hi")
	got := Write(content, []byte("!"), 5)
	want := []byte("hi\x00\x00\x00!")
	if !bytesEqual(got, want) {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateShrinks(t *testing.T) {
	content := []byte("hello world")
	got := Truncate(content, 5)
	if !bytesEqual(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateGrows(t *testing.T) {
	content := []byte("hi")
	got := Truncate(content, 4)
	want := []byte("hi\x00\x00")
	if !bytesEqual(got, want) {
		t.Fatalf("got %q", got)
	}
}
