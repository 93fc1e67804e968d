package outputsink

import "testing"

func TestRingBufferWriteRead(t *testing.T) {
	rb := newRingBuffer(4)
	n := rb.Write([]int32{1, 2, 3})
	if n != 3 {
		t.Fatalf("expected 3 written, got %d", n)
	}
	if rb.Available() != 3 {
		t.Fatalf("expected 3 available, got %d", rb.Available())
	}

	out := make([]int32, 3)
	got := rb.Read(out)
	if got != 3 {
		t.Fatalf("expected 3 read, got %d", got)
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Fatalf("unexpected samples: %v", out)
	}
}

func TestRingBufferWriteStopsAtCapacity(t *testing.T) {
	rb := newRingBuffer(2)
	n := rb.Write([]int32{1, 2, 3, 4})
	if n != 2 {
		t.Fatalf("expected write capped at capacity 2, got %d", n)
	}
	if rb.Free() != 0 {
		t.Fatalf("expected 0 free, got %d", rb.Free())
	}
}

func TestRingBufferReadZeroFillsOnUnderrun(t *testing.T) {
	rb := newRingBuffer(4)
	rb.Write([]int32{7})

	out := make([]int32, 3)
	got := rb.Read(out)
	if got != 1 {
		t.Fatalf("expected 1 read, got %d", got)
	}
	if out[0] != 7 || out[1] != 0 || out[2] != 0 {
		t.Fatalf("expected underrun zero-fill, got %v", out)
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := newRingBuffer(4)
	rb.Write([]int32{1, 2, 3})
	rb.Clear()
	if rb.Available() != 0 {
		t.Fatalf("expected 0 available after clear, got %d", rb.Available())
	}
	if rb.Free() != 4 {
		t.Fatalf("expected full capacity free after clear, got %d", rb.Free())
	}
}

func TestRingBufferWraparound(t *testing.T) {
	rb := newRingBuffer(3)
	rb.Write([]int32{1, 2, 3})

	out := make([]int32, 2)
	rb.Read(out)

	rb.Write([]int32{4, 5})
	remaining := make([]int32, 3)
	got := rb.Read(remaining)
	if got != 3 {
		t.Fatalf("expected 3 read, got %d", got)
	}
	if remaining[0] != 3 || remaining[1] != 4 || remaining[2] != 5 {
		t.Fatalf("unexpected wraparound samples: %v", remaining)
	}
}
