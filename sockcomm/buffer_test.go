package sockcomm

import "testing"

func TestMessageBuffer(t *testing.T) {
	b := NewMessageBuffer()
	if b.HasMessage(3) || b.Head(3) != nil {
		t.Fatal("empty buffer has a message")
	}
	b.Push(3, []byte{1})
	b.Push(4, []byte{2})
	b.Push(3, []byte{3})
	if b.Len() != 3 {
		t.Fatalf("expected 3 frames but got %d", b.Len())
	}
	if head := b.Head(3); len(head) != 1 || head[0] != 1 {
		t.Errorf("unexpected head %v", head)
	}
	for _, expected := range []byte{1, 3} {
		payload, ok := b.Pop(3)
		if !ok || payload[0] != expected {
			t.Fatalf("expected %d but got %v (%v)", expected, payload, ok)
		}
	}
	if _, ok := b.Pop(3); ok {
		t.Error("pop from drained tag should fail")
	}
	if _, ok := b.frames[3]; ok {
		t.Error("drained tag should be removed")
	}
	b.Clear()
	if b.Len() != 0 || b.HasMessage(4) {
		t.Error("clear did not empty the buffer")
	}
}
