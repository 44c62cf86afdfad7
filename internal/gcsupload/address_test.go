package gcsupload

import "testing"

func TestDigestIsDeterministic(t *testing.T) {
	data := []byte("receipt bytes")

	first := Digest(data)
	second := Digest(data)

	if first != second {
		t.Errorf("Digest() not deterministic: %q != %q", first, second)
	}
	if len(first) != 40 {
		t.Errorf("Digest() length = %d, want 40 hex chars", len(first))
	}
}

func TestDigestDiffersForDifferentContent(t *testing.T) {
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Error("Digest() collided for different payloads")
	}
}

func TestObjectKey(t *testing.T) {
	data := []byte("receipt bytes")

	key := ObjectKey("user-1", data)
	again := ObjectKey("user-1", data)
	other := ObjectKey("user-2", data)

	if key != again {
		t.Errorf("ObjectKey() not stable: %q != %q", key, again)
	}
	if key == other {
		t.Error("ObjectKey() did not namespace by user")
	}
	want := "user-1/" + Digest(data)
	if key != want {
		t.Errorf("ObjectKey() = %q, want %q", key, want)
	}
}
