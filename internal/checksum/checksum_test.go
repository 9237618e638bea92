package checksum

import "testing"

func TestSum(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different content should differ")
	}
}

func TestETag(t *testing.T) {
	tag := ETag([]byte("hello"))
	if len(tag) != 34 || tag[0] != '"' || tag[33] != '"' {
		t.Errorf("ETag = %s", tag)
	}
}
