package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
	if Sum([]byte("file:a.ipynb")) == Sum([]byte("file:b.ipynb")) {
		t.Error("distinct inputs should not collide")
	}
}

func TestFileName(t *testing.T) {
	got := FileName("abc", ".ipynb")
	if got != Sum([]byte("abc"))+".ipynb" {
		t.Errorf("FileName = %s", got)
	}
}
