package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLocalBlobStore_RoundTrip(t *testing.T) {
	store := &LocalBlobStore{Dir: t.TempDir()}

	data := []byte("Invoice No: INV-1\nTotal: 10.00\n")
	ref, err := store.Save("invoice.txt", data)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(ref, ".txt") {
		t.Fatalf("ref should keep the extension: %q", ref)
	}

	got, err := store.Open(ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-trip bytes differ")
	}
}

func TestLocalBlobStore_ContentAddressed(t *testing.T) {
	store := &LocalBlobStore{Dir: t.TempDir()}

	data := []byte("same bytes")
	ref1, err := store.Save("a.txt", data)
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	ref2, err := store.Save("b.txt", data)
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if ref1 != ref2 {
		t.Fatalf("identical bytes must share a ref: %q vs %q", ref1, ref2)
	}

	ref3, err := store.Save("a.txt", []byte("different bytes"))
	if err != nil {
		t.Fatalf("save different: %v", err)
	}
	if ref3 == ref1 {
		t.Fatal("different bytes must not share a ref")
	}
}

func TestLocalBlobStore_RejectsPathEscape(t *testing.T) {
	store := &LocalBlobStore{Dir: t.TempDir()}
	for _, ref := range []string{"../secret", "a/b.txt"} {
		if _, err := store.Open(ref); err == nil {
			t.Fatalf("ref %q should be rejected", ref)
		}
	}
}
