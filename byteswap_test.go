package fat24

import (
	"bytes"
	"testing"
)

func TestSwapWordsIsInvolution(t *testing.T) {
	original := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	buf := append([]byte(nil), original...)

	swapWords(buf)
	if bytes.Equal(buf, original) {
		t.Fatalf("swapWords did not change the buffer")
	}

	swapWords(buf)
	if !bytes.Equal(buf, original) {
		t.Fatalf("swapWords twice did not restore the original buffer: got %x, want %x", buf, original)
	}
}

func TestSwapWordsReversesEachWord(t *testing.T) {
	buf := []byte{0xaa, 0xbb, 0xcc, 0xdd}

	swapWords(buf)

	want := []byte{0xdd, 0xcc, 0xbb, 0xaa}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got %x, want %x", buf, want)
	}
}

func TestReadSwappedRejectsUnalignedByteCount(t *testing.T) {
	fx, fs := openFixture(t)
	_ = fx

	buf := make([]byte, 3)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a non-word-aligned byte count")
		}
	}()

	_ = readSwapped(fs.Disk.source, buf, 0, 0, fs.BytesPerCluster, 3)
}

func TestReadSwappedRejectsOversizedOffset(t *testing.T) {
	_, fs := openFixture(t)

	buf := make([]byte, 4)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for an offset beyond bytes-per-cluster")
		}
	}()

	_ = readSwapped(fs.Disk.source, buf, 0, fs.BytesPerCluster+4, fs.BytesPerCluster, 4)
}
