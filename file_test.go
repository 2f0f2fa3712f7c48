package fat24

import (
	"bytes"
	"io"
	"testing"
)

func TestOpenFileRejectsUnusedEntry(t *testing.T) {
	_, fs := openFixture(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic opening an Unused entry")
		}
	}()

	_, _ = openFile(fs, DirEntry{Type: uint8(EntryTypeUnused)})
}

func TestFileReadReturnsExactContent(t *testing.T) {
	fx, fs := openFixture(t)

	fh, err := fs.Open("MyRec01.rec")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	got, err := io.ReadAll(fh)
	if err != nil {
		t.Fatalf("ReadAll: %s", err)
	}

	if !bytes.Equal(got, fx.fileContent) {
		t.Fatalf("got %d bytes, want %d bytes (content mismatch)", len(got), len(fx.fileContent))
	}
}

func TestFileReadInSmallChunks(t *testing.T) {
	fx, fs := openFixture(t)

	fh, err := fs.Open("MyRec01.rec")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	var out bytes.Buffer
	buf := make([]byte, 4096)

	for {
		n, readErr := fh.Read(buf)
		out.Write(buf[:n])

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			t.Fatalf("Read: %s", readErr)
		}
	}

	if !bytes.Equal(out.Bytes(), fx.fileContent) {
		t.Fatalf("chunked read mismatch: got %d bytes, want %d", out.Len(), len(fx.fileContent))
	}
}

func TestSubdirectoryRunsFixup(t *testing.T) {
	_, fs := openFixture(t)

	entry, err := ResolvePath(fs, "ProgramFiles")
	if err != nil {
		t.Fatalf("ResolvePath: %s", err)
	}

	fh, err := entry.Open()
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	size, err := fh.Size()
	if err != nil {
		t.Fatalf("Size: %s", err)
	}

	want := uint64(2 * dirEntrySize) // Dot + DotDot
	if size != want {
		t.Fatalf("got size %d, want %d (fixup should override the parent's stated size)", size, want)
	}
}
