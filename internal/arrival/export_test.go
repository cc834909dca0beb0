package arrival

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/precision.report/internal/fsutil"
)

func TestWriteDiffFileFormat(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := WriteDiffFile(mfs, DefaultOutputFile, []uint64{100, 150, 10}); err != nil {
		t.Fatalf("WriteDiffFile: %v", err)
	}

	data, err := mfs.ReadFile(DefaultOutputFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(data), "100\n150\n10\n"; got != want {
		t.Errorf("file contents = %q, want %q", got, want)
	}
}

func TestWriteDiffFileEmpty(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := WriteDiffFile(mfs, "empty.dat", nil); err != nil {
		t.Fatalf("WriteDiffFile: %v", err)
	}

	data, err := mfs.ReadFile("empty.dat")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("file contents = %q, want empty", data)
	}
}

func TestDiffFileRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	want := []uint64{0, 1, 100, 18446744073709551615}

	if err := WriteDiffFile(mfs, "roundtrip.dat", want); err != nil {
		t.Fatalf("WriteDiffFile: %v", err)
	}
	got, err := ReadDiffFile(mfs, "roundtrip.dat")
	if err != nil {
		t.Fatalf("ReadDiffFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadDiffFileSkipsBlankLines(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := mfs.WriteFile("gaps.dat", []byte("100\n\n  \n150\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadDiffFile(mfs, "gaps.dat")
	if err != nil {
		t.Fatalf("ReadDiffFile: %v", err)
	}
	if diff := cmp.Diff([]uint64{100, 150}, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestReadDiffFileRejectsBadLine(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := mfs.WriteFile("bad.dat", []byte("100\nnope\n150\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := ReadDiffFile(mfs, "bad.dat")
	if err == nil {
		t.Fatal("ReadDiffFile accepted a non-numeric line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestReadDiffFileMissing(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if _, err := ReadDiffFile(mfs, "absent.dat"); err == nil {
		t.Error("ReadDiffFile succeeded on a missing file")
	}
}
