package arrival

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/precision.report/internal/fsutil"
)

// DefaultOutputFile is the fixed name the capture daemon persists
// difference values under at clean shutdown.
const DefaultOutputFile = "timestamp_diffs_measured.dat"

// WriteDiffFile persists diffs as plain text, one decimal nanosecond value
// per line, in append order. The file is written once, in full; a run that
// fails before shutdown writes nothing.
func WriteDiffFile(filesystem fsutil.FileSystem, path string, diffs []uint64) error {
	f, err := filesystem.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	line := make([]byte, 0, 24)
	for _, d := range diffs {
		line = strconv.AppendUint(line[:0], d, 10)
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// ReadDiffFile loads a difference file produced by WriteDiffFile. Blank
// lines are skipped; anything else that does not parse as an unsigned
// decimal is an error naming the offending line.
func ReadDiffFile(filesystem fsutil.FileSystem, path string) ([]uint64, error) {
	f, err := filesystem.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []uint64
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, n, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
