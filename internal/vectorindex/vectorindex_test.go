package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

func sampleIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := FromVectors([][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.5, 0.5, 0},
		{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("FromVectors: %v", err)
	}
	return idx
}

func TestAddRejectsWrongDimension(t *testing.T) {
	idx := New(3)
	if err := idx.Add([]float32{1, 2}); !errors.Is(err, apperrors.ErrIndexShape) {
		t.Fatalf("err = %v, want ErrIndexShape", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len = %d, want 0", idx.Len())
	}
}

func TestFromVectorsRaggedRows(t *testing.T) {
	_, err := FromVectors([][]float32{{1, 2}, {1, 2, 3}})
	if !errors.Is(err, apperrors.ErrIndexShape) {
		t.Fatalf("err = %v, want ErrIndexShape", err)
	}
}

func TestSearch(t *testing.T) {
	idx := sampleIndex(t)
	hits, err := idx.Search([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []Hit{{ID: 0, Score: 1}, {ID: 3, Score: 1}, {ID: 2, Score: 0.5}}
	if !reflect.DeepEqual(hits, want) {
		t.Errorf("Search = %+v, want %+v", hits, want)
	}

	all, _ := idx.Search([]float32{0, 1, 0}, 10)
	if len(all) != 4 {
		t.Errorf("k larger than N returned %d hits", len(all))
	}
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, apperrors.ErrIndexShape) {
		t.Errorf("short query err = %v", err)
	}
}

func TestVectorReturnsCopy(t *testing.T) {
	idx := sampleIndex(t)
	v := idx.Vector(1)
	v[1] = 42
	if idx.Vector(1)[1] != 1 {
		t.Error("mutating the returned vector changed the index")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.vidx")
	idx := sampleIndex(t)
	if err := WriteFile(path, idx); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, header, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if header.Count != 4 || header.Dim != 3 || header.Metric != MetricInnerProduct {
		t.Errorf("header = %+v", header)
	}
	if !reflect.DeepEqual(got.Vectors(), idx.Vectors()) {
		t.Errorf("vectors = %v, want %v", got.Vectors(), idx.Vectors())
	}
	info, _ := os.Stat(path)
	if want := int64(HeaderSize + 4*3*4 + FooterSize); info.Size() != want {
		t.Errorf("size = %d, want %d", info.Size(), want)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestReadFileDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.vidx")
	if err := WriteFile(path, sampleIndex(t)); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"flipped payload bit", func(b []byte) []byte { b[HeaderSize+1] ^= 0x01; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-5] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"too short", func(b []byte) []byte { return b[:10] }},
		{"vector count wraps size arithmetic", func([]byte) []byte {
			// 1<<62 vectors of one float32 is 1<<64 payload bytes, which
			// wraps to zero, so the header alone would look consistent.
			header := Header{
				Magic:   MagicBytes,
				Version: FormatVersion,
				Metric:  MetricInnerProduct,
				Dim:     1,
				Count:   1 << 62,
			}.encode()
			footer := make([]byte, FooterSize)
			binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(header))
			binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
			return append(header, footer...)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "bad.vidx")
			os.WriteFile(p, tt.mutate(append([]byte(nil), data...)), 0644)
			if _, _, err := ReadFile(p); !errors.Is(err, ErrCorrupt) {
				t.Errorf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "none.vidx"))
	if !errors.Is(err, apperrors.ErrIO) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrIO wrapping ErrNotExist", err)
	}
}

func TestWriteFileFailureLeavesOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.vidx")
	if err := WriteFile(path, sampleIndex(t)); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	// A directory at the target makes the final rename fail.
	blocked := filepath.Join(dir, "blocked.vidx")
	os.Mkdir(blocked, 0755)
	os.WriteFile(filepath.Join(blocked, "keep"), nil, 0644)
	if err := WriteFile(blocked, sampleIndex(t)); !errors.Is(err, apperrors.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("unrelated index file changed")
	}
}

func TestWriteFileDirectorySyncFailureStillInstalls(t *testing.T) {
	saved := syncDirectory
	syncDirectory = func(string) error { return errors.New("fsync: input/output error") }
	t.Cleanup(func() { syncDirectory = saved })

	path := filepath.Join(t.TempDir(), "embeddings.vidx")
	idx := sampleIndex(t)
	if err := WriteFile(path, idx); err != nil {
		t.Fatalf("WriteFile after rename reported %v", err)
	}
	got, header, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if header.Count != uint64(idx.Len()) || got.Len() != idx.Len() {
		t.Errorf("installed index has %d vectors, want %d", got.Len(), idx.Len())
	}
}

func TestHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.vidx")
	h := NewHolder(path)
	if _, err := h.Current(); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Fatalf("err = %v, want ErrIndexNotLoaded", err)
	}
	if _, err := h.Reload(); err == nil {
		t.Fatal("Reload of a missing file should fail")
	}

	if err := WriteFile(path, sampleIndex(t)); err != nil {
		t.Fatal(err)
	}
	first, err := h.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	scaled, _ := FromVectors([][]float32{{2, 0, 0}, {0, 2, 0}, {1, 1, 0}, {2, 0, 0}})
	if err := WriteFile(path, scaled); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := h.Current()
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := snap.Index.Search([]float32{1, 0, 0}, 2); err != nil {
				t.Error(err)
			}
		}()
	}
	if _, err := h.Reload(); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	wg.Wait()

	cur, _ := h.Current()
	if cur == first || cur.Index.Vector(0)[0] != 2 {
		t.Error("holder did not swap to the rebuilt index")
	}
	if first.Index.Vector(0)[0] != 1 {
		t.Error("old snapshot was mutated")
	}
}
