package vectorindex

import (
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// Snapshot is an installed index together with where and when it came from.
type Snapshot struct {
	Index    *Index
	Header   Header
	Path     string
	LoadedAt time.Time
}

// Holder publishes the current index to concurrent readers. Readers call
// Current and keep using the snapshot they got; Reload swaps in a freshly
// read file without waiting for them.
type Holder struct {
	path    string
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger
}

func NewHolder(path string) *Holder {
	return &Holder{
		path:   path,
		logger: slog.Default().With("component", "index-holder", "path", path),
	}
}

func (h *Holder) Path() string {
	return h.path
}

// Current returns the installed snapshot or ErrIndexNotLoaded.
func (h *Holder) Current() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}
	return snap, nil
}

// Reload reads the index file and installs it. A failed read leaves the
// previous snapshot in place.
func (h *Holder) Reload() (*Snapshot, error) {
	start := time.Now()
	idx, header, err := ReadFile(h.path)
	if err != nil {
		h.logger.Error("index reload failed", "error", err)
		return nil, err
	}
	snap := &Snapshot{Index: idx, Header: header, Path: h.path, LoadedAt: time.Now()}
	h.current.Store(snap)
	h.logger.Info("index loaded",
		"vectors", idx.Len(),
		"dim", idx.Dim(),
		"duration", time.Since(start),
	)
	return snap, nil
}

// Install publishes an in-memory index without touching disk.
func (h *Holder) Install(idx *Index) *Snapshot {
	snap := &Snapshot{
		Index: idx,
		Header: Header{
			Magic:     MagicBytes,
			Version:   FormatVersion,
			Metric:    MetricInnerProduct,
			Dim:       uint32(idx.Dim()),
			Count:     uint64(idx.Len()),
			CreatedAt: time.Now().Unix(),
		},
		Path:     h.path,
		LoadedAt: time.Now(),
	}
	h.current.Store(snap)
	return snap
}
