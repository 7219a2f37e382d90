// Package catalog loads the movie metadata table. Row order defines item
// ids and must match the row order of the vector index.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// Item is one catalog row. Text is the surface feedback keywords are matched
// against.
type Item struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	Text        string  `json:"-"`
	PosterPath  string  `json:"poster_path,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
	HasVote     bool    `json:"-"`
}

// Catalog is an immutable, ordered list of items.
type Catalog struct {
	items []Item
	// TextColumn is "text" when the file carries a precombined text column
	// and "overview" otherwise.
	TextColumn string
}

// New wraps items, renumbering ids to their position.
func New(items []Item) *Catalog {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].ID = i
	}
	return &Catalog{items: out, TextColumn: "text"}
}

// Load reads a catalog CSV with a header row. title is required; text,
// overview, poster_path and vote_average are optional.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IOf(err, "opening catalog %s", path)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	slog.Default().With("component", "catalog").Info("catalog loaded",
		"path", path,
		"items", c.Len(),
		"text_column", c.TextColumn,
	)
	return c, nil
}

// Read parses a catalog from r.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "catalog is empty")
		}
		return nil, apperrors.IOf(err, "reading catalog header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "catalog has no title column")
	}
	textCol := "overview"
	if _, ok := cols["text"]; ok {
		textCol = "text"
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	c := &Catalog{TextColumn: textCol}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.IOf(err, "reading catalog line %d", line)
		}
		item := Item{
			ID:         len(c.items),
			Title:      field(row, "title"),
			Overview:   field(row, "overview"),
			Text:       field(row, textCol),
			PosterPath: strings.TrimSpace(field(row, "poster_path")),
		}
		if v := strings.TrimSpace(field(row, "vote_average")); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				item.VoteAverage = f
				item.HasVote = true
			}
		}
		c.items = append(c.items, item)
	}
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.items)
}

// Item returns the item with the given id.
func (c *Catalog) Item(id int) (Item, bool) {
	if id < 0 || id >= len(c.items) {
		return Item{}, false
	}
	return c.items[id], true
}

// Items returns a copy of every item in id order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Texts returns the matching surface of every item in id order.
func (c *Catalog) Texts() []string {
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.Text
	}
	return out
}

// TopRated returns up to n items that have both a poster and a vote, best
// vote first. Equal votes keep catalog order.
func (c *Catalog) TopRated(n int) []Item {
	rated := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.PosterPath != "" && it.HasVote {
			rated = append(rated, it)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].VoteAverage > rated[j].VoteAverage
	})
	if n >= 0 && len(rated) > n {
		rated = rated[:n]
	}
	return rated
}
