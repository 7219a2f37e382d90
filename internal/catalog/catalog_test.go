package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

const sample = `title,overview,poster_path,vote_average
Hero Laughs,"A superhero comedy about a clumsy caped crusader.",/a.jpg,7.1
Rainy Days,A sad drama about loss.,/b.jpg,8.4
No Poster,An unseen gem.,,9.9
Unrated,A mystery.,/d.jpg,
Also Great,"Another drama, with a twist.",/e.jpg,8.4
`

func TestReadUsesOverviewWithoutTextColumn(t *testing.T) {
	c, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.Len() != 5 {
		t.Fatalf("Len = %d, want 5", c.Len())
	}
	if c.TextColumn != "overview" {
		t.Errorf("TextColumn = %q", c.TextColumn)
	}
	it, ok := c.Item(1)
	if !ok || it.ID != 1 || it.Title != "Rainy Days" || it.Text != "A sad drama about loss." {
		t.Errorf("Item(1) = %+v", it)
	}
	if _, ok := c.Item(5); ok {
		t.Error("Item(5) should not exist")
	}
}

func TestReadPrefersTextColumn(t *testing.T) {
	data := "title,overview,text\nX,short,X: longer combined text\n"
	c, err := Read(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := c.Texts(); len(got) != 1 || got[0] != "X: longer combined text" {
		t.Errorf("Texts = %q", got)
	}
}

func TestReadRejectsMissingTitle(t *testing.T) {
	_, err := Read(strings.NewReader("name,overview\nX,y\n"))
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := Read(strings.NewReader("")); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestTopRated(t *testing.T) {
	c, _ := Read(strings.NewReader(sample))
	top := c.TopRated(2)
	if len(top) != 2 {
		t.Fatalf("TopRated(2) returned %d items", len(top))
	}
	if top[0].Title != "Rainy Days" || top[1].Title != "Also Great" {
		t.Errorf("TopRated = %q, %q", top[0].Title, top[1].Title)
	}
	all := c.TopRated(50)
	if len(all) != 3 {
		t.Errorf("rows without poster or vote should be dropped, got %d", len(all))
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.csv")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 5 {
		t.Errorf("Len = %d", c.Len())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, apperrors.ErrIO) {
		t.Errorf("missing err = %v, want ErrIO", err)
	}
}
