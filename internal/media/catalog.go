package media

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrMovieNotFound means no playable file matches the title.
var ErrMovieNotFound = errors.New("movie not found")

var (
	movieExts  = []string{".mp4", ".webm", ".ogg"}
	posterExts = []string{".jpg", ".png", ".jpeg", ".webp", ".gif"}
)

// Movie is one playable file; Title is the file name without extension.
type Movie struct {
	Title string `json:"title"`
	File  string `json:"file"`
}

// Catalog resolves titles against the media and poster directories.
type Catalog struct {
	MediaDir  string
	PosterDir string
}

// Movies lists playable files sorted by title.  A missing directory is an
// empty catalogue.
func (c Catalog) Movies() ([]Movie, error) {
	entries, err := os.ReadDir(c.MediaDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Movie{}, nil
		}
		return nil, err
	}
	movies := []Movie{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !hasExt(movieExts, ext) {
			continue
		}
		movies = append(movies, Movie{Title: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), File: e.Name()})
	}
	sort.Slice(movies, func(i, j int) bool { return movies[i].Title < movies[j].Title })
	return movies, nil
}

// Lookup returns the movie whose title matches exactly.
func (c Catalog) Lookup(title string) (Movie, error) {
	movies, err := c.Movies()
	if err != nil {
		return Movie{}, err
	}
	for _, m := range movies {
		if m.Title == title {
			return m, nil
		}
	}
	return Movie{}, ErrMovieNotFound
}

// MoviePath is the on-disk path of m.
func (c Catalog) MoviePath(m Movie) string {
	return filepath.Join(c.MediaDir, m.File)
}

// Poster returns the poster file name for title, or "" when there is none.
// Extensions are tried in a fixed order.
func (c Catalog) Poster(title string) string {
	if title == "" || strings.ContainsAny(title, `/\`) {
		return ""
	}
	for _, ext := range posterExts {
		name := title + ext
		if fi, err := os.Stat(filepath.Join(c.PosterDir, name)); err == nil && !fi.IsDir() {
			return name
		}
	}
	return ""
}

func hasExt(list []string, ext string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}
