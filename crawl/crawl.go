// Package crawl enumerates the per date folders of a base folder.
package crawl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/raster"
)

type Kind int

const (
	MultiSpectral Kind = iota
	Radar
)

// Any matches both kinds in Filter.
const Any Kind = -1

func (k Kind) String() string {
	switch k {
	case Radar:
		return "radar"
	case Any:
		return "any"
	}
	return "multispectral"
}

// Folder is one capture date.
type Folder struct {
	Date raster.Date
	Path string
	Kind Kind
	// Bands holds the band files found in the folder.
	Bands []raster.Band
}

func (f Folder) Has(b raster.Band) bool {
	for _, v := range f.Bands {
		if v == b {
			return true
		}
	}
	return false
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Discover returns the sub folders of base named YYYY-MM-DD, sorted by date.
// A folder is MultiSpectral when it holds B04.tif and Radar otherwise.
// Entries that look like dates but are not valid calendar days are skipped.
func Discover(ctx context.Context, base string) ([]Folder, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", base, err)
	}

	logger := logging.With("crawl")
	var out []Folder
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || !datePattern.MatchString(e.Name()) {
			continue
		}
		date, err := raster.ParseDate(e.Name())
		if err != nil {
			logger.Warn().Str("folder", e.Name()).Err(err).Msg("skipping folder")
			continue
		}

		path := filepath.Join(base, e.Name())
		bands, err := listBands(path)
		if err != nil {
			return nil, err
		}
		f := Folder{Date: date, Path: path, Kind: Radar, Bands: bands}
		if f.Has(raster.B04) {
			f.Kind = MultiSpectral
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func listBands(dir string) ([]raster.Band, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var bands []raster.Band
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".tif") {
			continue
		}
		if b, err := raster.ParseBand(strings.TrimSuffix(name, ".tif")); err == nil {
			bands = append(bands, b)
		}
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })
	return bands, nil
}

// Filter keeps the folders of kind k, or of every kind for Any, with a date
// in [from, to]. A zero bound is open.
func Filter(folders []Folder, k Kind, from, to raster.Date) []Folder {
	var out []Folder
	for _, f := range folders {
		if k != Any && f.Kind != k {
			continue
		}
		if from.Valid() && f.Date.Before(from) {
			continue
		}
		if to.Valid() && to.Before(f.Date) {
			continue
		}
		out = append(out, f)
	}
	return out
}
