package sites

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// Fetcher retrieves the site list from upstream.
type Fetcher interface {
	FetchAllSites(ctx context.Context) ([]models.Site, error)
}

// Directory is an immutable, indexed view of the monitoring sites.
type Directory struct {
	sites []models.Site
	byID  map[int]models.Site
}

// New indexes sites by id. Later duplicates win.
func New(sites []models.Site) *Directory {
	d := &Directory{
		sites: append([]models.Site(nil), sites...),
		byID:  make(map[int]models.Site, len(sites)),
	}
	for _, s := range sites {
		d.byID[s.ID] = s
	}
	return d
}

// Load returns the directory from the cache file, fetching and writing the
// cache only when the file does not exist yet.
func Load(ctx context.Context, f Fetcher, cachePath string, log logrus.FieldLogger) (*Directory, error) {
	cached, err := ReadCache(cachePath)
	if err == nil {
		log.WithField("sites", len(cached)).WithField("path", cachePath).Debug("site directory loaded from cache")
		return New(cached), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return Refresh(ctx, f, cachePath, log)
}

// Refresh fetches the site list and overwrites the cache file.
func Refresh(ctx context.Context, f Fetcher, cachePath string, log logrus.FieldLogger) (*Directory, error) {
	fetched, err := f.FetchAllSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sites: %w", err)
	}
	if cachePath != "" {
		if err := WriteCache(cachePath, fetched); err != nil {
			return nil, err
		}
	}
	log.WithField("sites", len(fetched)).Info("site directory refreshed")
	return New(fetched), nil
}

// All returns every site in upstream order.
func (d *Directory) All() []models.Site {
	return append([]models.Site(nil), d.sites...)
}

// Len returns the number of sites.
func (d *Directory) Len() int { return len(d.sites) }

// Lookup finds a site by id, whether or not it has a location.
func (d *Directory) Lookup(id int) (models.Site, bool) {
	s, ok := d.byID[id]
	return s, ok
}

// Locate finds a site by id only if it has real coordinates.
func (d *Directory) Locate(id int) (models.Site, bool) {
	s, ok := d.byID[id]
	if !ok || !s.HasLocation() {
		return models.Site{}, false
	}
	return s, true
}

// Located returns the sites that can be placed on a map.
func (d *Directory) Located() []models.Site {
	out := make([]models.Site, 0, len(d.sites))
	for _, s := range d.sites {
		if s.HasLocation() {
			out = append(out, s)
		}
	}
	return out
}

// InRegions returns the sites whose region is in the allow-list, ordered by id.
func (d *Directory) InRegions(regions []string) []models.Site {
	allowed := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		allowed[r] = struct{}{}
	}
	out := make([]models.Site, 0)
	for _, s := range d.sites {
		if _, ok := allowed[s.Region]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs extracts site identifiers.
func IDs(sites []models.Site) []int {
	ids := make([]int, 0, len(sites))
	for _, s := range sites {
		ids = append(ids, s.ID)
	}
	return ids
}
