package sites

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

type fakeFetcher struct {
	sites []models.Site
	err   error
	calls int
}

func (f *fakeFetcher) FetchAllSites(context.Context) ([]models.Site, error) {
	f.calls++
	return f.sites, f.err
}

func fixtureSites() []models.Site {
	return []models.Site{
		{ID: 107, Name: "ROZELLE", Region: "Sydney East", Latitude: -33.86, Longitude: 151.16},
		{ID: 39, Name: "RANDWICK", Region: "Sydney East", Latitude: -33.93, Longitude: 151.24},
		{ID: 2560, Name: "MOBILE", Region: "Sydney South-west", Latitude: -999, Longitude: -999},
		{ID: 329, Name: "WOLLONGONG", Region: "Illawarra", Latitude: -34.42, Longitude: 150.89},
	}
}

func TestLoad_WritesCacheOnce(t *testing.T) {
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "data", "site.csv")
	f := &fakeFetcher{sites: fixtureSites()}

	first, err := Load(context.Background(), f, path, log)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := Load(context.Background(), f, path, log)
	if err != nil {
		t.Fatalf("Load from cache: %v", err)
	}
	if f.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", f.calls)
	}
	if first.Len() != 4 || second.Len() != 4 {
		t.Fatalf("lengths: %d, %d", first.Len(), second.Len())
	}
	s, ok := second.Lookup(2560)
	if !ok || s.HasLocation() {
		t.Errorf("sentinel site did not survive the cache: %+v", s)
	}
	if got, _ := second.Lookup(39); got != fixtureSites()[1] {
		t.Errorf("cached site mismatch: %+v", got)
	}
}

func TestLoad_FetchError(t *testing.T) {
	log, _ := test.NewNullLogger()
	boom := errors.New("boom")
	_, err := Load(context.Background(), &fakeFetcher{err: boom}, filepath.Join(t.TempDir(), "site.csv"), log)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestDirectoryQueries(t *testing.T) {
	d := New(fixtureSites())

	inRegion := d.InRegions([]string{"Sydney East", "Sydney South-west"})
	if got := IDs(inRegion); len(got) != 3 || got[0] != 39 || got[1] != 107 || got[2] != 2560 {
		t.Errorf("InRegions ids: %v", got)
	}
	if got := d.InRegions([]string{"Nowhere"}); len(got) != 0 {
		t.Errorf("expected no sites, got %v", got)
	}

	if _, ok := d.Locate(2560); ok {
		t.Error("Locate should skip sentinel coordinates")
	}
	if _, ok := d.Locate(1); ok {
		t.Error("Locate should miss unknown ids")
	}
	if s, ok := d.Locate(329); !ok || s.Name != "WOLLONGONG" {
		t.Errorf("Locate(329) = %+v, %v", s, ok)
	}
	if got := len(d.Located()); got != 3 {
		t.Errorf("Located: got %d, want 3", got)
	}
}

func TestWriteCache_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site.csv")
	in := []models.Site{
		{ID: 39, Name: "RANDWICK, EAST", Region: "Sydney East", Latitude: -33.93, Longitude: 151.24},
		{ID: 1, Name: "MOBILE", Region: "Sydney East", Latitude: models.SentinelCoordinate, Longitude: models.SentinelCoordinate},
	}
	if err := WriteCache(path, in); err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	out, err := ReadCache(path)
	if err != nil {
		t.Fatalf("ReadCache: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("read back %+v, want %+v", out, in)
	}
}
