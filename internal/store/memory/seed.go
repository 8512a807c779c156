package memory

import (
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/featuresync/internal/core"
)

// ParseSeedSpec splits a "dataset=path" seed entry.
func ParseSeedSpec(spec string) (dataset, path string, err error) {
	dataset, path, ok := strings.Cut(spec, "=")
	dataset, path = strings.TrimSpace(dataset), strings.TrimSpace(path)
	if !ok || dataset == "" || path == "" {
		return "", "", fmt.Errorf("seed %q: want dataset=path", spec)
	}
	return dataset, path, nil
}

// LoadSeedFile reads a CSV export into the store, replacing the dataset's
// records. latitude and longitude columns become record positions, so a
// file written by Export loads back unchanged. It returns the number of
// records held.
func (s *Store) LoadSeedFile(def core.DatasetDefinition, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	recs, err := core.Decode(f, def)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", path, err)
	}

	for i, r := range recs {
		recs[i] = liftPosition(r)
	}
	return s.Seed(def, recs), nil
}

// liftPosition moves latitude/longitude attributes into Position.
func liftPosition(r core.Record) core.Record {
	lat, hasLat := r.Get(core.LatitudeColumn)
	lon, hasLon := r.Get(core.LongitudeColumn)
	if !hasLat && !hasLon {
		return r
	}

	out := core.NewRecord(r.Len())
	for _, k := range r.Keys() {
		if k == core.LatitudeColumn || k == core.LongitudeColumn {
			continue
		}
		out.Set(k, r.Value(k))
	}

	y, yok := core.ParseNumber(lat.String())
	x, xok := core.ParseNumber(lon.String())
	if yok && xok {
		out.Position = &core.Position{X: x, Y: y}
	}
	return out
}
