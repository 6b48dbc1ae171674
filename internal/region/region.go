// Package region loads the ordered list of sampling regions a sync run visits.
package region

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/plansync/internal/model"
)

//go:embed regions.yaml
var defaultRegions []byte

type file struct {
	Regions []model.Region `yaml:"regions"`
}

// Default returns the embedded target list.
func Default() ([]model.Region, error) {
	return Parse(defaultRegions)
}

// Load reads a target list from path. An empty path returns the embedded list.
func Load(path string) ([]model.Region, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML target list. Order is preserved.
func Parse(data []byte) ([]model.Region, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "region: parse yaml")
	}
	if len(f.Regions) == 0 {
		return nil, eris.New("region: target list is empty")
	}

	seen := make(map[string]bool, len(f.Regions))
	for i, r := range f.Regions {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			return nil, eris.Errorf("region: entry %d has no id", i)
		}
		if seen[r.ID] {
			return nil, eris.Errorf("region: duplicate id %q", r.ID)
		}
		seen[r.ID] = true
		if r.DisplayName == "" {
			r.DisplayName = r.ID
		}
		f.Regions[i] = r
	}
	return f.Regions, nil
}

// Select returns the regions named in ids, in target-list order. An empty
// ids returns all regions.
func Select(all []model.Region, ids []string) ([]model.Region, error) {
	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}

	var out []model.Region
	for _, r := range all {
		if want[r.ID] {
			out = append(out, r)
			delete(want, r.ID)
		}
	}
	for id := range want {
		return nil, eris.Errorf("region: unknown region %q", id)
	}
	return out, nil
}
