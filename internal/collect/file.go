package collect

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/model"
)

// FileCollector serves regions from <dir>/<regionId>.json fixtures in the
// live payload format. Records are tagged mock.
type FileCollector struct {
	dir string
	log *zap.Logger
}

// NewFileCollector creates a collector reading fixtures from dir.
func NewFileCollector(dir string) *FileCollector {
	return &FileCollector{
		dir: dir,
		log: zap.L().With(zap.String("component", "collect.file")),
	}
}

// Collect implements Collector.
func (c *FileCollector) Collect(ctx context.Context, region model.Region) Outcome {
	path := filepath.Join(c.dir, filepath.Base(region.ID)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn("fixture unreadable", zap.String("region", region.ID), zap.String("path", path), zap.Error(err))
		return Unavailable("fixture unreadable: " + filepath.Base(path))
	}

	records, err := ParseOffers(ctx, data, region)
	if err != nil {
		return Unavailable("unreadable fixture: " + err.Error())
	}
	if len(records) == 0 {
		return Unavailable("no offers for utility " + region.ExpectedUtilityLabel)
	}
	return Live(records, model.ProvenanceMock)
}
