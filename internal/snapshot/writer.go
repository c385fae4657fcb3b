package snapshot

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aqwatch/aqms-pipeline/internal/etl"
	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// Fetcher returns the latest observations for all sites and parameters.
type Fetcher interface {
	FetchLatest(ctx context.Context) ([]models.RawObservation, error)
}

// Writer refreshes the snapshot file from the upstream latest feed.
type Writer struct {
	fetcher Fetcher
	store   Store
	log     logrus.FieldLogger
	dryRun  bool
}

// NewWriter wires a Writer. With dryRun set, Run fetches but never writes.
func NewWriter(fetcher Fetcher, store Store, log logrus.FieldLogger, dryRun bool) *Writer {
	return &Writer{fetcher: fetcher, store: store, log: log, dryRun: dryRun}
}

// Run fetches, unnests and overwrites the snapshot. Rows without a value are
// kept. It returns the number of rows written.
func (w *Writer) Run(ctx context.Context) (int, error) {
	raw, err := w.fetcher.FetchLatest(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch latest: %w", err)
	}
	rows := etl.Flatten(raw)
	log := w.log.WithField("rows", len(rows)).WithField("path", w.store.Path())

	if w.dryRun {
		log.Info("dry-run: skipping snapshot write")
		return 0, nil
	}
	if err := w.store.Write(rows); err != nil {
		return 0, err
	}
	metrics.SnapshotRows.Add(float64(len(rows)))
	log.Info("snapshot written")
	return len(rows), nil
}
