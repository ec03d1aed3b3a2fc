package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

const archiveBatch = 5000

type Uploader interface {
	UploadDataFile(ctx context.Context, key string, data []byte) error
}

// ArchiveService periodically copies newly stored measurements to object storage as JSON.
// Progress is tracked by measurement id, so payload timestamps in the past or future
// never hide rows from the export. The position lives in memory only.
type ArchiveService struct {
	reader   repository.Reader
	uploader Uploader
	now      func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewArchiveService exports every measurement stored after the one with afterID.
func NewArchiveService(r repository.Reader, u Uploader, afterID int64) *ArchiveService {
	return &ArchiveService{reader: r, uploader: u, now: time.Now, lastID: afterID}
}

// LastExportedID is the id of the newest measurement already uploaded.
func (a *ArchiveService) LastExportedID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastID
}

// ExportOnce uploads everything stored since the last export and returns how many rows it exported.
func (a *ArchiveService) ExportOnce(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for {
		views, err := a.reader.ListMeasurementsAfterID(ctx, a.lastID, archiveBatch)
		if err != nil {
			return total, err
		}
		if len(views) == 0 {
			return total, nil
		}

		first, last := views[0].ID, views[len(views)-1].ID
		data, err := json.Marshal(views)
		if err != nil {
			return total, fmt.Errorf("encode archive batch: %w", err)
		}
		key := fmt.Sprintf("measurements/%s/%d-%d.json", a.now().UTC().Format("2006/01/02"), first, last)
		if err := a.uploader.UploadDataFile(ctx, key, data); err != nil {
			return total, err
		}

		a.lastID = last
		total += len(views)
		log.Info().Str("key", key).Int("rows", len(views)).Msg("measurements archived")
		if len(views) < archiveBatch {
			return total, nil
		}
	}
}

// Run exports on every tick until ctx is cancelled. interval must be positive.
func (a *ArchiveService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ExportOnce(ctx); err != nil {
				log.Error().Err(err).Msg("archive export failed")
			}
		}
	}
}
