package handlers

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "CERT-PDF/internal/logger"

	"go.uber.org/zap"
)

// FileCleanupService periodically removes fallback certificates older than
// maxAge and lets finished batches expire with them.
type FileCleanupService struct {
	dirs     []string
	maxAge   time.Duration
	interval time.Duration
	prune    func(maxAge time.Duration) int
	logger   *zap.Logger

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewFileCleanupService sweeps dirs every interval. prune, when set, is called
// on each sweep with the same maxAge.
func NewFileCleanupService(dirs []string, maxAge, interval time.Duration, prune func(time.Duration) int, logger *zap.Logger) *FileCleanupService {
	logger = applog.OrNop(logger)
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &FileCleanupService{
		dirs:     dirs,
		maxAge:   maxAge,
		interval: interval,
		prune:    prune,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (fcs *FileCleanupService) Start() {
	fcs.ticker = time.NewTicker(fcs.interval)
	go func() {
		for {
			select {
			case <-fcs.done:
				return
			case <-fcs.ticker.C:
				fcs.Sweep()
			}
		}
	}()
	fcs.logger.Info("File cleanup service started",
		zap.Strings("dirs", fcs.dirs),
		zap.Duration("maxAge", fcs.maxAge))
}

func (fcs *FileCleanupService) Stop() {
	fcs.once.Do(func() {
		if fcs.ticker != nil {
			fcs.ticker.Stop()
		}
		close(fcs.done)
		fcs.logger.Info("File cleanup service stopped")
	})
}

// Sweep runs one cleanup pass and returns the number of files removed.
func (fcs *FileCleanupService) Sweep() int {
	removed := 0
	for _, dir := range fcs.dirs {
		removed += fcs.cleanupDirectory(dir)
	}
	if fcs.prune != nil {
		if n := fcs.prune(fcs.maxAge); n > 0 {
			fcs.logger.Info("Expired batches pruned", zap.Int("count", n))
		}
	}
	return removed
}

func (fcs *FileCleanupService) cleanupDirectory(dir string) int {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0
	}

	removed := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && time.Since(info.ModTime()) > fcs.maxAge {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
			fcs.logger.Debug("Cleaned up old file", zap.String("path", path))
		}
		return nil
	})
	if err != nil {
		fcs.logger.Warn("Error during cleanup", zap.String("dir", dir), zap.Error(err))
	}
	return removed
}
