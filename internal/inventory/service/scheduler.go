package service

import (
	"context"
	"time"

	"github.com/rsm/retail-backend/pkg/logger"
)

// ScanScheduler runs the alert scanner on a fixed interval. Scans run
// sequentially on one goroutine; a slow scan delays the next tick instead
// of overlapping it.
type ScanScheduler struct {
	scanner  *AlertScanner
	interval time.Duration
	logger   *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScanScheduler creates a new scan scheduler
func NewScanScheduler(scanner *AlertScanner, interval time.Duration, log *logger.Logger) *ScanScheduler {
	return &ScanScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   log,
	}
}

// Start launches the scan loop. The first scan runs immediately.
func (s *ScanScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.logger.Info().Dur("interval", s.interval).Msg("alert scan scheduler started")

	go func() {
		defer close(s.done)

		s.run(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("alert scan scheduler stopped")
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()
}

// Stop cancels the scan loop and waits for an in-flight scan to finish
func (s *ScanScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *ScanScheduler) run(ctx context.Context) {
	if _, err := s.scanner.ScanAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled alert scan failed")
	}
}
