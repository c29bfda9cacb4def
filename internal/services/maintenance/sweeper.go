package maintenance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/services/projects"
)

const provisionalPrefix = ".atelier_temp_"

// Sweeper periodically removes provisional call-log directories whose
// projects no longer exist. Live projects keep their provisional logs
// until directory inference migrates them.
type Sweeper struct {
	cron          *cron.Cron
	workspaceRoot string
	registry      *projects.Registry
	maxAge        time.Duration
	logger        arbor.ILogger
}

// NewSweeper creates a sweeper on the given cron schedule
func NewSweeper(workspaceRoot, schedule, maxAge string, registry *projects.Registry, logger arbor.ILogger) (*Sweeper, error) {
	age, err := time.ParseDuration(maxAge)
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance max_age %q: %w", maxAge, err)
	}

	s := &Sweeper{
		cron:          cron.New(cron.WithSeconds()),
		workspaceRoot: workspaceRoot,
		registry:      registry,
		maxAge:        age,
		logger:        logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Debug().
		Str("workspace_root", s.workspaceRoot).
		Msg("Maintenance sweeper started")
}

// Stop halts the sweep schedule, waiting for an in-flight run
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Debug().Msg("Maintenance sweeper stopped")
}

// Sweep removes orphaned provisional directories older than maxAge
func (s *Sweeper) Sweep() {
	entries, err := os.ReadDir(s.workspaceRoot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Maintenance sweep failed to read workspace root")
		return
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), provisionalPrefix) {
			continue
		}

		projectID := strings.TrimPrefix(entry.Name(), provisionalPrefix)
		if _, err := s.registry.Get(projectID); err == nil {
			continue
		} else if !errors.Is(err, projects.ErrProjectNotFound) {
			continue
		}

		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < s.maxAge {
			continue
		}

		dir := filepath.Join(s.workspaceRoot, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove orphaned call logs")
			continue
		}
		removed++
		s.logger.Info().
			Str("project_id", projectID).
			Str("dir", dir).
			Msg("Removed orphaned call logs")
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Maintenance sweep completed")
	}
}
