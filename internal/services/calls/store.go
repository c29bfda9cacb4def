package calls

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/models"
)

const (
	provisionalPrefix = ".atelier_temp_"
	logSubdir         = "llm_calls"
	metaSubdir        = ".atelier"
	listPreviewLimit  = 100
)

// ErrCallNotFound indicates the requested call record does not exist
var ErrCallNotFound = errors.New("call record not found")

// Store persists one JSON file per model call under the project's
// current log directory. Before the project directory is known, records
// land in a provisional directory under the workspace root; once
// inference succeeds they are migrated into the project tree.
type Store struct {
	workspaceRoot string
	logger        arbor.ILogger
	mu            sync.Mutex
}

// NewStore creates a call-log store rooted at the workspace directory
func NewStore(workspaceRoot string, logger arbor.ILogger) *Store {
	return &Store{
		workspaceRoot: workspaceRoot,
		logger:        logger,
	}
}

// ProvisionalDir returns the pre-inference log directory for a project
func (s *Store) ProvisionalDir(projectID string) string {
	return filepath.Join(s.workspaceRoot, provisionalPrefix+projectID, logSubdir)
}

// PermanentDir returns the post-inference log directory inside the
// project tree.
func (s *Store) PermanentDir(projectDir string) string {
	return filepath.Join(projectDir, metaSubdir, logSubdir)
}

// dirFor returns the project's current log directory
func (s *Store) dirFor(project *models.Project) string {
	if dir := project.ProjectDir(); dir != "" {
		return s.PermanentDir(dir)
	}
	return s.ProvisionalDir(project.ID())
}

// Save assigns the next sequence token to the record and writes it as
// a JSON file. The id is the 4-digit 1-based call index, so records
// list in call order.
func (s *Store) Save(project *models.Project, record *models.CallRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := project.NextCallIndex()
	record.Index = index
	record.ID = fmt.Sprintf("%04d", index)

	dir := s.dirFor(project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create call log directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal call record: %w", err)
	}

	path := filepath.Join(dir, record.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write call record %s: %w", path, err)
	}

	s.logger.Debug().
		Str("project_id", project.ID()).
		Str("call_id", record.ID).
		Str("path", path).
		Msg("Call record saved")

	return record.ID, nil
}

// Get loads one call record by id
func (s *Store) Get(project *models.Project, callID string) (*models.CallRecord, error) {
	path := filepath.Join(s.dirFor(project), callID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to read call record %s: %w", callID, err)
	}

	var record models.CallRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse call record %s: %w", callID, err)
	}
	return &record, nil
}

// List returns summaries of all stored calls in sequence order.
// Previews are truncated for list rendering. Unreadable files are
// skipped with a warning.
func (s *Store) List(project *models.Project) ([]models.CallSummary, error) {
	ids, err := s.callIDs(project)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.CallSummary, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(project, id)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("project_id", project.ID()).
				Str("call_id", id).
				Msg("Skipping unreadable call record")
			continue
		}
		summaries = append(summaries, models.CallSummary{
			ID:              record.ID,
			Index:           record.Index,
			AgentName:       record.AgentName,
			Model:           record.Model,
			Timestamp:       record.Timestamp,
			PromptPreview:   common.Truncate(record.PromptPreview, listPreviewLimit),
			ResponsePreview: common.Truncate(record.ResponsePreview, listPreviewLimit),
		})
	}
	return summaries, nil
}

// Count returns how many call records exist on disk
func (s *Store) Count(project *models.Project) (int, error) {
	ids, err := s.callIDs(project)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Detail loads one call record with prev/next navigation across the
// sequence-ordered list.
func (s *Store) Detail(project *models.Project, callID string) (*models.CallDetail, error) {
	record, err := s.Get(project, callID)
	if err != nil {
		return nil, err
	}

	ids, err := s.callIDs(project)
	if err != nil {
		return nil, err
	}

	detail := &models.CallDetail{
		CallRecord: *record,
		TotalCount: len(ids),
	}
	for i, id := range ids {
		if id != callID {
			continue
		}
		if i > 0 {
			detail.HasPrev = true
			detail.PrevID = ids[i-1]
		}
		if i < len(ids)-1 {
			detail.HasNext = true
			detail.NextID = ids[i+1]
		}
		break
	}
	return detail, nil
}

// MigrateProvisional moves call records from the provisional directory
// into the project tree. Existing destination files are never
// overwritten. The emptied provisional tree is removed best-effort.
func (s *Store) MigrateProvisional(projectID, projectDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	provisional := s.ProvisionalDir(projectID)
	entries, err := os.ReadDir(provisional)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read provisional call logs: %w", err)
	}

	destination := s.PermanentDir(projectDir)
	if err := os.MkdirAll(destination, 0755); err != nil {
		return fmt.Errorf("failed to create call log directory %s: %w", destination, err)
	}

	migrated := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		dest := filepath.Join(destination, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			// Never overwrite an existing record
			continue
		}
		if err := os.Rename(filepath.Join(provisional, entry.Name()), dest); err != nil {
			s.logger.Warn().
				Err(err).
				Str("project_id", projectID).
				Str("file", entry.Name()).
				Msg("Failed to migrate call record")
			continue
		}
		migrated++
	}

	// Remove the provisional tree; tolerate leftovers
	if err := os.Remove(provisional); err != nil {
		s.logger.Debug().Err(err).Str("dir", provisional).Msg("Provisional call log dir not removed")
	}
	if err := os.Remove(filepath.Dir(provisional)); err != nil {
		s.logger.Debug().Err(err).Str("dir", filepath.Dir(provisional)).Msg("Provisional project dir not removed")
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("destination", destination).
		Int("migrated", migrated).
		Msg("Call logs migrated to project directory")

	return nil
}

// callIDs lists stored call ids in sequence order
func (s *Store) callIDs(project *models.Project) ([]string, error) {
	dir := s.dirFor(project)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read call log directory %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
