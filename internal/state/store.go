package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/phasegate/pkg/models"
)

var (
	// ErrNotFound is returned when a state document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformed is returned when a state document cannot be parsed.
	ErrMalformed = errors.New("malformed state document")
)

// TaskFile is one task record file and its parse outcome.
type TaskFile struct {
	Path string
	// Stem is the file name without the .yaml extension.
	Stem string
	// Task is nil when the file is empty or failed to parse.
	Task *models.Task
	Err  error
}

// Feature is one entry of feature-checklist.json.
type Feature struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Label returns the name, falling back to the id.
func (f Feature) Label() string {
	if f.Name != "" {
		return f.Name
	}
	if f.ID != "" {
		return f.ID
	}
	return "unknown"
}

// Store reads and writes the JSON/YAML documents under the state root.
// Every document is loaded whole, mutated in memory and written back whole.
type Store struct {
	Layout
	now func() time.Time
}

// NewStore creates a store for the project at projectDir.
func NewStore(projectDir string) *Store {
	return &Store{Layout: Layout{ProjectDir: projectDir}, now: time.Now}
}

// NewSessionState returns a fresh session with a random id.
func NewSessionState(iteration string, phase models.Phase) *models.SessionState {
	return &models.SessionState{
		SessionID:        uuid.NewString(),
		CurrentIteration: iteration,
		CurrentPhase:     phase,
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	return nil
}

// LoadSession loads session-state.json.
func (s *Store) LoadSession() (*models.SessionState, error) {
	var st models.SessionState
	if err := readJSON(s.SessionPath(), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSession stamps last_updated and writes session-state.json.
func (s *Store) SaveSession(st *models.SessionState) error {
	st.LastUpdated = s.now().UTC().Format(time.RFC3339)
	return writeJSON(s.SessionPath(), st)
}

// LoadBaseline loads baseline.json.
func (s *Store) LoadBaseline() (*models.Baseline, error) {
	var b models.Baseline
	if err := readJSON(s.BaselinePath(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBaseline writes baseline.json.
func (s *Store) SaveBaseline(b *models.Baseline) error {
	if b.PreExistingFailures == nil {
		b.PreExistingFailures = []string{}
	}
	return writeJSON(s.BaselinePath(), b)
}

// ResetBaseline removes baseline.json. A missing file is not an error.
func (s *Store) ResetBaseline() error {
	if err := os.Remove(s.BaselinePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove baseline: %w", err)
	}
	return nil
}

// LoadManifest loads <iter>/manifest.json as a generic document so unknown
// keys survive a rewrite.
func (s *Store) LoadManifest(iter string) (map[string]any, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	var m map[string]any
	if err := readJSON(s.ManifestPath(iter), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%s: %w: not an object", s.ManifestPath(iter), ErrMalformed)
	}
	return m, nil
}

// SaveManifest writes <iter>/manifest.json.
func (s *Store) SaveManifest(iter string, m map[string]any) error {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return err
	}
	return writeJSON(s.ManifestPath(iter), m)
}

// ResolveIteration returns explicit when set, otherwise the session's
// current_iteration. It returns "" when neither is available; a malformed
// session file is logged and treated as absent.
func (s *Store) ResolveIteration(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateSafeID(explicit, "iteration-id"); err != nil {
			return "", err
		}
		return explicit, nil
	}
	st, err := s.LoadSession()
	switch {
	case errors.Is(err, ErrNotFound):
		return "", nil
	case errors.Is(err, ErrMalformed):
		log.Printf("[state] warning: %v", err)
		return "", nil
	case err != nil:
		return "", err
	}
	if st.CurrentIteration == "" {
		return "", nil
	}
	if err := ValidateSafeID(st.CurrentIteration, "current_iteration"); err != nil {
		log.Printf("[state] warning: ignoring session iteration: %v", err)
		return "", nil
	}
	return st.CurrentIteration, nil
}

// LoadTasks parses every <iter>/tasks/*.yaml in name order. A missing
// directory yields no files. Per-file parse failures are reported in
// TaskFile.Err rather than failing the whole load.
func (s *Store) LoadTasks(iter string) ([]TaskFile, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(s.TasksDir(iter), "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	sort.Strings(paths)

	files := make([]TaskFile, 0, len(paths))
	for _, path := range paths {
		tf := TaskFile{Path: path, Stem: strings.TrimSuffix(filepath.Base(path), ".yaml")}
		tf.Task, tf.Err = parseTaskFile(path)
		if tf.Task != nil && tf.Task.ID == "" {
			tf.Task.ID = tf.Stem
		}
		files = append(files, tf)
	}
	return files, nil
}

// Tasks returns the successfully parsed tasks, logging files that failed.
func (s *Store) Tasks(iter string) ([]*models.Task, error) {
	files, err := s.LoadTasks(iter)
	if err != nil {
		return nil, err
	}
	tasks := make([]*models.Task, 0, len(files))
	for _, tf := range files {
		if tf.Err != nil {
			log.Printf("[state] warning: %v", tf.Err)
			continue
		}
		if tf.Task != nil {
			tasks = append(tasks, tf.Task)
		}
	}
	return tasks, nil
}

// LoadTask loads a single task record by id.
func (s *Store) LoadTask(iter, taskID string) (*models.Task, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	if err := ValidateSafeID(taskID, "task-id"); err != nil {
		return nil, err
	}
	path := s.TaskPath(iter, taskID)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	task, err := parseTaskFile(path)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%s: %w: empty document", path, ErrMalformed)
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return task, nil
}

func parseTaskFile(path string) (*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var task models.Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", filepath.Base(path), ErrMalformed, err)
	}
	return &task, nil
}

// ListVerifyScripts returns the stems of <iter>/verify/*.py in name order.
func (s *Store) ListVerifyScripts(iter string) ([]string, error) {
	return s.listStems(s.VerifyDir(iter), ".py")
}

// ListCheckpoints returns the checkpoint file names (cp-NNN.md) in order.
func (s *Store) ListCheckpoints(iter string) ([]string, error) {
	stems, err := s.listStems(s.CheckpointsDir(iter), ".md")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, stem := range stems {
		if strings.HasPrefix(stem, "cp-") {
			names = append(names, stem+".md")
		}
	}
	return names, nil
}

func (s *Store) listStems(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var stems []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(stems)
	return stems, nil
}

// LoadFeatureChecklist loads feature-checklist.json. Both a bare list and
// an object with a "features" list are accepted.
func (s *Store) LoadFeatureChecklist() ([]Feature, error) {
	path := s.FeatureChecklistPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var list []Feature
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Features []Feature `json:"features"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	return wrapped.Features, nil
}

// SetPhase writes phase into the iteration manifest and mirrors it into the
// session state together with a refreshed progress tally. The manifest
// write is load-bearing; a missing or malformed session file is logged and
// skipped.
func (s *Store) SetPhase(iter string, phase models.Phase) error {
	manifest, err := s.LoadManifest(iter)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Printf("[state] warning: %s missing, phase not recorded in manifest", ManifestFile)
	case err != nil:
		return err
	default:
		for _, problem := range models.ValidateManifest(manifest) {
			log.Printf("[state] warning: manifest: %s", problem)
		}
		manifest["phase"] = string(phase)
		if err := s.SaveManifest(iter, manifest); err != nil {
			return err
		}
	}

	st, err := s.LoadSession()
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, ErrMalformed):
		log.Printf("[state] warning: %v", err)
		return nil
	case err != nil:
		return err
	}

	st.CurrentPhase = phase
	if st.CurrentIteration == "" || st.CurrentIteration == iter {
		st.CurrentIteration = iter
		tasks, err := s.Tasks(iter)
		if err != nil {
			return err
		}
		st.Progress = models.TallyProgress(tasks)
	}
	return s.SaveSession(st)
}
