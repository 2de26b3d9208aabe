package gates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/phasegate/internal/report"
	"github.com/ShayCichocki/phasegate/internal/state"
	"github.com/ShayCichocki/phasegate/pkg/models"
)

// markerLimit caps the unfinished-implementation hits echoed by Gate 7.
const markerLimit = 5

// final is Gate 7: the Gate 5 check set, a zero-tolerance scan for
// unfinished implementations, and for the bootstrap iteration a complete
// feature checklist.
func (e *Engine) final(ctx context.Context, req *Request) (Result, string, error) {
	ok, failed, err := e.sharedChecks(ctx)
	if err != nil {
		return Fail, "", err
	}
	if !ok {
		return Fail, failed + " failed", nil
	}

	e.rep.Info("unfinished implementation scan...")
	hits, err := e.markerScan()
	if err != nil {
		return Fail, "", err
	}
	if len(hits) > 0 {
		e.rep.List(report.Fail, fmt.Sprintf("%d unfinished implementation marker(s) found (not allowed):", len(hits)), hits, markerLimit)
		return Fail, "", nil
	}
	e.rep.Item(report.Pass, "no %s", strings.Join(e.cfg.Scan.ImplementationMarkers, "/"))

	iter, err := e.resolveIteration(req)
	if err != nil {
		return Fail, "", err
	}
	if iter != models.BootstrapIteration {
		return Pass, "", nil
	}
	return e.featureChecklist()
}

// markerScan walks the project, pruning skip dirs and dot directories, and
// returns "path:line: text" for every line holding an implementation marker.
func (e *Engine) markerScan() ([]string, error) {
	skip := make(map[string]bool, len(e.cfg.Scan.SkipDirs))
	for _, d := range e.cfg.Scan.SkipDirs {
		skip[d] = true
	}

	var hits []string
	err := filepath.WalkDir(e.projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == e.projectDir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != e.projectDir && (skip[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name(), e.cfg.Scan.TestExtensions) {
			return nil
		}
		found, err := grepLines(path, relPath(e.projectDir, path), e.cfg.Scan.ImplementationMarkers...)
		if err == nil {
			hits = append(hits, found...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.projectDir, err)
	}
	return hits, nil
}

func (e *Engine) featureChecklist() (Result, string, error) {
	features, err := e.store.LoadFeatureChecklist()
	switch {
	case errors.Is(err, state.ErrNotFound):
		return Pass, "", nil
	case errors.Is(err, state.ErrMalformed):
		e.rep.Item(report.Fail, "feature-checklist.json could not be parsed: %v", err)
		return Fail, "", nil
	case err != nil:
		return Fail, "", err
	}

	e.rep.Info("feature checklist (bootstrap iteration)...")
	var open []string
	for _, f := range features {
		if f.Status != "PASS" {
			status := f.Status
			if status == "" {
				status = "unknown"
			}
			open = append(open, fmt.Sprintf("%s: %s", f.Label(), status))
		}
	}
	if len(open) > 0 {
		e.rep.List(report.Fail, fmt.Sprintf("%d feature(s) not PASS:", len(open)), open, 0)
		return Fail, "", nil
	}
	e.rep.Item(report.Pass, "every feature is PASS")
	return Pass, "", nil
}
