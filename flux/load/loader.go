package load

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"fluxcore/flux"
	"fluxcore/flux/validate"
)

// actionManifest is the optional `manifest.yaml` sidecar an actions
// directory may carry, declaring the action paths it exports. It exists
// purely to catch drift between what a deployment expects to be
// registered and what actually got registered via ActionTable.Register —
// Go has no dynamic symbol discovery, so nothing else can notice this
// automatically.
type actionManifest struct {
	Actions []string `yaml:"actions"`
}

// FluxError collects every validation failure found in one flux file —
// consumed by the `validate` CLI collaborator (out of scope here, spec.md
// §1) via GetFluxErrors.
type FluxError struct {
	File   string
	Errors []validate.Error
}

// Loader walks the configured flux root for `.json` files at startup and
// on reload, parsing and validating each one (spec.md §4.2). Grounded on
// the teacher's runtime/app.go NewApp (filepath.Glob over a flows
// directory, per-file parse-then-register loop) and
// runtime/engine/yaml/loader.go's single-file Load method, generalized
// from one flat glob to a recursive walk (spec.md allows "arbitrary
// subdirectory nesting") and from YAML to JSON per spec.md §6.
type Loader struct {
	fluxRoot   string
	actionRoot string
	actions    *ActionTable

	mu         sync.RWMutex
	defs       []*flux.Definition
	fluxErrors []FluxError
}

func NewLoader(fluxRoot string, actions *ActionTable) *Loader {
	return &Loader{fluxRoot: fluxRoot, actions: actions}
}

// NewLoaderWithActionRoot also checks an actions directory's optional
// manifest.yaml sidecar against the registered ActionTable on load.
func NewLoaderWithActionRoot(fluxRoot, actionRoot string, actions *ActionTable) *Loader {
	return &Loader{fluxRoot: fluxRoot, actionRoot: actionRoot, actions: actions}
}

// Actions exposes the action table backing GetAction.
func (l *Loader) Actions() *ActionTable {
	return l.actions
}

// GetAction implements spec.md §4.2's `getAction(path) → handler | nil`.
func (l *Loader) GetAction(path string) (Action, bool) {
	return l.actions.Get(path)
}

// LoadFluxDefinitions walks fluxRoot for `.json` files, parses and
// validates each, and keeps only the definitions that validate —
// spec.md's `loadFluxDefinitions() → Definition[]`. A missing root
// directory yields an empty table and a logged warning, never an abort
// (spec.md §4.2 failure semantics); a malformed individual file is
// recorded in fluxErrors and otherwise skipped, never aborting the load.
func (l *Loader) LoadFluxDefinitions() []*flux.Definition {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.defs = nil
	l.fluxErrors = nil

	if _, err := os.Stat(l.fluxRoot); err != nil {
		slog.Warn("flux root not found, starting with no routes", "root", l.fluxRoot, "error", err)
		return nil
	}

	err := filepath.WalkDir(l.fluxRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return l.loadFile(path, true, err)
		}
		return l.loadFile(path, d.IsDir(), nil)
	})
	if err != nil {
		slog.Warn("error walking flux root", "root", l.fluxRoot, "error", err)
	}

	l.checkActionManifest()

	return l.defs
}

// checkActionManifest reads actionRoot/manifest.yaml, if present, and
// warns about any declared action path that never got registered — the
// closest Go equivalent of the source runtime's file-based discovery
// warning, since registration here happens in code rather than by
// scanning the filesystem.
func (l *Loader) checkActionManifest() {
	if l.actionRoot == "" {
		return
	}
	path := filepath.Join(l.actionRoot, "manifest.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var manifest actionManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		slog.Warn("malformed action manifest, skipping", "file", path, "error", err)
		return
	}

	for _, declared := range manifest.Actions {
		if _, ok := l.actions.Get(declared); !ok {
			slog.Warn("action declared in manifest but not registered", "action", declared, "manifest", path)
		}
	}
}

// GetFluxErrors implements spec.md §4.2's `getFluxErrors() → {file,
// errors[]}[]`.
func (l *Loader) GetFluxErrors() []FluxError {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]FluxError, len(l.fluxErrors))
	copy(out, l.fluxErrors)
	return out
}

func (l *Loader) loadFile(path string, isDir bool, walkErr error) error {
	if walkErr != nil {
		slog.Warn("error visiting path", "path", path, "error", walkErr)
		return nil
	}
	if isDir || filepath.Ext(path) != ".json" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		l.fluxErrors = append(l.fluxErrors, FluxError{
			File:   path,
			Errors: []validate.Error{{Path: "", Message: fmt.Sprintf("read failed: %v", err)}},
		})
		return nil
	}

	var def flux.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		l.fluxErrors = append(l.fluxErrors, FluxError{
			File:   path,
			Errors: []validate.Error{{Path: "", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		})
		return nil
	}

	result := validate.Definition(&def)
	if !result.Valid {
		l.fluxErrors = append(l.fluxErrors, FluxError{File: path, Errors: result.Errors})
		return nil
	}

	l.defs = append(l.defs, &def)
	return nil
}
