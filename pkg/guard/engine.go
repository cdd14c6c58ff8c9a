// Package guard classifies entities as protected or generated using
// Rego policies. Classification feeds normalization (flagging) and
// restore planning (refusing deletes). The built-in policies cover the
// management VLAN, default firewall rules and unconfigured SSID slots;
// operators can layer site-specific .rego files on top.
package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/model"
)

// protectionQuery is the document all policy modules contribute to.
const protectionQuery = "data.sitesync.protection"

// Verdict is the classification of one entity.
type Verdict struct {
	// Protected entities are never scheduled for delete; a plan that
	// would remove one records a skip instead.
	Protected bool

	// Generated entities are backend artifacts. They are excluded from
	// diff output and never deleted.
	Generated bool
}

// Engine evaluates protection policies against entities.
type Engine struct {
	mu      sync.RWMutex
	modules map[string]string
	query   rego.PreparedEvalQuery
	store   storage.Store
	logger  zerolog.Logger
}

// NewEngine creates an engine with the built-in policies compiled.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		modules: make(map[string]string, len(builtinModules)),
		store:   inmem.New(),
		logger:  logger.With().Str("component", "guard").Logger(),
	}
	for name, src := range builtinModules {
		e.modules[name] = src
	}
	if err := e.compile(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to compile built-in policies: %w", err)
	}
	return e, nil
}

// LoadPolicyDir compiles every .rego file under dir (recursively) into
// the engine, alongside the built-ins. Files must contribute to the
// sitesync.protection package.
func (e *Engine) LoadPolicyDir(ctx context.Context, dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		e.modules[path] = string(src)
		loaded++
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.compile(ctx); err != nil {
		return fmt.Errorf("failed to compile policies from %s: %w", dir, err)
	}

	e.logger.Info().
		Str("dir", dir).
		Int("count", loaded).
		Msg("Protection policies loaded")
	return nil
}

// compile prepares the protection query over all modules. Caller holds
// e.mu for writes; NewEngine calls it before the engine escapes.
func (e *Engine) compile(ctx context.Context) error {
	opts := []func(*rego.Rego){
		rego.Query(protectionQuery),
		rego.Store(e.store),
	}
	names := make([]string, 0, len(e.modules))
	for name := range e.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, rego.Module(name, e.modules[name]))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return err
	}
	e.query = query
	return nil
}

// Classify evaluates the protection policies against one entity.
func (e *Engine) Classify(ctx context.Context, ent model.Entity) (Verdict, error) {
	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	input := map[string]any{
		"type":    string(ent.Type),
		"key":     ent.Key,
		"section": string(model.SectionOf(ent.Type)),
		"fields":  ent.Fields,
	}
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Verdict{}, fmt.Errorf("policy evaluation failed for %s/%s: %w", ent.Type, ent.Key, err)
	}

	var v Verdict
	for _, result := range results {
		for _, expr := range result.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			if b, ok := doc["protected"].(bool); ok && b {
				v.Protected = true
			}
			if b, ok := doc["generated"].(bool); ok && b {
				v.Generated = true
			}
		}
	}
	return v, nil
}
