package template

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/plan"
)

// placeholderPattern matches ${expr} placeholders in template strings.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Engine expands templates into validated snapshots.
type Engine struct {
	eval    *Evaluator
	schemas *model.SchemaRegistry
	logger  zerolog.Logger
}

// NewEngine creates a template engine. schemas may be nil to skip
// field-level validation.
func NewEngine(schemas *model.SchemaRegistry, logger zerolog.Logger) *Engine {
	return &Engine{
		eval:    NewEvaluator(0),
		schemas: schemas,
		logger:  logger.With().Str("component", "template").Logger(),
	}
}

// Expand renders the template for one site. The result is a complete,
// validated snapshot: identity keys derived, key uniqueness enforced,
// references resolved, fields schema-checked. Expansion is all or
// nothing per site.
func (e *Engine) Expand(ctx context.Context, t *Template, siteID string, overrides map[string]any) (*model.Snapshot, error) {
	bindings := t.bindingsFor(siteID, overrides)

	expanded, err := e.expandValue(ctx, t.Sections, bindings)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", t.Name, err)
	}
	sections, ok := expanded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template %s: sections expanded to %T", t.Name, expanded)
	}

	doc := map[string]any{
		"metadata": map[string]any{
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"siteId":        siteID,
			"formatVersion": model.FormatVersion,
		},
	}
	for sec, body := range sections {
		doc[sec] = body
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", t.Name, err)
	}

	snap, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("template %s for site %s: %w", t.Name, siteID, err)
	}
	if err := plan.CheckReferences(snap); err != nil {
		return nil, fmt.Errorf("template %s for site %s: %w", t.Name, siteID, err)
	}
	if e.schemas != nil {
		if err := e.schemas.ValidateSnapshot(snap); err != nil {
			return nil, fmt.Errorf("template %s for site %s: %w", t.Name, siteID, err)
		}
	}

	e.logger.Debug().
		Str("template", t.Name).
		Str("site_id", siteID).
		Int("entities", snap.EntityCount()).
		Msg("Template expanded")
	return snap, nil
}

// expandValue walks the template tree substituting placeholders.
func (e *Engine) expandValue(ctx context.Context, v any, bindings map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.expandString(ctx, val, bindings)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			expanded, err := e.expandValue(ctx, item, bindings)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.expandValue(ctx, item, bindings)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return val, nil
	}
}

// expandString substitutes placeholders in one string. A string that is
// exactly one placeholder keeps the expression's type; embedded
// placeholders stringify into the surrounding text.
func (e *Engine) expandString(ctx context.Context, s string, bindings map[string]any) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string placeholder: preserve the evaluated type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return e.eval.Eval(ctx, s[matches[0][2]:matches[0][3]], bindings)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		v, err := e.eval.Eval(ctx, s[m[2]:m[3]], bindings)
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprint(v))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}
