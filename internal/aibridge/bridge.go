// Package aibridge turns project context into model prompts and maps the
// model's free-text answers back onto blocks.
package aibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/starford/thinkblock/internal/apperr"
	"github.com/starford/thinkblock/internal/metrics"
	"github.com/starford/thinkblock/internal/models"
)

// Block-count bounds requested from the model. Fewer than MinGeneratedBlocks
// is logged, not rejected.
const (
	MinGeneratedBlocks = 20
	MaxGeneratedBlocks = 50
)

// Generator sends one prompt to a text model and returns its answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Bridge builds prompts, calls the Generator and decodes the answers.
type Bridge struct {
	gen Generator
	log *slog.Logger
}

// New returns a Bridge over gen.
func New(gen Generator, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{gen: gen, log: log}
}

// GenerateInput is the project context for block generation.
type GenerateInput struct {
	ProjectOverview    string
	CurrentStatus      string
	Problems           string
	AdditionalInfo     string
	ExistingCategories []string
}

// GeneratedBlock is one block proposed by the model.
type GeneratedBlock struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// GenerateResult holds the proposed blocks and the model's project analysis,
// which is empty for legacy array answers.
type GenerateResult struct {
	Blocks          []GeneratedBlock
	ProjectAnalysis string
}

// GenerateBlocks asks the model for a block breakdown of the project.
func (b *Bridge) GenerateBlocks(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	prompt, err := renderGeneratePrompt(in)
	if err != nil {
		return nil, err
	}
	raw, err := b.call(ctx, "generate", prompt)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	res := &GenerateResult{}
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, newParseError(string(raw), err)
		}
	default:
		var obj struct {
			ThinkingProcess map[string]any   `json:"thinking_process"`
			Blocks          []map[string]any `json:"blocks"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, newParseError(string(raw), err)
		}
		items = obj.Blocks
		res.ProjectAnalysis = stringField(obj.ThinkingProcess, "project_analysis")
	}

	for _, item := range items {
		res.Blocks = append(res.Blocks, GeneratedBlock{
			Title:       stringField(item, "title"),
			Description: stringField(item, "description"),
			Category:    strings.TrimSpace(stringField(item, "category")),
		})
	}
	if len(res.Blocks) < MinGeneratedBlocks {
		b.log.Warn("model returned fewer blocks than requested",
			slog.Int("count", len(res.Blocks)), slog.Int("minimum", MinGeneratedBlocks))
	}
	b.log.Info("blocks generated",
		slog.Int("count", len(res.Blocks)), slog.Int("analysis_len", len(res.ProjectAnalysis)))
	return res, nil
}

// ArrangeInput is the set of blocks to place plus optional project context.
type ArrangeInput struct {
	Blocks          []models.Block
	ProjectOverview string
	CurrentStatus   string
	Problems        string
	AdditionalInfo  string
}

// ArrangeResult carries every input block with its assigned level, in input
// order, and the composed reasoning text.
type ArrangeResult struct {
	Blocks    []models.Block
	Reasoning string
}

type arrangement struct {
	id     string
	level  int
	reason string
}

// ArrangeBlocks asks the model to place each block on a level in [0,5].
// Unusable levels and blocks the model omitted fall back to level 0.
func (b *Bridge) ArrangeBlocks(ctx context.Context, in ArrangeInput) (*ArrangeResult, error) {
	prompt, err := renderArrangePrompt(in)
	if err != nil {
		return nil, err
	}
	raw, err := b.call(ctx, "arrange", prompt)
	if err != nil {
		return nil, err
	}

	var (
		items    []map[string]any
		thinking map[string]any
		topLevel string
		isObject bool
	)
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, newParseError(string(raw), err)
		}
	default:
		var obj struct {
			ThinkingProcess map[string]any   `json:"thinking_process"`
			Arrangements    []map[string]any `json:"arrangements"`
			Reasoning       any              `json:"reasoning"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, newParseError(string(raw), err)
		}
		items, thinking, isObject = obj.Arrangements, obj.ThinkingProcess, true
		topLevel, _ = obj.Reasoning.(string)
	}

	arranged := make([]arrangement, 0, len(items))
	levels := make(map[string]int, len(items))
	for _, item := range items {
		a := arrangement{
			id:     stringField(item, "id"),
			reason: stringField(item, "reason"),
		}
		lvl, ok := normalizeLevel(item["level"])
		if !ok {
			b.log.Warn("unusable level from model, using 0",
				slog.String("block_id", a.id), slog.Any("level", item["level"]))
		}
		a.level = lvl
		levels[a.id] = lvl
		arranged = append(arranged, a)
	}

	titles := make(map[string]string, len(in.Blocks))
	out := make([]models.Block, 0, len(in.Blocks))
	for _, blk := range in.Blocks {
		titles[blk.ID] = blk.Title
		placed := blk.Clone()
		lvl, ok := levels[blk.ID]
		if !ok {
			b.log.Warn("model did not place block, using level 0",
				slog.String("block_id", blk.ID), slog.String("title", blk.Title))
		}
		placed.Level = lvl
		out = append(out, placed)
	}

	var reasoning string
	switch {
	case len(thinking) > 0:
		reasoning = composeReasoning(thinking, arranged, titles)
	case isObject && strings.TrimSpace(topLevel) != "":
		reasoning = topLevel
	default:
		reasoning = strings.Join(blockReasons(arranged, titles), "\n\n")
	}
	b.log.Info("blocks arranged",
		slog.Int("count", len(out)), slog.Int("reasoning_len", len(reasoning)))
	return &ArrangeResult{Blocks: out, Reasoning: reasoning}, nil
}

// call runs the model and extracts the JSON payload from its answer.
func (b *Bridge) call(ctx context.Context, op, prompt string) (json.RawMessage, error) {
	started := time.Now()
	text, err := b.gen.Generate(ctx, prompt)
	if err != nil {
		metrics.ObserveAI(op, started, err)
		return nil, fmt.Errorf("%s: %w", op, asAIError(err))
	}
	raw, err := ExtractJSON(text)
	metrics.ObserveAI(op, started, err)
	if err != nil {
		b.log.Error("model answer not parseable", slog.String("op", op), slog.String("error", err.Error()))
		return nil, err
	}
	return raw, nil
}

func asAIError(err error) error {
	if err == nil || errors.Is(err, apperr.ErrAIService) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrAIService, err)
}

// normalizeLevel converts a model-supplied level to an int in [0,5]. A
// missing level is 0 and fractions are truncated. Non-numeric values and
// levels outside [0,5] yield (0, false).
func normalizeLevel(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	lvl := int(math.Trunc(f))
	if lvl < models.MinLevel || lvl > models.MaxLevel {
		return 0, false
	}
	return lvl, true
}

var levelGoalNames = []struct {
	key, label string
}{
	{"level0", "Level 0 (foundation)"},
	{"level1", "Level 1"},
	{"level2", "Level 2"},
	{"level3", "Level 3"},
	{"level4", "Level 4"},
	{"level5", "Level 5 (goal)"},
}

// composeReasoning renders the model's thinking_process and per-block reasons
// as markdown.
func composeReasoning(thinking map[string]any, arranged []arrangement, titles map[string]string) string {
	var parts []string
	if s := stringField(thinking, "level5_analysis"); s != "" {
		parts = append(parts, "## Level 5 (goal) analysis\n"+s)
	}
	if goals, ok := thinking["level_goals"].(map[string]any); ok && len(goals) > 0 {
		parts = append(parts, "\n## Goals per level")
		for _, g := range levelGoalNames {
			if s := stringField(goals, g.key); s != "" {
				parts = append(parts, fmt.Sprintf("- %s: %s", g.label, s))
			}
		}
	}
	if s := stringField(thinking, "dependency_analysis"); s != "" {
		parts = append(parts, "\n## Dependency and priority analysis\n"+s)
	}
	if s := stringField(thinking, "designer_advice"); s != "" {
		parts = append(parts, "\n## Designer advice\n"+s)
	}
	if s := stringField(thinking, "final_decision"); s != "" {
		parts = append(parts, "\n## Final arrangement decision\n"+s)
	}
	if len(arranged) > 0 {
		parts = append(parts, "\n## Reasons per block")
		parts = append(parts, blockReasons(arranged, titles)...)
	}
	return strings.Join(parts, "\n\n")
}

func blockReasons(arranged []arrangement, titles map[string]string) []string {
	var out []string
	for _, a := range arranged {
		if a.reason == "" {
			continue
		}
		out = append(out, fmt.Sprintf("- %s (level %d): %s", titles[a.id], a.level, a.reason))
	}
	return out
}

// stringField reads m[key] as text. Numbers are formatted; anything else is "".
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
