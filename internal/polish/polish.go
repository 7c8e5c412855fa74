// Package polish implements an LLM-based lyric polishing stage that fixes
// spelling, capitalisation and punctuation of transcribed lines.
//
// The [Polisher] sends the transcribed segments to an [llm.Provider] as a
// JSON document and asks for the same document back with corrected text.
// Timing is never taken from the model: [Enforce] copies every timestamp from
// the original segments and reverts any segment whose word count changed.
//
// When the reply cannot be parsed, the Polisher returns the original segments
// unchanged rather than surfacing an error, so the pipeline always continues.
package polish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	defaultTemperature = 0.1
	defaultBatchSize   = 40
)

const systemPrompt = `You are a lyrics proofreader for a karaoke application.

You receive song lines produced by speech recognition as JSON. Each line has a "text" and a "words" array.

Rules:
- Fix spelling, capitalisation and punctuation only.
- Keep exactly the same number of lines, in the same order.
- Keep exactly the same number of entries in each "words" array. Never merge or split words.
- Do NOT rewrite, translate or censor lyrics.
- If you are unsure about a line, return it unchanged.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"lines": [{"text": "<corrected line>", "words": ["<word>", ...]}]}`

// Line is the wire form of one segment in the prompt and the reply.
type Line struct {
	Text  string   `json:"text"`
	Words []string `json:"words"`
}

type document struct {
	Lines []Line `json:"lines"`
}

// Option is a functional option for configuring a [Polisher].
type Option func(*Polisher)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(p *Polisher) {
		p.temperature = temp
	}
}

// WithBatchSize sets how many segments are sent per request. Default: 40.
func WithBatchSize(n int) Option {
	return func(p *Polisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// Polisher uses an [llm.Provider] to proofread lyric segments. It is safe
// for concurrent use.
type Polisher struct {
	llm         llm.Provider
	temperature float64
	batchSize   int
}

// New returns a Polisher backed by provider.
func New(provider llm.Provider, opts ...Option) *Polisher {
	p := &Polisher{
		llm:         provider,
		temperature: defaultTemperature,
		batchSize:   defaultBatchSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Polish returns proofread copies of segs. Timestamps and word counts are
// preserved; see [Enforce].
func (p *Polisher) Polish(ctx context.Context, segs []types.LyricSegment) ([]types.LyricSegment, error) {
	out, _, err := p.PolishWithReport(ctx, segs)
	return out, err
}

// PolishWithReport is like Polish and also reports which segments were
// reverted. Provider and context errors are returned; an unparseable reply
// leaves its batch unchanged.
func (p *Polisher) PolishWithReport(ctx context.Context, segs []types.LyricSegment) ([]types.LyricSegment, Report, error) {
	if len(segs) == 0 {
		return nil, Report{}, nil
	}

	polished := make([]types.LyricSegment, 0, len(segs))
	for start := 0; start < len(segs); start += p.batchSize {
		batch := segs[start:min(start+p.batchSize, len(segs))]
		lines, err := p.complete(ctx, batch)
		if err != nil {
			return types.CloneSegments(segs), Report{}, err
		}
		if lines == nil {
			polished = append(polished, types.CloneSegments(batch)...)
			continue
		}
		cands := FromLines(batch, lines)
		// Blank candidates stand in for lines the reply left out, so Enforce
		// reverts them and later batches keep their positions.
		for len(cands) < len(batch) {
			cands = append(cands, types.LyricSegment{})
		}
		polished = append(polished, cands...)
	}

	out, rep := Enforce(segs, polished)
	if len(rep.Reverted) > 0 {
		slog.Warn("polish: reverted segments with changed word count", "count", len(rep.Reverted), "indices", rep.Reverted)
	}
	return out, rep, nil
}

// complete polishes one batch. It returns nil lines when the reply is
// unusable.
func (p *Polisher) complete(ctx context.Context, batch []types.LyricSegment) ([]Line, error) {
	payload, err := json.Marshal(document{Lines: ToLines(batch)})
	if err != nil {
		return nil, fmt.Errorf("polish: encode request: %w", err)
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  p.temperature,
		JSON:         true,
		Messages:     []llm.Message{llm.UserMessage(string(payload))},
	})
	if err != nil {
		return nil, fmt.Errorf("polish: complete: %w", err)
	}

	if resp == nil {
		return nil, nil
	}
	lines, err := ParseReply(resp.Content)
	if err != nil {
		slog.Warn("polish: unparseable reply, keeping batch unchanged", "err", err)
		return nil, nil
	}
	return lines, nil
}

// ToLines converts segments to their wire form. Segments without word timing
// use their whitespace-separated tokens.
func ToLines(segs []types.LyricSegment) []Line {
	out := make([]Line, len(segs))
	for i, s := range segs {
		words := make([]string, 0, types.WordCount(s))
		if s.HasWords() {
			for _, w := range s.Words {
				words = append(words, w.Word)
			}
		} else {
			words = append(words, strings.Fields(s.Text)...)
		}
		out[i] = Line{Text: s.Text, Words: words}
	}
	return out
}

// FromLines builds candidate segments from a reply. Word entries carry the
// polished text with zero timing; [Enforce] fills in the real timing. Missing
// lines are left out.
func FromLines(original []types.LyricSegment, lines []Line) []types.LyricSegment {
	out := make([]types.LyricSegment, 0, len(lines))
	for i, ln := range lines {
		if i >= len(original) {
			break
		}
		seg := types.LyricSegment{Text: strings.TrimSpace(ln.Text)}
		words := ln.Words
		if len(words) == 0 {
			words = strings.Fields(seg.Text)
		}
		for _, w := range words {
			seg.Words = append(seg.Words, types.WordTimestamp{Word: strings.TrimSpace(w)})
		}
		out = append(out, seg)
	}
	return out
}

// ParseReply decodes a model reply. It accepts either {"lines": [...]} or a
// bare JSON array of lines, optionally wrapped in markdown code fences.
func ParseReply(content string) ([]Line, error) {
	cleaned := stripMarkdown(content)

	if strings.HasPrefix(cleaned, "[") {
		var lines []Line
		if err := json.Unmarshal([]byte(cleaned), &lines); err != nil {
			return nil, fmt.Errorf("polish: parse reply: %w", err)
		}
		return lines, nil
	}

	var doc document
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("polish: parse reply: %w", err)
	}
	if doc.Lines == nil {
		return nil, fmt.Errorf("polish: parse reply: missing \"lines\"")
	}
	return doc.Lines, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
