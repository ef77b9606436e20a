package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/store"
)

const (
	analyzerSystemInstruction = "You analyze messages written to a supportive wellbeing companion. " +
		"Reply with a single JSON object and nothing else."

	analyzerPromptTemplate = `Analyze this therapy message and return a JSON object with the following structure:
{
  "emotional_state": "...",
  "themes": ["...", "..."],
  "risk_level": 0,
  "recommended_approach": "...",
  "progress_indicators": ["...", "..."]
}

risk_level is a number from 0 (no concern) to 10 (immediate danger to self or others).

Message: %q`

	maxRiskLevel = 10
)

// AnalysisResult always carries the raw model text. Analysis is set only
// when that text parsed; Err is set when it did not.
type AnalysisResult struct {
	Raw      string
	Analysis *store.Analysis
	Err      *TurnError
}

// Label is a short emotion description for prompts and logs.
func (r AnalysisResult) Label() string {
	if r.Analysis != nil && r.Analysis.EmotionalState != "" {
		return r.Analysis.EmotionalState
	}
	return "unknown"
}

type Analyzer struct {
	gen TextGenerator
	log *logger.Logger
}

func NewAnalyzer(gen TextGenerator, log *logger.Logger) *Analyzer {
	return &Analyzer{gen: gen, log: log}
}

func (a *Analyzer) Analyze(ctx context.Context, message string) AnalysisResult {
	temp := float32(0.2)
	raw, err := a.gen.Generate(ctx, GenerateRequest{
		SystemInstruction: analyzerSystemInstruction,
		Prompt:            fmt.Sprintf(analyzerPromptTemplate, message),
		JSON:              true,
		Temperature:       &temp,
	})
	if err != nil {
		a.log.Warn("Emotion analysis failed", "error", err)
		return AnalysisResult{
			Raw: errorJSON(err),
			Err: newTurnError(StageAnalyze, kindOf(err), err),
		}
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		a.log.Warn("Emotion analysis did not parse", "error", err, "raw", truncate(raw, 200))
		return AnalysisResult{Raw: raw, Err: newTurnError(StageAnalyze, ErrorKindParse, err)}
	}
	return AnalysisResult{Raw: raw, Analysis: analysis}
}

type rawAnalysis struct {
	EmotionalState      string          `json:"emotional_state"`
	Themes              []string        `json:"themes"`
	RiskLevel           json.RawMessage `json:"risk_level"`
	RecommendedApproach string          `json:"recommended_approach"`
	ProgressIndicators  []string        `json:"progress_indicators"`
}

// ParseAnalysis extracts the analysis object from model output. Code fences
// and text around the object are tolerated; a missing emotional_state is not.
func ParseAnalysis(text string) (*store.Analysis, error) {
	body := extractJSONObject(text)
	if body == "" {
		return nil, errors.New("no JSON object in analyzer output")
	}

	var ra rawAnalysis
	if err := json.Unmarshal([]byte(body), &ra); err != nil {
		return nil, fmt.Errorf("failed to decode analyzer output: %w", err)
	}
	if strings.TrimSpace(ra.EmotionalState) == "" {
		return nil, errors.New("analyzer output has no emotional_state")
	}
	risk, err := parseRiskLevel(ra.RiskLevel)
	if err != nil {
		return nil, err
	}

	return &store.Analysis{
		EmotionalState:      strings.TrimSpace(ra.EmotionalState),
		Themes:              nonNil(ra.Themes),
		RiskLevel:           risk,
		RecommendedApproach: strings.TrimSpace(ra.RecommendedApproach),
		ProgressIndicators:  nonNil(ra.ProgressIndicators),
	}, nil
}

// parseRiskLevel accepts a number or a quoted number and clamps it to 0..10.
func parseRiskLevel(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("risk_level is not a number: %s", raw)
		}
		n, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("risk_level is not a number: %q", s)
		}
	}
	if n < 0 {
		n = 0
	}
	if n > maxRiskLevel {
		n = maxRiskLevel
	}
	return n, nil
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
