package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

// StageError is a gating failure of one candidate. Reason is the short tag
// that ends up in logs and batch summaries.
type StageError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *StageError) Unwrap() error { return e.Err }

const (
	StageNarrative = "narrative"
	StageGate      = "gate"
	StagePersist   = "persist"
	StageReference = "reference"
	StagePanic     = "panic"
)

// draft is a narrative that passed the shape check.
type draft struct {
	narrative domain.Narrative
	effects   []string
}

// parseNarrative turns generator output into a JSON object. Raw text may be
// wrapped in prose or code fences; the outermost {...} is tried as a fallback.
func parseNarrative(res ports.NarrativeResult) map[string]any {
	if res.Object != nil {
		return res.Object
	}
	text := strings.TrimSpace(res.Raw)
	if text == "" {
		return nil
	}
	if obj := decodeObject(text); obj != nil {
		return obj
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	return decodeObject(text[start : end+1])
}

func decodeObject(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	return obj
}

// checkNarrativeShape validates keys and types in a fixed order and returns
// the first problem as a reason tag.
func checkNarrativeShape(obj map[string]any) (draft, string) {
	if obj == nil {
		return draft{}, "not-an-object"
	}
	if e, ok := obj["error"]; ok && e != nil && e != false && e != "" {
		return draft{}, fmt.Sprintf("llm-error:%v", e)
	}

	for _, k := range domain.SectionNames {
		if _, ok := obj[k]; !ok {
			return draft{}, "missing-key:" + k
		}
	}
	if _, ok := obj["effects"]; !ok {
		return draft{}, "missing-key:effects"
	}

	var d draft
	for _, k := range domain.SectionNames {
		pair, ok := obj[k].(map[string]any)
		if !ok {
			return draft{}, "bad-ru-en:" + k
		}
		ru, okRU := pair["ru"].(string)
		en, okEN := pair["en"].(string)
		if !okRU || !okEN {
			return draft{}, "bad-ru-en:" + k
		}
		d.narrative.SetSection(k, domain.Text{RU: ru, EN: en})
	}

	list, ok := obj["effects"].([]any)
	if !ok {
		return draft{}, "effects-not-array"
	}
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			d.effects = append(d.effects, s)
		}
	}
	return d, ""
}
