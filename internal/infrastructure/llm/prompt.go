package llm

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

//go:embed prompts/narrative.md
var defaultPrompt string

const systemPrompt = "You are an ethnobotany writer. Respond ONLY with a single valid JSON object exactly matching the requested OUTPUT schema."

// fallbackEffectIDs keeps the prompt usable when the vocabulary is empty.
var fallbackEffectIDs = []string{
	"adaptogenic", "anti-inflammatory", "antioxidant", "cognitive-support",
	"immunomodulatory", "anxiolytic", "fatigue-resistance",
}

// Prompt renders the narrative request.
type Prompt struct {
	template string
}

// LoadPrompt reads a template file; an empty path selects the built-in one.
func LoadPrompt(path string) (Prompt, error) {
	if strings.TrimSpace(path) == "" {
		return Prompt{template: defaultPrompt}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("read prompt %s: %w", path, err)
	}
	return Prompt{template: string(raw)}, nil
}

// Render substitutes {latin}, {sources_json_array} and {EFFECTS_VOCAB_IDS}.
func (p Prompt) Render(req ports.NarrativeRequest) (string, error) {
	if strings.TrimSpace(req.Latin) == "" {
		return "", fmt.Errorf("render prompt: latin is required")
	}
	tmpl := p.template
	if tmpl == "" {
		tmpl = defaultPrompt
	}

	sources := req.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	rawSources, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}

	ids := req.VocabularyID
	if len(ids) == 0 {
		ids = fallbackEffectIDs
	}

	r := strings.NewReplacer(
		"{latin}", req.Latin,
		"{sources_json_array}", string(rawSources),
		"{EFFECTS_VOCAB_IDS}", strings.Join(ids, ", "),
	)
	return r.Replace(tmpl), nil
}
