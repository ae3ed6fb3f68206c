package usecase

import (
	"strings"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/vocab"
)

const maxExtractedEffects = 5

// scannedSections are searched for vocabulary terms; the title is left out.
var scannedSections = []string{"summary", "ethnobotany", "modern_evidence", "interesting_fact", "context", "safety"}

// ExtractEffects keeps generator-supplied ids when there are any. Otherwise
// it scans the narrative for vocabulary labels and returns at most five ids
// in vocabulary order.
func ExtractEffects(n domain.Narrative, given []string, v *vocab.Vocabulary) []string {
	if len(given) > 0 {
		return given
	}

	var b strings.Builder
	for _, name := range scannedSections {
		t, _ := n.Section(name)
		b.WriteString(t.EN)
		b.WriteByte('\n')
		b.WriteString(t.RU)
		b.WriteByte('\n')
	}
	text := strings.ToLower(b.String())

	out := []string{}
	for _, e := range v.Entries() {
		for _, label := range []string{e.EN, e.RU} {
			label = strings.ToLower(strings.TrimSpace(label))
			if label == "" || !strings.Contains(text, label) {
				continue
			}
			out = append(out, e.ID)
			break
		}
		if len(out) == maxExtractedEffects {
			break
		}
	}
	return out
}
