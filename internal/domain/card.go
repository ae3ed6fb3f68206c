package domain

import "time"

// CardStatus enumerates publishing states of a card.
type CardStatus string

const CardReady CardStatus = "ready"

// DefaultCooldownDays is applied to new cards and to stored cards without a value.
const DefaultCooldownDays = 7

// Text is a bilingual string pair. Field names are part of the stored contract.
type Text struct {
	RU string `json:"ru"`
	EN string `json:"en"`
}

// Pick returns the text for lang, falling back to the other language.
func (t Text) Pick(lang string) string {
	if lang == "en" {
		if t.EN != "" {
			return t.EN
		}
		return t.RU
	}
	if t.RU != "" {
		return t.RU
	}
	return t.EN
}

// Source is a reference entry attached to a card.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

// Image is the canonical image record every provider output reduces to.
type Image struct {
	URL     string `json:"url"`
	Credit  string `json:"credit"`
	License string `json:"license"`
	Source  string `json:"source"`
	Status  string `json:"status"`
}

const (
	ImageOK      = "ok"
	ImageMissing = "missing"
)

// Affiliate is an optional vendor link.
type Affiliate struct {
	Vendor     string `json:"vendor"`
	Note       Text   `json:"note"`
	URL        string `json:"url"`
	ProductURL string `json:"product_url"`
}

// SectionNames lists the bilingual narrative sections in their canonical order.
var SectionNames = []string{
	"title",
	"summary",
	"ethnobotany",
	"modern_evidence",
	"interesting_fact",
	"context",
	"safety",
}

// Narrative holds the seven bilingual sections produced by the generator.
type Narrative struct {
	Title           Text `json:"title"`
	Summary         Text `json:"summary"`
	Ethnobotany     Text `json:"ethnobotany"`
	ModernEvidence  Text `json:"modern_evidence"`
	InterestingFact Text `json:"interesting_fact"`
	Context         Text `json:"context"`
	Safety          Text `json:"safety"`
}

// Section returns a section by its stored name.
func (n Narrative) Section(name string) (Text, bool) {
	switch name {
	case "title":
		return n.Title, true
	case "summary":
		return n.Summary, true
	case "ethnobotany":
		return n.Ethnobotany, true
	case "modern_evidence":
		return n.ModernEvidence, true
	case "interesting_fact":
		return n.InterestingFact, true
	case "context":
		return n.Context, true
	case "safety":
		return n.Safety, true
	}
	return Text{}, false
}

// SetSection assigns a section by its stored name; unknown names are ignored.
func (n *Narrative) SetSection(name string, t Text) {
	switch name {
	case "title":
		n.Title = t
	case "summary":
		n.Summary = t
	case "ethnobotany":
		n.Ethnobotany = t
	case "modern_evidence":
		n.ModernEvidence = t
	case "interesting_fact":
		n.InterestingFact = t
	case "context":
		n.Context = t
	case "safety":
		n.Safety = t
	}
}

// Payload is the content body of a card.
type Payload struct {
	Latin string `json:"latin"`
	Narrative
	Effects   []string   `json:"effects"`
	Sources   []Source   `json:"sources"`
	Image     *Image     `json:"image"`
	Affiliate *Affiliate `json:"affiliate"`
}

// Card is a finished, quality-gated content record.
type Card struct {
	ID           string
	Latin        string
	PlantID      string
	Status       CardStatus
	CooldownDays int
	Disabled     bool
	PostedCount  int
	LastPostedAt *time.Time
	Payload      Payload
}

// EffectEntry is one row of the static effect vocabulary.
type EffectEntry struct {
	ID string `json:"id"`
	EN string `json:"en"`
	RU string `json:"ru"`
}
