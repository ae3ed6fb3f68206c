package quality

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
	"EthnoCards/internal/vocab"
)

const minSources = 2

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Gate checks draft cards against the reference data held by a catalog.
type Gate struct {
	catalog  *vocab.Catalog
	validate *validator.Validate
}

var _ ports.QualityGate = (*Gate)(nil)

// New builds a gate. The catalog must be started before the first Check.
func New(catalog *vocab.Catalog) *Gate {
	return &Gate{catalog: catalog, validate: newValidator()}
}

// Check never fails; an unloaded catalog rejects every card.
func (g *Gate) Check(card domain.Card) ports.QualityVerdict {
	data, ok := g.catalog.Snapshot()
	if !ok {
		return ports.QualityVerdict{Reason: "reference-data"}
	}
	return evaluate(g.validate, card, data)
}

// Evaluate runs the ordered checks; the first failure wins.
func Evaluate(card domain.Card, data vocab.Data) ports.QualityVerdict {
	return evaluate(newValidator(), card, data)
}

func evaluate(v *validator.Validate, card domain.Card, data vocab.Data) ports.QualityVerdict {
	if reason := checkSections(card.Payload.Narrative); reason != "" {
		return ports.QualityVerdict{Reason: reason}
	}
	if reason := checkSources(card.Payload.Sources, data.Allowlist); reason != "" {
		return ports.QualityVerdict{Reason: reason}
	}
	if reason := checkEffects(card.Payload.Effects, data.Vocabulary); reason != "" {
		return ports.QualityVerdict{Reason: reason}
	}
	if details := checkSchema(v, card); len(details) > 0 {
		return ports.QualityVerdict{Reason: "schema", Details: details}
	}
	return ports.QualityVerdict{OK: true}
}

func checkSections(n domain.Narrative) string {
	for _, name := range domain.SectionNames {
		text, _ := n.Section(name)
		if text.RU == "" && text.EN == "" {
			return "missing " + name
		}
		for _, field := range []struct {
			lang  string
			value string
		}{{"ru", text.RU}, {"en", text.EN}} {
			stripped := StripHTML(field.value)
			if strings.TrimSpace(stripped) == "" {
				return fmt.Sprintf("empty %s.%s", name, field.lang)
			}
			if stripped != field.value {
				return fmt.Sprintf("html_detected %s.%s", name, field.lang)
			}
		}
	}
	return ""
}

func checkSources(sources []domain.Source, allow vocab.Allowlist) string {
	if len(sources) < minSources {
		return "sources.count"
	}
	for _, s := range sources {
		if !allow.Has(HostOf(s.URL)) {
			return "sources.allowlist"
		}
	}
	return ""
}

func checkEffects(effects []string, v *vocab.Vocabulary) string {
	if len(effects) == 0 {
		return "effects.empty"
	}
	for _, e := range effects {
		if !v.Has(e) {
			return "effects.unknown:" + e
		}
	}
	return ""
}

// StripHTML removes tag-shaped substrings and nothing else.
func StripHTML(s string) string {
	return htmlTag.ReplaceAllString(s, "")
}

// HostOf returns the hostname without a leading www., or "" for bad URLs.
func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

type textDoc struct {
	RU string `validate:"required"`
	EN string `validate:"required"`
}

type sourceDoc struct {
	Title string `validate:"required"`
	URL   string `validate:"required,url"`
	Type  string
}

type imageDoc struct {
	URL    string `validate:"omitempty,url"`
	Status string `validate:"oneof=ok missing"`
}

type affiliateDoc struct {
	Vendor     string `validate:"required"`
	URL        string `validate:"required,url"`
	ProductURL string `validate:"omitempty,url"`
}

// cardDocument is the full persisted shape with the injected category and
// status, validated as the last line of defence against shape drift.
type cardDocument struct {
	Latin           string        `validate:"required"`
	PlantID         string        `validate:"required,startswith=plant_"`
	Category        string        `validate:"eq=plant"`
	Status          string        `validate:"eq=ready"`
	CooldownDays    int           `validate:"gte=0"`
	PostedCount     int           `validate:"gte=0"`
	Title           textDoc
	Summary         textDoc
	Ethnobotany     textDoc
	ModernEvidence  textDoc
	InterestingFact textDoc
	Context         textDoc
	Safety          textDoc
	Effects         []string      `validate:"min=1,dive,required"`
	Sources         []sourceDoc   `validate:"min=2,dive"`
	Image           *imageDoc
	Affiliate       *affiliateDoc
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func checkSchema(v *validator.Validate, card domain.Card) []string {
	doc := toDocument(card)
	err := v.Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return details
}

func toDocument(card domain.Card) cardDocument {
	p := card.Payload
	text := func(t domain.Text) textDoc { return textDoc{RU: t.RU, EN: t.EN} }

	latin := card.Latin
	if latin == "" {
		latin = p.Latin
	}
	doc := cardDocument{
		Latin:           latin,
		PlantID:         card.PlantID,
		Category:        "plant",
		Status:          string(domain.CardReady),
		CooldownDays:    card.CooldownDays,
		PostedCount:     card.PostedCount,
		Title:           text(p.Title),
		Summary:         text(p.Summary),
		Ethnobotany:     text(p.Ethnobotany),
		ModernEvidence:  text(p.ModernEvidence),
		InterestingFact: text(p.InterestingFact),
		Context:         text(p.Context),
		Safety:          text(p.Safety),
		Effects:         p.Effects,
	}
	for _, s := range p.Sources {
		doc.Sources = append(doc.Sources, sourceDoc{Title: s.Title, URL: s.URL, Type: s.Type})
	}
	if p.Image != nil {
		doc.Image = &imageDoc{URL: p.Image.URL, Status: p.Image.Status}
	}
	if p.Affiliate != nil {
		doc.Affiliate = &affiliateDoc{Vendor: p.Affiliate.Vendor, URL: p.Affiliate.URL, ProductURL: p.Affiliate.ProductURL}
	}
	return doc
}
