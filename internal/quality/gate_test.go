package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/vocab"
)

func testData() vocab.Data {
	return vocab.Data{
		Allowlist: vocab.NewAllowlist(vocab.DefaultAllowlist),
		Vocabulary: vocab.NewVocabulary([]domain.EffectEntry{
			{ID: "adaptogenic", EN: "adaptogen", RU: "адаптоген"},
			{ID: "sedative", EN: "sedative", RU: "седативный"},
		}),
	}
}

func validCard() domain.Card {
	latin := "Withania somnifera"
	card := domain.Card{
		ID:           domain.CardSlug(latin),
		Latin:        latin,
		PlantID:      domain.PlantID(latin),
		Status:       domain.CardReady,
		CooldownDays: domain.DefaultCooldownDays,
		Payload: domain.Payload{
			Latin:   latin,
			Effects: []string{"adaptogenic"},
			Sources: []domain.Source{
				{Title: "PubMed", URL: "https://pubmed.ncbi.nlm.nih.gov/?term=Withania", Type: "review"},
				{Title: "WHO", URL: "https://www.who.int/search?query=Withania", Type: "guideline"},
			},
			Image: &domain.Image{URL: "https://inaturalist-open-data.s3.amazonaws.com/photos/1/large.jpg", Status: domain.ImageOK},
		},
	}
	for _, name := range domain.SectionNames {
		card.Payload.SetSection(name, domain.Text{RU: "текст " + name, EN: "text " + name})
	}
	return card
}

func TestEvaluateAcceptsValidCard(t *testing.T) {
	t.Parallel()

	v := Evaluate(validCard(), testData())
	assert.True(t, v.OK, "reason=%s details=%v", v.Reason, v.Details)
}

func TestEvaluateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *domain.Card)
		reason string
	}{
		{
			name:   "missing section",
			mutate: func(c *domain.Card) { c.Payload.Safety = domain.Text{} },
			reason: "missing safety",
		},
		{
			name:   "empty language",
			mutate: func(c *domain.Card) { c.Payload.Context.EN = "   " },
			reason: "empty context.en",
		},
		{
			name:   "markup only counts as empty",
			mutate: func(c *domain.Card) { c.Payload.Summary.RU = "<br/>" },
			reason: "empty summary.ru",
		},
		{
			name:   "html present",
			mutate: func(c *domain.Card) { c.Payload.Title.EN = "<b>Ashwagandha</b>" },
			reason: "html_detected title.en",
		},
		{
			name:   "one source",
			mutate: func(c *domain.Card) { c.Payload.Sources = c.Payload.Sources[:1] },
			reason: "sources.count",
		},
		{
			name: "foreign host",
			mutate: func(c *domain.Card) {
				c.Payload.Sources[1].URL = "https://example.com/withania"
			},
			reason: "sources.allowlist",
		},
		{
			name:   "no effects",
			mutate: func(c *domain.Card) { c.Payload.Effects = nil },
			reason: "effects.empty",
		},
		{
			name:   "unknown effect",
			mutate: func(c *domain.Card) { c.Payload.Effects = []string{"adaptogenic", "flying"} },
			reason: "effects.unknown:flying",
		},
		{
			name:   "schema drift",
			mutate: func(c *domain.Card) { c.Payload.Image.URL = "not a url" },
			reason: "schema",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			card := validCard()
			tt.mutate(&card)
			v := Evaluate(card, testData())
			require.False(t, v.OK)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestEvaluateEffectsOnlyNeedKnownIDs(t *testing.T) {
	t.Parallel()

	ids := []string{"adaptogenic", "sedative", "antioxidant", "digestive", "anxiolytic", "antimicrobial"}
	entries := make([]domain.EffectEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, domain.EffectEntry{ID: id, EN: id, RU: id})
	}
	data := testData()
	data.Vocabulary = vocab.NewVocabulary(entries)

	for name, effects := range map[string][]string{
		"six known ids": ids,
		"repeated id":   {"adaptogenic", "adaptogenic"},
	} {
		card := validCard()
		card.Payload.Effects = effects
		v := Evaluate(card, data)
		assert.True(t, v.OK, "%s: reason=%s details=%v", name, v.Reason, v.Details)
	}
}

func TestEvaluateFirstFailureWins(t *testing.T) {
	t.Parallel()

	card := validCard()
	card.Payload.Ethnobotany.RU = "<i>x</i>"
	card.Payload.Sources = nil
	card.Payload.Effects = nil

	v := Evaluate(card, testData())
	assert.Equal(t, "html_detected ethnobotany.ru", v.Reason)
}

func TestEvaluateSchemaDetails(t *testing.T) {
	t.Parallel()

	card := validCard()
	card.PlantID = "withania"

	v := Evaluate(card, testData())
	require.Equal(t, "schema", v.Reason)
	require.NotEmpty(t, v.Details)
	assert.Contains(t, v.Details[0], "PlantID")
}

func TestGateRequiresLoadedCatalog(t *testing.T) {
	t.Parallel()

	pending := vocab.NewCatalog(nil, nil)
	assert.Equal(t, "reference-data", New(pending).Check(validCard()).Reason)

	ready := vocab.Static(testData())
	assert.True(t, New(ready).Check(validCard()).OK)
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "who.int", HostOf("https://www.who.int/x"))
	assert.Equal(t, "pubmed.ncbi.nlm.nih.gov", HostOf("https://PubMed.ncbi.nlm.nih.gov/?term=a"))
	assert.Equal(t, "", HostOf("not a url"))
}
