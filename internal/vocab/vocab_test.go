package vocab

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/domain"
)

func TestParseVocabularyKeepsFileOrder(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"sedative": {"en": "sedative", "ru": "седативный"},` +
		` "adaptogenic": {"en": "adaptogen", "ru": "адаптоген"},` +
		` "antioxidant": {"en": "antioxidant", "ru": "антиоксидант"}}`)

	v, err := ParseVocabulary(raw)
	require.NoError(t, err)

	want := []string{"sedative", "adaptogenic", "antioxidant"}
	if diff := cmp.Diff(want, v.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	e, ok := v.Lookup("adaptogenic")
	require.True(t, ok)
	assert.Equal(t, domain.EffectEntry{ID: "adaptogenic", EN: "adaptogen", RU: "адаптоген"}, e)
	assert.False(t, v.Has("nootropic"))
}

func TestParseVocabularyList(t *testing.T) {
	t.Parallel()

	raw := []byte(`
- id: calming
  name_en: calming
  name_ru: успокаивающий
- id: calming
  en: duplicate
- id: tonic
  en: tonic
`)
	v, err := ParseVocabulary(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"calming", "tonic"}, v.IDs())

	e, _ := v.Lookup("calming")
	assert.Equal(t, "calming", e.EN)
	assert.Equal(t, "успокаивающий", e.RU)
}

func TestLoadAllowlistFallsBackToDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	allow, err := LoadAllowlist(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.True(t, allow.Has("pubmed.ncbi.nlm.nih.gov"))
	assert.Len(t, allow, len(DefaultAllowlist))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o600))
	allow, err = LoadAllowlist(empty)
	require.NoError(t, err)
	assert.Len(t, allow, len(DefaultAllowlist))

	custom := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(custom, []byte(`["www.Example.org", "who.int"]`), 0o600))
	allow, err = LoadAllowlist(custom)
	require.NoError(t, err)
	assert.True(t, allow.Has("example.org"))
	assert.True(t, allow.Has("who.int"))
	assert.False(t, allow.Has("pubmed.ncbi.nlm.nih.gov"))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"a": [`), 0o600))
	_, err = LoadAllowlist(broken)
	assert.Error(t, err)
}

func TestCatalogReadiness(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	calls := 0
	c := NewCatalog(func(context.Context) (Data, error) {
		calls++
		<-release
		return Data{
			Allowlist:  NewAllowlist([]string{"who.int"}),
			Vocabulary: NewVocabulary([]domain.EffectEntry{{ID: "tonic"}}),
		}, nil
	}, nil)

	assert.False(t, c.Loaded())

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx)
	require.Error(t, err, "Get must respect ctx while loading")

	close(release)
	<-done
	c.Start(context.Background())

	data, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, data.Vocabulary.Has("tonic"))
	assert.True(t, c.Loaded())
	assert.Equal(t, 1, calls)
}
