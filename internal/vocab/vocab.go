package vocab

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"EthnoCards/internal/domain"
)

// DefaultAllowlist is used when no allowlist file is configured or it is empty.
var DefaultAllowlist = []string{
	"ods.od.nih.gov",
	"pubmed.ncbi.nlm.nih.gov",
	"cochranelibrary.com",
	"who.int",
	"powo.science.kew.org",
	"plants.usda.gov",
	"herbmed.org",
	"floraofchina.org",
	"mycobank.org",
	"indexfungorum.org",
}

// Allowlist is a set of trusted hostnames without the www. prefix.
type Allowlist map[string]struct{}

// NewAllowlist builds a set from hostnames.
func NewAllowlist(hosts []string) Allowlist {
	out := make(Allowlist, len(hosts))
	for _, h := range hosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// Has reports whether host is trusted.
func (a Allowlist) Has(host string) bool {
	_, ok := a[host]
	return ok
}

// Hosts returns the entries in no particular order.
func (a Allowlist) Hosts() []string {
	out := make([]string, 0, len(a))
	for h := range a {
		out = append(out, h)
	}
	return out
}

// LoadAllowlist reads a JSON or YAML list of hosts. A missing path, a missing
// file or an empty list yields the default set; a malformed file is an error.
func LoadAllowlist(path string) (Allowlist, error) {
	if strings.TrimSpace(path) == "" {
		return NewAllowlist(DefaultAllowlist), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewAllowlist(DefaultAllowlist), nil
		}
		return nil, fmt.Errorf("read allowlist %s: %w", path, err)
	}

	// YAML is a superset of JSON, so one decoder covers both formats.
	var hosts []string
	if err := yaml.Unmarshal(raw, &hosts); err != nil {
		return nil, fmt.Errorf("parse allowlist %s: %w", path, err)
	}
	if len(hosts) == 0 {
		return NewAllowlist(DefaultAllowlist), nil
	}
	return NewAllowlist(hosts), nil
}

// Vocabulary is the effect vocabulary in file order.
type Vocabulary struct {
	entries []domain.EffectEntry
	index   map[string]int
}

// NewVocabulary keeps the first occurrence of each id.
func NewVocabulary(entries []domain.EffectEntry) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			continue
		}
		if _, dup := v.index[e.ID]; dup {
			continue
		}
		v.index[e.ID] = len(v.entries)
		v.entries = append(v.entries, e)
	}
	return v
}

// Entries returns the entries in iteration order.
func (v *Vocabulary) Entries() []domain.EffectEntry {
	if v == nil {
		return nil
	}
	return v.entries
}

// IDs returns the ids in iteration order.
func (v *Vocabulary) IDs() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.ID
	}
	return out
}

// Has reports whether id is a known key.
func (v *Vocabulary) Has(id string) bool {
	if v == nil {
		return false
	}
	_, ok := v.index[id]
	return ok
}

// Lookup returns the entry for id.
func (v *Vocabulary) Lookup(id string) (domain.EffectEntry, bool) {
	if v == nil {
		return domain.EffectEntry{}, false
	}
	i, ok := v.index[id]
	if !ok {
		return domain.EffectEntry{}, false
	}
	return v.entries[i], true
}

// Len is the number of entries.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// LoadVocabulary reads the vocabulary file at path.
func LoadVocabulary(path string) (*Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	v, err := ParseVocabulary(raw)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary accepts either a mapping id -> {en, ru} or a list of
// {id, en, ru}, in JSON or YAML. Mapping key order is preserved.
func ParseVocabulary(raw []byte) (*Vocabulary, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(doc.Content) == 0 {
		return NewVocabulary(nil), nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		entries := make([]domain.EffectEntry, 0, len(root.Content)/2)
		for i := 0; i+1 < len(root.Content); i += 2 {
			var labels struct {
				EN string `yaml:"en"`
				RU string `yaml:"ru"`
			}
			if err := root.Content[i+1].Decode(&labels); err != nil {
				return nil, fmt.Errorf("entry %q: %w", root.Content[i].Value, err)
			}
			entries = append(entries, domain.EffectEntry{
				ID: root.Content[i].Value,
				EN: labels.EN,
				RU: labels.RU,
			})
		}
		return NewVocabulary(entries), nil
	case yaml.SequenceNode:
		var items []struct {
			ID     string `yaml:"id"`
			EN     string `yaml:"en"`
			RU     string `yaml:"ru"`
			NameEN string `yaml:"name_en"`
			NameRU string `yaml:"name_ru"`
		}
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		entries := make([]domain.EffectEntry, 0, len(items))
		for _, it := range items {
			e := domain.EffectEntry{ID: it.ID, EN: it.EN, RU: it.RU}
			if e.EN == "" {
				e.EN = it.NameEN
			}
			if e.RU == "" {
				e.RU = it.NameRU
			}
			entries = append(entries, e)
		}
		return NewVocabulary(entries), nil
	}
	return nil, fmt.Errorf("unexpected document kind %d", root.Kind)
}
