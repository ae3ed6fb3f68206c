package usecase

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
	"EthnoCards/internal/vocab"
)

const (
	CaptionLimit = 1024
	ChunkLimit   = 3500
	ellipsis     = "…"
	divider      = "· · ·"
)

var headings = map[string]domain.Text{
	"summary":          {RU: "Кратко", EN: "Summary"},
	"ethnobotany":      {RU: "Этноботаника", EN: "Ethnobotany"},
	"modern_evidence":  {RU: "Современные данные", EN: "Modern evidence"},
	"interesting_fact": {RU: "Интересный факт", EN: "Interesting fact"},
	"context":          {RU: "Контекст", EN: "Context"},
	"safety":           {RU: "Безопасность", EN: "Safety"},
	"effects":          {RU: "Эффекты", EN: "Effects"},
	"sources":          {RU: "Источники", EN: "Sources"},
	"affiliate":        {RU: "Партнёрская ссылка", EN: "Affiliate link"},
}

var bodySections = []string{"ethnobotany", "modern_evidence", "interesting_fact", "context", "safety"}

// Caption builds the short text sent with the photo: title line and summary,
// at most CaptionLimit runes.
func Caption(card domain.Card, lang string) string {
	title := titleLine(card, lang)
	summary := strings.TrimSpace(card.Payload.Summary.Pick(lang))

	var summaryLine string
	if summary != "" {
		summaryLine = headings["summary"].Pick(lang) + ": " + summary
	}

	caption := joinNonEmpty("\n\n", title, summaryLine)
	if caption == "" {
		caption = card.Latin
	}
	if utf8.RuneCountInString(caption) <= CaptionLimit {
		return caption
	}

	if summaryLine != "" {
		room := CaptionLimit
		if title != "" {
			room -= utf8.RuneCountInString(title) + 2
		}
		if room > 0 {
			caption = joinNonEmpty("\n\n", title, TrimWords(summaryLine, room))
		}
	}
	return TrimWords(caption, CaptionLimit)
}

// Body builds the long text posted after the photo.
func Body(card domain.Card, lang string, v *vocab.Vocabulary) string {
	blocks := []string{titleLine(card, lang), divider}

	for _, name := range bodySections {
		t, _ := card.Payload.Section(name)
		if text := strings.TrimSpace(t.Pick(lang)); text != "" {
			blocks = append(blocks, headings[name].Pick(lang)+":\n"+text)
		}
	}

	var meta []string
	if len(card.Payload.Effects) > 0 {
		lines := make([]string, 0, len(card.Payload.Effects))
		for _, id := range card.Payload.Effects {
			lines = append(lines, "• "+effectLabel(v, id, lang))
		}
		meta = append(meta, headings["effects"].Pick(lang)+":\n"+strings.Join(lines, "\n"))
	}
	if aff := card.Payload.Affiliate; aff != nil {
		link := aff.ProductURL
		if link == "" {
			link = aff.URL
		}
		if link != "" {
			meta = append(meta, headings["affiliate"].Pick(lang)+": "+aff.Note.Pick(lang)+" "+link)
		}
	}
	if len(card.Payload.Sources) > 0 {
		lines := make([]string, 0, len(card.Payload.Sources))
		for _, s := range card.Payload.Sources {
			switch {
			case s.Title != "" && s.URL != "":
				lines = append(lines, "• "+s.Title+" "+s.URL)
			case s.URL != "":
				lines = append(lines, "• "+s.URL)
			case s.Title != "":
				lines = append(lines, "• "+s.Title)
			}
		}
		meta = append(meta, headings["sources"].Pick(lang)+":\n"+strings.Join(lines, "\n"))
	}
	if len(meta) > 0 {
		blocks = append(blocks, divider)
		blocks = append(blocks, meta...)
	}
	return joinNonEmpty("\n\n", blocks...)
}

func titleLine(card domain.Card, lang string) string {
	title := strings.TrimSpace(card.Payload.Title.Pick(lang))
	latin := strings.TrimSpace(card.Latin)
	if latin == "" {
		latin = strings.TrimSpace(card.Payload.Latin)
	}
	switch {
	case title != "" && latin != "":
		return title + " (" + latin + ")"
	case title != "":
		return title
	}
	return latin
}

func effectLabel(v *vocab.Vocabulary, id, lang string) string {
	if e, ok := v.Lookup(id); ok {
		if label := (domain.Text{RU: e.RU, EN: e.EN}).Pick(lang); label != "" {
			return label
		}
	}
	return id
}

// TrimWords shortens s to at most limit runes including the trailing
// ellipsis, cutting at the last space so no word is split.
func TrimWords(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return ellipsis
	}
	cut := runes[:limit-1]
	if !unicode.IsSpace(runes[limit-1]) {
		if i := lastSpace(cut); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}

// SplitChunks breaks text into pieces of at most limit runes, preferring
// paragraph breaks, then line breaks, then spaces.
func SplitChunks(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		buf    string
	)
	push := func(piece, sep string) {
		switch {
		case buf == "":
			buf = piece
		case utf8.RuneCountInString(buf)+utf8.RuneCountInString(sep)+utf8.RuneCountInString(piece) <= limit:
			buf += sep + piece
		default:
			chunks = append(chunks, buf)
			buf = piece
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= limit {
			push(para, "\n\n")
			continue
		}
		sep := "\n\n"
		for _, line := range strings.Split(para, "\n") {
			for utf8.RuneCountInString(line) > limit {
				head, rest := splitAtWord(line, limit)
				push(head, sep)
				sep = "\n"
				line = rest
			}
			if line != "" {
				push(line, sep)
				sep = "\n"
			}
		}
	}
	if buf != "" {
		chunks = append(chunks, buf)
	}
	return chunks
}

func splitAtWord(line string, limit int) (string, string) {
	runes := []rune(line)
	cut := limit
	if !unicode.IsSpace(runes[limit]) {
		if i := lastSpace(runes[:limit]); i > 0 {
			cut = i
		}
	}
	head := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	rest := strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace)
	return head, rest
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// NewCardSender returns the default send step: photo with caption when the
// card has an http(s) image, text otherwise, then the body in chunks. The
// first message id is the result; body failures are logged only.
func NewCardSender(pub ports.Publisher, catalog *vocab.Catalog, logger *slog.Logger) SendFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, card domain.Card, ch Channel, caption string) (int64, error) {
		var (
			id  int64
			err error
		)
		if img := card.Payload.Image; img != nil && isHTTPURL(img.URL) {
			id, err = pub.SendPhoto(ctx, ch.ID, img.URL, caption)
		} else {
			id, err = pub.SendText(ctx, ch.ID, caption)
		}
		if err != nil {
			return 0, err
		}

		var v *vocab.Vocabulary
		if catalog != nil {
			if data, ok := catalog.Snapshot(); ok {
				v = data.Vocabulary
			}
		}
		for i, chunk := range SplitChunks(Body(card, ch.Lang, v), ChunkLimit) {
			if _, err := pub.SendText(ctx, ch.ID, chunk); err != nil {
				logger.Warn("body chunk not sent", "channel_id", ch.ID, "chunk", i, "error", err)
				break
			}
		}
		return id, nil
	}
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}
