package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCandidateLockIsConditional(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Candidates()
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

	added, err := repo.AddNew(ctx, "withania_somnifera", "Withania somnifera", now)
	require.NoError(t, err)
	require.True(t, added)

	again, err := repo.AddNew(ctx, "withania_somnifera", "Withania somnifera", now)
	require.NoError(t, err)
	assert.False(t, again, "existing candidate must not be re-inserted")

	ok, err := repo.TryLock(ctx, "withania_somnifera", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryLock(ctx, "withania_somnifera", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "second lock must lose")

	list, err := repo.ListNew(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LockedAt)
	assert.True(t, list[0].LockedAt.Equal(now))

	require.NoError(t, repo.Unlock(ctx, "withania_somnifera", now))
	list, err = repo.ListNew(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LockedAt)
	assert.Equal(t, domain.CandidateNew, list[0].Status)
}

func TestCandidateMarkHasCardIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Candidates()
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.AddNew(ctx, "panax_ginseng", "Panax ginseng", now)
	require.NoError(t, err)
	_, err = repo.TryLock(ctx, "panax_ginseng", now)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.MarkHasCard(ctx, "panax_ginseng", "cards/panax-ginseng", now))
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.CandidateHasCard, all[0].Status)
	assert.Equal(t, "cards/panax-ginseng", all[0].CardRef)
	assert.Nil(t, all[0].LockedAt)

	fresh, err := repo.ListNew(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	ok, err := repo.TryLock(ctx, "panax_ginseng", now)
	require.NoError(t, err)
	assert.False(t, ok, "hasCard candidates cannot be locked")
}

func TestCandidateReleaseStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Candidates()
	base := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"a_a", "b_b"} {
		_, err := repo.AddNew(ctx, id, id, base)
		require.NoError(t, err)
	}
	_, err := repo.TryLock(ctx, "a_a", base)
	require.NoError(t, err)
	_, err = repo.TryLock(ctx, "b_b", base.Add(2*time.Hour))
	require.NoError(t, err)

	n, err := repo.ReleaseStale(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func sampleCard(latin string) domain.Card {
	return domain.Card{
		ID:           domain.CardSlug(latin),
		Latin:        latin,
		PlantID:      domain.PlantID(latin),
		Status:       domain.CardReady,
		CooldownDays: domain.DefaultCooldownDays,
		Payload: domain.Payload{
			Latin: latin,
			Narrative: domain.Narrative{
				Title:   domain.Text{RU: "Ашваганда", EN: "Ashwagandha"},
				Summary: domain.Text{RU: "Кратко", EN: "Short"},
			},
			Effects: []string{"adaptogenic"},
			Sources: []domain.Source{{Title: "PubMed", URL: "https://pubmed.ncbi.nlm.nih.gov/?term=x", Type: "review"}},
			Image:   &domain.Image{URL: "https://example.org/a.jpg", Source: "iNaturalist", Status: domain.ImageOK},
		},
	}
}

func TestCardUpsertOverwritesSameSlug(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Cards()

	card := sampleCard("Withania somnifera")
	require.NoError(t, repo.UpsertCard(ctx, card))

	card.Payload.Summary.EN = "Updated"
	require.NoError(t, repo.UpsertCard(ctx, card))

	all, err := repo.ListCards(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "withania-somnifera", all[0].ID)
	assert.Equal(t, "Updated", all[0].Payload.Summary.EN)
	assert.Equal(t, "Ashwagandha", all[0].Payload.Title.EN)
	require.NotNil(t, all[0].Payload.Image)
	assert.Equal(t, "https://example.org/a.jpg", all[0].Payload.Image.URL)
	assert.Nil(t, all[0].LastPostedAt)
	assert.Equal(t, 0, all[0].PostedCount)
	assert.False(t, all[0].Disabled)
}

func TestCardClaimAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Cards()
	require.NoError(t, repo.UpsertCard(ctx, sampleCard("Panax ginseng")))

	now := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)

	ok, err := repo.ClaimPost(ctx, "panax-ginseng", 0, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ClaimPost(ctx, "panax-ginseng", 0, now)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected count must lose")

	card, err := repo.GetCard(ctx, "panax-ginseng")
	require.NoError(t, err)
	assert.Equal(t, 1, card.PostedCount)
	require.NotNil(t, card.LastPostedAt)
	assert.True(t, card.LastPostedAt.Equal(now))

	ok, err = repo.ReleasePost(ctx, "panax-ginseng", 1, nil)
	require.NoError(t, err)
	require.True(t, ok)

	card, err = repo.GetCard(ctx, "panax-ginseng")
	require.NoError(t, err)
	assert.Equal(t, 0, card.PostedCount)
	assert.Nil(t, card.LastPostedAt)
}

func TestCardGetMissing(t *testing.T) {
	t.Parallel()

	_, err := openTestStore(t).Cards().GetCard(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCardSetCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Cards()
	require.NoError(t, repo.UpsertCard(ctx, sampleCard("Panax ginseng")))
	require.NoError(t, repo.UpsertCard(ctx, sampleCard("Withania somnifera")))

	n, err := repo.SetCooldown(ctx, 60)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	card, err := repo.GetCard(ctx, "panax-ginseng")
	require.NoError(t, err)
	assert.Equal(t, 60, card.CooldownDays)

	_, err = repo.SetCooldown(ctx, -1)
	assert.Error(t, err)
}

func TestDecodePayloadLegacyImageShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantURL string
		wantNil bool
	}{
		{
			name:    "nested",
			payload: `{"latin":"x","image":{"image":{"url":"https://a/1.jpg","credit":"c"},"status":"ok"}}`,
			wantURL: "https://a/1.jpg",
		},
		{
			name:    "flat",
			payload: `{"latin":"x","image":{"url":"https://a/2.jpg","license":"CC BY"}}`,
			wantURL: "https://a/2.jpg",
		},
		{
			name:    "list",
			payload: `{"latin":"x","image":{"images":[{"imageUrl":"https://a/3.jpg"}]}}`,
			wantURL: "https://a/3.jpg",
		},
		{
			name:    "null",
			payload: `{"latin":"x","image":null}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := decodePayload(tt.payload)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, p.Image)
				return
			}
			require.NotNil(t, p.Image)
			assert.Equal(t, tt.wantURL, p.Image.URL)
			assert.Equal(t, domain.ImageOK, p.Image.Status)
		})
	}
}

func TestNewPlaceholdersFollowDriver(t *testing.T) {
	t.Parallel()

	for driver, want := range map[string]string{
		DriverSQLite:   "SELECT slug FROM cards WHERE slug = ?",
		DriverPostgres: "SELECT slug FROM cards WHERE slug = $1",
	} {
		query, args, err := New(nil, driver).builder.
			Select("slug").From("cards").Where(sq.Eq{"slug": "x"}).ToSql()
		require.NoError(t, err, driver)
		assert.Equal(t, want, query, driver)
		assert.Equal(t, []any{"x"}, args)
	}
}
