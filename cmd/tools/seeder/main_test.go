package main

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/catalog"
)

type articleRows struct {
	saved map[string]catalog.Article
	fail  string
}

func (s *articleRows) UpsertArticle(_ context.Context, a catalog.Article) error {
	if a.ID == s.fail {
		return errors.New("constraint violation")
	}
	s.saved[a.ID] = a
	return nil
}

func (s *articleRows) GetArticle(_ context.Context, id string) (catalog.Article, error) {
	a, ok := s.saved[id]
	if !ok {
		return catalog.Article{}, catalog.ErrArticleNotFound
	}
	return a, nil
}

func TestSeedArticlesEvictsStaleCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rows := &articleRows{saved: map[string]catalog.Article{}}
	cat := &catalog.Service{Store: rows, Cache: catalog.NewCache(rdb, time.Minute), Logger: zerolog.Nop()}
	ctx := context.Background()

	list := articles()
	require.NoError(t, seedArticles(ctx, rows, cat, list, zerolog.Nop()))
	towel, err := cat.Article(ctx, "tea-towel")
	require.NoError(t, err)
	require.True(t, mr.Exists("catalog:article:tea-towel"))

	for i := range list {
		if list[i].ID == "tea-towel" {
			list[i].UnitPrice = towel.UnitPrice.Add(d("1.00"))
		}
	}
	require.NoError(t, seedArticles(ctx, rows, cat, list, zerolog.Nop()))
	require.False(t, mr.Exists("catalog:article:tea-towel"))

	fresh, err := cat.Article(ctx, "tea-towel")
	require.NoError(t, err)
	require.Equal(t, "10.9", fresh.UnitPrice.String())
}

func TestSeedArticlesStopsOnStoreError(t *testing.T) {
	rows := &articleRows{saved: map[string]catalog.Article{}, fail: "tote-bag"}
	err := seedArticles(context.Background(), rows, &catalog.Service{}, articles(), zerolog.Nop())
	require.ErrorContains(t, err, "tote-bag")
}
