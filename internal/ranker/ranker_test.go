package ranker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/contentgraph/internal/models"
)

func article(id string, tags ...string) *models.Record {
	vals := make([]models.Value, len(tags))
	for i, t := range tags {
		vals[i] = models.String(t)
	}
	return &models.Record{
		ID:          id,
		Kind:        models.LinkEntry,
		ContentType: "article",
		Fields:      models.Fields{"tags": models.Array(vals...)},
	}
}

func ids(recs []*models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRank_ScoresAndStableOrder(t *testing.T) {
	candidates := []*models.Record{
		article("c0", "a", "b"),
		article("c1", "a"),
		article("c2", "a", "b", "c"),
	}

	scored := New().Score(candidates, []string{"a", "b"}, "", 3)
	require.Len(t, scored, 3)
	assert.Equal(t, "c0", scored[0].Record.ID)
	assert.Equal(t, 2, scored[0].Score)
	assert.Equal(t, "c2", scored[1].Record.ID)
	assert.Equal(t, 2, scored[1].Score)
	assert.Equal(t, "c1", scored[2].Record.ID)
	assert.Equal(t, 1, scored[2].Score)
	assert.Equal(t, []string{"a", "b"}, scored[1].MatchedTags)

	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"c0", "c2", "c1"}, ids(Rank(candidates, []string{"a", "b"}, "", 3)))
	}
}

func TestRank_MatchedOnlyWhenAnyMatch(t *testing.T) {
	candidates := []*models.Record{article("x", "zzz"), article("y", "go"), article("z")}
	assert.Equal(t, []string{"y"}, ids(Rank(candidates, []string{"go"}, "", 10)))
}

func TestRank_CaseInsensitive(t *testing.T) {
	candidates := []*models.Record{article("x", "Go", "GO"), article("y", "caching")}
	scored := New().Score(candidates, []string{" go ", "CACHING"}, "", 10)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].Score, "duplicate tags count once")
	assert.Equal(t, []string{"Go"}, scored[0].MatchedTags)
}

func TestRank_ExcludeID(t *testing.T) {
	candidates := []*models.Record{article("current", "a"), article("other", "a")}
	assert.Equal(t, []string{"other"}, ids(Rank(candidates, []string{"a"}, "current", 10)))

	only := []*models.Record{article("current", "a")}
	assert.Empty(t, Rank(only, []string{"a"}, "current", 10))
}

func TestRank_FallbackOriginalOrder(t *testing.T) {
	candidates := []*models.Record{article("p"), article("q", "x"), article("r")}
	got := Rank(candidates, []string{"nomatch"}, "q", 10)
	assert.Equal(t, []string{"p", "r"}, ids(got))

	got = Rank(candidates, nil, "", 10)
	assert.Equal(t, []string{"p", "q", "r"}, ids(got))
}

func TestRank_FallbackShuffle(t *testing.T) {
	reversed := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	r := New(WithFallback(FallbackShuffle), WithShuffle(reversed))
	candidates := []*models.Record{article("p"), article("q"), article("r")}
	assert.Equal(t, []string{"r", "q", "p"}, ids(r.Rank(candidates, []string{"x"}, "", 10)))

	// Shuffling never applies once something matched.
	candidates = append(candidates, article("s", "x"))
	assert.Equal(t, []string{"s"}, ids(r.Rank(candidates, []string{"x"}, "", 10)))
}

func TestRank_DefaultShuffleKeepsAllItems(t *testing.T) {
	candidates := make([]*models.Record, 20)
	for i := range candidates {
		candidates[i] = article(fmt.Sprintf("n%d", i))
	}
	got := New(WithFallback(FallbackShuffle)).Rank(candidates, []string{"x"}, "", 20)
	assert.ElementsMatch(t, ids(candidates), ids(got))
}

func TestRank_Limit(t *testing.T) {
	candidates := make([]*models.Record, 15)
	for i := range candidates {
		candidates[i] = article(fmt.Sprintf("n%d", i), "t")
	}
	assert.Len(t, Rank(candidates, []string{"t"}, "", 0), DefaultLimit)
	assert.Len(t, Rank(candidates, []string{"t"}, "", 3), 3)
	assert.Len(t, New(WithDefaultLimit(4)).Rank(candidates, []string{"t"}, "", -1), 4)
}

func TestRank_EmptyCandidates(t *testing.T) {
	got := Rank(nil, []string{"a"}, "", 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTags_ResolvedTagRecords(t *testing.T) {
	tagRec := &models.Record{ID: "t1", Kind: models.LinkEntry, Fields: models.Fields{"name": models.String("Go")}}
	rec := &models.Record{
		ID: "post",
		Fields: models.Fields{
			"topics": models.Array(
				models.RecordValue(tagRec),
				models.String("cache"),
				models.UnresolvedValue(models.Link{ID: "gone", Kind: models.LinkEntry}, models.ReasonMissing),
				models.Float(3),
			),
		},
	}
	assert.Equal(t, []string{"Go", "cache"}, Tags(rec, "topics"))
	assert.Nil(t, Tags(rec, "missing"))

	scored := New(WithTagField("topics")).Score([]*models.Record{rec}, []string{"go"}, "", 1)
	require.Len(t, scored, 1)
	assert.Equal(t, 1, scored[0].Score)
}
