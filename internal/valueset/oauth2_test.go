package valueset

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/sessionstore/internal/models"
)

func TestOAuth2SessionSet_InsertUpsert(t *testing.T) {
	id := uuid.New()
	rs := uuid.New()
	vs := NewOAuth2SessionSet()

	short := newTestOAuth2Session(rs, models.ExpiresAt(testIssuedAt.Add(time.Hour)))
	inserted, err := vs.InsertChecked(OAuth2SessionValue{ID: id, Session: short})
	require.NoError(t, err)
	assert.True(t, inserted)

	// продление срока действия
	long := short
	long.State = models.ExpiresAt(testIssuedAt.Add(24 * time.Hour))
	inserted, err = vs.InsertChecked(OAuth2SessionValue{ID: id, Session: long})
	require.NoError(t, err)
	assert.True(t, inserted)

	// более короткий срок не применяется
	inserted, err = vs.InsertChecked(OAuth2SessionValue{ID: id, Session: short})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, _ := vs.Get(id)
	assert.True(t, got.State.Equal(long.State))

	// отзыв сильнее продления
	revoked := short
	revoked.State = models.RevokedAt(cid(3))
	_, err = vs.InsertChecked(OAuth2SessionValue{ID: id, Session: revoked})
	require.NoError(t, err)

	inserted, err = vs.InsertChecked(OAuth2SessionValue{ID: id, Session: long})
	require.NoError(t, err)
	assert.False(t, inserted, "revocation is never undone")

	assert.Equal(t, 1, vs.Len())
}

func TestOAuth2SessionSet_InsertWrongKind(t *testing.T) {
	_, err := NewOAuth2SessionSet().InsertChecked(SessionValue{ID: uuid.New()})
	require.Error(t, err)
	assert.True(t, IsInvalidValueState(err))
}

func TestOAuth2SessionSet_RemoveByResourceServer(t *testing.T) {
	rs := uuid.New()
	other := uuid.New()
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()

	vs := NewOAuth2SessionSet()
	vs.Push(s1, newTestOAuth2Session(rs, models.NeverExpires()))
	vs.Push(s2, newTestOAuth2Session(rs, models.ExpiresAt(testIssuedAt.Add(time.Hour))))
	vs.Push(s3, newTestOAuth2Session(other, models.NeverExpires()))

	assert.True(t, vs.Remove(rs, cid(4)))

	for _, id := range []uuid.UUID{s1, s2} {
		s, _ := vs.Get(id)
		assert.True(t, s.State.Equal(models.RevokedAt(cid(4))))
	}
	s, _ := vs.Get(s3)
	assert.False(t, s.State.IsRevoked())

	// всё уже отозвано
	assert.False(t, vs.Remove(rs, cid(5)))
	s, _ = vs.Get(s1)
	assert.True(t, s.State.Equal(models.RevokedAt(cid(4))))
}

func TestOAuth2SessionSet_RemoveBySessionID(t *testing.T) {
	id := uuid.New()
	vs := NewOAuth2SessionSetWith(id, newTestOAuth2Session(uuid.New(), models.NeverExpires()))

	assert.True(t, vs.Remove(id, cid(1)))
	assert.False(t, vs.Remove(id, cid(2)))
	assert.False(t, vs.Remove(uuid.New(), cid(2)))
}

func TestOAuth2SessionSet_RemoveFilterFalsePositive(t *testing.T) {
	all := uuid.UUID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	target := uuid.UUID{0x01}

	vs := NewOAuth2SessionSetWith(uuid.New(), newTestOAuth2Session(all, models.NeverExpires()))
	require.True(t, vs.filter.MayContain(target))

	assert.False(t, vs.Remove(target, cid(1)), "filter hit is confirmed by scanning")
	assert.False(t, vs.Contains(target))
}

func TestOAuth2SessionSet_Contains(t *testing.T) {
	id := uuid.New()
	rs := uuid.New()
	vs := NewOAuth2SessionSetWith(id, newTestOAuth2Session(rs, models.NeverExpires()))

	assert.True(t, vs.Contains(id))
	assert.True(t, vs.Contains(rs))

	vs.Remove(id, cid(1))
	assert.True(t, vs.Contains(id))
	assert.False(t, vs.Contains(rs), "only live sessions reference a resource server")
}

func TestOAuth2SessionSet_FilterSoundness(t *testing.T) {
	vs := NewOAuth2SessionSet()
	rss := make([]uuid.UUID, 0, 64)
	for range 64 {
		rs := uuid.New()
		rss = append(rss, rs)
		_, err := vs.InsertChecked(OAuth2SessionValue{ID: uuid.New(), Session: newTestOAuth2Session(rs, models.NeverExpires())})
		require.NoError(t, err)
	}

	// ни отзыв, ни trim не сужают фильтр
	vs.Purge(cid(1))
	vs.Trim(cid(2))
	assert.Equal(t, 0, vs.Len())

	for _, rs := range rss {
		assert.True(t, vs.filter.MayContain(rs))
	}

	vs.Clear()
	assert.Equal(t, RsFilter{}, vs.filter)
}

func TestOAuth2SessionSet_MergeUnitesFilters(t *testing.T) {
	rsA, rsB := uuid.New(), uuid.New()
	a := NewOAuth2SessionSetWith(uuid.New(), newTestOAuth2Session(rsA, models.NeverExpires()))
	b := NewOAuth2SessionSetWith(uuid.New(), newTestOAuth2Session(rsB, models.NeverExpires()))

	merged, _, err := a.ReplMerge(b, cid(0))
	require.NoError(t, err)
	f := merged.(*OAuth2SessionSet).filter
	assert.True(t, f.MayContain(rsA))
	assert.True(t, f.MayContain(rsB))

	require.NoError(t, a.Merge(b))
	assert.True(t, a.filter.MayContain(rsB))
	assert.Equal(t, 2, a.Len())
}

func TestOAuth2SessionSet_MergeConverges(t *testing.T) {
	id := uuid.New()
	rs := uuid.New()
	a := NewOAuth2SessionSetWith(id, newTestOAuth2Session(rs, models.ExpiresAt(testIssuedAt.Add(time.Hour))))
	b := NewOAuth2SessionSetWith(id, newTestOAuth2Session(rs, models.RevokedAt(cid(9))))

	ab, _, err := a.ReplMerge(b, cid(0))
	require.NoError(t, err)
	ba, _, err := b.ReplMerge(a, cid(0))
	require.NoError(t, err)

	assert.True(t, ab.Equal(ba))
	s, _ := ab.(*OAuth2SessionSet).Get(id)
	assert.True(t, s.State.Equal(models.RevokedAt(cid(9))))
}

func TestOAuth2SessionSet_TrimHasNoCeiling(t *testing.T) {
	vs := NewOAuth2SessionSet()
	for range SessionMaximum + 10 {
		vs.Push(uuid.New(), newTestOAuth2Session(uuid.New(), models.NeverExpires()))
	}
	stats := vs.Trim(cid(0))
	assert.Equal(t, SessionMaximum+10, vs.Len())
	assert.Zero(t, stats.Evicted)
}

func TestOAuth2SessionSet_IndexKeys(t *testing.T) {
	rs := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	s1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	s2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	vs := NewOAuth2SessionSet()
	vs.Push(s2, newTestOAuth2Session(rs, models.NeverExpires()))
	vs.Push(s1, newTestOAuth2Session(rs, models.NeverExpires()))

	assert.Equal(t, []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-0000000000aa",
	}, vs.IndexKeys())
	assert.Equal(t, []uuid.UUID{rs}, vs.RefUUIDs())
}

func TestOAuth2SessionSet_IndexKeys_SortedAcrossKinds(t *testing.T) {
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	vs := NewOAuth2SessionSetWith(high, newTestOAuth2Session(low, models.NeverExpires()))
	keys := vs.IndexKeys()
	assert.Equal(t, []string{low.String(), high.String()}, keys)
	assert.True(t, slices.IsSorted(keys))

	// id сессии совпадает с id resource server
	same := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	vs = NewOAuth2SessionSetWith(same, newTestOAuth2Session(same, models.NeverExpires()))
	assert.Equal(t, []string{same.String()}, vs.IndexKeys())
}

func TestOAuth2SessionSet_Project(t *testing.T) {
	id := uuid.New()
	rs := uuid.New()
	expiry := testIssuedAt.Add(time.Hour)
	s := newTestOAuth2Session(rs, models.ExpiresAt(expiry))

	p := NewOAuth2SessionSetWith(id, s).Project()
	require.Len(t, p.OAuth2Sessions, 1)

	got := p.OAuth2Sessions[0]
	assert.Equal(t, "oauth2_session", p.Kind)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, rs, got.ClientID)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, *s.Parent, *got.ParentID)
	require.NotNil(t, got.Expires)
	assert.Equal(t, expiry, *got.Expires)
	assert.Nil(t, got.Revoked)
}
