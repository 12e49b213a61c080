package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/keys/keystest"
	"solana-sweeper/internal/pool"
)

func newRegistry(endpoints, capacity int) *Registry {
	urls := make([]string, endpoints)
	for i := range urls {
		urls[i] = "https://rpc" + string(rune('a'+i)) + ".example.com"
	}
	return New(pool.New(urls, capacity))
}

func text(creds []keys.Credential) string {
	return strings.Join(keystest.Lines(creds), "\n")
}

func TestRegister_CapacityScenario(t *testing.T) {
	r := newRegistry(2, 4)
	creds := keystest.Generate("scenario", 10)

	res, err := r.Register("owner", text(creds))
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 8)
	assert.Equal(t, 2, res.DroppedForCapacity)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, 8, r.Len("owner"))

	for i, acct := range res.Accepted {
		assert.Equal(t, i/4, acct.Endpoint.Index, "position %d", i)
		assert.Same(t, r.Pool().Slot(i), acct.Endpoint, "position %d", i)
		assert.Equal(t, creds[i].PublicKey, acct.PublicKey())
	}
}

func TestRegister_FreshPassSkipsDuplicatePositions(t *testing.T) {
	r := newRegistry(2, 2)
	creds := keystest.Generate("fresh", 5)
	batch := append([]keys.Credential{creds[0]}, creds...)

	res, err := r.Register("owner", text(batch))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.DroppedForCapacity)
	require.Len(t, res.Accepted, 4)

	for i, acct := range res.Accepted {
		assert.Equal(t, creds[i].PublicKey, acct.PublicKey())
		assert.Equal(t, i/2, acct.Endpoint.Index, "position %d", i)
	}
}

func TestRegister_SequentialAgainAfterClear(t *testing.T) {
	r := newRegistry(2, 2)
	creds := keystest.Generate("refresh", 4)

	_, err := r.Register("owner", text(creds[:3]))
	require.NoError(t, err)
	require.Len(t, r.Clear("owner"), 3)

	res, err := r.Register("owner", text(creds))
	require.NoError(t, err)
	require.Len(t, res.Accepted, 4)
	for i, acct := range res.Accepted {
		assert.Equal(t, i/2, acct.Endpoint.Index, "position %d", i)
	}
}

func TestRegister_SecondOwnerFillsRemainingSlots(t *testing.T) {
	r := newRegistry(2, 2)

	_, err := r.Register("a", text(keystest.Generate("owner-a", 3)))
	require.NoError(t, err)

	res, err := r.Register("b", text(keystest.Generate("owner-b", 2)))
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, 1, res.DroppedForCapacity)
	assert.Equal(t, 1, res.Accepted[0].Endpoint.Index)
}

func TestRegister_RejectsMalformedWithoutUsingCapacity(t *testing.T) {
	r := newRegistry(1, 2)
	creds := keystest.Generate("malformed", 2)

	input := strings.Join([]string{
		strings.Repeat("1", 88),
		creds[0].Encoded,
		"# comment",
		creds[1].Encoded,
	}, "\n")

	res, err := r.Register("owner", input)
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 2)
	assert.Equal(t, 2, res.Rejected)
	assert.Zero(t, res.DroppedForCapacity)
}

func TestRegister_Deduplicates(t *testing.T) {
	r := newRegistry(2, 4)
	creds := keystest.Generate("dedup", 3)

	_, err := r.Register("owner", text(creds[:2]))
	require.NoError(t, err)

	res, err := r.Register("owner", text([]keys.Credential{creds[1], creds[2], creds[2]}))
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, creds[2].PublicKey, res.Accepted[0].PublicKey())
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 3, r.Len("owner"))
}

func TestRegister_TruncatesNewBatch(t *testing.T) {
	r := newRegistry(1, 4)
	first := keystest.Generate("first", 3)
	second := keystest.Generate("second", 3)

	_, err := r.Register("owner", text(first))
	require.NoError(t, err)

	res, err := r.Register("owner", text(second))
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, second[0].PublicKey, res.Accepted[0].PublicKey())
	assert.Equal(t, 2, res.DroppedForCapacity)

	// Previously active accounts are preserved
	for _, c := range first {
		_, ok := r.Get("owner", c.PublicKey)
		assert.True(t, ok)
	}
}

func TestRegister_NoEndpoints(t *testing.T) {
	r := New(pool.New(nil, 4))

	_, err := r.Register("owner", text(keystest.Generate("noep", 1)))
	assert.ErrorIs(t, err, pool.ErrNoEndpointsConfigured)
	assert.Zero(t, r.Total())
}

func TestRegister_ReusesFreedSlotWithoutOverfilling(t *testing.T) {
	r := newRegistry(2, 2)
	creds := keystest.Generate("reuse", 5)

	_, err := r.Register("owner", text(creds[:4]))
	require.NoError(t, err)

	// Free a slot on endpoint 0
	require.True(t, r.Remove("owner", creds[0].PublicKey))

	res, err := r.Register("owner", text(creds[4:]))
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, 0, res.Accepted[0].Endpoint.Index)

	load := map[int]int{}
	for _, a := range r.Accounts("owner") {
		load[a.Endpoint.Index]++
	}
	assert.Equal(t, map[int]int{0: 2, 1: 2}, load)
}

func TestRestore(t *testing.T) {
	r := newRegistry(1, 4)
	creds := keystest.Generate("restore", 2)

	res, err := r.Restore("owner", []string{creds[0].Encoded, "garbage", creds[1].Encoded})
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 2)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 3, res.Lines)
}

// sharedPrefixPair returns two credentials whose public keys share a first
// character, plus one that starts differently.
func sharedPrefixPair(t *testing.T) (a, b, other keys.Credential) {
	t.Helper()
	// 59 keys over a 58 symbol alphabet must contain a repeated first symbol
	creds := keystest.Generate("selector", 59)
	first := map[byte]int{}
	for i, c := range creds {
		if j, ok := first[c.PublicKey[0]]; ok {
			a, b = creds[j], c
			break
		}
		first[c.PublicKey[0]] = i
	}
	require.NotEmpty(t, a.PublicKey)
	for _, c := range creds {
		if c.PublicKey[0] != a.PublicKey[0] {
			return a, b, c
		}
	}
	t.Fatal("no credential with a different first character")
	return
}

func TestStop_FirstMatchWins(t *testing.T) {
	r := newRegistry(1, 4)
	a, b, other := sharedPrefixPair(t)

	_, err := r.Register("owner", text([]keys.Credential{a, b, other}))
	require.NoError(t, err)

	res := r.Stop("owner", []string{a.PublicKey[:1], "0OIl"})

	require.Len(t, res.Stopped, 1)
	assert.Equal(t, a.PublicKey, res.Stopped[0].PublicKey())
	assert.Equal(t, []string{"0OIl"}, res.NotFound)

	_, ok := r.Get("owner", b.PublicKey)
	assert.True(t, ok, "second match must remain")
	assert.Equal(t, 2, r.Len("owner"))
}

func TestStop_RepeatedSelectorTakesNextMatch(t *testing.T) {
	r := newRegistry(1, 4)
	a, b, other := sharedPrefixPair(t)

	_, err := r.Register("owner", text([]keys.Credential{a, b, other}))
	require.NoError(t, err)

	sel := a.PublicKey[:1]
	res := r.Stop("owner", []string{sel, sel, "  "})

	require.Len(t, res.Stopped, 2)
	assert.Equal(t, a.PublicKey, res.Stopped[0].PublicKey())
	assert.Equal(t, b.PublicKey, res.Stopped[1].PublicKey())
	assert.Empty(t, res.NotFound)
	assert.Equal(t, 1, r.Len("owner"))
}

func TestStop_SuffixAndFullKey(t *testing.T) {
	r := newRegistry(1, 4)
	creds := keystest.Generate("suffix", 3)

	_, err := r.Register("owner", text(creds))
	require.NoError(t, err)

	pk := creds[2].PublicKey
	res := r.Stop("owner", []string{pk[len(pk)-10:], creds[0].PublicKey})

	require.Len(t, res.Stopped, 2)
	assert.Equal(t, creds[2].PublicKey, res.Stopped[0].PublicKey())
	assert.Equal(t, creds[0].PublicKey, res.Stopped[1].PublicKey())

	remaining := r.Accounts("owner")
	require.Len(t, remaining, 1)
	assert.Equal(t, creds[1].PublicKey, remaining[0].PublicKey())
}

func TestStop_UnknownOwner(t *testing.T) {
	r := newRegistry(1, 4)

	res := r.Stop("nobody", []string{"abc"})
	assert.Empty(t, res.Stopped)
	assert.Equal(t, []string{"abc"}, res.NotFound)
}

func TestClear(t *testing.T) {
	r := newRegistry(2, 4)
	creds := keystest.Generate("clear", 3)

	_, err := r.Register("owner", text(creds))
	require.NoError(t, err)
	_, err = r.Register("other", text(keystest.Generate("clear-other", 1)))
	require.NoError(t, err)

	cleared := r.Clear("owner")
	require.Len(t, cleared, 3)
	for i, a := range cleared {
		assert.Equal(t, creds[i].PublicKey, a.PublicKey())
	}

	assert.Zero(t, r.Len("owner"))
	assert.Equal(t, 1, r.Total())
	assert.Nil(t, r.Clear("owner"))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		id, sel string
		want    MatchMode
	}{
		{"AAA111", "AAA111", MatchExact},
		{"AAA111", "AAA", MatchPrefix},
		{"AAA111", "111", MatchSuffix},
		{"AAA111", "A1", MatchSubstring},
		{"AAA111", "ZZZ", MatchNone},
		{"AAA111", "", MatchNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.id, tt.sel), "%s/%s", tt.id, tt.sel)
	}
}

func TestFirstMatch(t *testing.T) {
	ids := []string{"AAA111", "AAA222", "BBB333"}

	assert.Equal(t, 0, FirstMatch(ids, "AAA", nil))
	assert.Equal(t, 1, FirstMatch(ids, "AAA", func(i int) bool { return i == 0 }))
	assert.Equal(t, 2, FirstMatch(ids, "333", nil))
	assert.Equal(t, -1, FirstMatch(ids, "ZZZ", nil))
}

func TestAccount_Baseline(t *testing.T) {
	a := &Account{}

	assert.Zero(t, a.LastBalance())
	a.SetLastBalance(1_000_000)
	assert.Equal(t, uint64(1_000_000), a.LastBalance())

	assert.True(t, a.SetRetired(true))
	assert.False(t, a.SetRetired(true))
	assert.True(t, a.Retired())
}
