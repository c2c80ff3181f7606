package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Property 2: unsigned comparison of the packed form matches
// chronological order.
func TestDateTimePackOrdering(t *testing.T) {
	cases := []struct {
		a, b DateTime
		cmp  int // sign of a-b chronologically
	}{
		{DateTime{2020, 1, 1, 0, 0, 0}, DateTime{2020, 1, 1, 0, 0, 1}, -1},
		{DateTime{2020, 1, 2, 0, 0, 0}, DateTime{2020, 1, 1, 23, 59, 59}, +1},
		{DateTime{2021, 1, 1, 0, 0, 0}, DateTime{2020, 12, 31, 23, 59, 59}, +1},
		{DateTime{2020, 6, 15, 10, 30, 0}, DateTime{2020, 6, 15, 10, 30, 0}, 0},
	}
	for _, c := range cases {
		pa, pb := c.a.Pack(), c.b.Pack()
		got := 0
		if pa < pb {
			got = -1
		} else if pa > pb {
			got = 1
		}
		assert.Equal(t, c.cmp, got, "%v vs %v", c.a, c.b)
	}
}

func TestDateTimePackUnpackRoundTrip(t *testing.T) {
	d := DateTime{Year: 2035, Month: 11, Day: 30, Hour: 23, Minute: 59, Second: 58}
	assert.Equal(t, d, UnpackDateTime(d.Pack()))
}

func TestParseDateTime(t *testing.T) {
	dt, ok := ParseDateTime("2021-06-15 09:30:00")
	require.True(t, ok)
	assert.Equal(t, DateTime{2021, 6, 15, 9, 30, 0}, dt)

	_, ok = ParseDateTime("2021-02-30 00:00:00") // no such day
	assert.False(t, ok)

	_, ok = ParseDateTime("garbage")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2021-06-01")
	require.True(t, ok)
	assert.Equal(t, Date{2021, 6, 1}, d)
	assert.Equal(t, DateTime{2021, 6, 1, 0, 0, 0}, d.StartOfDay())
	assert.Equal(t, DateTime{2021, 6, 1, 23, 59, 59}, d.EndOfDay())

	_, ok = ParseDate("2021/06/01")
	assert.False(t, ok)
}

func TestLeapYearDayValidation(t *testing.T) {
	_, ok := ParseDateTime("2020-02-29 00:00:00") // 2020 is a leap year
	assert.True(t, ok)
	_, ok = ParseDateTime("2021-02-29 00:00:00") // 2021 is not
	assert.False(t, ok)
}

// Property 4: friendship is symmetric — if a is in b's Friends, b is in
// a's Friends, since Friends is the intersection of Followers/Following.
func TestComputeFriendsSymmetry(t *testing.T) {
	a := Account{ID: 1, Followers: []uint32{2, 3, 4}, Following: []uint32{2, 4, 5}}
	b := Account{ID: 2, Followers: []uint32{1}, Following: []uint32{1}}
	c := Account{ID: 4, Followers: []uint32{1}, Following: []uint32{1}}

	a.ComputeFriends()
	b.ComputeFriends()
	c.ComputeFriends()

	assert.Equal(t, []uint32{2, 4}, a.Friends)
	assert.True(t, a.IsFriend(2))
	assert.True(t, b.IsFriend(1))
	assert.True(t, a.IsFriend(4))
	assert.True(t, c.IsFriend(1))

	assert.False(t, a.IsFriend(3), "3 follows a but a doesn't follow 3 back")
}

func TestComputeFriendsDeduplicatesAndSorts(t *testing.T) {
	a := Account{Followers: []uint32{5, 1, 5, 3}, Following: []uint32{3, 5, 1}}
	a.ComputeFriends()
	assert.Equal(t, []uint32{1, 3, 5}, a.Friends)
}

func TestAccountKindTextRoundTrip(t *testing.T) {
	for _, k := range []AccountKind{KindUser, KindOrganization, KindBot} {
		parsed, ok := parseAccountKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	_, ok := parseAccountKind("Robot")
	assert.False(t, ok)
}
