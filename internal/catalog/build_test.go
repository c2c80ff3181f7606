package catalog

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: kind counts Bot=2, Organization=1, User=5.
func TestBuildKindCounts(t *testing.T) {
	var accounts []string
	id := uint32(1)
	addAccounts := func(n int, kind AccountKind) {
		for i := 0; i < n; i++ {
			accounts = append(accounts, accountRow(id, accountLoginFor(id), kind, "2020-01-01 00:00:00", nil, nil, 0, 0))
			id++
		}
	}
	addAccounts(2, KindBot)
	addAccounts(1, KindOrganization)
	addAccounts(5, KindUser)

	cat := newFixtureCatalog(t, accounts, nil, nil)
	assert.EqualValues(t, 2, cat.Header.BotCount)
	assert.EqualValues(t, 1, cat.Header.OrganizationCount)
	assert.EqualValues(t, 5, cat.Header.UserCount)

	out, ok := RunQuery(cat, "Q1")
	require.True(t, ok)
	assert.Equal(t, "Bot: 2\nOrganization: 1\nUser: 5\n", out)
}

func accountLoginFor(id uint32) string {
	return "user" + strconv.FormatUint(uint64(id), 10)
}

// S2: 3 repos with collaborator-appearances 4, 6, 2 -> average 4.00.
func TestBuildCollaboratorAverage(t *testing.T) {
	var accounts []string
	var repos []string
	var commits []string

	nextID := uint32(1)
	newAccount := func() uint32 {
		id := nextID
		nextID++
		accounts = append(accounts, accountRow(id, accountLoginFor(id), KindUser, "2020-01-01 00:00:00", nil, nil, 0, 0))
		return id
	}

	addRepoWithAuthors := func(repoID uint32, nAuthors int) {
		owner := newAccount()
		repos = append(repos, repoRow(repoID, owner, "o/r", "MIT", false, "d", "go", "main",
			"2020-01-01 00:00:00", "2020-01-01 00:00:00", 0, 0, 0, 0))
		for i := 0; i < nAuthors; i++ {
			author := newAccount()
			commits = append(commits, commitRow(repoID, author, author, "2020-06-01 00:00:00", "m"))
		}
	}

	addRepoWithAuthors(1, 4)
	addRepoWithAuthors(2, 6)
	addRepoWithAuthors(3, 2)

	cat := newFixtureCatalog(t, accounts, repos, commits)
	assert.InDelta(t, 4.0, cat.Header.CollaboratorAvg, 0.001)

	out, ok := RunQuery(cat, "Q2")
	require.True(t, ok)
	assert.Equal(t, "4.00\n", out)
}

// Malformed and dangling-reference rows are dropped rather than
// aborting the build (§7).
func TestBuildDropsInvalidRecords(t *testing.T) {
	accounts := []string{
		accountRow(1, "alice", KindUser, "2020-01-01 00:00:00", nil, nil, 0, 0),
		"not;enough;fields",
	}
	repos := []string{
		repoRow(1, 1, "a/r", "MIT", false, "d", "go", "main", "2020-01-01 00:00:00", "2020-01-01 00:00:00", 0, 0, 0, 0),
		repoRow(2, 999, "a/orphan", "MIT", false, "d", "go", "main", "2020-01-01 00:00:00", "2020-01-01 00:00:00", 0, 0, 0, 0), // unknown owner
	}
	commits := []string{
		commitRow(1, 1, 1, "2020-06-01 00:00:00", "ok"),
		commitRow(1, 999, 1, "2020-06-01 00:00:00", "unknown author"),
		commitRow(1, 1, 999, "2020-06-01 00:00:00", "unknown committer"),
		commitRow(5, 1, 1, "2020-06-01 00:00:00", "unknown repo"),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	assert.EqualValues(t, 1, cat.Header.UserCount, "malformed account row dropped")
	assert.EqualValues(t, 1, cat.repositoriesByID.Count(), "orphan-owner repo dropped")
	assert.EqualValues(t, 1, cat.commitsByDate.Count(), "only the one valid commit survives")
}

// Property 8: building a catalogue then reloading it from saida/
// produces identical query outputs.
func TestIdempotentLoad(t *testing.T) {
	accounts := []string{
		accountRow(1, "alice", KindUser, "2020-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(2, "bob", KindOrganization, "2020-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(1, 1, "a/r", "MIT", false, "d", "go", "main", "2020-01-01 00:00:00", "2020-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(1, 1, 2, "2020-06-01 00:00:00", "first"),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	firstQ1, ok := RunQuery(cat, "Q1")
	require.True(t, ok)
	layout := cat.layout
	tunings := testTunings()
	cat.Close()

	reloaded, err := Open(layout, tunings)
	require.NoError(t, err)
	defer reloaded.Close()

	secondQ1, ok := RunQuery(reloaded, "Q1")
	require.True(t, ok)
	assert.Equal(t, firstQ1, secondQ1)
	assert.Equal(t, cat.Header, reloaded.Header)
}
