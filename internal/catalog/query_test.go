package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQueryRejectsMalformedLines(t *testing.T) {
	cat := newFixtureCatalog(t, nil, nil, nil)
	cases := []string{
		"",
		"Q5;2;2020-01-01", // missing end date
		"Q6;notanumber;go",
		"Q7;not-a-date",
		"Q99",
	}
	for _, line := range cases {
		_, ok := RunQuery(cat, line)
		assert.False(t, ok, "line %q should be rejected", line)
	}
}

func TestRunQueryDispatchesCaseInsensitively(t *testing.T) {
	cat := newFixtureCatalog(t, nil, nil, nil)
	_, ok := RunQuery(cat, "q1")
	assert.True(t, ok)
}

// S3: Q5 N=2 2020-01-01..2020-12-31, accounts 10 (3 commits), 20 (5
// commits), 30 (1 commit), each author==committer so no double count.
func TestQ5SeededScenario(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(10, "user10", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(20, "user20", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(30, "user30", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(1, 1, "a/r", "MIT", false, "d", "go", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	var commits []string
	addCommits := func(account uint32, n int) {
		for i := 0; i < n; i++ {
			commits = append(commits, commitRow(1, account, account, "2020-03-01 00:00:00", "m"))
		}
	}
	addCommits(10, 3)
	addCommits(20, 5)
	addCommits(30, 1)

	cat := newFixtureCatalog(t, accounts, repos, commits)
	out, ok := RunQuery(cat, "Q5;2;2020-01-01;2020-12-31")
	require.True(t, ok)
	assert.Equal(t, "20;user20;5\n10;user10;3\n", out)
}

// S4: Q7 2021-06-01, repos (1, last=2020-05-01, "old") and
// (2, last=2022-01-01, "new"). Only repo 1's last commit predates the cutoff.
func TestQ7SeededScenario(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner1", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(2, "owner2", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(1, 1, "a/old", "MIT", false, "old", "go", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
		repoRow(2, 2, "a/new", "MIT", false, "new", "go", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(1, 1, 1, "2020-05-01 00:00:00", "m"),
		commitRow(2, 2, 2, "2022-01-01 00:00:00", "m"),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	out, ok := RunQuery(cat, "Q7;2021-06-01")
	require.True(t, ok)
	assert.Equal(t, "1;old\n", out)
}

// S5: Q8 N=2 start=2021-01-01, commits touching repos of language c,
// python, none, c -> top languages c, python (literal "none" skipped).
func TestQ8SeededScenario(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(1, 1, "a/c", "MIT", false, "d", "c", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
		repoRow(2, 1, "a/py", "MIT", false, "d", "python", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
		repoRow(3, 1, "a/none", "MIT", false, "d", "none", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(1, 1, 1, "2021-02-01 00:00:00", "m"),
		commitRow(2, 1, 1, "2021-02-02 00:00:00", "m"),
		commitRow(3, 1, 1, "2021-02-03 00:00:00", "m"),
		commitRow(1, 1, 1, "2021-02-04 00:00:00", "m"),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	out, ok := RunQuery(cat, "Q8;2;2021-01-01")
	require.True(t, ok)
	assert.Equal(t, "c\npython\n", out)
}

// S6: Q10 N=1, repo 7, author 100 (message length 20), author 200
// (message length 30) -> only account 200 survives the top-1 cutoff.
func TestQ10SeededScenario(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(100, "user100", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(200, "user200", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(7, 1, "a/r", "MIT", false, "d", "go", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(7, 100, 100, "2020-06-01 00:00:00", repeatChar('a', 20)),
		commitRow(7, 200, 200, "2020-06-02 00:00:00", repeatChar('b', 30)),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	out, ok := RunQuery(cat, "Q10;1")
	require.True(t, ok)
	assert.Equal(t, "200;user200;30;7\n", out)
}

// An author whose longest commit message in a repo is empty must still
// appear in Q10's output — map zero-value length must not be mistaken
// for "not yet seen".
func TestQ10EmptyMessageStillCounted(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(100, "user100", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(200, "user200", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(7, 1, "a/r", "MIT", false, "d", "go", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(7, 100, 100, "2020-06-01 00:00:00", ""),
		commitRow(7, 200, 200, "2020-06-02 00:00:00", repeatChar('b', 5)),
	}

	cat := newFixtureCatalog(t, accounts, repos, commits)
	out, ok := RunQuery(cat, "Q10;2")
	require.True(t, ok)
	assert.Equal(t, "200;user200;5;7\n100;user100;0;7\n", out)
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

// Property 7: Q6 with language "C++", "c++", "C++" yields identical output
// (Unicode-aware case folding, not byte-ASCII — see DESIGN.md Open
// Question #3).
func TestQ6CaseInsensitiveLanguageMatch(t *testing.T) {
	accounts := []string{
		accountRow(1, "owner", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
		accountRow(2, "dev", KindUser, "2019-01-01 00:00:00", nil, nil, 0, 0),
	}
	repos := []string{
		repoRow(1, 1, "a/cpp", "MIT", false, "d", "C++", "main", "2019-01-01 00:00:00", "2019-01-01 00:00:00", 0, 0, 0, 0),
	}
	commits := []string{
		commitRow(1, 2, 2, "2020-01-01 00:00:00", "m"),
	}
	cat := newFixtureCatalog(t, accounts, repos, commits)

	want, ok := RunQuery(cat, "Q6;5;C++")
	require.True(t, ok)
	require.NotEmpty(t, want)

	for _, variant := range []string{"c++", "C++", "c++"} {
		out, ok := RunQuery(cat, "Q6;5;"+variant)
		require.True(t, ok)
		assert.Equal(t, want, out, "variant %q", variant)
	}
}

func TestOrderedCounterTopNTieBreakIsInsertionOrder(t *testing.T) {
	c := newOrderedCounter[string]()
	c.bump("b")
	c.bump("a")
	c.bump("b")
	c.bump("a")
	// "b" and "a" are tied at count 2; "b" was seen first.
	assert.Equal(t, []string{"b", "a"}, c.topN(2, nil))
}

func TestOrderedCounterSkipExcludesWithoutConsumingSlot(t *testing.T) {
	c := newOrderedCounter[string]()
	c.bump("none")
	c.bump("none")
	c.bump("go")
	c.bump("rust")
	skip := func(k string) bool { return k == "none" }
	assert.Equal(t, []string{"go", "rust"}, c.topN(2, skip))
}
