package catalog

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"ghcatalog/internal/config"
)

// testTunings keeps fixtures small: a handful of cache frames and short
// external-sort runs. Workers and ChanDepth are set for completeness;
// the builder does not read them.
func testTunings() Tunings {
	return Tunings{CacheFrames: 64, Workers: 1, RunEntries: 1024, ChanDepth: 4}
}

func uintListText(vs []uint32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", v)
	}
	b.WriteByte(']')
	return b.String()
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// accountRow renders one accountTextFormat-compatible line.
func accountRow(id uint32, login string, kind AccountKind, created string, followers, following []uint32, gists, repos uint32) string {
	return fmt.Sprintf("%d;%s;%s;%s;%d;%s;%d;%s;%d;%d",
		id, login, kind.String(), created,
		len(followers), uintListText(followers),
		len(following), uintListText(following),
		gists, repos)
}

// repoRow renders one repositoryTextFormat-compatible line.
func repoRow(id, ownerID uint32, fullName, license string, hasWiki bool, description, language, defaultBranch, created, updated string, forks, openIssues, stargazers, size uint32) string {
	return fmt.Sprintf("%d;%d;%s;%s;%s;%s;%s;%s;%s;%s;%d;%d;%d;%d",
		id, ownerID, fullName, license, boolText(hasWiki), description, language, defaultBranch,
		created, updated, forks, openIssues, stargazers, size)
}

// commitRow renders one commitTextFormat-compatible line.
func commitRow(repoID, authorID, committerID uint32, commitDateTime, message string) string {
	return fmt.Sprintf("%d;%d;%d;%s;%s", repoID, authorID, committerID, commitDateTime, message)
}

func writeCSV(t *testing.T, path string, rows []string) {
	t.Helper()
	content := "header\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// newFixtureCatalog builds a fresh catalogue from the given text rows
// (no header line needed; writeCSV adds one) under a throwaway layout.
func newFixtureCatalog(t *testing.T, accounts, repos, commits []string) *Catalog {
	t.Helper()
	root := t.TempDir()
	layout := config.Resolve(root)
	if err := os.MkdirAll(layout.Entrada, 0o755); err != nil {
		t.Fatalf("mkdir entrada: %v", err)
	}
	writeCSV(t, layout.AccountsPath(), accounts)
	writeCSV(t, layout.RepositoriesPath(), repos)
	writeCSV(t, layout.CommitsPath(), commits)

	cat, err := Open(layout, testTunings())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(cat.Close)
	return cat
}
