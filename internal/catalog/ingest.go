package catalog

import (
	"bufio"
	"os"
)

// Text formats describe the three delimited CSV inputs of §6 exactly in
// their declared field order; binary formats describe the compressed
// on-disk record layouts of §6. The two Format instances per entity
// share the same Go struct but different member lists (see the doc
// comment on Format).

var accountTextFormat = NewFormat(';',
	Member[Account]{Name: "id", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return a.ID },
		SetUint: func(a *Account, v uint32) { a.ID = v }},
	Member[Account]{Name: "login", Kind: KString, LengthIndex: -1,
		GetString: func(a *Account) string { return a.Login },
		SetString: func(a *Account, v string) { a.Login = v }},
	Member[Account]{Name: "kind", Kind: KKind, LengthIndex: -1,
		GetKind: func(a *Account) AccountKind { return a.Kind },
		SetKind: func(a *Account, v AccountKind) { a.Kind = v }},
	Member[Account]{Name: "creation_date_time", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(a *Account) DateTime { return a.Created },
		SetDateTime: func(a *Account, v DateTime) { a.Created = v }},
	Member[Account]{Name: "followers_count", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return uint32(len(a.Followers)) }},
	Member[Account]{Name: "followers_list", Kind: KUintList, LengthIndex: 4,
		GetUintList: func(a *Account) []uint32 { return a.Followers },
		SetUintList: func(a *Account, v []uint32) { a.Followers = v }},
	Member[Account]{Name: "following_count", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return uint32(len(a.Following)) }},
	Member[Account]{Name: "following_list", Kind: KUintList, LengthIndex: 6,
		GetUintList: func(a *Account) []uint32 { return a.Following },
		SetUintList: func(a *Account, v []uint32) { a.Following = v }},
	Member[Account]{Name: "public_gists", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return a.PublicGists },
		SetUint: func(a *Account, v uint32) { a.PublicGists = v }},
	Member[Account]{Name: "public_repos", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return a.PublicRepos },
		SetUint: func(a *Account, v uint32) { a.PublicRepos = v }},
)

// accountBinaryFormat matches users.dat exactly: int32 id, int32
// login_len, byte kind, int32 friends_count, int32[friends_count]
// friends_sorted, byte[login_len] login.
var accountBinaryFormat = NewFormat(0,
	Member[Account]{Name: "id", Kind: KUint, LengthIndex: -1,
		GetUint: func(a *Account) uint32 { return a.ID },
		SetUint: func(a *Account, v uint32) { a.ID = v }},
	Member[Account]{Name: "login_len", Kind: KUint, LengthIndex: -1},
	Member[Account]{Name: "kind", Kind: KKind, LengthIndex: -1,
		GetKind: func(a *Account) AccountKind { return a.Kind },
		SetKind: func(a *Account, v AccountKind) { a.Kind = v }},
	Member[Account]{Name: "friends_count", Kind: KUint, LengthIndex: -1},
	Member[Account]{Name: "friends_sorted", Kind: KUintList, LengthIndex: 3,
		GetUintList: func(a *Account) []uint32 { return a.Friends },
		SetUintList: func(a *Account, v []uint32) { a.Friends = v }},
	Member[Account]{Name: "login", Kind: KString, LengthIndex: 1,
		GetString: func(a *Account) string { return a.Login },
		SetString: func(a *Account, v string) { a.Login = v }},
)

var repositoryTextFormat = NewFormat(';',
	Member[Repository]{Name: "id", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.ID },
		SetUint: func(r *Repository, v uint32) { r.ID = v }},
	Member[Repository]{Name: "owner_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.OwnerID },
		SetUint: func(r *Repository, v uint32) { r.OwnerID = v }},
	Member[Repository]{Name: "full_name", Kind: KString, LengthIndex: -1,
		GetString: func(r *Repository) string { return r.FullName },
		SetString: func(r *Repository, v string) { r.FullName = v }},
	Member[Repository]{Name: "license", Kind: KString, LengthIndex: -1,
		GetString: func(r *Repository) string { return r.License },
		SetString: func(r *Repository, v string) { r.License = v }},
	Member[Repository]{Name: "has_wiki", Kind: KBool, LengthIndex: -1,
		GetBool: func(r *Repository) bool { return r.HasWiki },
		SetBool: func(r *Repository, v bool) { r.HasWiki = v }},
	Member[Repository]{Name: "description", Kind: KStringNull, LengthIndex: -1,
		GetString: func(r *Repository) string { return r.Description },
		SetString: func(r *Repository, v string) { r.Description = v }},
	Member[Repository]{Name: "language", Kind: KString, LengthIndex: -1,
		GetString: func(r *Repository) string { return r.Language },
		SetString: func(r *Repository, v string) { r.Language = v }},
	Member[Repository]{Name: "default_branch", Kind: KString, LengthIndex: -1,
		GetString: func(r *Repository) string { return r.DefaultBranch },
		SetString: func(r *Repository, v string) { r.DefaultBranch = v }},
	Member[Repository]{Name: "creation_date_time", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(r *Repository) DateTime { return r.Created },
		SetDateTime: func(r *Repository, v DateTime) { r.Created = v }},
	Member[Repository]{Name: "updated_date_time", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(r *Repository) DateTime { return r.Updated },
		SetDateTime: func(r *Repository, v DateTime) { r.Updated = v }},
	Member[Repository]{Name: "forks_count", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Forks },
		SetUint: func(r *Repository, v uint32) { r.Forks = v }},
	Member[Repository]{Name: "open_issues", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.OpenIssues },
		SetUint: func(r *Repository, v uint32) { r.OpenIssues = v }},
	Member[Repository]{Name: "stargazers_count", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Stargazers },
		SetUint: func(r *Repository, v uint32) { r.Stargazers = v }},
	Member[Repository]{Name: "size", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Size },
		SetUint: func(r *Repository, v uint32) { r.Size = v }},
)

// repositoryBinaryFormat matches repos.dat exactly: int32 id, int32
// owner_id, int32 packed_last_commit_date, int32 language_len,
// byte[language_len] language, int32 description_len,
// byte[description_len] description, byte has_wiki, int32
// default_branch_len, byte[] default_branch, int32 packed_created,
// int32 packed_updated, int32 forks, int32 open_issues, int32
// stargazers, int32 size, int32 full_name_len, byte[] full_name, int32
// license_len, byte[] license.
var repositoryBinaryFormat = NewFormat(0,
	Member[Repository]{Name: "id", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.ID },
		SetUint: func(r *Repository, v uint32) { r.ID = v }},
	Member[Repository]{Name: "owner_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.OwnerID },
		SetUint: func(r *Repository, v uint32) { r.OwnerID = v }},
	Member[Repository]{Name: "last_commit_date", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(r *Repository) DateTime { return r.LastCommit },
		SetDateTime: func(r *Repository, v DateTime) { r.LastCommit = v }},
	Member[Repository]{Name: "language_len", Kind: KUint, LengthIndex: -1},
	Member[Repository]{Name: "language", Kind: KString, LengthIndex: 3,
		GetString: func(r *Repository) string { return r.Language },
		SetString: func(r *Repository, v string) { r.Language = v }},
	Member[Repository]{Name: "description_len", Kind: KUint, LengthIndex: -1},
	Member[Repository]{Name: "description", Kind: KStringNull, LengthIndex: 5,
		GetString: func(r *Repository) string { return r.Description },
		SetString: func(r *Repository, v string) { r.Description = v }},
	Member[Repository]{Name: "has_wiki", Kind: KBool, LengthIndex: -1,
		GetBool: func(r *Repository) bool { return r.HasWiki },
		SetBool: func(r *Repository, v bool) { r.HasWiki = v }},
	Member[Repository]{Name: "default_branch_len", Kind: KUint, LengthIndex: -1},
	Member[Repository]{Name: "default_branch", Kind: KString, LengthIndex: 8,
		GetString: func(r *Repository) string { return r.DefaultBranch },
		SetString: func(r *Repository, v string) { r.DefaultBranch = v }},
	Member[Repository]{Name: "created", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(r *Repository) DateTime { return r.Created },
		SetDateTime: func(r *Repository, v DateTime) { r.Created = v }},
	Member[Repository]{Name: "updated", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(r *Repository) DateTime { return r.Updated },
		SetDateTime: func(r *Repository, v DateTime) { r.Updated = v }},
	Member[Repository]{Name: "forks", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Forks },
		SetUint: func(r *Repository, v uint32) { r.Forks = v }},
	Member[Repository]{Name: "open_issues", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.OpenIssues },
		SetUint: func(r *Repository, v uint32) { r.OpenIssues = v }},
	Member[Repository]{Name: "stargazers", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Stargazers },
		SetUint: func(r *Repository, v uint32) { r.Stargazers = v }},
	Member[Repository]{Name: "size", Kind: KUint, LengthIndex: -1,
		GetUint: func(r *Repository) uint32 { return r.Size },
		SetUint: func(r *Repository, v uint32) { r.Size = v }},
	Member[Repository]{Name: "full_name_len", Kind: KUint, LengthIndex: -1},
	Member[Repository]{Name: "full_name", Kind: KString, LengthIndex: 16,
		GetString: func(r *Repository) string { return r.FullName },
		SetString: func(r *Repository, v string) { r.FullName = v }},
	Member[Repository]{Name: "license_len", Kind: KUint, LengthIndex: -1},
	Member[Repository]{Name: "license", Kind: KString, LengthIndex: 18,
		GetString: func(r *Repository) string { return r.License },
		SetString: func(r *Repository, v string) { r.License = v }},
)

var commitTextFormat = NewFormat(';',
	Member[Commit]{Name: "repo_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.RepoID },
		SetUint: func(c *Commit, v uint32) { c.RepoID = v }},
	Member[Commit]{Name: "author_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.AuthorID },
		SetUint: func(c *Commit, v uint32) { c.AuthorID = v }},
	Member[Commit]{Name: "committer_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.CommitterID },
		SetUint: func(c *Commit, v uint32) { c.CommitterID = v }},
	Member[Commit]{Name: "commit_date_time", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(c *Commit) DateTime { return c.CommitDate },
		SetDateTime: func(c *Commit, v DateTime) { c.CommitDate = v }},
	Member[Commit]{Name: "message", Kind: KStringNull, LengthIndex: -1,
		GetString: func(c *Commit) string { return c.Message },
		SetString: func(c *Commit, v string) { c.Message = v }},
)

// commitBinaryFormat matches commits.dat exactly: int32 repo_id, int32
// author_id, byte author_is_friend, int32 committer_id, byte
// committer_is_friend, int32 packed_commit_date, int32 message_len,
// byte[message_len] message.
var commitBinaryFormat = NewFormat(0,
	Member[Commit]{Name: "repo_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.RepoID },
		SetUint: func(c *Commit, v uint32) { c.RepoID = v }},
	Member[Commit]{Name: "author_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.AuthorID },
		SetUint: func(c *Commit, v uint32) { c.AuthorID = v }},
	Member[Commit]{Name: "author_is_friend", Kind: KBool, LengthIndex: -1,
		GetBool: func(c *Commit) bool { return c.AuthorIsFriend },
		SetBool: func(c *Commit, v bool) { c.AuthorIsFriend = v }},
	Member[Commit]{Name: "committer_id", Kind: KUint, LengthIndex: -1,
		GetUint: func(c *Commit) uint32 { return c.CommitterID },
		SetUint: func(c *Commit, v uint32) { c.CommitterID = v }},
	Member[Commit]{Name: "committer_is_friend", Kind: KBool, LengthIndex: -1,
		GetBool: func(c *Commit) bool { return c.CommitterIsFriend },
		SetBool: func(c *Commit, v bool) { c.CommitterIsFriend = v }},
	Member[Commit]{Name: "commit_date", Kind: KDateTime, LengthIndex: -1,
		GetDateTime: func(c *Commit) DateTime { return c.CommitDate },
		SetDateTime: func(c *Commit, v DateTime) { c.CommitDate = v }},
	Member[Commit]{Name: "message_len", Kind: KUint, LengthIndex: -1},
	Member[Commit]{Name: "message", Kind: KStringNull, LengthIndex: 6,
		GetString: func(c *Commit) string { return c.Message },
		SetString: func(c *Commit, v string) { c.Message = v }},
)

// Member indices used by the friend-flag pass (build.go) to Set the
// two derived flags on a commit through a Lazy view without magic
// numbers scattered across the builder.
const (
	commitMemberAuthorIsFriend    = 2
	commitMemberCommitterIsFriend = 4
)

// scanDelimited opens path, skips its header line, and calls fn with
// each remaining non-empty line. Mirrors the teacher's table.go row
// idiom: plain buffered scanning, no cache involved (entrada/ files are
// read exactly once, start to end, never revisited at random offsets).
func scanDelimited(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}
