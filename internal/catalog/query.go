package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Query-line grammar (not fixed by the interface spec, only that a batch
// file holds one query per line): semicolon-separated fields, the first
// naming the query, case-insensitive.
//
//	Q1
//	Q2
//	Q3
//	Q4
//	Q5;N;start;end       dates as YYYY-MM-DD
//	Q6;N;language
//	Q7;D
//	Q8;N;D
//	Q9;N
//	Q10;N
//
// A line that fails to parse is invalid (§7: "mark query id as invalid;
// produce no output file; proceed to next query").

// Member indices into repositoryBinaryFormat/accountBinaryFormat used by
// the queries below, alongside the ones already named in build.go.
const (
	repositoryMemberID          = 0
	repositoryMemberLanguage    = 4
	repositoryMemberDescription = 6
	accountMemberID             = 0
	accountMemberLogin          = 5
)

// RunQuery parses and executes one query line against an opened
// catalogue, returning its text output. ok is false for a line that
// does not parse as any known query (malformed, missing fields, bad
// numbers or dates) — the caller must not write an output file in
// that case.
func RunQuery(cat *Catalog, line string) (output string, ok bool) {
	fields := strings.Split(strings.TrimSpace(line), ";")
	if len(fields) == 0 || fields[0] == "" {
		return "", false
	}
	name := strings.ToUpper(strings.TrimSpace(fields[0]))
	args := fields[1:]

	switch name {
	case "Q1":
		return queryQ1(cat), true
	case "Q2":
		return queryQ2(cat), true
	case "Q3":
		return queryQ3(cat), true
	case "Q4":
		return queryQ4(cat), true
	case "Q5":
		if len(args) != 3 {
			return "", false
		}
		n, ok := parsePositiveInt(args[0])
		start, okS := ParseDate(args[1])
		end, okE := ParseDate(args[2])
		if !ok || !okS || !okE {
			return "", false
		}
		out, err := queryQ5(cat, n, start, end)
		if err != nil {
			return "", false
		}
		return out, true
	case "Q6":
		if len(args) != 2 {
			return "", false
		}
		n, ok := parsePositiveInt(args[0])
		if !ok {
			return "", false
		}
		out, err := queryQ6(cat, n, args[1])
		if err != nil {
			return "", false
		}
		return out, true
	case "Q7":
		if len(args) != 1 {
			return "", false
		}
		d, ok := ParseDate(args[0])
		if !ok {
			return "", false
		}
		out, err := queryQ7(cat, d)
		if err != nil {
			return "", false
		}
		return out, true
	case "Q8":
		if len(args) != 2 {
			return "", false
		}
		n, ok := parsePositiveInt(args[0])
		d, okD := ParseDate(args[1])
		if !ok || !okD {
			return "", false
		}
		out, err := queryQ8(cat, n, d)
		if err != nil {
			return "", false
		}
		return out, true
	case "Q9":
		if len(args) != 1 {
			return "", false
		}
		n, ok := parsePositiveInt(args[0])
		if !ok {
			return "", false
		}
		out, err := queryQ9(cat, n)
		if err != nil {
			return "", false
		}
		return out, true
	case "Q10":
		if len(args) != 1 {
			return "", false
		}
		n, ok := parsePositiveInt(args[0])
		if !ok {
			return "", false
		}
		out, err := queryQ10(cat, n)
		if err != nil {
			return "", false
		}
		return out, true
	default:
		return "", false
	}
}

func parsePositiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// queryQ1 returns the three kind counts from the header, in the fixed
// Bot, Organization, User order shown by the seeded scenario.
func queryQ1(cat *Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bot: %d\n", cat.Header.BotCount)
	fmt.Fprintf(&b, "Organization: %d\n", cat.Header.OrganizationCount)
	fmt.Fprintf(&b, "User: %d\n", cat.Header.UserCount)
	return b.String()
}

func queryQ2(cat *Catalog) string {
	return fmt.Sprintf("%.2f\n", cat.Header.CollaboratorAvg)
}

func queryQ3(cat *Catalog) string {
	return fmt.Sprintf("%d\n", int64(cat.Header.BotRepoGroups))
}

func queryQ4(cat *Catalog) string {
	return fmt.Sprintf("%.2f\n", cat.Header.CommitsPerAccount)
}

// orderedCounter tallies occurrences of a comparable key while
// remembering first-seen order, so a stable sort on count alone
// reproduces the "ties: insertion order suffices" rule (§4.6).
type orderedCounter[K comparable] struct {
	order []K
	count map[K]int
}

func newOrderedCounter[K comparable]() *orderedCounter[K] {
	return &orderedCounter[K]{count: make(map[K]int)}
}

func (c *orderedCounter[K]) bump(k K) {
	if _, ok := c.count[k]; !ok {
		c.order = append(c.order, k)
	}
	c.count[k]++
}

// topN returns up to n keys sorted by descending count, breaking ties
// by first-seen order. skip, if non-nil, excludes a key from the
// ranking entirely without consuming one of the n slots.
func (c *orderedCounter[K]) topN(n int, skip func(K) bool) []K {
	keys := make([]K, 0, len(c.order))
	for _, k := range c.order {
		if skip != nil && skip(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool { return c.count[keys[i]] > c.count[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// accountLogin resolves an account id to its login through
// accounts-by-id.
func accountLogin(cat *Catalog, id uint32) (string, error) {
	lz, ok, err := FindValueAsView(cat.accountsByID, uint64(id), accountBinaryFormat, cat.cache, cat.accountsFile)
	if err != nil || !ok {
		return "", err
	}
	rec, err := lz.Get(accountMemberLogin)
	if err != nil {
		return "", err
	}
	return rec.Login, nil
}

// queryQ5 implements Q5: top-N accounts by commit count in
// [start, end], author and committer both counted, once each, per
// commit (Open Question #1 resolved in favor of the source's behavior
// — see DESIGN.md).
func queryQ5(cat *Catalog, n int, start, end Date) (string, error) {
	lo, err := cat.commitsByDate.LowerBound(uint64(start.StartOfDay().Pack()))
	if err != nil {
		return "", err
	}
	hiKey := uint64(end.EndOfDay().Pack())

	counter := newOrderedCounter[uint32]()
	for i := lo; i < cat.commitsByDate.Count(); i++ {
		key, err := cat.commitsByDate.KeyAt(i)
		if err != nil {
			return "", err
		}
		if key > hiKey {
			break
		}
		offset, err := cat.commitsByDate.ValueAt(i)
		if err != nil {
			return "", err
		}
		if err := bumpCommitParticipants(cat, int64(offset), counter); err != nil {
			return "", err
		}
	}
	return formatAccountCounts(cat, counter.count, counter.topN(n, nil))
}

// bumpCommitParticipants bumps the author's counter, and the
// committer's too when different from the author.
func bumpCommitParticipants(cat *Catalog, commitOffset int64, counter *orderedCounter[uint32]) error {
	lz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, commitOffset)
	a, err := lz.Get(commitMemberAuthorID)
	if err != nil {
		return err
	}
	authorID := a.AuthorID
	c, err := lz.Get(commitMemberCommitterID)
	if err != nil {
		return err
	}
	committerID := c.CommitterID

	counter.bump(authorID)
	if committerID != authorID {
		counter.bump(committerID)
	}
	return nil
}

// formatAccountCounts renders the "id;login;count" rows common to
// Q5, Q6 and Q9, in the order ids is given (already ranked by the
// caller's orderedCounter.topN).
func formatAccountCounts(cat *Catalog, counts map[uint32]int, ids []uint32) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		lz, ok, err := FindValueAsView(cat.accountsByID, uint64(id), accountBinaryFormat, cat.cache, cat.accountsFile)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		rec, err := lz.Get(accountMemberLogin)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d;%s;%d\n", id, rec.Login, counts[id])
	}
	return b.String(), nil
}

// queryQ6 implements Q6: top-N accounts by commits into repositories of
// a given (case-insensitively matched) language.
func queryQ6(cat *Catalog, n int, language string) (string, error) {
	key := languageKey(language)
	groupIdx, ok, err := cat.reposByLanguage.FindKey(key)
	if err != nil {
		return "", err
	}
	counter := newOrderedCounter[uint32]()
	if ok {
		groupOffset, err := cat.reposByLanguage.ValueAt(groupIdx)
		if err != nil {
			return "", err
		}
		size, err := cat.reposByLanguage.GroupSize(groupOffset)
		if err != nil {
			return "", err
		}
		for j := int64(0); j < size; j++ {
			repoOffset, ok, err := cat.reposByLanguage.GroupElem(groupOffset, j)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			repoLz := NewLazy(repositoryBinaryFormat, cat.cache, cat.reposFile, int64(repoOffset))
			repoRec, err := repoLz.Get(repositoryMemberID)
			if err != nil {
				return "", err
			}
			if err := bumpRepoCommits(cat, repoRec.ID, counter); err != nil {
				return "", err
			}
		}
	}
	return formatAccountCounts(cat, counter.count, counter.topN(n, nil))
}

// bumpRepoCommits bumps every author/committer that appears among
// repoID's commits (commits-by-repository), once each per commit, same
// same-account rule as queryQ5.
func bumpRepoCommits(cat *Catalog, repoID uint32, counter *orderedCounter[uint32]) error {
	groupIdx, ok, err := cat.commitsByRepo.FindKey(uint64(repoID))
	if err != nil || !ok {
		return err
	}
	groupOffset, err := cat.commitsByRepo.ValueAt(groupIdx)
	if err != nil {
		return err
	}
	size, err := cat.commitsByRepo.GroupSize(groupOffset)
	if err != nil {
		return err
	}
	for j := int64(0); j < size; j++ {
		commitOffset, ok, err := cat.commitsByRepo.GroupElem(groupOffset, j)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := bumpCommitParticipants(cat, int64(commitOffset), counter); err != nil {
			return err
		}
	}
	return nil
}

// queryQ7 implements Q7: repositories whose last-commit date-time
// precedes D's start of day, id;description one per line.
func queryQ7(cat *Catalog, d Date) (string, error) {
	lb, err := cat.reposByLastCommit.LowerBound(uint64(d.StartOfDay().Pack()))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := int64(0); i < lb; i++ {
		offset, err := cat.reposByLastCommit.ValueAt(i)
		if err != nil {
			return "", err
		}
		lz := NewLazy(repositoryBinaryFormat, cat.cache, cat.reposFile, int64(offset))
		if _, err := lz.Get(repositoryMemberID); err != nil {
			return "", err
		}
		rec, err := lz.Get(repositoryMemberDescription)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d;%s\n", rec.ID, rec.Description)
	}
	return b.String(), nil
}

// queryQ8 implements Q8: top-N languages among repositories committed
// to since D, literal "none" excluded from the ranked output without
// consuming one of the N slots.
func queryQ8(cat *Catalog, n int, d Date) (string, error) {
	lb, err := cat.commitsByDate.LowerBound(uint64(d.StartOfDay().Pack()))
	if err != nil {
		return "", err
	}
	counter := newOrderedCounter[string]()
	for i := lb; i < cat.commitsByDate.Count(); i++ {
		offset, err := cat.commitsByDate.ValueAt(i)
		if err != nil {
			return "", err
		}
		lz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, int64(offset))
		rec, err := lz.Get(0)
		if err != nil {
			return "", err
		}
		repoLz, ok, err := FindValueAsView(cat.repositoriesByID, uint64(rec.RepoID), repositoryBinaryFormat, cat.cache, cat.reposFile)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		repoRec, err := repoLz.Get(repositoryMemberLanguage)
		if err != nil {
			return "", err
		}
		counter.bump(repoRec.Language)
	}

	skipNone := func(lang string) bool { return lang == "none" }
	var b strings.Builder
	for _, lang := range counter.topN(n, skipNone) {
		fmt.Fprintf(&b, "%s\n", lang)
	}
	return b.String(), nil
}

// queryQ9 implements Q9: top-N accounts by commits into repositories
// owned by a friend, using the persisted friend flags.
func queryQ9(cat *Catalog, n int) (string, error) {
	counter := newOrderedCounter[uint32]()
	for i := int64(0); i < cat.commitsByDate.Count(); i++ {
		offset, err := cat.commitsByDate.ValueAt(i)
		if err != nil {
			return "", err
		}
		lz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, int64(offset))
		a, err := lz.Get(commitMemberAuthorID)
		if err != nil {
			return "", err
		}
		af, err := lz.Get(commitMemberAuthorIsFriend)
		if err != nil {
			return "", err
		}
		if af.AuthorIsFriend {
			counter.bump(a.AuthorID)
		}
		c, err := lz.Get(commitMemberCommitterID)
		if err != nil {
			return "", err
		}
		cf, err := lz.Get(commitMemberCommitterIsFriend)
		if err != nil {
			return "", err
		}
		if cf.CommitterIsFriend {
			counter.bump(c.CommitterID)
		}
	}
	return formatAccountCounts(cat, counter.count, counter.topN(n, nil))
}

// queryQ10 implements Q10: for every repo group in
// commits-by-repository, the top-N authors by the maximum
// commit-message length observed in that repo, id;login;max-length;
// repo-id one row per account per repo.
func queryQ10(cat *Catalog, n int) (string, error) {
	var b strings.Builder
	for i := int64(0); i < cat.commitsByRepo.Count(); i++ {
		repoID, err := cat.commitsByRepo.KeyAt(i)
		if err != nil {
			return "", err
		}
		groupOffset, err := cat.commitsByRepo.ValueAt(i)
		if err != nil {
			return "", err
		}
		size, err := cat.commitsByRepo.GroupSize(groupOffset)
		if err != nil {
			return "", err
		}

		maxLen := newOrderedCounter[uint32]()
		for j := int64(0); j < size; j++ {
			commitOffset, ok, err := cat.commitsByRepo.GroupElem(groupOffset, j)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			lz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, int64(commitOffset))
			a, err := lz.Get(commitMemberAuthorID)
			if err != nil {
				return "", err
			}
			msg, err := lz.Get(7) // message
			if err != nil {
				return "", err
			}
			l := len(msg.Message)
			_, seen := maxLen.count[a.AuthorID]
			if !seen {
				maxLen.order = append(maxLen.order, a.AuthorID)
				maxLen.count[a.AuthorID] = l
			} else if l > maxLen.count[a.AuthorID] {
				maxLen.count[a.AuthorID] = l
			}
		}

		for _, id := range maxLen.topN(n, nil) {
			login, err := accountLogin(cat, id)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%d;%s;%d;%d\n", id, login, maxLen.count[id], repoID)
		}
	}
	return b.String(), nil
}
