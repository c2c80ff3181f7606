package catalog

import (
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"ghcatalog/internal/config"
)

// Member indices into repositoryBinaryFormat and accountBinaryFormat
// used by the friend-flag pass, kept alongside commitMemberAuthorIsFriend
// and commitMemberCommitterIsFriend (ingest.go) so neither file scatters
// magic numbers for the other's layout.
const (
	repositoryMemberOwnerID    = 1
	accountMemberKind          = 2
	accountMemberFriendsSorted = 4
	commitMemberAuthorID       = 1
	commitMemberCommitterID    = 3
)

// normalizeLanguage folds a language string for case-insensitive
// grouping (Q6, Q8, and the repositories-by-language index). Resolves
// Open Question #3 in favor of Unicode-aware folding — golang.org/x/text
// is already part of the dependency stack and a GitHub-scale corpus of
// repository languages is not limited to ASCII identifiers.
var foldLanguage = cases.Fold()

func normalizeLanguage(s string) string {
	return foldLanguage.String(s)
}

// languageKey derives the embedded index key for a language group. The
// comparator §4.5 describes for repositories-by-language is an indirect,
// length-prefixed byte compare through the cache; no query in §4.6 ever
// needs languages in lexicographic order (Q6 only does an exact-match
// lookup, Q8 only sorts by count), so an embedded hash of the folded
// string gives the same grouping behavior without a second comparator
// path through the indexer. See DESIGN.md.
func languageKey(language string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(normalizeLanguage(language)))
	return h.Sum64()
}

func build(layout config.Layout, tunings Tunings, p paths) (*Catalog, error) {
	start := time.Now()
	Status("catalog: no usable staticQueries.dat, building from %s", layout.Entrada)
	if err := os.MkdirAll(p.scratch, 0o755); err != nil {
		return nil, err
	}
	cache := NewCache(tunings.CacheFrames)
	cat := &Catalog{layout: layout, cache: cache, paths: p}

	var err error
	if cat.accountsFile, err = cache.Open(p.accounts); err != nil {
		return nil, err
	}
	if cat.reposFile, err = cache.Open(p.repos); err != nil {
		return nil, err
	}
	if cat.commitsFile, err = cache.Open(p.commits); err != nil {
		return nil, err
	}

	newIndexer := func(path string) (*Indexer, error) {
		return NewIndexer(cache, path, p.scratch, tunings.RunEntries)
	}
	if cat.accountsByID, err = newIndexer(p.accountsByID); err != nil {
		return nil, err
	}
	if cat.repositoriesByID, err = newIndexer(p.reposByID); err != nil {
		return nil, err
	}
	if cat.commitsByRepo, err = newIndexer(p.commitsByRepo); err != nil {
		return nil, err
	}
	if cat.commitsByDate, err = newIndexer(p.commitsByDate); err != nil {
		return nil, err
	}
	if cat.collaborators, err = newIndexer(p.collaborators); err != nil {
		return nil, err
	}
	if cat.reposByLastCommit, err = newIndexer(p.reposByLastCommit); err != nil {
		return nil, err
	}
	if cat.reposByLanguage, err = newIndexer(p.reposByLanguage); err != nil {
		return nil, err
	}

	var kindCounts [3]uint32
	var repoIDs map[uint32]bool

	// Step 1 (parse-accounts) runs concurrently with step 2 (the
	// synchronous repo-id pre-scan): the two have no data dependency on
	// each other, only on what follows (Design Notes §9's task graph).
	var wg sync.WaitGroup
	var acceptedAccounts, rejectedAccounts int
	var accountsErr, prescanErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptedAccounts, rejectedAccounts, accountsErr = ingestAccounts(cat, layout, &kindCounts)
	}()
	go func() {
		defer wg.Done()
		repoIDs, prescanErr = prescanRepositoryIDs(layout)
	}()
	wg.Wait()
	if accountsErr != nil {
		return nil, accountsErr
	}
	if prescanErr != nil {
		return nil, prescanErr
	}

	if err := cat.accountsByID.Sort(); err != nil {
		return nil, err
	}

	// Step 3: filter-commits depends on both parse-accounts (author and
	// committer existence) and the repo-id pre-scan (repo existence).
	lastCommitByRepo := make(map[uint32]DateTime)
	acceptedCommits, rejectedCommits, commitsBytes, err := ingestCommits(cat, layout, repoIDs, lastCommitByRepo)
	if err != nil {
		return nil, err
	}

	// Step 4: parse-repos depends on filter-commits for the backfilled
	// last-commit date-time.
	acceptedRepos, rejectedRepos, err := ingestRepositories(cat, layout, lastCommitByRepo)
	if err != nil {
		return nil, err
	}

	// Step 5: scan the freshly written compressed commits, inserting
	// into the three commit-keyed indexes.
	if err := scanCommitsIntoIndexes(cat, commitsBytes); err != nil {
		return nil, err
	}

	// Step 6: sort/group every independent index concurrently — the
	// three groups (accounts-by-id was already sorted above; repos-by-id
	// and repos-by-last-commit-date are independent of each other and of
	// the commits-by-repository/collaborators pair).
	if err := sortAndGroupIndexes(cat); err != nil {
		return nil, err
	}
	Status("catalog: indexes sorted and grouped")

	// Step 7: friend-flag pass and aggregates.
	hdr, err := friendFlagPass(cat, kindCounts, acceptedCommits)
	if err != nil {
		return nil, err
	}
	cat.Header = hdr

	if err := os.WriteFile(p.staticDat, hdr.encode(), 0o644); err != nil {
		return nil, err
	}
	cache.FlushAll()

	Status("catalog: accepted %d accounts (%d rejected), %d repositories (%d rejected), %d commits (%d rejected) in %.2f seconds",
		acceptedAccounts, rejectedAccounts, acceptedRepos, rejectedRepos, acceptedCommits, rejectedCommits,
		time.Since(start).Seconds())

	return cat, nil
}

// ingestAccounts implements build pipeline step 1: parse every account
// row, compute its friends list, emit the compressed record, count
// kinds, and insert into accounts-by-id.
func ingestAccounts(cat *Catalog, layout config.Layout, kindCounts *[3]uint32) (int, int, error) {
	var offset int64
	accepted, rejected := 0, 0
	err := scanDelimited(layout.AccountsPath(), func(line string) error {
		acc, ok := accountTextFormat.Parse(line)
		if !ok {
			warnDrop("account", dropMalformed, line)
			rejected++
			return nil
		}
		acc.ComputeFriends()

		buf := accountBinaryFormat.EncodeBinary(&acc)
		if err := cat.cache.SetBytes(cat.accountsFile, offset, buf); err != nil {
			return err
		}
		if err := cat.accountsByID.Insert(uint64(acc.ID), uint64(offset)); err != nil {
			return err
		}

		switch acc.Kind {
		case KindUser:
			kindCounts[0]++
		case KindOrganization:
			kindCounts[1]++
		case KindBot:
			kindCounts[2]++
		}

		offset += int64(len(buf))
		accepted++
		return nil
	})
	return accepted, rejected, err
}

// prescanRepositoryIDs implements build pipeline step 2: a synchronous
// pass over the raw repository text, recording only the id column.
func prescanRepositoryIDs(layout config.Layout) (map[uint32]bool, error) {
	ids := make(map[uint32]bool)
	err := scanDelimited(layout.RepositoriesPath(), func(line string) error {
		repo, ok := repositoryTextFormat.Parse(line)
		if !ok {
			return nil
		}
		ids[repo.ID] = true
		return nil
	})
	return ids, err
}

// ingestCommits implements build pipeline step 3: accept a commit only
// if its author, committer and repo id are all known, then emit the
// compressed record and track each repo's maximum commit date-time. It
// returns the number of accepted and rejected commits and the total byte
// length of commits.dat, so scanCommitsIntoIndexes (step 5) knows exactly
// where the written records end without reading the file's size back out.
func ingestCommits(cat *Catalog, layout config.Layout, repoIDs map[uint32]bool, lastCommitByRepo map[uint32]DateTime) (int, int, int64, error) {
	var offset int64
	accepted, rejected := 0, 0

	err := scanDelimited(layout.CommitsPath(), func(line string) error {
		c, ok := commitTextFormat.Parse(line)
		if !ok {
			warnDrop("commit", dropMalformed, line)
			rejected++
			return nil
		}

		_, authorOK, err := cat.accountsByID.FindKey(uint64(c.AuthorID))
		if err != nil {
			return err
		}
		if !authorOK {
			warnDrop("commit", dropUnknownAuthor, line)
			rejected++
			return nil
		}
		_, committerOK, err := cat.accountsByID.FindKey(uint64(c.CommitterID))
		if err != nil {
			return err
		}
		if !committerOK {
			warnDrop("commit", dropUnknownCommitter, line)
			rejected++
			return nil
		}
		if !repoIDs[c.RepoID] {
			warnDrop("commit", dropUnknownRepo, line)
			rejected++
			return nil
		}

		if prev, ok := lastCommitByRepo[c.RepoID]; !ok || c.CommitDate.after(prev) {
			lastCommitByRepo[c.RepoID] = c.CommitDate
		}

		buf := commitBinaryFormat.EncodeBinary(&c)
		if err := cat.cache.SetBytes(cat.commitsFile, offset, buf); err != nil {
			return err
		}
		offset += int64(len(buf))
		accepted++
		return nil
	})
	return accepted, rejected, offset, err
}

// ingestRepositories implements build pipeline step 4: accept a repo
// only if its owner exists, normalize its language, backfill its
// derived last-commit date-time, emit the compressed record, and insert
// it into the three repository-keyed indexes.
func ingestRepositories(cat *Catalog, layout config.Layout, lastCommitByRepo map[uint32]DateTime) (int, int, error) {
	var offset int64
	accepted, rejected := 0, 0
	err := scanDelimited(layout.RepositoriesPath(), func(line string) error {
		repo, ok := repositoryTextFormat.Parse(line)
		if !ok {
			warnDrop("repository", dropMalformed, line)
			rejected++
			return nil
		}
		_, ownerOK, err := cat.accountsByID.FindKey(uint64(repo.OwnerID))
		if err != nil {
			return err
		}
		if !ownerOK {
			warnDrop("repository", dropUnknownOwner, line)
			rejected++
			return nil
		}

		repo.Language = normalizeLanguage(repo.Language)
		repo.LastCommit = lastCommitByRepo[repo.ID]

		buf := repositoryBinaryFormat.EncodeBinary(&repo)
		if err := cat.cache.SetBytes(cat.reposFile, offset, buf); err != nil {
			return err
		}

		if err := cat.repositoriesByID.Insert(uint64(repo.ID), uint64(offset)); err != nil {
			return err
		}
		if err := cat.reposByLastCommit.Insert(uint64(repo.LastCommit.Pack()), uint64(offset)); err != nil {
			return err
		}
		if err := cat.reposByLanguage.Insert(languageKey(repo.Language), uint64(offset)); err != nil {
			return err
		}

		offset += int64(len(buf))
		accepted++
		return nil
	})
	return accepted, rejected, err
}

// scanCommitsIntoIndexes implements build pipeline step 5: a linear
// Lazy-view pass over the just-written commits file, inserting into
// commits-by-date, commits-by-repository, and collaborators. totalBytes
// is the exact length ingestCommits wrote, so the scan knows precisely
// where records end without any file-size query through the cache.
func scanCommitsIntoIndexes(cat *Catalog, totalBytes int64) error {
	lz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, 0)
	var offset int64

	for offset < totalBytes {
		rec, err := lz.Get(0) // repo_id; also primes offsets[0]
		if err != nil {
			return err
		}
		repoID := rec.RepoID

		authorRec, err := lz.Get(1)
		if err != nil {
			return err
		}
		authorID := authorRec.AuthorID

		dateRec, err := lz.Get(5)
		if err != nil {
			return err
		}
		packedDate := dateRec.CommitDate.Pack()

		if err := cat.commitsByDate.Insert(uint64(packedDate), uint64(offset)); err != nil {
			return err
		}
		if err := cat.commitsByRepo.Insert(uint64(repoID), uint64(offset)); err != nil {
			return err
		}

		_, authorOffset, authorOK, err := findAccountOffset(cat, uint64(authorID))
		if err != nil {
			return err
		}
		if authorOK {
			if err := cat.collaborators.Insert(uint64(repoID), authorOffset); err != nil {
				return err
			}
		}

		next, err := lz.PositionAfter()
		if err != nil {
			return err
		}
		offset = next
		lz.Rebind(cat.commitsFile, offset)
	}
	return nil
}

// findAccountOffset looks up an account's record offset in
// accounts-by-id. Every author/committer id reaching this point already
// passed the existence check in ingestCommits, so !ok here would mean
// the sorted index and the pre-filter disagree.
func findAccountOffset(cat *Catalog, id uint64) (int64, uint64, bool, error) {
	i, ok, err := cat.accountsByID.FindKey(id)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	v, err := cat.accountsByID.ValueAt(i)
	return i, v, true, err
}

// sortAndGroupIndexes implements build pipeline step 6: every index
// built from already-complete data is independent of every other, so
// all but collaborators are sorted (and grouped where needed)
// concurrently; collaborators is sorted and grouped afterwards.
func sortAndGroupIndexes(cat *Catalog) error {
	tasks := []func() error{
		func() error { return cat.repositoriesByID.Sort() },
		func() error {
			if err := cat.reposByLastCommit.Sort(); err != nil {
				return err
			}
			return nil
		},
		func() error {
			if err := cat.reposByLanguage.Sort(); err != nil {
				return err
			}
			return cat.reposByLanguage.Group(false)
		},
		func() error { return cat.commitsByDate.Sort() },
		func() error {
			if err := cat.commitsByRepo.Sort(); err != nil {
				return err
			}
			return cat.commitsByRepo.Group(false)
		},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tasks))
	wg.Add(len(tasks))
	for i, t := range tasks {
		i, t := i, t
		go func() {
			defer wg.Done()
			errs[i] = t()
		}()
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	// Collaborators is keyed by repo id like commits-by-repository and is
	// grouped with dedup. The friend-flag pass finds a repo's
	// collaborators group by FindKey on the repo id, not by position.
	if err := cat.collaborators.Sort(); err != nil {
		return err
	}
	return cat.collaborators.Group(true)
}

// friendFlagPass implements build pipeline step 7: for every repository
// with at least one commit, set author_is_friend/committer_is_friend on
// each of its commits relative to the repository owner's friends list,
// and accumulate the three header scalars Q2-Q4 along the way.
func friendFlagPass(cat *Catalog, kindCounts [3]uint32, acceptedCommits int) (Header, error) {
	hdr := Header{
		UserCount:         kindCounts[0],
		OrganizationCount: kindCounts[1],
		BotCount:          kindCounts[2],
	}

	repoGroups := cat.commitsByRepo.Count()
	var totalCollaborators, botRepoGroups int64

	for i := int64(0); i < repoGroups; i++ {
		repoID, err := cat.commitsByRepo.KeyAt(i)
		if err != nil {
			return Header{}, err
		}
		groupOffset, err := cat.commitsByRepo.ValueAt(i)
		if err != nil {
			return Header{}, err
		}
		size, err := cat.commitsByRepo.GroupSize(groupOffset)
		if err != nil {
			return Header{}, err
		}

		ownerID, friends, err := ownerFriends(cat, uint32(repoID))
		if err != nil {
			return Header{}, err
		}

		hasBot := false
		for j := int64(0); j < size; j++ {
			commitOffset, ok, err := cat.commitsByRepo.GroupElem(groupOffset, j)
			if err != nil {
				return Header{}, err
			}
			if !ok {
				continue
			}

			clz := NewLazy(commitBinaryFormat, cat.cache, cat.commitsFile, int64(commitOffset))
			authorRec, err := clz.Get(commitMemberAuthorID)
			if err != nil {
				return Header{}, err
			}
			authorID := authorRec.AuthorID
			committerRec, err := clz.Get(commitMemberCommitterID)
			if err != nil {
				return Header{}, err
			}
			committerID := committerRec.CommitterID

			w := clz.Set(commitMemberAuthorIsFriend)
			w.AuthorIsFriend = friendContains(friends, ownerID, authorID)
			w = clz.Set(commitMemberCommitterIsFriend)
			w.CommitterIsFriend = friendContains(friends, ownerID, committerID)
			if err := clz.FlushToFile(); err != nil {
				return Header{}, err
			}

			if !hasBot {
				authorBot, err := isBotAccount(cat, authorID)
				if err != nil {
					return Header{}, err
				}
				committerBot, err := isBotAccount(cat, committerID)
				if err != nil {
					return Header{}, err
				}
				hasBot = authorBot || committerBot
			}
		}
		if hasBot {
			botRepoGroups++
		}

		if ci, ok, err := cat.collaborators.FindKey(repoID); err != nil {
			return Header{}, err
		} else if ok {
			cgo, err := cat.collaborators.ValueAt(ci)
			if err != nil {
				return Header{}, err
			}
			csz, err := cat.collaborators.GroupSize(cgo)
			if err != nil {
				return Header{}, err
			}
			totalCollaborators += csz
		}
	}

	if repoGroups > 0 {
		hdr.CollaboratorAvg = float64(totalCollaborators) / float64(repoGroups)
	}
	hdr.BotRepoGroups = float64(botRepoGroups)
	if n := cat.accountsByID.Count(); n > 0 {
		hdr.CommitsPerAccount = float64(acceptedCommits) / float64(n)
	}
	return hdr, nil
}

// ownerFriends resolves a repository's owner and returns that owner's id
// and friends list, or a zero id and nil list if either lookup fails.
// The repository lookup fails for commits into a repository that was
// dropped for an unknown owner (commits are filtered against every
// repository id in the input); the owner lookup cannot fail, since
// ingestRepositories refused any repository whose owner is unknown.
func ownerFriends(cat *Catalog, repoID uint32) (uint32, []uint32, error) {
	repoLz, ok, err := FindValueAsView(cat.repositoriesByID, uint64(repoID), repositoryBinaryFormat, cat.cache, cat.reposFile)
	if err != nil || !ok {
		return 0, nil, err
	}
	rrec, err := repoLz.Get(repositoryMemberOwnerID)
	if err != nil {
		return 0, nil, err
	}

	acctLz, ok, err := FindValueAsView(cat.accountsByID, uint64(rrec.OwnerID), accountBinaryFormat, cat.cache, cat.accountsFile)
	if err != nil || !ok {
		return 0, nil, err
	}
	arec, err := acctLz.Get(accountMemberFriendsSorted)
	if err != nil {
		return 0, nil, err
	}
	return rrec.OwnerID, arec.Friends, nil
}

// isBotAccount reports whether the account with the given id is a Bot.
func isBotAccount(cat *Catalog, id uint32) (bool, error) {
	acctLz, ok, err := FindValueAsView(cat.accountsByID, uint64(id), accountBinaryFormat, cat.cache, cat.accountsFile)
	if err != nil || !ok {
		return false, err
	}
	rec, err := acctLz.Get(accountMemberKind)
	if err != nil {
		return false, err
	}
	return rec.Kind == KindBot, nil
}

// friendContains reports whether id is a friend of the repository owner:
// present in friends (which ComputeFriends keeps sorted ascending) and
// distinct from the owner itself. A self-follow in the source data must
// never make an owner their own friend.
func friendContains(friends []uint32, ownerID, id uint32) bool {
	if id == ownerID {
		return false
	}
	i := sort.Search(len(friends), func(i int) bool { return friends[i] >= id })
	return i < len(friends) && friends[i] == id
}
