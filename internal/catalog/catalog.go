package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"ghcatalog/internal/config"
)

// Header is the tiny persisted summary of §6's staticQueries.dat: the
// three kind counts (Q1) plus the three scalars Q2, Q3 and Q4, so a
// reload never has to rescan the catalogue to answer them.
type Header struct {
	UserCount, OrganizationCount, BotCount uint32

	CollaboratorAvg   float64 // Q2: collaborator-appearances / repo groups
	BotRepoGroups     float64 // Q3: repo groups with at least one bot commit
	CommitsPerAccount float64 // Q4: total commits / account count
}

const headerByteSize = 36 // 3*int32 + 3*float64

func (h Header) encode() []byte {
	buf := make([]byte, headerByteSize)
	binary.BigEndian.PutUint32(buf[0:4], h.UserCount)
	binary.BigEndian.PutUint32(buf[4:8], h.OrganizationCount)
	binary.BigEndian.PutUint32(buf[8:12], h.BotCount)
	binary.BigEndian.PutUint64(buf[12:20], math.Float64bits(h.CollaboratorAvg))
	binary.BigEndian.PutUint64(buf[20:28], math.Float64bits(h.BotRepoGroups))
	binary.BigEndian.PutUint64(buf[28:36], math.Float64bits(h.CommitsPerAccount))
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != headerByteSize {
		return Header{}, fmt.Errorf("catalog: staticQueries.dat is %d bytes, want %d", len(buf), headerByteSize)
	}
	var h Header
	h.UserCount = binary.BigEndian.Uint32(buf[0:4])
	h.OrganizationCount = binary.BigEndian.Uint32(buf[4:8])
	h.BotCount = binary.BigEndian.Uint32(buf[8:12])
	h.CollaboratorAvg = math.Float64frombits(binary.BigEndian.Uint64(buf[12:20]))
	h.BotRepoGroups = math.Float64frombits(binary.BigEndian.Uint64(buf[20:28]))
	h.CommitsPerAccount = math.Float64frombits(binary.BigEndian.Uint64(buf[28:36]))
	return h, nil
}

// paths names every file the catalogue persists under saida/, gathered
// in one place so build.go and query.go never hand-assemble a filename.
type paths struct {
	accounts     string
	repos        string
	commits      string
	scratch      string
	staticDat    string
	accountsByID string
	reposByID    string
	commitsByRepo     string
	commitsByDate     string
	collaborators     string
	reposByLastCommit string
	reposByLanguage   string
}

func resolvePaths(l config.Layout) paths {
	j := filepath.Join
	return paths{
		accounts:          j(l.Saida, "users.dat"),
		repos:             j(l.Saida, "repos.dat"),
		commits:           j(l.Saida, "commits.dat"),
		scratch:           j(l.Saida, "scratch"),
		staticDat:         j(l.Saida, "staticQueries.dat"),
		accountsByID:      j(l.Saida, "accounts_by_id.indx"),
		reposByID:         j(l.Saida, "repositories_by_id.indx"),
		commitsByRepo:     j(l.Saida, "commits_by_repository.indx"),
		commitsByDate:     j(l.Saida, "commits_by_date.indx"),
		collaborators:     j(l.Saida, "collaborators.indx"),
		reposByLastCommit: j(l.Saida, "repositories_by_last_commit_date.indx"),
		reposByLanguage:   j(l.Saida, "repositories_by_language.indx"),
	}
}

// Catalog is an opened, fully sorted and grouped set of compressed
// record files and indexes (§4.5), ready to answer queries.
type Catalog struct {
	layout config.Layout
	cache  *Cache
	paths  paths

	accountsFile FileHandle
	reposFile    FileHandle
	commitsFile  FileHandle

	accountsByID      *Indexer
	repositoriesByID  *Indexer
	commitsByRepo     *Indexer
	commitsByDate     *Indexer
	collaborators     *Indexer
	reposByLastCommit *Indexer
	reposByLanguage   *Indexer

	Header Header
}

// Open loads an existing catalogue if its header reads back and every
// other persisted file is present, or builds one from scratch otherwise (§4.5
// "Idempotence"). A corrupt or truncated header is treated as an
// absent catalogue rather than an error (§7).
func Open(layout config.Layout, tunings Tunings) (*Catalog, error) {
	if err := layout.EnsureSaida(); err != nil {
		return nil, err
	}
	p := resolvePaths(layout)

	if hdr, err := tryLoad(p); err == nil {
		cat, err := attach(layout, tunings, p)
		if err != nil {
			return nil, err
		}
		cat.Header = hdr
		return cat, nil
	}

	return build(layout, tunings, p)
}

// tryLoad checks that every record, index and posting-list file exists,
// then reads the header; their contents are not validated (the files
// are never rewritten individually once build() completes).
func tryLoad(p paths) (Header, error) {
	for _, f := range []string{p.accounts, p.repos, p.commits,
		p.accountsByID, p.reposByID, p.commitsByRepo, p.commitsByDate,
		p.collaborators, p.reposByLastCommit, p.reposByLanguage,
		p.commitsByRepo + ".dat", p.collaborators + ".dat", p.reposByLanguage + ".dat"} {
		if _, err := os.Stat(f); err != nil {
			return Header{}, err
		}
	}
	buf, err := os.ReadFile(p.staticDat)
	if err != nil {
		return Header{}, err
	}
	return decodeHeader(buf)
}

// attach opens every persisted file read-only through the cache for a
// catalogue that tryLoad has already confirmed exists, sorting nothing
// (the files are already sorted/grouped from their original build).
func attach(layout config.Layout, tunings Tunings, p paths) (*Catalog, error) {
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

	attachIndex := func(path string) (*Indexer, error) {
		ix, err := NewIndexer(cache, path, p.scratch, tunings.RunEntries)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		ix.sorter = nil
		ix.count = info.Size() / entryByteSize
		return ix, nil
	}
	attachGrouped := func(path string) (*Indexer, error) {
		ix, err := attachIndex(path)
		if err != nil {
			return nil, err
		}
		vh, err := cache.Open(path + ".dat")
		if err != nil {
			return nil, err
		}
		ix.valuesFile = vh
		ix.valuesPath = path + ".dat"
		ix.grouped = true
		return ix, nil
	}

	if cat.accountsByID, err = attachIndex(p.accountsByID); err != nil {
		return nil, err
	}
	if cat.repositoriesByID, err = attachIndex(p.reposByID); err != nil {
		return nil, err
	}
	if cat.commitsByRepo, err = attachGrouped(p.commitsByRepo); err != nil {
		return nil, err
	}
	if cat.commitsByDate, err = attachIndex(p.commitsByDate); err != nil {
		return nil, err
	}
	if cat.collaborators, err = attachGrouped(p.collaborators); err != nil {
		return nil, err
	}
	if cat.reposByLastCommit, err = attachIndex(p.reposByLastCommit); err != nil {
		return nil, err
	}
	if cat.reposByLanguage, err = attachGrouped(p.reposByLanguage); err != nil {
		return nil, err
	}

	return cat, nil
}

// Close writes back every dirty cache frame. The backing files stay
// open, so calling Close more than once is harmless.
func (c *Catalog) Close() {
	c.cache.FlushAll()
}
