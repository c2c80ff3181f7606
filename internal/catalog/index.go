package catalog

import (
	"bufio"
	"encoding/binary"
	"os"
	"sort"
)

// Indexer is the external-memory (key, value) index of §4.4: entries
// are inserted in arbitrary order, externally sorted by key, and
// optionally grouped into a posting-list file for keys that recur
// (e.g. commits by repository, repositories by language).
type Indexer struct {
	cache *Cache
	file  FileHandle
	path  string

	sorter *ExternalSorter
	count  int64

	grouped     bool
	valuesFile  FileHandle
	valuesPath  string
}

// NewIndexer opens (creating if absent) the backing file at path and
// prepares it to accumulate entries.
func NewIndexer(cache *Cache, path, scratchDir string, runEntries int) (*Indexer, error) {
	h, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		cache:  cache,
		file:   h,
		path:   path,
		sorter: NewExternalSorter(scratchDir, runEntries),
	}, nil
}

// Insert adds one (key, value) pair. Valid only before Sort.
func (ix *Indexer) Insert(key, value uint64) error {
	return ix.sorter.Add(entry{Key: key, Value: value})
}

// Sort finishes accumulating entries and externally sorts them by key,
// rewriting the backing file in place (§4.4 sort()). Must be called
// exactly once, before any lookup.
func (ix *Indexer) Sort() error {
	if ix.sorter == nil {
		return ErrSortInvariant
	}
	if err := ix.sorter.Finish(ix.path); err != nil {
		return err
	}
	ix.cache.Clear(ix.file)
	ix.sorter = nil

	info, err := os.Stat(ix.path)
	if err != nil {
		return err
	}
	ix.count = info.Size() / entryByteSize
	return nil
}

// Group assumes the index is sorted. It traverses entries once, writing
// to a posting-list file (a length prefix followed by that many 64-bit
// values) one entry per distinct key, then rewrites the index file
// itself to hold exactly one (key, offset-in-values-file) row per
// distinct key (§4.4 group()). When dedupe is set, each key's posting
// list is sorted and deduplicated before being written (used by the
// collaborators index).
//
// A descending key observed mid-scan means sort() was never called, or
// the sort invariant was otherwise violated; this panics through
// FatalInvariant before the index file is rewritten, though the values
// file has already been created by then (§4.4, §7).
func (ix *Indexer) Group(dedupe bool) error {
	if ix.sorter != nil {
		return ErrSortInvariant
	}

	valuesPath := ix.path + ".dat"
	vf, err := os.Create(valuesPath)
	if err != nil {
		return err
	}
	vw := bufio.NewWriter(vf)

	var rewritten []entry
	var curKey uint64
	var curVals []uint64
	have := false
	var voffset int64

	flush := func() error {
		if !have {
			return nil
		}
		vals := curVals
		if dedupe {
			sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
			vals = dedupeUint64(vals)
		}
		var cbuf [4]byte
		binary.BigEndian.PutUint32(cbuf[:], uint32(len(vals)))
		if _, err := vw.Write(cbuf[:]); err != nil {
			return err
		}
		for _, v := range vals {
			var vbuf [8]byte
			binary.BigEndian.PutUint64(vbuf[:], v)
			if _, err := vw.Write(vbuf[:]); err != nil {
				return err
			}
		}
		rewritten = append(rewritten, entry{Key: curKey, Value: uint64(voffset)})
		voffset += 4 + 8*int64(len(vals))
		return nil
	}

	var buf [entryByteSize]byte
	for i := int64(0); i < ix.count; i++ {
		if err := ix.cache.ReadBytes(ix.file, i*entryByteSize, buf[:]); err != nil {
			vf.Close()
			return err
		}
		e := decodeEntry(buf[:])
		if have && e.Key < curKey {
			FatalInvariant(ErrSortInvariant)
		}
		if have && e.Key == curKey {
			curVals = append(curVals, e.Value)
			continue
		}
		if err := flush(); err != nil {
			vf.Close()
			return err
		}
		curKey, curVals, have = e.Key, []uint64{e.Value}, true
	}
	if err := flush(); err != nil {
		vf.Close()
		return err
	}
	if err := vw.Flush(); err != nil {
		vf.Close()
		return err
	}
	if err := vf.Close(); err != nil {
		return err
	}

	if err := writeEntries(ix.path, rewritten); err != nil {
		return err
	}
	ix.cache.Clear(ix.file)

	vh, err := ix.cache.Open(valuesPath)
	if err != nil {
		return err
	}
	ix.valuesFile = vh
	ix.valuesPath = valuesPath
	ix.count = int64(len(rewritten))
	ix.grouped = true
	return nil
}

func dedupeUint64(sorted []uint64) []uint64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Count reports the number of entries in the index: total inserts after
// Sort, distinct keys after Group.
func (ix *Indexer) Count() int64 { return ix.count }

// KeyAt and ValueAt read one field of the i-th entry directly through
// the cache, with no decoding beyond the two big-endian uint64s.
func (ix *Indexer) KeyAt(i int64) (uint64, error) {
	return ix.cache.GetUint64(ix.file, i*entryByteSize)
}

func (ix *Indexer) ValueAt(i int64) (uint64, error) {
	return ix.cache.GetUint64(ix.file, i*entryByteSize+8)
}

// LowerBound returns the index of the first entry whose key is >= key
// (§4.4 lower_bound()).
func (ix *Indexer) LowerBound(key uint64) (int64, error) {
	lo, hi := int64(0), ix.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		k, err := ix.KeyAt(mid)
		if err != nil {
			return 0, err
		}
		if k < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// FindKey reports the index of the entry with the given key (there may
// be several contiguous matches before Group; after Group, at most one).
func (ix *Indexer) FindKey(key uint64) (int64, bool, error) {
	i, err := ix.LowerBound(key)
	if err != nil {
		return 0, false, err
	}
	if i >= ix.count {
		return 0, false, nil
	}
	k, err := ix.KeyAt(i)
	if err != nil {
		return 0, false, err
	}
	return i, k == key, nil
}

// GroupSize reports how many values the posting list at groupOffset
// holds. groupOffset is the value returned by ValueAt for a grouped
// index's entry (§4.4 group_size(group_offset)).
func (ix *Indexer) GroupSize(groupOffset uint64) (int64, error) {
	c, err := ix.cache.GetUint32(ix.valuesFile, int64(groupOffset))
	return int64(c), err
}

// GroupElem returns the i-th value in the posting list at groupOffset.
func (ix *Indexer) GroupElem(groupOffset uint64, i int64) (uint64, bool, error) {
	count, err := ix.cache.GetUint32(ix.valuesFile, int64(groupOffset))
	if err != nil {
		return 0, false, err
	}
	if i < 0 || i >= int64(count) {
		return 0, false, nil
	}
	v, err := ix.cache.GetUint64(ix.valuesFile, int64(groupOffset)+4+8*i)
	return v, err == nil, err
}

// ValueAsView, GroupElemAsView and FindValueAsView wrap an index lookup
// in a Lazy record view bound to the record file the value names an
// offset into (§4.4: "a value is typically a byte offset into the
// corresponding record file"). These are free functions, not methods,
// because Go forbids a method from introducing its own type parameter.

// ValueAsView builds a Lazy view of the record at entry i's value.
func ValueAsView[T any](ix *Indexer, i int64, format *Format[T], cache *Cache, file FileHandle) (*Lazy[T], error) {
	v, err := ix.ValueAt(i)
	if err != nil {
		return nil, err
	}
	return NewLazy(format, cache, file, int64(v)), nil
}

// GroupElemAsView builds a Lazy view of the i-th posting's record.
func GroupElemAsView[T any](ix *Indexer, groupOffset uint64, i int64, format *Format[T], cache *Cache, file FileHandle) (*Lazy[T], bool, error) {
	v, ok, err := ix.GroupElem(groupOffset, i)
	if err != nil || !ok {
		return nil, false, err
	}
	return NewLazy(format, cache, file, int64(v)), true, nil
}

// FindValueAsView builds a Lazy view of the record whose offset is
// posted under key in a non-grouped index.
func FindValueAsView[T any](ix *Indexer, key uint64, format *Format[T], cache *Cache, file FileHandle) (*Lazy[T], bool, error) {
	i, ok, err := ix.FindKey(key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := ix.ValueAt(i)
	if err != nil {
		return nil, false, err
	}
	return NewLazy(format, cache, file, int64(v)), true, nil
}
