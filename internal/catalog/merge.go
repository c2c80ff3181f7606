package catalog

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/pgzip"
)

// entry is one (key, value) pair of the index's external-memory
// representation: a fixed 16-byte record, two big-endian uint64s (§4.4).
type entry struct {
	Key   uint64
	Value uint64
}

const entryByteSize = 16

func encodeEntry(e entry) [entryByteSize]byte {
	var buf [entryByteSize]byte
	binary.BigEndian.PutUint64(buf[0:8], e.Key)
	binary.BigEndian.PutUint64(buf[8:16], e.Value)
	return buf
}

func decodeEntry(buf []byte) entry {
	return entry{
		Key:   binary.BigEndian.Uint64(buf[0:8]),
		Value: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// plex carries one entry through the merge heap, tagged with which run
// channel it arrived on so the manifold can ask that channel for its
// next item (the same shape the teacher's merge.go uses for its
// inverted-index manifold, generalized from strings to fixed entries).
type plex struct {
	which int
	e     entry
}

type plexHeap []plex

func (h plexHeap) Len() int            { return len(h) }
func (h plexHeap) Less(i, j int) bool  { return h[i].e.Key < h[j].e.Key }
func (h plexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *plexHeap) Push(x interface{}) { *h = append(*h, x.(plex)) }
func (h *plexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// spillRun sorts a bounded in-memory batch of entries by key and writes
// it to a new gzip-compressed scratch file under dir. Scratch runs are
// the only files ever gzip-compressed in this package (§2 domain stack:
// pgzip is unsuitable for the final persisted index, which needs random
// page-aligned access through the cache; it is a good fit here, where
// the file is only ever read once, start to end).
func spillRun(batch []entry, dir string) (path string, err error) {
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Key < batch[j].Key })

	f, err := os.CreateTemp(dir, "ghcat-run-*.gz")
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw, err := pgzip.NewWriterLevel(f, pgzip.BestSpeed)
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(zw)
	for _, e := range batch {
		buf := encodeEntry(e)
		if _, err := bw.Write(buf[:]); err != nil {
			return "", err
		}
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// ExternalSorter accumulates entries in bounded memory, spilling sorted
// scratch runs to disk, and merges them into one fully sorted stream on
// Finish. This is the §4.4 "external k-way merge sort: entries are
// accumulated into bounded in-memory runs... written to scratch files...
// merged with a min-heap" primitive behind Indexer.sort().
type ExternalSorter struct {
	dir     string
	runSize int
	batch   []entry
	runs    []string
}

// NewExternalSorter prepares a sorter that spills every runSize entries
// to scratchDir.
func NewExternalSorter(scratchDir string, runSize int) *ExternalSorter {
	if runSize < 1 {
		runSize = 1
	}
	return &ExternalSorter{dir: scratchDir, runSize: runSize}
}

// Add appends one entry, spilling a run to disk whenever the in-memory
// batch reaches runSize.
func (s *ExternalSorter) Add(e entry) error {
	s.batch = append(s.batch, e)
	if len(s.batch) >= s.runSize {
		return s.spill()
	}
	return nil
}

func (s *ExternalSorter) spill() error {
	if len(s.batch) == 0 {
		return nil
	}
	path, err := spillRun(s.batch, s.dir)
	if err != nil {
		return err
	}
	s.runs = append(s.runs, path)
	s.batch = s.batch[:0]
	return nil
}

// Finish flushes any partial run and k-way merges every scratch run into
// destPath, fully sorted by key, removing the scratch files as it goes.
// If everything fit in a single run, no scratch file is ever created and
// the in-memory batch is sorted and written directly.
func (s *ExternalSorter) Finish(destPath string) (err error) {
	if len(s.runs) == 0 {
		sort.SliceStable(s.batch, func(i, j int) bool { return s.batch[i].Key < s.batch[j].Key })
		return writeEntries(destPath, s.batch)
	}
	if err := s.spill(); err != nil {
		return err
	}
	defer func() {
		for _, p := range s.runs {
			os.Remove(p)
		}
	}()
	return mergeRuns(s.runs, destPath)
}

func writeEntries(destPath string, entries []entry) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	for _, e := range entries {
		buf := encodeEntry(e)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// runReader streams decoded entries from one scratch run file over a
// channel, mirroring the teacher's per-file presenter goroutines in
// CreatePresenters.
func runReader(path string) (<-chan entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := pgzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}

	out := make(chan entry, 64)
	go func() {
		defer close(out)
		defer f.Close()
		defer zr.Close()
		var buf [entryByteSize]byte
		for {
			if _, err := io.ReadFull(zr, buf[:]); err != nil {
				return
			}
			out <- decodeEntry(buf[:])
		}
	}()
	return out, nil
}

// mergeRuns k-way merges the sorted scratch files in paths into destPath
// using a min-heap over one channel per run — the direct generalization
// of the teacher's CreateManifold, keyed on entry.Key instead of an
// alphabetic identifier.
func mergeRuns(paths []string, destPath string) error {
	chans := make([]<-chan entry, len(paths))
	for i, p := range paths {
		chn, err := runReader(p)
		if err != nil {
			return fmt.Errorf("catalog: opening scratch run %s: %w", filepath.Base(p), err)
		}
		chans[i] = chn
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)

	hp := &plexHeap{}
	heap.Init(hp)
	for i, chn := range chans {
		if e, ok := <-chn; ok {
			heap.Push(hp, plex{which: i, e: e})
		}
	}

	for hp.Len() > 0 {
		curr := heap.Pop(hp).(plex)
		buf := encodeEntry(curr.e)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
		if e, ok := <-chans[curr.which]; ok {
			heap.Push(hp, plex{which: curr.which, e: e})
		}
	}

	return bw.Flush()
}
