package catalog

import (
	"container/list"
	"encoding/binary"
	"io"
	"os"
	"sync"
)

// PageSize is the fixed frame size of the block cache (§4.1).
const PageSize = pageSize

// FileHandle identifies a backing file registered with a Cache. Handles
// are opaque to callers; presenting an unregistered handle to any Cache
// method is a programmer error and panics, per §4.1 failure semantics.
type FileHandle int

const invalidHandle FileHandle = -1

type cacheKey struct {
	file   FileHandle
	offset int64
}

// frame is one page-sized slot. Its own mutex covers the actual read,
// write, and flush of its data; the Cache's global mutex covers only the
// access-order list and the (file,offset)→frame index. The global lock
// MUST be released before a frame lock is acquired — holding both while
// blocking on I/O is how this kind of cache deadlocks.
type frame struct {
	mu     sync.Mutex
	file   FileHandle
	offset int64
	loaded bool
	dirty  bool
	data   [PageSize]byte
}

// Cache is the fixed-capacity set of page frames described in §4.1.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // MRU at Front(), LRU at Back(); elements hold *frame
	byAddr   map[cacheKey]*list.Element

	filesMu    sync.Mutex
	files      map[FileHandle]*os.File
	nextHandle FileHandle
}

// NewCache allocates a cache with the given number of page frames.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		byAddr:   make(map[cacheKey]*list.Element, capacity),
		files:    make(map[FileHandle]*os.File),
	}
}

// Open registers path as a backing file and returns its handle. The file
// is created if absent.
func (c *Cache) Open(path string) (FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return invalidHandle, err
	}
	c.filesMu.Lock()
	h := c.nextHandle
	c.nextHandle++
	c.files[h] = f
	c.filesMu.Unlock()
	return h, nil
}

// Close flushes and releases a backing file.
func (c *Cache) Close(h FileHandle) error {
	c.Flush(h)
	c.filesMu.Lock()
	f, ok := c.files[h]
	if ok {
		delete(c.files, h)
	}
	c.filesMu.Unlock()
	if !ok {
		panic(ErrUnknownFile)
	}
	return f.Close()
}

func (c *Cache) fileFor(h FileHandle) *os.File {
	c.filesMu.Lock()
	f, ok := c.files[h]
	c.filesMu.Unlock()
	if !ok {
		panic(ErrUnknownFile)
	}
	return f
}

func alignDown(offset int64) int64 {
	return offset - offset%PageSize
}

// evictState captures the identity a reclaimed frame held before reuse,
// so its dirty contents can be written back to the right address.
type evictState struct {
	hadPrev    bool
	prevFile   FileHandle
	prevOffset int64
	prevDirty  bool
}

// claimFrame must be called with c.mu held. It binds (or rebinds) a
// frame to key and registers it in the index, returning whatever
// identity the frame previously held.
func (c *Cache) claimFrame(key cacheKey, h FileHandle, aligned int64) (*frame, evictState) {
	var fr *frame
	var ev evictState

	if c.order.Len() >= c.capacity {
		back := c.order.Back()
		victim := back.Value.(*frame)
		delete(c.byAddr, cacheKey{victim.file, victim.offset})
		c.order.Remove(back)
		ev = evictState{hadPrev: true, prevFile: victim.file, prevOffset: victim.offset, prevDirty: victim.dirty}
		fr = victim
	} else {
		fr = &frame{}
	}

	fr.file, fr.offset, fr.loaded = h, aligned, false
	elem := c.order.PushFront(fr)
	c.byAddr[key] = elem
	return fr, ev
}

// getFrame returns the frame covering offset (aligned down), loading or
// evicting as needed (§4.1 get()).
func (c *Cache) getFrame(h FileHandle, offset int64) (*frame, error) {
	aligned := alignDown(offset)
	key := cacheKey{h, aligned}

	c.mu.Lock()
	if elem, ok := c.byAddr[key]; ok {
		c.order.MoveToFront(elem)
		fr := elem.Value.(*frame)
		c.mu.Unlock()
		// A load may already be in flight from a concurrent miss on the
		// same address; wait for it before handing the frame back.
		fr.mu.Lock()
		fr.mu.Unlock()
		return fr, nil
	}

	fr, evicted := c.claimFrame(key, h, aligned)
	c.mu.Unlock()

	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.loaded {
		return fr, nil
	}
	if evicted.hadPrev && evicted.prevDirty {
		if err := c.writeBackLocked(fr, evicted.prevFile, evicted.prevOffset); err != nil {
			Warn("cache: write-back failed for file %d at offset %d: %v", evicted.prevFile, evicted.prevOffset, err)
		}
	}
	if err := c.loadPageLocked(fr); err != nil {
		return nil, err
	}
	fr.loaded = true
	fr.dirty = false
	return fr, nil
}

// loadPageLocked fills fr.data from fr.file at fr.offset. A short read at
// end of file is not an error: the remainder is zero-padded (§4.1).
func (c *Cache) loadPageLocked(fr *frame) error {
	f := c.fileFor(fr.file)
	for i := range fr.data {
		fr.data[i] = 0
	}
	n, err := f.ReadAt(fr.data[:], fr.offset)
	if err != nil && err != io.EOF && n == 0 {
		return err
	}
	return nil
}

// writeBackLocked persists fr's current bytes to (file, offset), which
// may differ from fr's current identity (the frame is being reclaimed
// for a new address). A short write is logged and the caller's dirty
// flag is left untouched, so the frame remains a write-back candidate on
// the next flush (§4.1, §7).
func (c *Cache) writeBackLocked(fr *frame, file FileHandle, offset int64) error {
	f := c.fileFor(file)
	n, err := f.WriteAt(fr.data[:], offset)
	if err != nil {
		return err
	}
	if n != len(fr.data) {
		return io.ErrShortWrite
	}
	return nil
}

// Get returns the frame covering offset, for callers that need direct
// access to the page beneath an address. Lazy and Indexer do not use it;
// they go through ReadBytes, SetBytes and the integer helpers.
func (c *Cache) Get(h FileHandle, offset int64) (*frame, error) {
	return c.getFrame(h, offset)
}

// ReadBytes copies exactly n bytes starting at offset, across frames as
// needed. Bytes past end of file read as zero.
func (c *Cache) ReadBytes(h FileHandle, offset int64, buf []byte) error {
	n := len(buf)
	pos := 0
	for pos < n {
		pageOff := offset + int64(pos)
		fr, err := c.getFrame(h, pageOff)
		if err != nil {
			return err
		}
		within := int(pageOff % PageSize)
		avail := PageSize - within
		take := n - pos
		if take > avail {
			take = avail
		}
		fr.mu.Lock()
		copy(buf[pos:pos+take], fr.data[within:within+take])
		fr.mu.Unlock()
		pos += take
	}
	return nil
}

// SetBytes writes buf at offset across frames, marking each touched
// frame dirty. No fsync is issued; persistence happens on Flush.
func (c *Cache) SetBytes(h FileHandle, offset int64, buf []byte) error {
	n := len(buf)
	pos := 0
	for pos < n {
		pageOff := offset + int64(pos)
		fr, err := c.getFrame(h, pageOff)
		if err != nil {
			return err
		}
		within := int(pageOff % PageSize)
		avail := PageSize - within
		take := n - pos
		if take > avail {
			take = avail
		}
		fr.mu.Lock()
		copy(fr.data[within:within+take], buf[pos:pos+take])
		fr.dirty = true
		fr.mu.Unlock()
		pos += take
	}
	return nil
}

// GetUint32 reads a big-endian uint32 at offset (§6: all multi-byte
// scalars in binary files are big-endian, for portability).
func (c *Cache) GetUint32(h FileHandle, offset int64) (uint32, error) {
	var buf [4]byte
	if err := c.ReadBytes(h, offset, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// SetUint32 writes a big-endian uint32 at offset.
func (c *Cache) SetUint32(h FileHandle, offset int64, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return c.SetBytes(h, offset, buf[:])
}

// GetUint64 / SetUint64 are the 8-byte analogues, used for index entries
// (§6: 16-byte key+value pairs, each an 8-byte big-endian word).
func (c *Cache) GetUint64(h FileHandle, offset int64) (uint64, error) {
	var buf [8]byte
	if err := c.ReadBytes(h, offset, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (c *Cache) SetUint64(h FileHandle, offset int64, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return c.SetBytes(h, offset, buf[:])
}

// ReadLine copies bytes from offset until the first newline, the first
// zero byte, or max-1 bytes, whichever comes first. A single trailing
// carriage return is dropped. Returns the bytes written, excluding the
// terminator (§4.1 read_line()).
func (c *Cache) ReadLine(h FileHandle, offset int64, buf []byte) (int, error) {
	max := len(buf)
	if max == 0 {
		return 0, nil
	}
	n := 0
	pos := offset

	for n < max-1 {
		fr, err := c.getFrame(h, pos)
		if err != nil {
			return n, err
		}
		within := int(pos % PageSize)

		fr.mu.Lock()
		stop, terminator, consumed := scanPageForLine(fr.data[within:], buf[n:max-1])
		fr.mu.Unlock()

		n += consumed
		pos += int64(consumed)
		if stop {
			if terminator == '\n' {
				pos++
			}
			break
		}
		// span crosses into the next page; recurse by continuing the
		// scan at the next aligned offset
	}

	if n > 0 && buf[n-1] == '\r' {
		n--
	}
	buf[n] = 0
	return n, nil
}

// scanPageForLine copies bytes from page into out until a newline, a
// zero byte, or out is exhausted. It reports whether a terminator was
// found (stop) and which one, plus how many bytes were consumed from
// page (which may be less than len(page) if the page itself is longer
// than what remains of out).
func scanPageForLine(page, out []byte) (stop bool, terminator byte, consumed int) {
	limit := len(page)
	if len(out) < limit {
		limit = len(out)
	}
	for i := 0; i < limit; i++ {
		b := page[i]
		if b == 0 {
			return true, 0, i
		}
		if b == '\n' {
			return true, '\n', i
		}
		out[i] = b
	}
	return false, 0, limit
}

// flushMatching writes back dirty frames, optionally restricted to one
// file. refresh (writeback=false) discards pending writes instead.
func (c *Cache) flushMatching(h FileHandle, restrict bool, writeback bool) {
	c.mu.Lock()
	var frames []*frame
	for e := c.order.Front(); e != nil; e = e.Next() {
		fr := e.Value.(*frame)
		if !restrict || fr.file == h {
			frames = append(frames, fr)
		}
	}
	c.mu.Unlock()

	for _, fr := range frames {
		fr.mu.Lock()
		if fr.dirty {
			if writeback {
				if err := c.writeBackLocked(fr, fr.file, fr.offset); err != nil {
					Warn("cache: flush failed for file %d at offset %d: %v", fr.file, fr.offset, err)
					fr.mu.Unlock()
					continue
				}
			}
			fr.dirty = false
		}
		fr.mu.Unlock()
	}
}

// invalidateMatching drops frames (after any requested write-back)
// from the index entirely, so a later get() re-reads from disk. Used
// after an index file's on-disk contents are rewritten out from under
// the cache (e.g. by sort()).
func (c *Cache) invalidateMatching(h FileHandle, restrict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next *list.Element
	for e := c.order.Front(); e != nil; e = next {
		next = e.Next()
		fr := e.Value.(*frame)
		if !restrict || fr.file == h {
			delete(c.byAddr, cacheKey{fr.file, fr.offset})
			c.order.Remove(e)
		}
	}
}

// Flush writes back all dirty frames belonging to h.
func (c *Cache) Flush(h FileHandle) { c.flushMatching(h, true, true) }

// FlushAll writes back every dirty frame in the cache.
func (c *Cache) FlushAll() { c.flushMatching(invalidHandle, false, true) }

// Refresh evicts all frames belonging to h without writing them back.
func (c *Cache) Refresh(h FileHandle) {
	c.flushMatching(h, true, false)
	c.invalidateMatching(h, true)
}

// RefreshAll evicts every frame without writing any of them back.
func (c *Cache) RefreshAll() {
	c.flushMatching(invalidHandle, false, false)
	c.invalidateMatching(invalidHandle, false)
}

// Clear flushes then evicts every frame belonging to h. Used after
// sort()/group() rewrite a file's contents out from under stale pages.
func (c *Cache) Clear(h FileHandle) {
	c.Flush(h)
	c.invalidateMatching(h, true)
}

// ClearAll flushes then evicts every frame in the cache.
func (c *Cache) ClearAll() {
	c.FlushAll()
	c.invalidateMatching(invalidHandle, false)
}
