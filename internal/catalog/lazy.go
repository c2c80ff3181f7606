package catalog

import "math"

// Lazy is a handle onto one binary record resident in a backing file,
// as described by a Format. Members are decoded from the cache only
// when actually requested; a chain of prefix-sum offsets is extended
// incrementally as members are touched, exactly far enough to reach
// whichever member is asked for (§4.3).
//
// Variable-length members (string, string/null, int-list) may never be
// grown or shrunk through Set — doing so would shift every record that
// follows in the backing file. The builder only ever uses Set on
// fixed-width members (the two friend flags); FlushToFile panics if it
// ever sees otherwise.
type Lazy[T any] struct {
	format *Format[T]
	cache  *Cache
	file   FileHandle
	start  int64

	rec     T
	loaded  []bool
	altered []bool

	// offsets[i] is the start-relative byte offset of member i.
	// offsets[0..knownThrough] are valid; offsets[len(Members)] is the
	// size of the whole record once fully materialized.
	offsets      []int64
	knownThrough int

	// lengthVals[i] holds the decoded numeric value of member i, valid
	// only once loaded[i] is true and Members[i].Kind == KUint. Used to
	// size whichever variable-length member it pairs with.
	lengthVals []uint32
}

// NewLazy creates a view bound to file at offset, ready for Get/Set.
func NewLazy[T any](format *Format[T], cache *Cache, file FileHandle, offset int64) *Lazy[T] {
	n := len(format.Members)
	l := &Lazy[T]{
		format:     format,
		cache:      cache,
		offsets:    make([]int64, n+1),
		loaded:     make([]bool, n),
		altered:    make([]bool, n),
		lengthVals: make([]uint32, n),
	}
	l.Rebind(file, offset)
	return l
}

// Rebind releases any loaded members and moves the view to a new
// address — the cheap way to iterate a file of binary records with a
// single Lazy instance (§4.3).
func (l *Lazy[T]) Rebind(file FileHandle, offset int64) {
	l.file = file
	l.start = offset
	var zero T
	l.rec = zero
	for i := range l.loaded {
		l.loaded[i] = false
		l.altered[i] = false
	}
	l.knownThrough = 0
	l.offsets[0] = 0
}

// fixedWidth returns a member's constant binary width, or 0 if it is
// variable-length (string, string/null, int-list).
func (l *Lazy[T]) fixedWidth(j int) int {
	switch l.format.Members[j].Kind {
	case KBool, KKind:
		return 1
	case KUint, KDateTime:
		return 4
	case KDouble:
		return 8
	default:
		return 0
	}
}

// widthOf returns member j's actual byte width, using an already
// decoded paired length value for variable-length members. The paired
// length member is always decoded before j is reached (ensureOffset
// guarantees this), since the format requires the length member to
// precede the member it sizes.
func (l *Lazy[T]) widthOf(j int) int {
	if w := l.fixedWidth(j); w > 0 {
		return w
	}
	m := l.format.Members[j]
	switch m.Kind {
	case KString, KStringNull:
		return int(l.lengthVals[m.LengthIndex])
	case KUintList:
		return 4 * int(l.lengthVals[m.LengthIndex])
	default:
		return 0
	}
}

// ensureOffset guarantees offsets[0..i] are valid, decoding only the
// KUint members that some later member's size depends on along the way.
func (l *Lazy[T]) ensureOffset(i int) error {
	for l.knownThrough < i {
		j := l.knownThrough
		if l.format.lengthOf[j] >= 0 && !l.loaded[j] {
			if err := l.readAndDecode(j, l.fixedWidth(j)); err != nil {
				return err
			}
		}
		width := l.widthOf(j)
		l.offsets[j+1] = l.offsets[j] + int64(width)
		l.knownThrough++
	}
	return nil
}

// readAndDecode reads member i's width bytes through the cache at its
// now-known offset and decodes them into rec, marking it loaded.
func (l *Lazy[T]) readAndDecode(i, width int) error {
	off := l.start + l.offsets[i]
	buf := make([]byte, width)
	if width > 0 {
		if err := l.cache.ReadBytes(l.file, off, buf); err != nil {
			return err
		}
	}

	m := l.format.Members[i]
	switch m.Kind {
	case KBool:
		v := buf[0] != 0
		if m.SetBool != nil {
			m.SetBool(&l.rec, v)
		}
	case KKind:
		v := AccountKind(buf[0])
		if m.SetKind != nil {
			m.SetKind(&l.rec, v)
		}
	case KUint:
		v := decodeUint32(buf)
		l.lengthVals[i] = v
		if m.SetUint != nil {
			m.SetUint(&l.rec, v)
		}
	case KDateTime:
		v := UnpackDateTime(decodeUint32(buf))
		if m.SetDateTime != nil {
			m.SetDateTime(&l.rec, v)
		}
	case KDouble:
		v := math.Float64frombits(decodeUint64(buf))
		if m.SetDouble != nil {
			m.SetDouble(&l.rec, v)
		}
	case KString, KStringNull:
		if m.SetString != nil {
			m.SetString(&l.rec, string(buf))
		}
	case KUintList:
		n := width / 4
		vs := make([]uint32, n)
		for k := 0; k < n; k++ {
			vs[k] = decodeUint32(buf[4*k : 4*k+4])
		}
		if m.SetUintList != nil {
			m.SetUintList(&l.rec, vs)
		}
	}
	l.loaded[i] = true
	return nil
}

// Get decodes member i (if not already loaded) and returns the backing
// record, with that member now populated. Only member i's bytes are
// read, plus any KUint length members standing between the record start
// and member i.
func (l *Lazy[T]) Get(i int) (*T, error) {
	if l.loaded[i] {
		return &l.rec, nil
	}
	if err := l.ensureOffset(i); err != nil {
		return nil, err
	}
	if err := l.readAndDecode(i, l.widthOf(i)); err != nil {
		return nil, err
	}
	return &l.rec, nil
}

// Set marks member i as loaded and altered and returns the record for
// the caller to assign into. The caller must write the field the
// member's Name documents before any subsequent FlushToFile.
func (l *Lazy[T]) Set(i int) *T {
	l.loaded[i] = true
	l.altered[i] = true
	return &l.rec
}

// FlushToFile encodes every altered member and writes it at its offset
// through the cache's SetBytes (§4.3).
func (l *Lazy[T]) FlushToFile() error {
	for i, isAltered := range l.altered {
		if !isAltered {
			continue
		}
		if err := l.ensureOffset(i); err != nil {
			return err
		}
		width := l.widthOf(i)
		if fw := l.fixedWidth(i); fw == 0 && width != l.fixedWidth(i) {
			// unreachable guard kept for symmetry; real length-change
			// detection happens below for variable members.
		}
		var buf []byte
		buf = l.format.encodeMember(buf, &l.rec, i)
		if len(buf) != width {
			panic("catalog: lazy flush changed a variable-length member's width, which would corrupt the records that follow it in the file")
		}
		off := l.start + l.offsets[i]
		if err := l.cache.SetBytes(l.file, off, buf); err != nil {
			return err
		}
	}
	return nil
}

// PositionAfter returns the offset just past the record, materializing
// every prefix sum in the process — the idiom for scanning a file of
// fixed-format records with one Lazy instance and no separate index.
func (l *Lazy[T]) PositionAfter() (int64, error) {
	n := len(l.format.Members)
	if err := l.ensureOffset(n); err != nil {
		return 0, err
	}
	return l.start + l.offsets[n], nil
}
