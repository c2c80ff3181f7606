package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MemberKind is the closed type set a Format member may have (§4.2).
// The "date" type (YYYY-MM-DD) is not a MemberKind: it never appears
// inside a persisted record, only as a standalone CLI query argument
// (see ParseDate in model.go), so it needs no place in a record layout.
type MemberKind int

const (
	KBool MemberKind = iota
	KKind
	KUint
	KDouble
	KString
	KStringNull
	KUintList
	KDateTime
)

// Member describes one field of a record of type T. Exactly one of the
// typed accessor pairs below is populated, matching Kind. SetUint may be
// nil for a KUint member that exists purely to pair with a following
// string/list member's length: its value is derived on demand from the
// paired member (see lengthValue), so there is nothing to store back
// into T when decoding.
//
// This is the value-type, closure-based replacement Design Notes §9
// calls for in place of the source's opaque-pointer-plus-getter/setter
// layout: the format describes *how* to reach a field, but the field
// itself lives directly in T.
type Member[T any] struct {
	Name        string
	Kind        MemberKind
	LengthIndex int // index of the paired length member, or -1

	GetBool func(*T) bool
	SetBool func(*T, bool)

	GetKind func(*T) AccountKind
	SetKind func(*T, AccountKind)

	GetUint func(*T) uint32
	SetUint func(*T, uint32)

	GetDouble func(*T) float64
	SetDouble func(*T, float64)

	GetString func(*T) string
	SetString func(*T, string)

	GetUintList func(*T) []uint32
	SetUintList func(*T, []uint32)

	GetDateTime func(*T) DateTime
	SetDateTime func(*T, DateTime)
}

// Format is an ordered tuple of typed members, usable either as a
// delimited-text layout (ingestion) or a self-delimiting binary layout
// (persisted files), per §4.2. A given entity uses two distinct Format
// instances — one per direction — because the binary layout carries
// derived fields the text layout never has (friends, last-commit date,
// friend flags) and omits fields the binary layout never needs
// (public-gists, public-repos, an account's raw creation time); those
// fields still live on the Go struct so the text Format can round-trip
// them, they are simply absent from the binary Format's member list.
type Format[T any] struct {
	Members   []Member[T]
	Separator byte // text field separator; unused by the binary methods

	// lengthOf[i] is the index of the member that member i is the
	// paired length for, or -1. Precomputed once so encodeMember
	// doesn't have to scan the member list per call.
	lengthOf []int
}

// NewFormat validates the list-length pairing rule at construction
// ("In the binary encoding, the length member MUST precede the list
// member") and returns the format.
func NewFormat[T any](sep byte, members ...Member[T]) *Format[T] {
	lengthOf := make([]int, len(members))
	for i := range lengthOf {
		lengthOf[i] = -1
	}

	for i, m := range members {
		if m.LengthIndex < 0 {
			continue
		}
		if m.LengthIndex >= i {
			panic(fmt.Sprintf("catalog: member %q's length member must precede it", m.Name))
		}
		if members[m.LengthIndex].Kind != KUint {
			panic(fmt.Sprintf("catalog: member %q's length member %q is not a uint", m.Name, members[m.LengthIndex].Name))
		}
		lengthOf[m.LengthIndex] = i
	}
	return &Format[T]{Members: members, Separator: sep, lengthOf: lengthOf}
}

// lengthValue returns the length (in elements, or bytes for strings)
// that member mi's paired length member would report for rec, used when
// no binary was read (i.e., we're deriving it fresh from rec's content
// rather than from a previously-decoded KUint).
func (f *Format[T]) lengthValue(rec *T, mi int) uint32 {
	m := f.Members[mi]
	switch m.Kind {
	case KString, KStringNull:
		return uint32(len(m.GetString(rec)))
	case KUintList:
		return uint32(len(m.GetUintList(rec)))
	default:
		return 0
	}
}

// ===== Text encoding (validate / parse / print) =====

// Validate reports whether text splits into exactly len(Members) fields,
// each well-formed for its member's type, with every list-length pairing
// self-consistent.
func (f *Format[T]) Validate(text string) bool {
	_, ok := f.parse(text, false)
	return ok
}

// Parse validates and decodes text into a record. On any failure it
// returns the zero value and false; nothing is partially exposed. This
// collapses the source's validate-once/parse-unsafe split (Design Notes
// §9): the binary path below never calls through text parsing at all,
// so there is no "hot restart" case left to special-case.
func (f *Format[T]) Parse(text string) (T, bool) {
	return f.parse(text, true)
}

func (f *Format[T]) parse(text string, populate bool) (T, bool) {
	var rec T
	fields := strings.Split(text, string(f.Separator))
	if len(fields) != len(f.Members) {
		return rec, false
	}

	uintVals := make([]uint32, len(f.Members))

	for i, m := range f.Members {
		field := fields[i]
		switch m.Kind {
		case KBool:
			v, ok := parseTextBool(field)
			if !ok {
				return rec, false
			}
			if populate {
				m.SetBool(&rec, v)
			}

		case KKind:
			v, ok := parseAccountKind(field)
			if !ok {
				return rec, false
			}
			if populate {
				m.SetKind(&rec, v)
			}

		case KUint:
			v, ok := parseTextUint(field)
			if !ok {
				return rec, false
			}
			uintVals[i] = v
			if populate && m.SetUint != nil {
				m.SetUint(&rec, v)
			}

		case KDouble:
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return rec, false
			}
			if populate {
				m.SetDouble(&rec, v)
			}

		case KString:
			if field == "" {
				return rec, false
			}
			if populate {
				m.SetString(&rec, field)
			}

		case KStringNull:
			if populate {
				m.SetString(&rec, field)
			}

		case KUintList:
			v, ok := parseTextUintList(field)
			if !ok {
				return rec, false
			}
			if m.LengthIndex >= 0 && uintVals[m.LengthIndex] != uint32(len(v)) {
				return rec, false
			}
			if populate {
				m.SetUintList(&rec, v)
			}

		case KDateTime:
			v, ok := ParseDateTime(field)
			if !ok {
				return rec, false
			}
			if populate {
				m.SetDateTime(&rec, v)
			}
		}
	}

	return rec, true
}

// PrintText renders rec back through the text encoding. Round-tripping
// print_text(parse(t)) == t is the first testable property in §8. A
// list's length member is printed from the list it pairs with (its
// GetUint reads the list length), so it round-trips as well.
func (f *Format[T]) PrintText(rec *T) string {
	var b strings.Builder
	for i, m := range f.Members {
		if i > 0 {
			b.WriteByte(f.Separator)
		}
		switch m.Kind {
		case KBool:
			if m.GetBool(rec) {
				b.WriteString("True")
			} else {
				b.WriteString("False")
			}
		case KKind:
			b.WriteString(m.GetKind(rec).String())
		case KUint:
			b.WriteString(strconv.FormatUint(uint64(m.GetUint(rec)), 10))
		case KDouble:
			b.WriteString(strconv.FormatFloat(m.GetDouble(rec), 'f', -1, 64))
		case KString, KStringNull:
			b.WriteString(m.GetString(rec))
		case KUintList:
			b.WriteString(formatTextUintList(m.GetUintList(rec)))
		case KDateTime:
			b.WriteString(m.GetDateTime(rec).String())
		}
	}
	return b.String()
}

func parseTextBool(s string) (bool, bool) {
	switch s {
	case "True":
		return true, true
	case "False":
		return false, true
	default:
		return false, false
	}
}

func parseTextUint(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseTextUintList(s string) ([]uint32, bool) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return []uint32{}, true
	}
	parts := strings.Split(inner, ", ")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, ok := parseTextUint(p)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func formatTextUintList(vs []uint32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	b.WriteByte(']')
	return b.String()
}

// ===== Binary encoding =====

// binarySize reports the on-the-wire byte width of member mi for rec.
func (f *Format[T]) binarySize(rec *T, mi int) int {
	m := f.Members[mi]
	switch m.Kind {
	case KBool, KKind:
		return 1
	case KUint, KDateTime:
		return 4
	case KDouble:
		return 8
	case KString, KStringNull:
		return len(m.GetString(rec))
	case KUintList:
		return 4 * len(m.GetUintList(rec))
	default:
		return 0
	}
}

// BinarySize returns the total encoded length of rec under this format,
// needed by Lazy and by the builder to place the next record.
func (f *Format[T]) BinarySize(rec *T) int {
	total := 0
	for i := range f.Members {
		total += f.binarySize(rec, i)
	}
	return total
}

// encodeMember appends member mi's binary encoding of rec to dst.
func (f *Format[T]) encodeMember(dst []byte, rec *T, mi int) []byte {
	m := f.Members[mi]
	switch m.Kind {
	case KBool:
		if m.GetBool(rec) {
			return append(dst, 1)
		}
		return append(dst, 0)
	case KKind:
		return append(dst, byte(m.GetKind(rec)))
	case KUint:
		var v uint32
		if paired := f.lengthOf[mi]; paired >= 0 {
			v = f.lengthValue(rec, paired)
		} else {
			v = m.GetUint(rec)
		}
		return appendUint32(dst, v)
	case KDateTime:
		return appendUint32(dst, m.GetDateTime(rec).Pack())
	case KDouble:
		return appendUint64(dst, math.Float64bits(m.GetDouble(rec)))
	case KString, KStringNull:
		return append(dst, m.GetString(rec)...)
	case KUintList:
		for _, v := range m.GetUintList(rec) {
			dst = appendUint32(dst, v)
		}
		return dst
	}
	return dst
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func decodeUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func decodeUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// EncodeBinary returns the full encoding of rec.
func (f *Format[T]) EncodeBinary(rec *T) []byte {
	out := make([]byte, 0, f.BinarySize(rec))
	for i := range f.Members {
		out = f.encodeMember(out, rec, i)
	}
	return out
}

// DecodeBinary decodes a full record sequentially from data, returning
// the number of bytes consumed. Members whose SetUint is nil (pure
// length-pairing members with no independent field) have their decoded
// value tracked locally only, for sizing the member they pair with.
func (f *Format[T]) DecodeBinary(data []byte) (T, int, error) {
	var rec T
	uintVals := make([]uint32, len(f.Members))
	pos := 0

	for i, m := range f.Members {
		switch m.Kind {
		case KBool:
			if pos >= len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			v := data[pos] != 0
			if m.SetBool != nil {
				m.SetBool(&rec, v)
			}
			pos++

		case KKind:
			if pos >= len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			v := AccountKind(data[pos])
			if m.SetKind != nil {
				m.SetKind(&rec, v)
			}
			pos++

		case KUint:
			if pos+4 > len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			v := decodeUint32(data[pos : pos+4])
			uintVals[i] = v
			if m.SetUint != nil {
				m.SetUint(&rec, v)
			}
			pos += 4

		case KDateTime:
			if pos+4 > len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			v := UnpackDateTime(decodeUint32(data[pos : pos+4]))
			if m.SetDateTime != nil {
				m.SetDateTime(&rec, v)
			}
			pos += 4

		case KDouble:
			if pos+8 > len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			v := math.Float64frombits(decodeUint64(data[pos : pos+8]))
			if m.SetDouble != nil {
				m.SetDouble(&rec, v)
			}
			pos += 8

		case KString, KStringNull:
			n := int(uintVals[m.LengthIndex])
			if pos+n > len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			if m.SetString != nil {
				m.SetString(&rec, string(data[pos:pos+n]))
			}
			pos += n

		case KUintList:
			n := int(uintVals[m.LengthIndex])
			width := 4 * n
			if pos+width > len(data) {
				return rec, 0, fmt.Errorf("catalog: short read decoding %q", m.Name)
			}
			vs := make([]uint32, n)
			for j := 0; j < n; j++ {
				vs[j] = decodeUint32(data[pos+4*j : pos+4*j+4])
			}
			if m.SetUintList != nil {
				m.SetUintList(&rec, vs)
			}
			pos += width
		}
	}

	return rec, pos, nil
}
