package catalog

import (
	"fmt"
	"sort"
	"time"
)

// AccountKind is the closed "kind" type of the codec (§4.2).
type AccountKind byte

const (
	KindUser AccountKind = iota
	KindOrganization
	KindBot
)

func (k AccountKind) String() string {
	switch k {
	case KindUser:
		return "User"
	case KindOrganization:
		return "Organization"
	case KindBot:
		return "Bot"
	default:
		return "?"
	}
}

func parseAccountKind(s string) (AccountKind, bool) {
	switch s {
	case "User":
		return KindUser, true
	case "Organization":
		return KindOrganization, true
	case "Bot":
		return KindBot, true
	default:
		return 0, false
	}
}

// Date is a plain calendar date (§4.2 "date" type: YYYY-MM-DD text,
// no binary form — used only for CLI query-line arguments, never
// persisted).
type Date struct {
	Year, Month, Day int
}

// ParseDate validates and parses the "date" text representation.
func ParseDate(s string) (Date, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return Date{}, false
	}
	var y, m, d int
	if _, err := fmt.Sscanf(s, "%04d-%02d-%02d", &y, &m, &d); err != nil {
		return Date{}, false
	}
	if !validYMD(y, m, d) {
		return Date{}, false
	}
	return Date{Year: y, Month: m, Day: d}, true
}

// StartOfDay and EndOfDay convert a calendar Date to the DateTime bounds
// used by Q5/Q7/Q8 (spec §4.6 Q5: "Set the end time to 23:59:59 of end's
// day before comparing").
func (d Date) StartOfDay() DateTime {
	return DateTime{Year: d.Year, Month: d.Month, Day: d.Day, Hour: 0, Minute: 0, Second: 0}
}

func (d Date) EndOfDay() DateTime {
	return DateTime{Year: d.Year, Month: d.Month, Day: d.Day, Hour: 23, Minute: 59, Second: 59}
}

// DateTime is the full §3 date-time value. The packed 32-bit encoding
// (year-2005:6, month:4, day:5, hour:5, minute:6, second:6, MSB-first)
// is chosen so unsigned integer comparison of the packed form matches
// chronological order; index comparators may therefore compare raw
// uint32s without unpacking (§3 "Compact date ordering").
type DateTime struct {
	Year, Month, Day, Hour, Minute, Second int
}

const (
	minYear = 2005

	shiftYear   = 26
	shiftMonth  = 22
	shiftDay    = 17
	shiftHour   = 12
	shiftMinute = 6
	shiftSecond = 0

	maxYearField = (1 << 6) - 1 // 63 => years 2005..2068
)

// Valid reports whether the date-time obeys §3's range and calendar
// checks (leap years, month lengths, range up to "now").
func (d DateTime) Valid() bool {
	if d.Year < minYear || d.Year-minYear > maxYearField {
		return false
	}
	if !validYMD(d.Year, d.Month, d.Day) {
		return false
	}
	if d.Hour < 0 || d.Hour > 23 {
		return false
	}
	if d.Minute < 0 || d.Minute > 59 {
		return false
	}
	if d.Second < 0 || d.Second > 59 {
		return false
	}
	if d.after(now()) {
		return false
	}
	return true
}

func (d DateTime) after(other DateTime) bool {
	return d.Pack() > other.Pack()
}

// now is a var so tests can pin "the present" without touching the
// system clock.
var now = func() DateTime {
	t := time.Now().UTC()
	return DateTime{
		Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
	}
}

// Pack produces the compact chronologically-ordered encoding.
func (d DateTime) Pack() uint32 {
	var v uint32
	v |= uint32(d.Year-minYear) << shiftYear
	v |= uint32(d.Month) << shiftMonth
	v |= uint32(d.Day) << shiftDay
	v |= uint32(d.Hour) << shiftHour
	v |= uint32(d.Minute) << shiftMinute
	v |= uint32(d.Second) << shiftSecond
	return v
}

// UnpackDateTime reverses Pack.
func UnpackDateTime(v uint32) DateTime {
	return DateTime{
		Year:   minYear + int((v>>shiftYear)&0x3f),
		Month:  int((v >> shiftMonth) & 0xf),
		Day:    int((v >> shiftDay) & 0x1f),
		Hour:   int((v >> shiftHour) & 0x1f),
		Minute: int((v >> shiftMinute) & 0x3f),
		Second: int(v & 0x3f),
	}
}

// ParseDateTime validates and parses the "YYYY-MM-DD HH:MM:SS" text form.
func ParseDateTime(s string) (DateTime, bool) {
	if len(s) != 19 || s[4] != '-' || s[7] != '-' || s[10] != ' ' || s[13] != ':' || s[16] != ':' {
		return DateTime{}, false
	}
	var y, mo, da, h, mi, se int
	if _, err := fmt.Sscanf(s, "%04d-%02d-%02d %02d:%02d:%02d", &y, &mo, &da, &h, &mi, &se); err != nil {
		return DateTime{}, false
	}
	dt := DateTime{Year: y, Month: mo, Day: da, Hour: h, Minute: mi, Second: se}
	if !dt.Valid() {
		return DateTime{}, false
	}
	return dt, true
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

var daysInMonth = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

func validYMD(y, m, d int) bool {
	if m < 1 || m > 12 {
		return false
	}
	if d < 1 {
		return false
	}
	max := daysInMonth[m-1]
	if m == 2 && isLeap(y) {
		max = 29
	}
	return d <= max
}

// Account is the in-memory representation of a platform identity (§3).
// Created, PublicGists and PublicRepos round-trip through the text
// Format but are absent from the binary Format's member list: "not
// required by any query and MAY be dropped from the binary encoding."
type Account struct {
	ID          uint32
	Login       string
	Kind        AccountKind
	Created     DateTime
	Followers   []uint32
	Following   []uint32
	PublicGists uint32
	PublicRepos uint32
	Friends     []uint32 // derived: sorted intersection of Followers, Following
}

// ComputeFriends sets Friends to the sorted, de-duplicated intersection
// of Followers and Following (§3 invariant).
func (a *Account) ComputeFriends() {
	following := make(map[uint32]bool, len(a.Following))
	for _, id := range a.Following {
		following[id] = true
	}
	seen := make(map[uint32]bool, len(a.Followers))
	var friends []uint32
	for _, id := range a.Followers {
		if following[id] && !seen[id] {
			seen[id] = true
			friends = append(friends, id)
		}
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i] < friends[j] })
	a.Friends = friends
}

// IsFriend reports whether other is in a's friends list (binary search:
// friends is kept sorted by ComputeFriends).
func (a *Account) IsFriend(other uint32) bool {
	i := sort.Search(len(a.Friends), func(i int) bool { return a.Friends[i] >= other })
	return i < len(a.Friends) && a.Friends[i] == other
}

// Repository is the in-memory representation of a repository (§3).
type Repository struct {
	ID             uint32
	OwnerID        uint32
	FullName       string
	License        string
	Description    string // empty means absent; §4.2 "string/null" has no distinct null marker
	HasWiki        bool
	Language       string // normalized to lower case on ingestion
	DefaultBranch  string
	Created        DateTime
	Updated        DateTime
	Forks          uint32
	OpenIssues     uint32
	Stargazers     uint32
	Size           uint32
	LastCommit     DateTime // derived: backfilled during ingestion (§4.5 step 4)
}

// Commit is the in-memory representation of a commit (§3). Identity is
// implicit (file position in commits.dat); the two friend flags are
// written back during the second ingestion pass (§4.5 step 7).
type Commit struct {
	RepoID             uint32
	AuthorID           uint32
	AuthorIsFriend     bool
	CommitterID        uint32
	CommitterIsFriend  bool
	CommitDate         DateTime
	Message            string
}
