package catalog

import "errors"

// Sentinel errors for the failure taxonomy in spec §7. Input validation
// failures, missing-collaborator drops, and query parse failures never
// reach the caller as errors — they are dropped or logged at the point of
// discovery (see logging.go) and the pipeline proceeds. The sentinels
// below name the remaining classes.
var (
	// ErrCatalogAbsent names the condition of a persisted catalogue that
	// is missing or unreadable. Open does not return it: when tryLoad
	// fails, Open rebuilds from entrada/ instead.
	ErrCatalogAbsent = errors.New("catalog: persisted catalogue is absent or unreadable")

	// ErrSortInvariant is raised when group() observes a descending key,
	// meaning sort() was never run or the comparator is inconsistent.
	// This is a programmer error per §7 and is fatal: the caller should
	// treat recovery as impossible rather than attempt partial output.
	ErrSortInvariant = errors.New("catalog: index is not sorted, group() aborted")

	// ErrUnknownFile is raised by the block cache when asked to operate
	// on a file handle it never registered. Per §4.1 this is a
	// programmer error.
	ErrUnknownFile = errors.New("catalog: unknown file handle")
)

// dropReason enumerates why an input record was rejected during
// ingestion (§7: "skip the offending record; do not abort ingestion").
// Carried only for diagnostic logging, never surfaced as an error value.
type dropReason string

const (
	dropMalformed        dropReason = "malformed record"
	dropUnknownOwner     dropReason = "owner account not found"
	dropUnknownAuthor    dropReason = "author account not found"
	dropUnknownCommitter dropReason = "committer account not found"
	dropUnknownRepo      dropReason = "repository not found"
)
