// Package invidx is the inverted index core (spec.md §4.7): term
// dictionary, delta-encoded posting lists with skip lists, the BM25
// scorer, fast fields and field norms. It is storage-agnostic — it
// reads and writes through the Directory interface, which
// internal/bsdirectory implements on top of Block Storage.
package invidx

import (
	"math"

	"github.com/epokhe/bm25am/pkg/segment"
)

func mathFloat64frombits(v uint64) float64 { return math.Float64frombits(v) }

// DocID is a segment-local, 0-based document ordinal. The mapping
// back to a host.RowID lives in the "_rowid" fast field every segment
// carries.
type DocID = uint32

// FieldType enumerates the value kinds a schema field can hold
// (spec.md §6.4).
type FieldType int

const (
	FieldText FieldType = iota
	FieldU64
	FieldI64
	FieldF64
	FieldBool
	FieldDatetime
	FieldJSON
)

// FieldValue is one field's value for one document at index time.
// Exactly one of the fields below is meaningful, chosen by the
// schema's declared FieldType for Name.
type FieldValue struct {
	Name string
	Type FieldType
	Text string
	Num  int64   // U64/I64/Bool(0|1)/Datetime(unix micros)
	Flt  float64 // F64
	Null bool
}

// File roles a segment persists through a Directory, one for each of
// five segment.MetaEntry.Files slots (spec.md §3.2); FilePositions and
// FileTempStore have no role and stay unset. Exported
// so a Directory implementation (internal/bsdirectory) can map each
// role onto the matching segment.MetaEntry.Files slot without
// duplicating the string literals.
const (
	RoleTerms      = "terms"
	RolePostings   = "postings"
	RoleFastFields = "fast_fields"
	RoleFieldNorms = "field_norms"
	RoleStore      = "store"
)

// RoleSlot maps a Directory role name to its segment.MetaEntry.Files
// index (spec.md §3.2's fixed file_entries array).
func RoleSlot(role string) (int, bool) {
	switch role {
	case RolePostings:
		return segment.FilePostings, true
	case RoleFastFields:
		return segment.FileFastFields, true
	case RoleFieldNorms:
		return segment.FileFieldNorms, true
	case RoleTerms:
		return segment.FileTerms, true
	case RoleStore:
		return segment.FileStore, true
	default:
		return 0, false
	}
}

// Directory is the storage seam the index core writes through
// (spec.md §4.7.1's "inverted index core is storage-agnostic").
// internal/bsdirectory provides the Block-Storage-backed
// implementation; tests may substitute an in-memory one.
type Directory interface {
	// GetFileHandle opens role for reading, scoped to one segment.
	GetFileHandle(id segment.ID, role string) (FileHandle, error)
	// AtomicRead fully materializes role in one call. OpenSegment
	// reads every role this way, postings and store included.
	AtomicRead(id segment.ID, role string) ([]byte, error)
	// WriteFile persists the full contents of role for a segment
	// under construction, returning its FileEntry.
	WriteFile(id segment.ID, role string, data []byte) (segment.FileEntry, error)
	// ListManagedFiles reports which roles exist for id.
	ListManagedFiles(id segment.ID) ([]string, error)
}

// FloatFromBits recovers an F64 field's value from its fast-field
// int64 storage slot.
func FloatFromBits(v int64) float64 {
	return mathFloat64frombits(uint64(v))
}

// FileHandle supports random-access reads into a persisted file.
// Nothing in invidx opens one: OpenSegment reads whole files through
// AtomicRead instead.
type FileHandle interface {
	ReadAt(off, length int) ([]byte, error)
	Len() int
}
