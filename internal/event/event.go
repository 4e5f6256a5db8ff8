// Package event defines the typed events derived from a hook invocation and
// the handler keys that select which configured commands run for each one.
package event

import (
	"strings"
)

// Kind is the kind of change an event describes.
type Kind string

// File event kinds
const (
	Add    Kind = "add"
	Change Kind = "change"
	Delete Kind = "delete"
	Move   Kind = "move"
	Copy   Kind = "copy"
)

// Ref event kinds
const (
	RefCreate Kind = "ref_create"
	RefUpdate Kind = "ref_update"
	RefDelete Kind = "ref_delete"
)

// IsFile reports whether k is a file event kind.
func (k Kind) IsFile() bool {
	switch k {
	case Add, Change, Delete, Move, Copy:
		return true
	}
	return false
}

// IsRef reports whether k is a ref event kind.
func (k Kind) IsRef() bool {
	switch k {
	case RefCreate, RefUpdate, RefDelete:
		return true
	}
	return false
}

// HandlerKey is a config field naming a per-event command list.
type HandlerKey string

// Handler keys, grouped by tier
const (
	OnAdd    HandlerKey = "onAdd"
	OnChange HandlerKey = "onChange"
	OnDelete HandlerKey = "onDelete"
	OnMove   HandlerKey = "onMove"
	OnCopy   HandlerKey = "onCopy"

	OnRefCreate HandlerKey = "onRefCreate"
	OnRefUpdate HandlerKey = "onRefUpdate"
	OnRefDelete HandlerKey = "onRefDelete"

	OnFileEvent HandlerKey = "onFileEvent"
	OnRefEvent  HandlerKey = "onRefEvent"

	OnEvent HandlerKey = "onEvent"
)

// HandlerKeys lists every handler key in declaration order.
var HandlerKeys = []HandlerKey{
	OnAdd, OnChange, OnDelete, OnMove, OnCopy,
	OnRefCreate, OnRefUpdate, OnRefDelete,
	OnFileEvent, OnRefEvent, OnEvent,
}

var specific = map[Kind]HandlerKey{
	Add:       OnAdd,
	Change:    OnChange,
	Delete:    OnDelete,
	Move:      OnMove,
	Copy:      OnCopy,
	RefCreate: OnRefCreate,
	RefUpdate: OnRefUpdate,
	RefDelete: OnRefDelete,
}

// Handlers returns the keys whose commands run for an event of kind k, in
// execution order: specific, kind-generic, universal. Every tier present on a
// block runs; a more specific tier does not suppress the others.
func Handlers(k Kind) []HandlerKey {
	key, ok := specific[k]
	if !ok {
		return nil
	}
	generic := OnFileEvent
	if k.IsRef() {
		generic = OnRefEvent
	}
	return []HandlerKey{key, generic, OnEvent}
}

// Event is one file- or ref-level change observed during a hook invocation.
// Exactly one of File or Ref is set.
type Event struct {
	Kind Kind
	File *File
	Ref  *Ref
}

// File carries the fields of a file event. Paths are slash-separated and
// relative to the repository root; Abs* fields are absolute OS paths.
type File struct {
	Path       string // set for add/change/delete
	SrcPath    string // set for move/copy
	DstPath    string // set for move/copy
	AbsPath    string
	AbsSrcPath string
	AbsDstPath string
	// Status is git's raw status token, e.g. "M" or "R087".
	Status string
	// OldCommit and NewCommit pin content lookups to fixed snapshots for
	// commit-range events; both are empty for staged events.
	OldCommit string
	NewCommit string
}

// Ref carries the fields of a ref event.
type Ref struct {
	Ref    string
	OldOID string
	NewOID string
	// LocalRef is the pushing side's ref (pre-push only).
	LocalRef   string
	RemoteName string
	RemoteURL  string
}

// PrimaryPath returns the path used for filtering: the destination for
// move/copy, otherwise the single path.
func (f *File) PrimaryPath() string {
	if f.DstPath != "" {
		return f.DstPath
	}
	return f.Path
}

// AbsPrimaryPath is the absolute form of PrimaryPath.
func (f *File) AbsPrimaryPath() string {
	if f.AbsDstPath != "" {
		return f.AbsDstPath
	}
	return f.AbsPath
}

// PreviousPath returns the path the file had before the change: the source
// for move/copy, otherwise the single path.
func (f *File) PreviousPath() string {
	if f.SrcPath != "" {
		return f.SrcPath
	}
	return f.Path
}

// FromCommitRange reports whether content lookups use pinned commits rather
// than the index and HEAD.
func (f *File) FromCommitRange() bool {
	return f.OldCommit != "" && f.NewCommit != ""
}

// IsZeroOID reports whether oid is git's null object id of any hash width.
func IsZeroOID(oid string) bool {
	if oid == "" {
		return false
	}
	return strings.Trim(oid, "0") == ""
}

// ClassifyRef returns the ref kind for an old/new pair: a zero old id is a
// creation, otherwise a zero new id is a deletion, otherwise an update.
func ClassifyRef(oldOID, newOID string) Kind {
	switch {
	case IsZeroOID(oldOID):
		return RefCreate
	case IsZeroOID(newOID):
		return RefDelete
	default:
		return RefUpdate
	}
}

// KindFromStatus maps a git name-status letter to a file event kind.
// Type changes and unmerged entries are reported as changes. ok is false for
// statuses fishook does not dispatch (X, B).
func KindFromStatus(status string) (kind Kind, ok bool) {
	if status == "" {
		return "", false
	}
	switch status[0] {
	case 'A':
		return Add, true
	case 'M', 'T', 'U':
		return Change, true
	case 'D':
		return Delete, true
	case 'R':
		return Move, true
	case 'C':
		return Copy, true
	}
	return "", false
}

// NewRef builds a classified ref event.
func NewRef(ref, oldOID, newOID string) Event {
	return Event{
		Kind: ClassifyRef(oldOID, newOID),
		Ref:  &Ref{Ref: ref, OldOID: oldOID, NewOID: newOID},
	}
}
