package nxload

import (
	"fmt"
	"strings"

	"github.com/jmbenlloch/go-hdf5"
)

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrOpenGroup represents an error when opening a group.
type ErrOpenGroup struct {
	Path string
	Err  error
}

func (e *ErrOpenGroup) Error() string {
	return fmt.Sprintf("error opening group %q: %v", e.Path, e.Err)
}

func (e *ErrOpenGroup) Unwrap() error {
	return e.Err
}

// ErrUnsupportedType is returned when a dataset is stored with a datatype
// that cannot be read as the requested kind of value.
type ErrUnsupportedType struct {
	Path  string
	Class hdf5.TypeClass
	Size  uint
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("dataset %q has an unsupported datatype (class %d, %d bytes)", e.Path, e.Class, e.Size)
}

// ErrLossyConversion is returned when a stored value does not fit the type
// it is read into, e.g. a uint64 id above the int32 range.
type ErrLossyConversion struct {
	Path   string
	Index  int
	Value  string
	Target string
}

func (e *ErrLossyConversion) Error() string {
	return fmt.Sprintf("value %s at index %d of dataset %q cannot be represented as %s",
		e.Value, e.Index, e.Path, e.Target)
}

// ErrMissingFields is returned when an event data group lacks one or more
// of the required fields. Fields lists all of them.
type ErrMissingFields struct {
	Path   string
	Fields []string
}

func (e *ErrMissingFields) Error() string {
	quoted := make([]string, len(e.Fields))
	for i, field := range e.Fields {
		quoted[i] = fmt.Sprintf("'%s'", field)
	}
	return fmt.Sprintf("unable to load event data at %q due to missing %s field(s)",
		e.Path, strings.Join(quoted, ", "))
}

// ErrLengthMismatch represents per-event arrays of different lengths.
type ErrLengthMismatch struct {
	Path       string
	IDs        int
	TimeOffset int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("unable to load event data at %q: %s has %d entries but %s has %d",
		e.Path, fieldEventID, e.IDs, fieldEventTimeOffset, e.TimeOffset)
}

// ErrGeometryMismatch represents pixel offset arrays that do not match
// each other or the number of detector elements.
type ErrGeometryMismatch struct {
	Path     string
	X, Y, Z  int
	Elements int
}

func (e *ErrGeometryMismatch) Error() string {
	return fmt.Sprintf("skipped loading pixel positions as pixel offset and id dataset sizes "+
		"do not match in %q (x=%d, y=%d, z=%d, ids=%d)", e.Path, e.X, e.Y, e.Z, e.Elements)
}

// ErrAmbiguousRoot is returned when the requested root contains more than
// one NXentry group.
type ErrAmbiguousRoot struct {
	Root    string
	Entries []string
}

func (e *ErrAmbiguousRoot) Error() string {
	suggestion := "/entry"
	if len(e.Entries) > 0 {
		suggestion = e.Entries[0]
	}
	return fmt.Sprintf("more than one %s group under %q (%s), use the root argument "+
		"to specify which to load data from, for example root=%q",
		classEntry, e.Root, strings.Join(e.Entries, ", "), suggestion)
}
