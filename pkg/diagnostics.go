package nxload

import (
	"errors"
	"fmt"
)

type DiagnosticKind int

const (
	// MalformedSource: an event data group was rejected.
	MalformedSource DiagnosticKind = iota
	// GeometryMismatch: pixel offsets were dropped for one bank.
	GeometryMismatch
	// LocalFrameGeometry: positions are relative to the detector because
	// the bank has a transformation chain that is not resolved.
	LocalFrameGeometry
	// UnmappedEvents: events whose id is not a known element of the bank.
	UnmappedEvents
	// GeometryDropped: positions discarded because not every bank had them.
	GeometryDropped
	// LogSkipped: an NXlog group could not be read.
	LogSkipped
	// MetadataSkipped: the instrument name or title could not be read.
	MetadataSkipped
)

var diagnosticKindStrings = []string{
	"malformed-source",
	"geometry-mismatch",
	"local-frame-geometry",
	"unmapped-events",
	"geometry-dropped",
	"log-skipped",
	"metadata-skipped",
}

func (k DiagnosticKind) String() string {
	if k < MalformedSource || int(k) >= len(diagnosticKindStrings) {
		return "unknown"
	}
	return diagnosticKindStrings[k]
}

// Diagnostic is a recoverable condition found while loading. Path names the
// group the condition applies to.
type Diagnostic struct {
	Kind    DiagnosticKind
	Path    string
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Path, d.Message)
}

type Diagnostics []Diagnostic

// Add records a diagnostic and forwards it to the package logger unless
// quiet is set.
func (d *Diagnostics) Add(kind DiagnosticKind, path string, err error, quiet bool) {
	diag := Diagnostic{Kind: kind, Path: path, Message: err.Error(), Err: err}
	*d = append(*d, diag)
	if !quiet {
		logger.Error(diag.String())
	}
}

func (d Diagnostics) OfKind(kind DiagnosticKind) Diagnostics {
	found := make(Diagnostics, 0)
	for _, diag := range d {
		if diag.Kind == kind {
			found = append(found, diag)
		}
	}
	return found
}

// Err joins every diagnostic into one error, or returns nil when there are
// none.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	errs := make([]error, len(d))
	for i, diag := range d {
		errs[i] = fmt.Errorf("%s: %w", diag.Kind, diag.Err)
	}
	return errors.Join(errs...)
}
