package nxload

import "gonum.org/v1/gonum/spatial/r3"

// BankRecord holds the events of one NXevent_data group together with the
// elements of its detector bank.
type BankRecord struct {
	Path         string
	TimeOfFlight []float64
	ElementID    []int32
	// Weights are not stored in NeXus files, every event weighs 1
	Weight []float32
	// Elements is the element universe of the bank
	Elements []int32
	// Positions is nil when the bank has no usable geometry, otherwise it
	// has one entry per element
	Positions []r3.Vec
	TofUnit   string
	NumPulses int
}

func (b *BankRecord) NumEvents() int {
	return len(b.ElementID)
}

// DetectorData holds events binned by detector element. Element i owns the
// events in [Offsets[i], Offsets[i+1]).
type DetectorData struct {
	ElementIDs   []int32
	Offsets      []int
	TimeOfFlight []float64
	Weights      []float32
	// Positions is either nil or has one entry per element
	Positions []r3.Vec
	TofUnit   string
	// Banks lists the event data groups merged, in output order
	Banks []string
}

func (d *DetectorData) NumElements() int {
	return len(d.ElementIDs)
}

func (d *DetectorData) NumEvents() int {
	return len(d.TimeOfFlight)
}

func (d *DetectorData) HasPositions() bool {
	return d.Positions != nil
}

// Element returns the time-of-flight values and weights of element i.
func (d *DetectorData) Element(i int) ([]float64, []float32) {
	start, end := d.Offsets[i], d.Offsets[i+1]
	return d.TimeOfFlight[start:end], d.Weights[start:end]
}

// Log is a time series read from an NXlog group.
type Log struct {
	Values []float64
	Times  []float64
	Unit   string
}

// AttributeSetter is implemented by results that accept tagged string
// metadata.
type AttributeSetter interface {
	SetAttr(key, value string)
}

// Result is what a load produces. Detector is nil when no event data could
// be loaded.
type Result struct {
	Detector *DetectorData
	Attrs    map[string]string
	Logs     map[string]Log
}

func newResult() *Result {
	return &Result{
		Attrs: make(map[string]string),
		Logs:  make(map[string]Log),
	}
}

func (r *Result) SetAttr(key, value string) {
	r.Attrs[key] = value
}

func (r *Result) empty() bool {
	return r.Detector == nil && len(r.Attrs) == 0 && len(r.Logs) == 0
}
