package nxload

import (
	"fmt"
	"path"
)

// memGroup is an in-memory Group used to build NeXus-like trees in tests.
type memGroup struct {
	path     string
	parent   *memGroup
	attrs    map[string]string
	children []*memGroup
	datasets map[string]*memDataset
	// reads counts dataset opens across the whole tree
	reads *int
}

type memDataset struct {
	path   string
	attrs  map[string]string
	values []float64
	text   string
	isText bool
}

func newTree() *memGroup {
	return &memGroup{
		path:     "/",
		attrs:    map[string]string{},
		datasets: map[string]*memDataset{},
		reads:    new(int),
	}
}

// group adds a child group. An empty class leaves NX_class unset.
func (g *memGroup) group(name string, class string) *memGroup {
	child := &memGroup{
		path:     path.Join(g.path, name),
		parent:   g,
		attrs:    map[string]string{},
		datasets: map[string]*memDataset{},
		reads:    g.reads,
	}
	if class != "" {
		child.attrs[attrNXClass] = class
	}
	g.children = append(g.children, child)
	return child
}

func (g *memGroup) data(name string, values ...float64) *memDataset {
	if values == nil {
		values = []float64{}
	}
	dset := &memDataset{path: path.Join(g.path, name), attrs: map[string]string{}, values: values}
	g.datasets[name] = dset
	return dset
}

func (g *memGroup) text(name string, value string) *memDataset {
	dset := &memDataset{path: path.Join(g.path, name), attrs: map[string]string{}, text: value, isText: true}
	g.datasets[name] = dset
	return dset
}

func (d *memDataset) attr(name string, value string) *memDataset {
	d.attrs[name] = value
	return d
}

func (g *memGroup) Path() string {
	return g.path
}

func (g *memGroup) Parent() Group {
	if g.parent == nil {
		return nil
	}
	return g.parent
}

func (g *memGroup) Attr(name string) (string, bool) {
	value, ok := g.attrs[name]
	return value, ok
}

func (g *memGroup) Has(name string) bool {
	if _, ok := g.datasets[name]; ok {
		return true
	}
	for _, child := range g.children {
		if path.Base(child.path) == name {
			return true
		}
	}
	return false
}

func (g *memGroup) Groups() ([]Group, error) {
	groups := make([]Group, len(g.children))
	for i, child := range g.children {
		groups[i] = child
	}
	return groups, nil
}

func (g *memGroup) Dataset(name string) (Dataset, error) {
	dset, ok := g.datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q not found in %s", name, g.path)
	}
	*g.reads++
	return dset, nil
}

func (d *memDataset) Path() string {
	return d.path
}

func (d *memDataset) Len() int {
	if d.isText {
		return 1
	}
	return len(d.values)
}

func (d *memDataset) Attr(name string) (string, bool) {
	value, ok := d.attrs[name]
	return value, ok
}

func (d *memDataset) Int32s() ([]int32, error) {
	if d.isText {
		return nil, fmt.Errorf("%s is not numeric", d.path)
	}
	values := make([]int32, len(d.values))
	for i, v := range d.values {
		values[i] = int32(v)
	}
	return values, nil
}

func (d *memDataset) Int64s() ([]int64, error) {
	if d.isText {
		return nil, fmt.Errorf("%s is not numeric", d.path)
	}
	values := make([]int64, len(d.values))
	for i, v := range d.values {
		values[i] = int64(v)
	}
	return values, nil
}

func (d *memDataset) Float64s() ([]float64, error) {
	if d.isText {
		return nil, fmt.Errorf("%s is not numeric", d.path)
	}
	return append([]float64(nil), d.values...), nil
}

func (d *memDataset) String() (string, error) {
	if !d.isText {
		return "", fmt.Errorf("%s is not a string", d.path)
	}
	return d.text, nil
}

// floats converts integer test data to dataset values.
func floats(values ...int) []float64 {
	converted := make([]float64, len(values))
	for i, v := range values {
		converted[i] = float64(v)
	}
	return converted
}

// eventData adds an NXdetector bank holding one complete NXevent_data group
// with a single pulse.
func eventData(parent *memGroup, bank string, ids []int, tof []float64) *memGroup {
	detector := parent.group(bank, "NXdetector")
	events := detector.group("events", classEventData)
	events.data(fieldEventID, floats(ids...)...)
	events.data(fieldEventTimeOffset, tof...).attr("units", "ns")
	events.data(fieldEventIndex, 0)
	events.data(fieldEventTimeZero, 0)
	return events
}
