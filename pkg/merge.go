package nxload

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// binnedBank is one bank with its events grouped by element, elements in
// ascending id order.
type binnedBank struct {
	path      string
	elements  []int32
	offsets   []int
	tof       []float64
	weights   []float32
	positions []r3.Vec
	tofUnit   string
	unmapped  int
}

// MergeBanks bins the events of every bank by element and concatenates the
// banks into one dataset, ordered by the smallest element id of each bank.
// Positions are kept only if every bank has them. Banks are assumed to
// have disjoint element ids; this is not checked.
//
// With workers > 1 the banks are binned concurrently. The result does not
// depend on the number of workers nor on the order of banks.
func MergeBanks(banks []*BankRecord, workers int, diags *Diagnostics, quiet bool) *DetectorData {
	if len(banks) == 0 {
		return nil
	}

	binned := make([]binnedBank, len(banks))
	if workers > 1 {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, bank := range banks {
			g.Go(func() error {
				binned[i] = bucketEvents(bank)
				return nil
			})
		}
		// bucketEvents never fails
		_ = g.Wait()
	} else {
		for i, bank := range banks {
			binned[i] = bucketEvents(bank)
		}
	}

	for _, b := range binned {
		if b.unmapped > 0 {
			err := fmt.Errorf("%d events have an id outside the detector elements of the bank and were dropped", b.unmapped)
			diags.Add(UnmappedEvents, b.path, err, quiet)
		}
	}

	slices.SortStableFunc(binned, compareBanks)

	withPositions := true
	missing := make([]string, 0)
	for _, b := range binned {
		if b.positions == nil {
			withPositions = false
			missing = append(missing, b.path)
		}
	}
	if !withPositions && len(missing) < len(binned) {
		err := fmt.Errorf("pixel positions were not loaded because %s had no usable geometry",
			strings.Join(missing, ", "))
		diags.Add(GeometryDropped, missing[0], err, quiet)
	}

	return concatenateBanks(binned, withPositions)
}

// compareBanks orders banks by their smallest element id. Banks without
// elements go last, ties are broken by path.
func compareBanks(a, b binnedBank) int {
	aEmpty, bEmpty := len(a.elements) == 0, len(b.elements) == 0
	switch {
	case aEmpty && bEmpty:
		return strings.Compare(a.path, b.path)
	case aEmpty:
		return 1
	case bEmpty:
		return -1
	}
	if c := cmp.Compare(a.elements[0], b.elements[0]); c != 0 {
		return c
	}
	return strings.Compare(a.path, b.path)
}

func concatenateBanks(binned []binnedBank, withPositions bool) *DetectorData {
	nElements, nEvents := 0, 0
	for _, b := range binned {
		nElements += len(b.elements)
		nEvents += len(b.tof)
	}

	data := &DetectorData{
		ElementIDs:   make([]int32, 0, nElements),
		Offsets:      make([]int, 1, nElements+1),
		TimeOfFlight: make([]float64, 0, nEvents),
		Weights:      make([]float32, 0, nEvents),
		Banks:        make([]string, 0, len(binned)),
	}
	if withPositions {
		data.Positions = make([]r3.Vec, 0, nElements)
	}

	for _, b := range binned {
		shift := len(data.TimeOfFlight)
		data.ElementIDs = append(data.ElementIDs, b.elements...)
		for _, offset := range b.offsets[1:] {
			data.Offsets = append(data.Offsets, offset+shift)
		}
		data.TimeOfFlight = append(data.TimeOfFlight, b.tof...)
		data.Weights = append(data.Weights, b.weights...)
		if withPositions {
			data.Positions = append(data.Positions, b.positions...)
		}
		data.Banks = append(data.Banks, b.path)
		if data.TofUnit == "" {
			data.TofUnit = b.tofUnit
		}
	}
	return data
}

// bucketEvents groups the events of one bank by element with a stable
// counting sort, O(events + elements). Events keep their file order inside
// each element. Events whose id is not an element of the bank are dropped
// and counted; a duplicated element id receives its events in its first
// occurrence.
func bucketEvents(bank *BankRecord) binnedBank {
	nElements := len(bank.Elements)

	// Ascending element order, positions follow their element
	order := make([]int, nElements)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(bank.Elements[a], bank.Elements[b])
	})
	elements := make([]int32, nElements)
	var positions []r3.Vec
	if bank.Positions != nil {
		positions = make([]r3.Vec, nElements)
	}
	for slot, src := range order {
		elements[slot] = bank.Elements[src]
		if positions != nil {
			positions[slot] = bank.Positions[src]
		}
	}

	lookup := newSlotLookup(elements)
	eventSlots := make([]int32, len(bank.ElementID))
	offsets := make([]int, nElements+1)
	unmapped := 0
	for i, id := range bank.ElementID {
		slot := lookup.slot(id)
		eventSlots[i] = slot
		if slot < 0 {
			unmapped++
			continue
		}
		offsets[slot+1]++
	}
	for i := 1; i <= nElements; i++ {
		offsets[i] += offsets[i-1]
	}

	nMapped := offsets[nElements]
	tof := make([]float64, nMapped)
	weights := make([]float32, nMapped)
	cursor := slices.Clone(offsets[:nElements])
	for i, slot := range eventSlots {
		if slot < 0 {
			continue
		}
		tof[cursor[slot]] = bank.TimeOfFlight[i]
		weights[cursor[slot]] = bank.Weight[i]
		cursor[slot]++
	}

	return binnedBank{
		path:      bank.Path,
		elements:  elements,
		offsets:   offsets,
		tof:       tof,
		weights:   weights,
		positions: positions,
		tofUnit:   bank.TofUnit,
		unmapped:  unmapped,
	}
}

// slotLookup maps element ids to their slot. Compact id ranges use a
// table indexed by id, sparse ones a map.
type slotLookup struct {
	min   int32
	table []int32
	index map[int32]int32
}

// Ranges up to this many times the number of elements use a table
const denseFactor = 8

func newSlotLookup(sorted []int32) slotLookup {
	if len(sorted) == 0 {
		return slotLookup{index: map[int32]int32{}}
	}
	lo, hi := int64(sorted[0]), int64(sorted[len(sorted)-1])
	span := hi - lo + 1
	if span <= int64(denseFactor*len(sorted))+1024 {
		table := make([]int32, span)
		for i := range table {
			table[i] = -1
		}
		for slot, id := range sorted {
			if table[int64(id)-lo] < 0 {
				table[int64(id)-lo] = int32(slot)
			}
		}
		return slotLookup{min: sorted[0], table: table}
	}
	index := make(map[int32]int32, len(sorted))
	for slot, id := range sorted {
		if _, ok := index[id]; !ok {
			index[id] = int32(slot)
		}
	}
	return slotLookup{index: index}
}

// slot returns -1 for ids that are not elements.
func (l slotLookup) slot(id int32) int32 {
	if l.table != nil {
		pos := int64(id) - int64(l.min)
		if pos < 0 || pos >= int64(len(l.table)) {
			return -1
		}
		return l.table[pos]
	}
	if slot, ok := l.index[id]; ok {
		return slot
	}
	return -1
}
