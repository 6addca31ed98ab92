package nxload

import (
	"fmt"
	"slices"
)

const fieldDetectorNumber = "detector_number"

// LoadBank turns one NXevent_data group into a BankRecord. The group is
// validated first; a rejected group returns an error and no record.
// Geometry problems only drop the positions of this bank and are recorded
// in diags.
func LoadBank(group Group, diags *Diagnostics, quiet bool) (*BankRecord, error) {
	if err := ValidateSource(group); err != nil {
		return nil, err
	}

	ids, err := readInt32s(group, fieldEventID)
	if err != nil {
		return nil, err
	}
	tofDataset, err := group.Dataset(fieldEventTimeOffset)
	if err != nil {
		return nil, err
	}
	tof, err := tofDataset.Float64s()
	if err != nil {
		return nil, err
	}
	if len(ids) != len(tof) {
		return nil, &ErrLengthMismatch{Path: group.Path(), IDs: len(ids), TimeOffset: len(tof)}
	}

	// The index is only needed to know the pulse layout. There is some
	// variation between producers on the last recorded entry, so it is
	// normalized to always hold the edge after the last pulse.
	index, err := readInt64s(group, fieldEventIndex)
	if err != nil {
		return nil, err
	}
	index = NormalizeIndex(index, len(ids))
	numberOfEvents := index[len(index)-1]

	pulses, err := group.Dataset(fieldEventTimeZero)
	if err != nil {
		return nil, err
	}

	weights := make([]float32, len(ids))
	for i := range weights {
		weights[i] = 1
	}

	bank := group.Parent()
	elements, rule, err := elementUniverse(bank, ids)
	if err != nil {
		return nil, err
	}
	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("Element ids for %s from %s: %d elements", group.Path(), rule, len(elements))
		logger.Info(message, "bank")
	}

	record := &BankRecord{
		Path:         group.Path(),
		TimeOfFlight: tof,
		ElementID:    ids,
		Weight:       weights,
		Elements:     elements,
		NumPulses:    pulses.Len(),
	}
	if unit, ok := tofDataset.Attr("units"); ok {
		record.TofUnit = unit
	}

	if bank != nil {
		positions, err := LoadGeometry(bank, len(elements), diags, quiet)
		if err != nil {
			diags.Add(GeometryMismatch, bank.Path(), err, quiet)
		}
		record.Positions = positions
	}

	if !quiet {
		message := fmt.Sprintf("Loaded event data from %s containing %d events", group.Path(), numberOfEvents)
		logger.Info(message, "bank")
	}
	return record, nil
}

// elementUniverse prefers the detector_number dataset of the bank. Without
// it the elements are the distinct ids seen in the events, so elements
// with no recorded events are missing.
func elementUniverse(bank Group, ids []int32) ([]int32, string, error) {
	return firstOf(
		fallback[[]int32]{name: fieldDetectorNumber, apply: func() ([]int32, bool, error) {
			if bank == nil || !bank.Has(fieldDetectorNumber) {
				return nil, false, nil
			}
			elements, err := readInt32s(bank, fieldDetectorNumber)
			return elements, err == nil, err
		}},
		fallback[[]int32]{name: "observed ids", apply: func() ([]int32, bool, error) {
			return distinctIDs(ids), true, nil
		}},
	)
}

func distinctIDs(ids []int32) []int32 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func readInt32s(group Group, name string) ([]int32, error) {
	dset, err := group.Dataset(name)
	if err != nil {
		return nil, err
	}
	return dset.Int32s()
}

func readInt64s(group Group, name string) ([]int64, error) {
	dset, err := group.Dataset(name)
	if err != nil {
		return nil, err
	}
	return dset.Int64s()
}
