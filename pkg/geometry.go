package nxload

import (
	"fmt"
	"path"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	fieldXPixelOffset = "x_pixel_offset"
	fieldYPixelOffset = "y_pixel_offset"
	fieldZPixelOffset = "z_pixel_offset"
	fieldDependsOn    = "depends_on"
)

// LoadGeometry reads the pixel offsets of a detector bank. It returns nil
// without error when the bank has no x/y offsets. z offsets are zero when
// absent. When the offset arrays and the number of elements disagree the
// positions are discarded and an *ErrGeometryMismatch is returned.
//
// Transformation chains (depends_on) are not resolved: positions are always
// in the frame of the detector and a LocalFrameGeometry diagnostic says so.
func LoadGeometry(bank Group, elements int, diags *Diagnostics, quiet bool) ([]r3.Vec, error) {
	if !bank.Has(fieldXPixelOffset) || !bank.Has(fieldYPixelOffset) {
		return nil, nil
	}
	x, err := readFloats(bank, fieldXPixelOffset)
	if err != nil {
		return nil, err
	}
	y, err := readFloats(bank, fieldYPixelOffset)
	if err != nil {
		return nil, err
	}
	z, rule, err := firstOf(
		fallback[[]float64]{name: fieldZPixelOffset, apply: func() ([]float64, bool, error) {
			if !bank.Has(fieldZPixelOffset) {
				return nil, false, nil
			}
			values, err := readFloats(bank, fieldZPixelOffset)
			return values, err == nil, err
		}},
		fallback[[]float64]{name: "zero-fill", apply: func() ([]float64, bool, error) {
			return make([]float64, len(x)), true, nil
		}},
	)
	if err != nil {
		return nil, err
	}
	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("z offsets for %s from %s", bank.Path(), rule)
		logger.Info(message, "geometry")
	}

	if len(x) != elements || len(y) != elements || len(z) != elements {
		return nil, &ErrGeometryMismatch{
			Path:     bank.Path(),
			X:        len(x),
			Y:        len(y),
			Z:        len(z),
			Elements: elements,
		}
	}

	if bank.Has(fieldDependsOn) {
		err := fmt.Errorf("loaded pixel positions for %s are relative to the detector, "+
			"not sample position, as parsing transformations is not implemented", path.Base(bank.Path()))
		diags.Add(LocalFrameGeometry, bank.Path(), err, quiet)
	}

	positions := make([]r3.Vec, elements)
	for i := range positions {
		positions[i] = r3.Vec{X: x[i], Y: y[i], Z: z[i]}
	}
	return positions, nil
}

func readFloats(group Group, name string) ([]float64, error) {
	dset, err := group.Dataset(name)
	if err != nil {
		return nil, err
	}
	return dset.Float64s()
}
