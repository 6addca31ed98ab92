package nxload

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jmbenlloch/go-hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// h5Writer builds NeXus fixture files. Every handle it opens is closed when
// the file is closed.
type h5Writer struct {
	t      *testing.T
	file   *hdf5.File
	groups []*hdf5.Group
}

func createH5(t *testing.T, name string) (*h5Writer, string) {
	t.Helper()
	fname := filepath.Join(t.TempDir(), name)
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	return &h5Writer{t: t, file: f}, fname
}

func (w *h5Writer) close() {
	for i := len(w.groups) - 1; i >= 0; i-- {
		require.NoError(w.t, w.groups[i].Close())
	}
	require.NoError(w.t, w.file.Close())
}

// group creates a group with an NX_class attribute.
func (w *h5Writer) group(parent *hdf5.CommonFG, name string, class string) *hdf5.Group {
	g, err := parent.CreateGroup(name)
	require.NoError(w.t, err)
	w.groups = append(w.groups, g)
	w.stringAttr(g, attrNXClass, class)
	return g
}

type attributeCreator interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, dspace *hdf5.Dataspace) (*hdf5.Attribute, error)
}

// stringAttr writes a NUL terminated fixed length string attribute.
func (w *h5Writer) stringAttr(loc attributeCreator, name string, value string) {
	buf := append([]byte(value), 0)
	dtype, err := hdf5.T_C_S1.Copy()
	require.NoError(w.t, err)
	defer dtype.Close()
	require.NoError(w.t, dtype.SetSize(len(buf)))
	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	require.NoError(w.t, err)
	defer scalar.Close()

	attr, err := loc.CreateAttribute(name, dtype, scalar)
	require.NoError(w.t, err)
	defer attr.Close()
	first := &buf[0]
	require.NoError(w.t, attr.Write(&first, dtype))
}

// dataset writes n elements of dtype from data, which must hold them in
// the stored layout.
func (w *h5Writer) dataset(parent *hdf5.CommonFG, name string, dtype *hdf5.Datatype, n int, data any) *hdf5.Dataset {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(n)}, nil)
	require.NoError(w.t, err)
	defer space.Close()
	dset, err := parent.CreateDataset(name, dtype, space)
	require.NoError(w.t, err)
	require.NoError(w.t, dset.Write(data))
	return dset
}

func (w *h5Writer) numbers(parent *hdf5.CommonFG, name string, dtype *hdf5.Datatype, n int, data any) {
	require.NoError(w.t, w.dataset(parent, name, dtype, n, data).Close())
}

func (w *h5Writer) fixedString(parent *hdf5.CommonFG, name string, value string) {
	buf := append([]byte(value), 0)
	dtype, err := hdf5.T_C_S1.Copy()
	require.NoError(w.t, err)
	defer dtype.Close()
	require.NoError(w.t, dtype.SetSize(len(buf)))
	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	require.NoError(w.t, err)
	defer scalar.Close()

	dset, err := parent.CreateDataset(name, dtype, scalar)
	require.NoError(w.t, err)
	defer dset.Close()
	require.NoError(w.t, dset.Write(&buf))
}

// variableString writes a scalar variable length string, the layout h5py
// uses for Python str values.
func (w *h5Writer) variableString(parent *hdf5.CommonFG, name string, value string) {
	buf := append([]byte(value), 0)
	var pinner runtime.Pinner
	pinner.Pin(&buf[0])
	defer pinner.Unpin()

	dtype, err := hdf5.T_C_S1.Copy()
	require.NoError(w.t, err)
	defer dtype.Close()
	// H5T_VARIABLE
	require.NoError(w.t, dtype.SetSize(-1))
	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	require.NoError(w.t, err)
	defer scalar.Close()

	dset, err := parent.CreateDataset(name, dtype, scalar)
	require.NoError(w.t, err)
	defer dset.Close()
	ptrs := []*byte{&buf[0]}
	require.NoError(w.t, dset.Write(&ptrs))
}

func bigEndianFloat64s(values ...float64) []byte {
	buf := make([]byte, 0, 8*len(values))
	for _, v := range values {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// writeEntry writes one NXentry with a single bank stored with the types
// usual in NeXus files: float32 offsets and time of flight, unsigned index.
func writeEntry(w *h5Writer, name string) {
	entry := w.group(&w.file.CommonFG, name, classEntry)
	w.variableString(&entry.CommonFG, "title", "vanadium calibration")

	instrument := w.group(&entry.CommonFG, "instrument", classInstrument)
	w.fixedString(&instrument.CommonFG, "name", "LOKI")

	bank := w.group(&instrument.CommonFG, "bank1", "NXdetector")
	w.numbers(&bank.CommonFG, fieldDetectorNumber, hdf5.T_STD_I64LE, 3, &[]int64{3, 1, 2})
	w.numbers(&bank.CommonFG, fieldXPixelOffset, hdf5.T_IEEE_F32LE, 3, &[]float32{0.5, 0.25, 0.125})
	w.numbers(&bank.CommonFG, fieldYPixelOffset, hdf5.T_IEEE_F32LE, 3, &[]float32{1, 1, 1})
	z := bigEndianFloat64s(2, 4, 8)
	w.numbers(&bank.CommonFG, fieldZPixelOffset, hdf5.T_IEEE_F64BE, 3, &z)

	events := w.group(&bank.CommonFG, "events", classEventData)
	w.numbers(&events.CommonFG, fieldEventID, hdf5.T_STD_U32LE, 4, &[]uint32{1, 3, 1, 2})
	tof := w.dataset(&events.CommonFG, fieldEventTimeOffset, hdf5.T_IEEE_F32LE, 4, &[]float32{10.5, 20.25, 30, 40})
	w.stringAttr(tof, "units", "ns")
	require.NoError(w.t, tof.Close())
	w.numbers(&events.CommonFG, fieldEventIndex, hdf5.T_STD_U64LE, 2, &[]uint64{0, 2})
	w.numbers(&events.CommonFG, fieldEventTimeZero, hdf5.T_IEEE_F64LE, 2, &[]float64{0, 0.1})

	temperature := w.group(&entry.CommonFG, "temperature", classLog)
	w.numbers(&temperature.CommonFG, "value", hdf5.T_IEEE_F32LE, 2, &[]float32{280.5, 281})
}

func nexusFile(t *testing.T) string {
	t.Helper()
	w, fname := createH5(t, "run.nxs")
	writeEntry(w, "entry")
	w.close()
	return fname
}

// assertReleased checks that no handle on fname is left open: HDF5 refuses
// to truncate a file that is still open in the process.
func assertReleased(t *testing.T, fname string) {
	t.Helper()
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	require.NoError(t, err, "file still open")
	require.NoError(t, f.Close())
}

func TestLoadNeXusFile(t *testing.T) {
	fname := nexusFile(t)

	result, diags, err := Load(fname, "/", true)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, diags)

	detector := result.Detector
	require.NotNil(t, detector)
	assert.Equal(t, []int32{1, 2, 3}, detector.ElementIDs)
	assert.Equal(t, []int{0, 2, 3, 4}, detector.Offsets)
	assert.Equal(t, []float64{10.5, 30, 40, 20.25}, detector.TimeOfFlight)
	assert.Equal(t, "ns", detector.TofUnit)
	assert.Equal(t, []r3.Vec{
		{X: 0.25, Y: 1, Z: 4},
		{X: 0.125, Y: 1, Z: 8},
		{X: 0.5, Y: 1, Z: 2},
	}, detector.Positions)
	assert.Equal(t, []string{"/entry/instrument/bank1/events"}, detector.Banks)

	assert.Equal(t, map[string]string{
		AttrInstrumentName:  "LOKI",
		AttrExperimentTitle: "vanadium calibration",
	}, result.Attrs)
	assert.Equal(t, []float64{280.5, 281}, result.Logs["temperature"].Values)

	assertReleased(t, fname)
}

func TestLoadFileBorrowsHandle(t *testing.T) {
	fname := nexusFile(t)
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)

	result, _, err := LoadFile(f, "/entry", true)

	require.NoError(t, err)
	assert.Equal(t, 4, result.Detector.NumEvents())

	// The caller's file is still usable
	entry, err := f.OpenGroup("entry")
	require.NoError(t, err)
	require.NoError(t, entry.Close())
	require.NoError(t, f.Close())

	assertReleased(t, fname)
}

func TestLoadRootPath(t *testing.T) {
	fname := nexusFile(t)

	result, _, err := Load(fname, "entry/instrument/", true)
	require.NoError(t, err)
	assert.Equal(t, "LOKI", result.Attrs[AttrInstrumentName])
	assert.NotContains(t, result.Attrs, AttrExperimentTitle)

	_, _, err = Load(fname, "/entry/missing", true)
	var openGroup *ErrOpenGroup
	require.ErrorAs(t, err, &openGroup)
	assert.Equal(t, "/entry/missing", openGroup.Path)

	assertReleased(t, fname)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.nxs"), "/", true)

	var openFile *ErrOpenFile
	require.ErrorAs(t, err, &openFile)
}

func TestLoadNeXusFileAmbiguousRoot(t *testing.T) {
	w, fname := createH5(t, "two-entries.nxs")
	writeEntry(w, "entry")
	writeEntry(w, "entry-1")
	w.close()

	result, _, err := Load(fname, "/", true)
	var ambiguous *ErrAmbiguousRoot
	require.ErrorAs(t, err, &ambiguous)
	assert.Nil(t, result)
	assert.Equal(t, []string{"/entry", "/entry-1"}, ambiguous.Entries)

	result, _, err = Load(fname, "/entry-1", true)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Detector.NumEvents())

	assertReleased(t, fname)
}

func TestReadDatasetConversions(t *testing.T) {
	w, fname := createH5(t, "types.nxs")
	root := &w.file.CommonFG
	w.numbers(root, "i8", hdf5.T_STD_I8LE, 3, &[]int8{-1, 0, 7})
	w.numbers(root, "u16be", hdf5.T_STD_U16BE, 2, &[]byte{0x01, 0x02, 0x00, 0x03})
	w.numbers(root, "f32", hdf5.T_IEEE_F32LE, 2, &[]float32{1.5, -2.25})
	w.numbers(root, "big", hdf5.T_STD_U64LE, 1, &[]uint64{1 << 40})
	w.numbers(root, "huge", hdf5.T_STD_U64LE, 1, &[]uint64{1 << 63})
	w.numbers(root, "fraction", hdf5.T_IEEE_F64LE, 1, &[]float64{0.5})
	w.fixedString(root, "label", "bank")
	w.close()

	session, err := openFile(fname)
	require.NoError(t, err)
	defer func() { require.NoError(t, session.close()) }()
	group, err := session.root("/")
	require.NoError(t, err)

	read := func(name string) Dataset {
		dset, err := group.Dataset(name)
		require.NoError(t, err)
		return dset
	}

	ints, err := read("i8").Int32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{-1, 0, 7}, ints)

	wide, err := read("u16be").Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{0x0102, 0x0003}, wide)

	floats, err := read("f32").Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.25}, floats)

	big, err := read("big").Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1 << 40}, big)

	_, err = read("big").Int32s()
	var lossy *ErrLossyConversion
	require.ErrorAs(t, err, &lossy)
	assert.Equal(t, "/big", lossy.Path)

	_, err = read("huge").Int64s()
	assert.ErrorAs(t, err, &lossy)

	_, err = read("fraction").Int32s()
	assert.ErrorAs(t, err, &lossy)

	_, err = read("label").Float64s()
	var unsupported *ErrUnsupportedType
	assert.ErrorAs(t, err, &unsupported)

	_, err = read("f32").String()
	assert.ErrorAs(t, err, &unsupported)

	label, err := read("label").String()
	require.NoError(t, err)
	assert.Equal(t, "bank", label)
}

func TestLoadRejectsOutOfRangeIDs(t *testing.T) {
	w, fname := createH5(t, "wide-ids.nxs")
	events := w.group(&w.file.CommonFG, "events", classEventData)
	w.numbers(&events.CommonFG, fieldEventID, hdf5.T_STD_I64LE, 2, &[]int64{1, 1 << 35})
	w.numbers(&events.CommonFG, fieldEventTimeOffset, hdf5.T_IEEE_F32LE, 2, &[]float32{1, 2})
	w.numbers(&events.CommonFG, fieldEventIndex, hdf5.T_STD_I64LE, 1, &[]int64{0})
	w.numbers(&events.CommonFG, fieldEventTimeZero, hdf5.T_IEEE_F64LE, 1, &[]float64{0})
	w.close()

	result, diags, err := Load(fname, "/", true)

	require.NoError(t, err)
	assert.Nil(t, result)
	require.Len(t, diags, 1)
	assert.Equal(t, MalformedSource, diags[0].Kind)
	var lossy *ErrLossyConversion
	assert.ErrorAs(t, diags.Err(), &lossy)
}
