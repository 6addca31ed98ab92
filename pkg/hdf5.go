package nxload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path"
	"reflect"
	"slices"
	"strings"
	"unsafe"

	"github.com/jmbenlloch/go-hdf5"
	"golang.org/x/exp/constraints"
)

// h5Session tracks every handle opened while loading from one file so they
// can all be released on the way out. The file itself is only closed when
// the session opened it.
type h5Session struct {
	file     *hdf5.File
	owned    bool
	groups   []*hdf5.Group
	datasets []*hdf5.Dataset
}

// h5Group adapts an HDF5 group (or the file root) to Group.
type h5Group struct {
	session *h5Session
	fg      *hdf5.CommonFG
	group   *hdf5.Group
	path    string
	parent  *h5Group
}

type h5Dataset struct {
	dset *hdf5.Dataset
	path string
}

func openFile(fname string) (*h5Session, error) {
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return &h5Session{file: f, owned: true}, nil
}

func borrowFile(f *hdf5.File) *h5Session {
	return &h5Session{file: f, owned: false}
}

// root resolves a path inside the file to a Group.
func (s *h5Session) root(root string) (*h5Group, error) {
	current := &h5Group{session: s, fg: &s.file.CommonFG, path: "/"}
	for _, name := range strings.Split(path.Clean("/"+root), "/") {
		if name == "" {
			continue
		}
		child, err := current.openChild(name)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

func (s *h5Session) close() error {
	var errs []error
	for _, d := range s.datasets {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing dataset: %w", err))
		}
	}
	// Children before parents
	for i := len(s.groups) - 1; i >= 0; i-- {
		if err := s.groups[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing group: %w", err))
		}
	}
	s.datasets = nil
	s.groups = nil
	if s.owned {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (g *h5Group) openChild(name string) (*h5Group, error) {
	childPath := path.Join(g.path, name)
	child, err := g.fg.OpenGroup(name)
	if err != nil {
		return nil, &ErrOpenGroup{Path: childPath, Err: err}
	}
	g.session.groups = append(g.session.groups, child)
	return &h5Group{
		session: g.session,
		fg:      &child.CommonFG,
		group:   child,
		path:    childPath,
		parent:  g,
	}, nil
}

func (g *h5Group) Path() string {
	return g.path
}

func (g *h5Group) Parent() Group {
	if g.parent == nil {
		return nil
	}
	return g.parent
}

func (g *h5Group) Attr(name string) (string, bool) {
	// The file root is not a Group handle. Its NX_class is NXroot, which is
	// never one of the classes the loader asks for.
	if g.group == nil {
		return "", false
	}
	attr, err := g.group.OpenAttribute(name)
	if err != nil {
		return "", false
	}
	defer attr.Close()
	var value string
	if err := attr.Read(&value, hdf5.T_GO_STRING); err != nil {
		return "", false
	}
	return value, true
}

func (g *h5Group) Has(name string) bool {
	return g.fg.LinkExists(name)
}

func (g *h5Group) Groups() ([]Group, error) {
	n, err := g.fg.NumObjects()
	if err != nil {
		return nil, fmt.Errorf("error listing %q: %w", g.path, err)
	}
	groups := make([]Group, 0, n)
	for i := uint(0); i < n; i++ {
		otype, err := g.fg.ObjectTypeByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("error reading object type %d of %q: %w", i, g.path, err)
		}
		if otype != hdf5.H5G_GROUP {
			continue
		}
		name, err := g.fg.ObjectNameByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("error reading object name %d of %q: %w", i, g.path, err)
		}
		child, err := g.openChild(name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, child)
	}
	return groups, nil
}

func (g *h5Group) Dataset(name string) (Dataset, error) {
	datasetPath := path.Join(g.path, name)
	dset, err := g.fg.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset %q: %w", datasetPath, err)
	}
	g.session.datasets = append(g.session.datasets, dset)
	return &h5Dataset{dset: dset, path: datasetPath}, nil
}

func (d *h5Dataset) Path() string {
	return d.path
}

func (d *h5Dataset) Len() int {
	space := d.dset.Space()
	if space == nil {
		return 0
	}
	defer space.Close()
	return space.SimpleExtentNPoints()
}

func (d *h5Dataset) Attr(name string) (string, bool) {
	attr, err := d.dset.OpenAttribute(name)
	if err != nil {
		return "", false
	}
	defer attr.Close()
	var value string
	if err := attr.Read(&value, hdf5.T_GO_STRING); err != nil {
		return "", false
	}
	return value, true
}

func (d *h5Dataset) Int32s() ([]int32, error) {
	return readDataset[int32](d)
}

func (d *h5Dataset) Int64s() ([]int64, error) {
	return readDataset[int64](d)
}

func (d *h5Dataset) Float64s() ([]float64, error) {
	return readDataset[float64](d)
}

// String reads a scalar string dataset, fixed or variable length.
func (d *h5Dataset) String() (string, error) {
	dtype, err := d.dset.Datatype()
	if err != nil {
		return "", fmt.Errorf("error reading datatype of %q: %w", d.path, err)
	}
	defer dtype.Close()
	if dtype.Class() != hdf5.T_STRING {
		return "", &ErrUnsupportedType{Path: d.path, Class: dtype.Class(), Size: dtype.Size()}
	}
	if n := d.Len(); n != 1 {
		return "", fmt.Errorf("string dataset %q has %d elements, expected one", d.path, n)
	}

	// The read uses the file datatype as memory type, so the buffer must
	// have the layout of the stored string.
	vlen := hdf5.VarLenType{Datatype: *dtype}
	if vlen.IsVariableStr() {
		ptrs := make([]unsafe.Pointer, 1)
		if err := d.dset.Read(&ptrs); err != nil {
			return "", fmt.Errorf("error reading string dataset %q: %w", d.path, err)
		}
		// TODO: release the buffer with H5free_memory once go-hdf5 exposes it.
		return cString(ptrs[0]), nil
	}

	buf := make([]byte, dtype.Size())
	if err := d.dset.Read(&buf); err != nil {
		return "", fmt.Errorf("error reading string dataset %q: %w", d.path, err)
	}
	if end := bytes.IndexByte(buf, 0); end >= 0 {
		buf = buf[:end]
	}
	return strings.TrimRight(string(buf), " "), nil
}

// cString copies a NUL terminated C string allocated by HDF5.
func cString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// storedNumber is a numeric file datatype the adapter knows how to decode.
type storedNumber struct {
	kind  reflect.Kind
	order binary.ByteOrder
	dtype *hdf5.Datatype
}

var storedNumbers = []storedNumber{
	{reflect.Int8, binary.LittleEndian, hdf5.T_STD_I8LE},
	{reflect.Int8, binary.BigEndian, hdf5.T_STD_I8BE},
	{reflect.Int16, binary.LittleEndian, hdf5.T_STD_I16LE},
	{reflect.Int16, binary.BigEndian, hdf5.T_STD_I16BE},
	{reflect.Int32, binary.LittleEndian, hdf5.T_STD_I32LE},
	{reflect.Int32, binary.BigEndian, hdf5.T_STD_I32BE},
	{reflect.Int64, binary.LittleEndian, hdf5.T_STD_I64LE},
	{reflect.Int64, binary.BigEndian, hdf5.T_STD_I64BE},
	{reflect.Uint8, binary.LittleEndian, hdf5.T_STD_U8LE},
	{reflect.Uint8, binary.BigEndian, hdf5.T_STD_U8BE},
	{reflect.Uint16, binary.LittleEndian, hdf5.T_STD_U16LE},
	{reflect.Uint16, binary.BigEndian, hdf5.T_STD_U16BE},
	{reflect.Uint32, binary.LittleEndian, hdf5.T_STD_U32LE},
	{reflect.Uint32, binary.BigEndian, hdf5.T_STD_U32BE},
	{reflect.Uint64, binary.LittleEndian, hdf5.T_STD_U64LE},
	{reflect.Uint64, binary.BigEndian, hdf5.T_STD_U64BE},
	{reflect.Float32, binary.LittleEndian, hdf5.T_IEEE_F32LE},
	{reflect.Float32, binary.BigEndian, hdf5.T_IEEE_F32BE},
	{reflect.Float64, binary.LittleEndian, hdf5.T_IEEE_F64LE},
	{reflect.Float64, binary.BigEndian, hdf5.T_IEEE_F64BE},
}

// readDataset reads the whole dataset flattened into T. go-hdf5 reads
// without type conversion, so the stored bytes are read as they are and
// decoded here according to the file datatype.
func readDataset[T int32 | int64 | float64](d *h5Dataset) ([]T, error) {
	dtype, err := d.dset.Datatype()
	if err != nil {
		return nil, fmt.Errorf("error reading datatype of %q: %w", d.path, err)
	}
	defer dtype.Close()

	match := slices.IndexFunc(storedNumbers, func(s storedNumber) bool {
		return dtype.Equal(s.dtype)
	})
	if match < 0 {
		return nil, &ErrUnsupportedType{Path: d.path, Class: dtype.Class(), Size: dtype.Size()}
	}
	stored := storedNumbers[match]

	n := d.Len()
	if n == 0 {
		return []T{}, nil
	}
	// The array MUST be allocated before reading, HDF5 writes into it
	raw := make([]byte, n*int(dtype.Size()))
	if err := d.dset.Read(&raw); err != nil {
		return nil, fmt.Errorf("error reading dataset %q: %w", d.path, err)
	}

	switch stored.kind {
	case reflect.Int8:
		return decodeNumbers[int8, T](d.path, raw, n, stored.order)
	case reflect.Int16:
		return decodeNumbers[int16, T](d.path, raw, n, stored.order)
	case reflect.Int32:
		return decodeNumbers[int32, T](d.path, raw, n, stored.order)
	case reflect.Int64:
		return decodeNumbers[int64, T](d.path, raw, n, stored.order)
	case reflect.Uint8:
		return decodeNumbers[uint8, T](d.path, raw, n, stored.order)
	case reflect.Uint16:
		return decodeNumbers[uint16, T](d.path, raw, n, stored.order)
	case reflect.Uint32:
		return decodeNumbers[uint32, T](d.path, raw, n, stored.order)
	case reflect.Uint64:
		return decodeNumbers[uint64, T](d.path, raw, n, stored.order)
	case reflect.Float32:
		return decodeNumbers[float32, T](d.path, raw, n, stored.order)
	default:
		return decodeNumbers[float64, T](d.path, raw, n, stored.order)
	}
}

// decodeNumbers decodes n values of the stored type S and converts them to
// T. Values that T cannot hold exactly are an error.
func decodeNumbers[S constraints.Integer | constraints.Float, T int32 | int64 | float64](path string, raw []byte, n int, order binary.ByteOrder) ([]T, error) {
	stored := make([]S, n)
	if err := binary.Read(bytes.NewReader(raw), order, stored); err != nil {
		return nil, fmt.Errorf("error decoding dataset %q: %w", path, err)
	}
	values := make([]T, n)
	for i, v := range stored {
		values[i] = T(v)
		if math.IsNaN(float64(v)) {
			continue
		}
		if S(values[i]) != v || (v < 0) != (values[i] < 0) {
			return nil, &ErrLossyConversion{Path: path, Index: i, Value: fmt.Sprint(v), Target: fmt.Sprintf("%T", values[i])}
		}
	}
	return values, nil
}
