package nxload

// Group is a read-only view over one group of a NeXus file.
type Group interface {
	// Path is the absolute path of the group inside the file.
	Path() string
	// Parent returns nil for the file root.
	Parent() Group
	// Attr returns a string attribute of the group.
	Attr(name string) (string, bool)
	// Has reports whether a direct child (group or dataset) exists.
	Has(name string) bool
	// Groups lists the direct child groups in file order.
	Groups() ([]Group, error)
	Dataset(name string) (Dataset, error)
}

// Dataset is a read-only view over one numeric or string dataset.
// Numeric reads always return the dataset flattened.
type Dataset interface {
	Path() string
	// Len is the total number of elements across all dimensions.
	Len() int
	Attr(name string) (string, bool)
	Int32s() ([]int32, error)
	Int64s() ([]int64, error)
	Float64s() ([]float64, error)
	String() (string, error)
}
