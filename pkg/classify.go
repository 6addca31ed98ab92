package nxload

const (
	attrNXClass      = "NX_class"
	classEventData   = "NXevent_data"
	classLog         = "NXlog"
	classEntry       = "NXentry"
	classInstrument  = "NXinstrument"
	maxClassifyDepth = 64
)

// Classifier finds the groups of the requested NeXus classes in the subtree
// of root, root included.
type Classifier interface {
	FindByClass(root Group, classes ...string) (map[string][]Group, error)
}

// NXClassifier classifies groups by their NX_class attribute.
type NXClassifier struct{}

func (NXClassifier) FindByClass(root Group, classes ...string) (map[string][]Group, error) {
	found := make(map[string][]Group, len(classes))
	for _, class := range classes {
		found[class] = make([]Group, 0)
	}
	err := visitGroups(root, 0, func(g Group) {
		class, ok := g.Attr(attrNXClass)
		if !ok {
			return
		}
		if _, wanted := found[class]; wanted {
			found[class] = append(found[class], g)
		}
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// visitGroups walks the tree depth first, parents before children.
func visitGroups(g Group, depth int, visit func(Group)) error {
	visit(g)
	if depth >= maxClassifyDepth {
		return nil
	}
	children, err := g.Groups()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := visitGroups(child, depth+1, visit); err != nil {
			return err
		}
	}
	return nil
}
