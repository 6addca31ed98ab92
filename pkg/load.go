package nxload

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmbenlloch/go-hdf5"
)

// Loader reads NeXus event data. Nil collaborators fall back to the
// NX_class based defaults.
type Loader struct {
	Classifier Classifier
	Logs       LogLoader
}

func NewLoader() *Loader {
	return &Loader{
		Classifier: NXClassifier{},
		Logs:       NXLogLoader{},
	}
}

// Load opens the file at fname, loads the subtree at root and closes the
// file before returning. See LoadTree for the meaning of the results.
func Load(fname string, root string, quiet bool) (*Result, Diagnostics, error) {
	return NewLoader().Load(fname, root, quiet)
}

// LoadFile loads from a file opened by the caller. The file is left open.
func LoadFile(file *hdf5.File, root string, quiet bool) (*Result, Diagnostics, error) {
	return NewLoader().LoadFile(file, root, quiet)
}

// LoadTree loads from an already resolved root group.
func LoadTree(root Group, quiet bool) (*Result, Diagnostics, error) {
	return NewLoader().LoadTree(root, quiet)
}

func (l *Loader) Load(fname string, root string, quiet bool) (result *Result, diags Diagnostics, err error) {
	session, err := openFile(fname)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if closeErr := session.close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return l.loadSession(session, root, quiet)
}

func (l *Loader) LoadFile(file *hdf5.File, root string, quiet bool) (result *Result, diags Diagnostics, err error) {
	session := borrowFile(file)
	defer func() {
		if closeErr := session.close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return l.loadSession(session, root, quiet)
}

func (l *Loader) loadSession(session *h5Session, root string, quiet bool) (*Result, Diagnostics, error) {
	group, err := session.root(root)
	if err != nil {
		return nil, nil, err
	}
	return l.LoadTree(group, quiet)
}

// LoadTree loads every NXevent_data group below root into one dataset
// binned by detector element, and attaches logs, the instrument name and
// the experiment title.
//
// Recoverable problems are returned as diagnostics and never stop the
// load. The only error conditions are a root holding more than one NXentry
// and failures walking the tree. When nothing at all was found the result
// is nil.
func (l *Loader) LoadTree(root Group, quiet bool) (*Result, Diagnostics, error) {
	start := time.Now()
	diags := make(Diagnostics, 0)

	classifier, logs := l.collaborators()
	groups, err := classifier.FindByClass(root, classEventData, classLog, classEntry, classInstrument)
	if err != nil {
		return nil, diags, err
	}

	// Several entries could each describe the same detector bank, which
	// would make element ids clash.
	if len(groups[classEntry]) > 1 {
		entries := make([]string, len(groups[classEntry]))
		for i, entry := range groups[classEntry] {
			entries[i] = entry.Path()
		}
		return nil, diags, &ErrAmbiguousRoot{Root: root.Path(), Entries: entries}
	}

	result := newResult()
	result.Detector = l.loadDetectorData(groups[classEventData], &diags, quiet)

	logs.LoadLogs(result, groups[classLog], &diags, quiet)

	if len(groups[classInstrument]) > 0 {
		instrument := groups[classInstrument][0]
		if err := addInstrumentName(instrument, result); err != nil {
			diags.Add(MetadataSkipped, instrument.Path(), err, quiet)
		}
	}
	if len(groups[classEntry]) > 0 {
		entry := groups[classEntry][0]
		if err := addTitle(entry, result); err != nil {
			diags.Add(MetadataSkipped, entry.Path(), err, quiet)
		}
	}

	if !quiet {
		message := fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds())
		logger.Info(message, "load")
	}

	if result.empty() {
		return nil, diags, nil
	}
	return result, diags, nil
}

func (l *Loader) collaborators() (Classifier, LogLoader) {
	var classifier Classifier = NXClassifier{}
	var logs LogLoader = NXLogLoader{}
	if l.Classifier != nil {
		classifier = l.Classifier
	}
	if l.Logs != nil {
		logs = l.Logs
	}
	return classifier, logs
}

func (l *Loader) loadDetectorData(eventGroups []Group, diags *Diagnostics, quiet bool) *DetectorData {
	banks := make([]*BankRecord, 0, len(eventGroups))
	for _, group := range eventGroups {
		bank, err := LoadBank(group, diags, quiet)
		if err != nil {
			wrapped := fmt.Errorf("skipped loading %s: %w", group.Path(), err)
			diags.Add(MalformedSource, group.Path(), wrapped, quiet)
			continue
		}
		banks = append(banks, bank)
	}
	if len(banks) == 0 {
		return nil
	}
	return MergeBanks(banks, configuration.bucketWorkers(), diags, quiet)
}
