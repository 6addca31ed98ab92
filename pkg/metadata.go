package nxload

import (
	"fmt"
	"path"
)

const (
	AttrInstrumentName  = "instrument-name"
	AttrExperimentTitle = "experiment-title"
)

// LogLoader loads NXlog groups into a result.
type LogLoader interface {
	LoadLogs(result *Result, groups []Group, diags *Diagnostics, quiet bool)
}

// NXLogLoader reads the value and (optional) time arrays of each NXlog.
type NXLogLoader struct{}

func (NXLogLoader) LoadLogs(result *Result, groups []Group, diags *Diagnostics, quiet bool) {
	for _, group := range groups {
		if !group.Has("value") {
			err := fmt.Errorf("NXlog has no 'value' field")
			diags.Add(LogSkipped, group.Path(), err, quiet)
			continue
		}
		values, err := group.Dataset("value")
		if err != nil {
			diags.Add(LogSkipped, group.Path(), err, quiet)
			continue
		}
		log := Log{}
		log.Values, err = values.Float64s()
		if err != nil {
			diags.Add(LogSkipped, group.Path(), err, quiet)
			continue
		}
		log.Unit, _ = values.Attr("units")
		if group.Has("time") {
			log.Times, err = readFloats(group, "time")
			if err != nil {
				diags.Add(LogSkipped, group.Path(), err, quiet)
				continue
			}
		}

		name := path.Base(group.Path())
		if _, taken := result.Logs[name]; taken {
			name = group.Path()
		}
		result.Logs[name] = log
	}
}

// attachString reads a scalar string dataset of group and attaches it to
// target under key. A missing dataset is not an error.
func attachString(group Group, dataset string, key string, target AttributeSetter) error {
	if !group.Has(dataset) {
		return nil
	}
	dset, err := group.Dataset(dataset)
	if err != nil {
		return err
	}
	value, err := dset.String()
	if err != nil {
		return err
	}
	target.SetAttr(key, value)
	return nil
}

func addInstrumentName(instrument Group, target AttributeSetter) error {
	return attachString(instrument, "name", AttrInstrumentName, target)
}

func addTitle(entry Group, target AttributeSetter) error {
	return attachString(entry, "title", AttrExperimentTitle, target)
}
