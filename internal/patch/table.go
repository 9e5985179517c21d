package patch

import (
	"errors"
	"fmt"
	"os"

	"dmxcore/internal/dmxerr"
	"dmxcore/internal/jsonfile"
)

// entry is one row of the patch table file.
type entry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Definition    string `json:"definition"`
	DefinitionKey string `json:"definition_key,omitempty"`
	StartAddress  int    `json:"start_address"`
	Values        []int  `json:"values"`
}

// Skipped is a table row that could not be restored.
type Skipped struct {
	ID  string
	Err error
}

// LoadReport lists what Load restored.
type LoadReport struct {
	Loaded  int
	Skipped []Skipped
}

// Save writes the patch table to path.
func (m *Manager) Save(path string) error {
	m.mu.Lock()
	rows := make([]entry, 0, len(m.instances))
	for _, in := range m.sorted() {
		values := make([]int, len(in.values))
		for i, v := range in.values {
			values[i] = int(v)
		}
		rows = append(rows, entry{
			ID:            in.id,
			Name:          in.name,
			Definition:    in.def.Source,
			DefinitionKey: in.def.Key(),
			StartAddress:  in.start,
			Values:        values,
		})
	}
	m.mu.Unlock()

	if err := jsonfile.Write(path, rows); err != nil {
		return fmt.Errorf("save patch: %w", err)
	}
	return nil
}

// Load restores a table written by Save, keeping instance ids. Rows whose
// definition is gone or whose range no longer fits are skipped. A missing
// file is an empty table.
func (m *Manager) Load(path string) (LoadReport, error) {
	var report LoadReport

	var rows []entry
	if err := jsonfile.Read(path, &rows); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("load patch: %w", dmxerr.Invalid(path, "patch table", "%v", err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		if err := m.restore(row); err != nil {
			m.log.Warnf("skip patched fixture %s: %v", row.ID, err)
			report.Skipped = append(report.Skipped, Skipped{ID: row.ID, Err: err})
			continue
		}
		report.Loaded++
	}
	m.log.Infof("restored %d patched fixtures from %s", report.Loaded, path)
	return report, nil
}

func (m *Manager) restore(row entry) error {
	if row.ID == "" {
		return dmxerr.Invalid("patch table", "id", "missing")
	}
	if _, dup := m.instances[row.ID]; dup {
		return dmxerr.Invalid("patch table", "id", "%s already patched", row.ID)
	}

	def, err := m.catalog.Lookup(row.Definition)
	if err != nil && row.DefinitionKey != "" {
		def, err = m.catalog.Lookup(row.DefinitionKey)
	}
	if err != nil {
		return err
	}

	values := def.Defaults()
	for i, v := range row.Values {
		if i >= len(values) {
			break
		}
		if err := dmxerr.CheckRange("value", v, 0, 255); err != nil {
			return err
		}
		values[i] = byte(v)
	}

	_, err = m.place(row.ID, row.Name, def, row.StartAddress, values)
	return err
}
