package triggers

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFile decodes one rule file (a YAML sequence of Trigger documents)
// and stamps each rule with its source file and declared index, used
// later to establish the evaluation order spec.md section 4.2 requires.
func LoadFile(path string) ([]*Trigger, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "triggers: reading %s", path)
	}
	var list []*Trigger
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrapf(err, "triggers: parsing %s", path)
	}
	for i, t := range list {
		t.file = path
		t.index = i
	}
	return list, nil
}

// LoadDir loads every *.yml/*.yaml file directly under dir, merging them
// in path sort order -- spec.md section 4.2's "files are merged in path
// sort order" -- and within each file in declared order.
func LoadDir(dir string) ([]*Trigger, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "triggers: reading %s", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var all []*Trigger
	for _, p := range paths {
		list, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, list...)
	}
	return all, nil
}
