package record

import (
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

// fileState — дешёвый отпечаток файла для сравнения снимков.
type fileState struct {
	size    int64
	modTime time.Time
}

// snapshot — состояние рабочего дерева: относительный путь → отпечаток.
type snapshot map[string]fileState

// ignoredDirs — директории, не участвующие в определении выходов.
var ignoredDirs = map[string]bool{
	".git":     true,
	".lineage": true,
}

// takeSnapshot обходит рабочее дерево и фиксирует размер и время
// модификации каждого файла.
func takeSnapshot(root string) (snapshot, error) {
	snap := make(snapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		snap[filepath.ToSlash(rel)] = fileState{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// diff возвращает пути, появившиеся или изменившиеся между снимками,
// в лексикографическом порядке.
func (before snapshot) diff(after snapshot) []string {
	changed := make([]string, 0)
	for path, state := range after {
		prev, existed := before[path]
		if !existed || prev.size != state.size || !prev.modTime.Equal(state.modTime) {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}
