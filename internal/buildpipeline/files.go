package buildpipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ExpandFiles resolves command-line arguments into program files. Directories
// are walked for files ending in ProgramExt; plain files are taken as given.
// The result is cleaned, de-duplicated and sorted.
func ExpandFiles(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ProgramExt {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %q: %w", arg, err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found", ProgramExt)
	}
	sort.Strings(files)
	return files, nil
}
