package launch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// BuildFiles are the artifacts a widget build keeps.
var BuildFiles = []string{"index.html", "bundle.js", "styles.css"}

// FileMakerDir is the build subdirectory holding the single-file variant
// that FileMaker imports.
const FileMakerDir = "filemaker"

// PruneBuild removes everything in outputDir and outputDir/filemaker
// except BuildFiles. The filemaker directory itself is kept. Missing
// directories are skipped. It returns the removed paths.
func PruneBuild(outputDir string) ([]string, error) {
	keep := make(map[string]bool, len(BuildFiles))
	for _, name := range BuildFiles {
		keep[name] = true
	}

	var removed []string
	for _, dir := range []string{outputDir, filepath.Join(outputDir, FileMakerDir)} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return removed, err
		}

		for _, e := range entries {
			if keep[e.Name()] || (dir == outputDir && e.Name() == FileMakerDir && e.IsDir()) {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(p); err != nil {
				return removed, err
			}
			removed = append(removed, p)
		}
	}

	sort.Strings(removed)
	return removed, nil
}
