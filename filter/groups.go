package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadGroups reads a Spec from the named files, one Group per file.
//
// A file holds one function name per line. Surrounding whitespace is trimmed
// and blank lines are skipped. A file with no names at all yields an empty
// Group, which no sample can satisfy. Any unreadable file aborts the load;
// there's no sensible selection to fall back to when the caller's criteria
// can't be read.
func LoadGroups(paths ...string) (Spec, error) {
	var s Spec
	for _, p := range paths {
		g, err := loadGroup(p)
		if err != nil {
			return nil, fmt.Errorf("filter: unable to load group file %q: %w", p, err)
		}
		s = append(s, g)
	}
	return s, nil
}

func loadGroup(p string) (Group, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var g Group
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fn := strings.TrimSpace(sc.Text())
		if fn == "" {
			continue
		}
		g = append(g, fn)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return g, nil
}
