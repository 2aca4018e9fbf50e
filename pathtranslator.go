package corert

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideRoot is returned by PathTranslator.ReverseTranslate for a
// physical path that lies outside the configured root and every mount.
var ErrOutsideRoot = errors.New("corert: path escapes sandbox root")

// PathTranslator maps virtual paths (as seen by script code) to physical
// paths (as used for actual I/O) and back, honoring a root directory and
// a set of path→path mounts, per spec §6 / §8 invariant 7. [NewContext]
// builds the default implementation from the Sandbox's root and mounts
// ("/" and no mounts without a Sandbox); a host can supply its own via
// [WithPathTranslator]. Grounded on the original's pathTranslator field
// and translatePath/reverseTranslatePath pair.
type PathTranslator interface {
	// Translate maps a script-visible virtual path to a physical path.
	Translate(virtual string) (string, error)
	// ReverseTranslate maps a physical path back to the virtual path a
	// script would have used to reach it. Round-trips with Translate for
	// any path inside the root or a mount (spec §8 invariant 7).
	ReverseTranslate(physical string) (string, error)
}

type mount struct {
	virtual  string
	physical string
}

// defaultPathTranslator implements PathTranslator with a single root
// directory plus an ordered set of mounts, each overriding the root for
// paths under its virtual prefix — the longest matching prefix wins.
type defaultPathTranslator struct {
	root   string
	mounts []mount
}

// NewPathTranslator creates a PathTranslator rooted at root, with the
// given virtual→physical mount mapping. Mount keys need not be sorted;
// NewPathTranslator sorts them by descending virtual-prefix length so
// lookup always matches longest-prefix-first.
func NewPathTranslator(root string, mounts map[string]string) PathTranslator {
	root = filepath.Clean(root)
	t := &defaultPathTranslator{root: root}
	for v, p := range mounts {
		t.mounts = append(t.mounts, mount{virtual: cleanVirtual(v), physical: filepath.Clean(p)})
	}
	sort.Slice(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].virtual) > len(t.mounts[j].virtual)
	})
	return t
}

func cleanVirtual(p string) string {
	p = filepath.ToSlash(filepath.Clean("/" + strings.TrimPrefix(p, "/")))
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func (t *defaultPathTranslator) Translate(virtual string) (string, error) {
	// NIO-style UNC prefixes confuse filepath.Clean; strip as the original
	// does before any further processing.
	virtual = strings.TrimPrefix(virtual, `\\?\`)
	v := cleanVirtual(virtual)

	for _, m := range t.mounts {
		if v == m.virtual || strings.HasPrefix(v, m.virtual+"/") {
			rel := strings.TrimPrefix(v, m.virtual)
			return filepath.Join(m.physical, rel), nil
		}
	}
	return filepath.Join(t.root, v), nil
}

func (t *defaultPathTranslator) ReverseTranslate(physical string) (string, error) {
	p := filepath.Clean(physical)

	best := -1
	var bestVirtual, bestPhysical string
	for _, m := range t.mounts {
		if p == m.physical || strings.HasPrefix(p, m.physical+string(filepath.Separator)) {
			if len(m.physical) > best {
				best = len(m.physical)
				bestVirtual, bestPhysical = m.virtual, m.physical
			}
		}
	}
	if best >= 0 {
		rel := strings.TrimPrefix(p, bestPhysical)
		return cleanVirtual(bestVirtual + filepath.ToSlash(rel)), nil
	}

	if p == t.root || strings.HasPrefix(p, t.root+string(filepath.Separator)) {
		rel := strings.TrimPrefix(p, t.root)
		return cleanVirtual(filepath.ToSlash(rel)), nil
	}
	return "", ErrOutsideRoot
}
