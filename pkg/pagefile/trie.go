package pagefile

import (
	"strings"
)

// dirTrie indexes default files by the directory they apply to. Looking up
// the defaults of a page walks from the root to the page's directory, so it
// costs O(depth).
type dirTrie struct {
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	files    []*PageFile
}

func newDirTrie() *dirTrie {
	return &dirTrie{root: &trieNode{}}
}

func splitDir(dir string) []string {
	var segs []string
	for _, s := range strings.Split(dir, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func (t *dirTrie) insert(dir string, f *PageFile) {
	n := t.root
	for _, seg := range splitDir(dir) {
		if n.children == nil {
			n.children = map[string]*trieNode{}
		}
		child, ok := n.children[seg]
		if !ok {
			child = &trieNode{}
			n.children[seg] = child
		}
		n = child
	}
	n.files = append(n.files, f)
}

// ancestors returns the default files applying to dir, grouped by directory
// from the nearest to the most distant.
func (t *dirTrie) ancestors(dir string) [][]*PageFile {
	var levels [][]*PageFile
	n := t.root
	if len(n.files) > 0 {
		levels = append(levels, n.files)
	}
	for _, seg := range splitDir(dir) {
		n = n.children[seg]
		if n == nil {
			break
		}
		if len(n.files) > 0 {
			levels = append(levels, n.files)
		}
	}
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels
}
