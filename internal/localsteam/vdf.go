package localsteam

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"
)

// node is a parsed KeyValues object.
type node map[string]any

func readVDF(path string) (node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := vdf.NewParser(f).Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return node(m), nil
}

// child looks up a nested object. Valve files are inconsistent about key
// case, so lookups ignore it.
func (n node) child(key string) node {
	v, ok := n.lookup(key)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return node(m)
}

// path follows keys through nested objects.
func (n node) path(keys ...string) node {
	cur := n
	for _, k := range keys {
		if cur == nil {
			return nil
		}
		cur = cur.child(k)
	}
	return cur
}

func (n node) str(key string) string {
	v, ok := n.lookup(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (n node) number(key string) int {
	i, err := strconv.Atoi(n.str(key))
	if err != nil {
		return 0
	}
	return i
}

func (n node) lookup(key string) (any, bool) {
	if n == nil {
		return nil, false
	}
	if v, ok := n[key]; ok {
		return v, true
	}
	for k, v := range n {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
