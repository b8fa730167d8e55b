package authz

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Node is a permission tree node, either a Leaf or a Branch.
type Node interface {
	isNode()
}

// Leaf grants or denies the path ending at it.
type Leaf bool

// Branch maps path segments to child nodes.
type Branch map[string]Node

func (Leaf) isNode()   {}
func (Branch) isNode() {}

// Tree is the permission state of the signed in role.
type Tree struct {
	Role      string `json:"role"`
	Resources Node   `json:"resources"`
}

type treeJSON struct {
	Role      string          `json:"role"`
	Resources json.RawMessage `json:"resources"`
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	var in treeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.Role = in.Role
	t.Resources = decodeNode(in.Resources)
	return nil
}

// IsEmpty reports whether the tree carries no resources.
func (t Tree) IsEmpty() bool {
	return t.Resources == nil
}

// decodeNode maps JSON booleans to leaves and objects to branches. Any other
// value becomes a denying leaf.
func decodeNode(raw json.RawMessage) Node {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Leaf(false)
		}
		return Leaf(b)
	case '{':
		var children map[string]json.RawMessage
		if err := json.Unmarshal(raw, &children); err != nil {
			return Leaf(false)
		}
		branch := make(Branch, len(children))
		for name, child := range children {
			if node := decodeNode(child); node != nil {
				branch[name] = node
			} else {
				branch[name] = Leaf(false)
			}
		}
		return branch
	default:
		return Leaf(false)
	}
}

// CanAccess reports whether path resolves through root to a true leaf.
// Missing segments, leaves before the last segment and branches at the end all deny.
func CanAccess(root Node, path string) bool {
	if path == "" {
		return false
	}

	node := root
	for segment := range strings.SplitSeq(path, ".") {
		branch, ok := node.(Branch)
		if !ok {
			return false
		}
		if node, ok = branch[segment]; !ok {
			return false
		}
	}

	leaf, ok := node.(Leaf)
	return ok && bool(leaf)
}

// Granted lists every path that CanAccess allows, sorted.
func Granted(root Node) []string {
	var paths []string
	var walk func(prefix string, node Node)
	walk = func(prefix string, node Node) {
		switch n := node.(type) {
		case Leaf:
			if n && prefix != "" {
				paths = append(paths, prefix)
			}
		case Branch:
			for name, child := range n {
				next := name
				if prefix != "" {
					next = prefix + "." + name
				}
				walk(next, child)
			}
		}
	}
	walk("", root)

	sort.Strings(paths)
	return paths
}
