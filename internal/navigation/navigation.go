package navigation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTree []byte

var ErrInvalidEntry = errors.New("invalid navigation entry")

// Entry is a navigation item, optionally guarded by a resource path.
type Entry struct {
	Title    string  `yaml:"title" json:"title"`
	Route    string  `yaml:"route,omitempty" json:"route,omitempty"`
	Resource string  `yaml:"resource,omitempty" json:"resource,omitempty"`
	Children []Entry `yaml:"children,omitempty" json:"children,omitempty"`
}

// Access is the authorization state navigation is filtered against.
// *authz.Resolver and authz.Snapshot satisfy it.
type Access interface {
	IsLoading() bool
	CanAccess(path string) bool
}

// Default returns the console navigation tree.
func Default() []Entry {
	entries, err := Parse(defaultTree)
	if err != nil {
		panic(fmt.Errorf("embedded navigation: %w", err))
	}
	return entries
}

// Parse decodes a YAML list of entries and validates it.
func Parse(data []byte) ([]Entry, error) {
	return Load(bytes.NewReader(data))
}

// Load reads a YAML list of entries from r.
func Load(r io.Reader) ([]Entry, error) {
	var entries []Entry

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode navigation: %w", err)
	}

	if err := validate(entries, ""); err != nil {
		return nil, err
	}

	return entries, nil
}

func validate(entries []Entry, parent string) error {
	for _, e := range entries {
		name := strings.TrimPrefix(parent+" > "+e.Title, " > ")
		if e.Title == "" {
			return fmt.Errorf("%w: missing title under %q", ErrInvalidEntry, parent)
		}
		if e.Route == "" && len(e.Children) == 0 {
			return fmt.Errorf("%w: %q has neither route nor children", ErrInvalidEntry, name)
		}
		if e.Resource != "" && !validPath(e.Resource) {
			return fmt.Errorf("%w: %q has malformed resource %q", ErrInvalidEntry, name, e.Resource)
		}
		if err := validate(e.Children, name); err != nil {
			return err
		}
	}
	return nil
}

func validPath(path string) bool {
	for segment := range strings.SplitSeq(path, ".") {
		if segment == "" {
			return false
		}
	}
	return true
}

// Filter returns the entries access may see. Nothing is visible while access is
// loading. Filtering a filtered tree again with the same access is a no-op.
func Filter(entries []Entry, access Access) []Entry {
	if access.IsLoading() {
		return []Entry{}
	}
	return filter(entries, access)
}

func filter(entries []Entry, access Access) []Entry {
	visible := []Entry{}

	for _, e := range entries {
		children := filter(e.Children, access)

		switch {
		case e.Resource != "":
			if !access.CanAccess(e.Resource) {
				continue
			}
		case len(e.Children) > 0:
			// untagged groups are only shown when something inside them is
			if len(children) == 0 {
				continue
			}
		}

		if len(children) == 0 {
			children = nil
		}
		e.Children = children
		visible = append(visible, e)
	}

	return visible
}

// Routes flattens entries into the routes they link to, depth first.
func Routes(entries []Entry) []string {
	var routes []string
	for _, e := range entries {
		if e.Route != "" {
			routes = append(routes, e.Route)
		}
		routes = append(routes, Routes(e.Children)...)
	}
	return routes
}

// Find returns the entry linking to route.
func Find(entries []Entry, route string) (Entry, bool) {
	for _, e := range entries {
		if e.Route == route {
			return e, true
		}
		if found, ok := Find(e.Children, route); ok {
			return found, true
		}
	}
	return Entry{}, false
}
