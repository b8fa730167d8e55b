package resources

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownResource = errors.New("unknown resource")

// Resource is an admin collection exposed by the API.
type Resource struct {
	Name  string
	Title string
	// Path is the collection path relative to the API base URL.
	Path string
	// Permission is the tree path that grants access to the collection.
	Permission string
	// Columns are shown in listings, in order.
	Columns []string
}

// Registry indexes resources by name.
type Registry struct {
	byName map[string]Resource
	names  []string
}

// NewRegistry builds a registry, names must be unique.
func NewRegistry(resources ...Resource) (*Registry, error) {
	r := &Registry{byName: make(map[string]Resource, len(resources))}
	for _, res := range resources {
		if res.Name == "" || res.Path == "" {
			return nil, fmt.Errorf("resource %q needs a name and path", res.Name)
		}
		if _, ok := r.byName[res.Name]; ok {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		r.byName[res.Name] = res
		r.names = append(r.names, res.Name)
	}
	return r, nil
}

var builtin = []Resource{
	{Name: "categories", Title: "Categories", Path: "admin/categories", Permission: "categories", Columns: []string{"id", "name", "status"}},
	{Name: "activities", Title: "Activities", Path: "admin/activities", Permission: "activities", Columns: []string{"id", "title", "status", "starts_at"}},
	{Name: "gifts", Title: "Gifts", Path: "admin/gift-types", Permission: "gifts", Columns: []string{"id", "name", "coin_price", "status"}},
	{Name: "avatar_borders", Title: "Avatar Borders", Path: "admin/avatar-borders", Permission: "gamifications", Columns: []string{"id", "name", "status"}},
	{Name: "badges", Title: "Badges", Path: "admin/badges", Permission: "gamifications", Columns: []string{"id", "name", "status"}},
	{Name: "sticker_packs", Title: "Sticker Packs", Path: "admin/sticker-packs", Permission: "gamifications", Columns: []string{"id", "name", "status"}},
	{Name: "stickers", Title: "Stickers", Path: "admin/stickers", Permission: "gamifications", Columns: []string{"id", "name", "pack_id"}},
	{Name: "group_calls", Title: "Group Calls", Path: "admin/group-calls", Permission: "group_calls", Columns: []string{"id", "title", "host_id", "status"}},
	{Name: "transactions", Title: "Transactions", Path: "admin/coin-transactions", Permission: "transactions", Columns: []string{"id", "user_id", "type", "amount", "created_at"}},
	{Name: "users", Title: "Users", Path: "admin/users", Permission: "users.users", Columns: []string{"id", "username", "display_name", "email"}},
	{Name: "talent_applications", Title: "Talent Applications", Path: "admin/talent-applications", Permission: "users.talent_applications", Columns: []string{"id", "user_id", "status", "created_at"}},
	{Name: "user_reports", Title: "User Reports", Path: "admin/user-reports", Permission: "users.user_reports", Columns: []string{"id", "reporter_id", "reported_id", "reason", "status"}},
}

// Default returns the registry of the Joynix admin collections.
func Default() *Registry {
	r, err := NewRegistry(builtin...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the resource called name.
func (r *Registry) Lookup(name string) (Resource, error) {
	res, ok := r.byName[name]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return res, nil
}

// All returns the resources in registration order.
func (r *Registry) All() []Resource {
	out := make([]Resource, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the resource names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.names...)
	sort.Strings(names)
	return names
}
