package authz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTree(t *testing.T, data string) Tree {
	t.Helper()
	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(data), &tree))
	return tree
}

func TestCanAccess(t *testing.T) {
	tree := parseTree(t, `{
		"role": "moderator",
		"resources": {
			"gamifications": true,
			"gifts": false,
			"transactions": "yes",
			"group_calls": 1,
			"users": {
				"user_reports": true,
				"talent_applications": false,
				"users": null
			}
		}
	}`)

	tests := []struct {
		path string
		want bool
	}{
		{path: "gamifications", want: true},
		{path: "users.user_reports", want: true},
		{path: "users.talent_applications", want: false},
		{path: "users", want: false},
		{path: "users.users", want: false},
		{path: "users.missing", want: false},
		{path: "gifts", want: false},
		{path: "transactions", want: false},
		{path: "group_calls", want: false},
		{path: "gamifications.badges", want: false},
		{path: "missing", want: false},
		{path: "missing.deeper", want: false},
		{path: "", want: false},
		{path: ".", want: false},
		{path: "users.", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tree.Resources, tt.path))
		})
	}

	assert.Equal(t, "moderator", tree.Role)
}

func TestCanAccess_EmptyTree(t *testing.T) {
	assert.False(t, CanAccess(nil, "users"))
	assert.False(t, CanAccess(Branch{}, "users"))
	assert.False(t, CanAccess(Leaf(true), "users"))

	tree := parseTree(t, `{"role": "viewer", "resources": null}`)
	assert.True(t, tree.IsEmpty())
	assert.False(t, CanAccess(tree.Resources, "users"))
}

func TestCanAccess_NonObjectResources(t *testing.T) {
	tree := parseTree(t, `{"role": "admin", "resources": true}`)
	assert.False(t, CanAccess(tree.Resources, "users"))
	assert.Empty(t, Granted(tree.Resources))
}

// any path that isn't spelled out to a true leaf is denied
func TestCanAccess_FailClosed(t *testing.T) {
	root := Branch{"users": Branch{"user_reports": Leaf(true)}}

	for _, path := range []string{
		"users.talent_applications",
		"users",
		"users.user_reports.extra",
		"Users.user_reports",
		"users.User_reports",
	} {
		assert.False(t, CanAccess(root, path), path)
	}
	assert.True(t, CanAccess(root, "users.user_reports"))
}

func TestGranted(t *testing.T) {
	root := Branch{
		"users":         Branch{"user_reports": Leaf(true), "users": Leaf(false)},
		"gamifications": Branch{"badges": Leaf(true), "stickers": Branch{"packs": Leaf(true)}},
		"gifts":         Leaf(true),
	}

	assert.Equal(t, []string{
		"gamifications.badges",
		"gamifications.stickers.packs",
		"gifts",
		"users.user_reports",
	}, Granted(root))

	for _, path := range Granted(root) {
		assert.True(t, CanAccess(root, path))
	}
}
