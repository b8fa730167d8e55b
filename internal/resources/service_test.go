package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/navigation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	path   string
	method string
	body   any
}

type fakeRequester struct {
	calls    []call
	response string
	err      error
}

func (f *fakeRequester) Request(ctx context.Context, path string, opts apiclient.RequestOptions) (json.RawMessage, error) {
	f.calls = append(f.calls, call{path: path, method: opts.Method, body: opts.Body})
	if f.err != nil {
		return nil, f.err
	}
	if f.response == "" {
		return nil, nil
	}
	return json.RawMessage(f.response), nil
}

func TestRegistry(t *testing.T) {
	reg := Default()

	res, err := reg.Lookup("user_reports")
	require.NoError(t, err)
	assert.Equal(t, "admin/user-reports", res.Path)
	assert.Equal(t, "users.user_reports", res.Permission)

	_, err = reg.Lookup("payouts")
	require.ErrorIs(t, err, ErrUnknownResource)

	assert.Len(t, reg.All(), len(builtin))
	assert.Equal(t, "categories", reg.All()[0].Name)
	assert.IsNonDecreasing(t, reg.Names())
}

func TestNewRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(Resource{Name: "a", Path: "x"}, Resource{Name: "a", Path: "y"})
	require.Error(t, err)

	_, err = NewRegistry(Resource{Name: "a"})
	require.Error(t, err)
}

func TestRegistry_MatchesNavigation(t *testing.T) {
	reg := Default()

	for _, route := range navigation.Routes(navigation.Default()) {
		name, ok := strings.CutPrefix(route, "/r/")
		if !ok {
			continue
		}
		_, err := reg.Lookup(name)
		assert.NoError(t, err, "navigation links to %s", route)
	}
}

func TestListOptions_Query(t *testing.T) {
	assert.Empty(t, ListOptions{}.Query())

	q := ListOptions{Page: 2, Limit: 50, Search: "  mia "}.Query()
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "mia", q.Get("search"))
}

func TestService_List(t *testing.T) {
	fake := &fakeRequester{response: `{
		"status": 200,
		"success": true,
		"message": "ok",
		"data": [
			{"id": 1, "username": "mia", "display_name": "Mia", "email": "mia@example.com"},
			{"id": 2, "username": "leo", "verified": true}
		],
		"metadata": {"page": 2, "limit": 2, "total": 5, "total_pages": 3}
	}`}
	svc := NewService(fake, nil)

	page, err := svc.List(context.Background(), "users", ListOptions{Page: 2, Limit: 2, Search: "a"})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	path, query, _ := strings.Cut(fake.calls[0].path, "?")
	assert.Equal(t, "admin/users", path)
	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	assert.Equal(t, "2", values.Get("page"))
	assert.Equal(t, "a", values.Get("search"))
	assert.Equal(t, http.MethodGet, fake.calls[0].method)

	require.Len(t, page.Items, 2)
	assert.Equal(t, "1", page.Items[0].ID())
	assert.Equal(t, "Mia", page.Items[0].Field("display_name"))
	assert.Equal(t, "true", page.Items[1].Field("verified"))
	assert.Empty(t, page.Items[1].Field("email"))
	assert.Equal(t, 5, page.Metadata.Total)
	assert.True(t, page.HasNext())
}

func TestService_ListDefaults(t *testing.T) {
	fake := &fakeRequester{response: `{"success": true, "data": {"items": [{"id": "c-1", "name": "Music"}]}}`}
	svc := NewService(fake, nil)

	page, err := svc.List(context.Background(), "categories", ListOptions{})
	require.NoError(t, err)

	assert.Contains(t, fake.calls[0].path, "limit=20")
	assert.Contains(t, fake.calls[0].path, "page=1")
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c-1", page.Items[0].ID())
	assert.Equal(t, 1, page.Metadata.TotalPages)
	assert.False(t, page.HasNext())
}

func TestService_ListNullData(t *testing.T) {
	svc := NewService(&fakeRequester{response: `{"success": true, "data": null}`}, nil)

	page, err := svc.List(context.Background(), "badges", ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestService_ListErrors(t *testing.T) {
	svc := NewService(&fakeRequester{}, nil)
	_, err := svc.List(context.Background(), "payouts", ListOptions{})
	require.ErrorIs(t, err, ErrUnknownResource)

	apiErr := &apiclient.APIError{StatusCode: http.StatusForbidden, Message: "forbidden"}
	svc = NewService(&fakeRequester{err: apiErr}, nil)
	_, err = svc.List(context.Background(), "gifts", ListOptions{})
	require.ErrorAs(t, err, &apiErr)

	svc = NewService(&fakeRequester{response: `{"data": "nope"}`}, nil)
	_, err = svc.List(context.Background(), "gifts", ListOptions{})
	require.Error(t, err)
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRequester{response: `{"success": true, "data": {"id": 7, "name": "Rose", "coin_price": 1500000}}`}
	svc := NewService(fake, nil)

	item, err := svc.Get(ctx, "gifts", "7")
	require.NoError(t, err)
	assert.Equal(t, "1500000", item.Field("coin_price"))

	body := map[string]any{"name": "Rose"}
	_, err = svc.Create(ctx, "gifts", body)
	require.NoError(t, err)

	_, err = svc.Update(ctx, "gifts", "7", body)
	require.NoError(t, err)

	fake.response = ""
	require.NoError(t, svc.Delete(ctx, "gifts", "a/b"))

	assert.Equal(t, []call{
		{path: "admin/gift-types/7", method: http.MethodGet},
		{path: "admin/gift-types", method: http.MethodPost, body: body},
		{path: "admin/gift-types/7", method: http.MethodPut, body: body},
		{path: "admin/gift-types/a%2Fb", method: http.MethodDelete},
	}, fake.calls)
}

func TestService_MissingID(t *testing.T) {
	svc := NewService(&fakeRequester{}, nil)

	_, err := svc.Get(context.Background(), "gifts", " ")
	require.ErrorIs(t, err, ErrMissingID)
}

func TestItem_FieldNested(t *testing.T) {
	var item Item
	require.NoError(t, decodeNumbers([]byte(`{"tags": ["a", "b"], "owner": {"id": 1}}`), &item))

	assert.Equal(t, `["a","b"]`, item.Field("tags"))
	assert.Equal(t, `{"id":1}`, item.Field("owner"))
}
