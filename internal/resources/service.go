package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/joynix/joynix-admin/internal/apiclient"
)

// DefaultLimit is the page size when none is given.
const DefaultLimit = 20

var ErrMissingID = errors.New("resource id is required")

// Requester performs API calls, satisfied by *apiclient.Client.
type Requester interface {
	Request(ctx context.Context, path string, opts apiclient.RequestOptions) (json.RawMessage, error)
}

// Item is a single record, numbers are kept as json.Number.
type Item map[string]any

// ID returns the record id as text.
func (i Item) ID() string {
	return i.Field("id")
}

// Field formats a top level value for display.
func (i Item) Field(name string) string {
	switch v := i[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// ListOptions selects a page of a collection.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// Query encodes the options, zero values are omitted.
func (o ListOptions) Query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		q.Set("search", s)
	}
	return q
}

// Page is one page of a listing.
type Page struct {
	Items    []Item             `json:"items"`
	Metadata apiclient.Metadata `json:"metadata"`
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool {
	return p.Metadata.TotalPages > 0 && p.Metadata.Page < p.Metadata.TotalPages
}

// Service performs CRUD calls against registered resources.
type Service struct {
	requester Requester
	registry  *Registry
}

// NewService creates a service, a nil registry uses Default.
func NewService(requester Requester, registry *Registry) *Service {
	if registry == nil {
		registry = Default()
	}
	return &Service{requester: requester, registry: registry}
}

// Registry returns the registry backing the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// List fetches a page of the named collection.
func (s *Service) List(ctx context.Context, name string, opts ListOptions) (*Page, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	raw, err := s.requester.Request(ctx, res.Path+"?"+opts.Query().Encode(), apiclient.RequestOptions{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", name, err)
	}

	var data json.RawMessage
	meta, err := apiclient.Unwrap(raw, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	items, err := decodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	page := &Page{Items: items}
	if meta != nil {
		page.Metadata = *meta
	} else {
		page.Metadata = apiclient.Metadata{Page: opts.Page, Limit: opts.Limit, Total: len(items), TotalPages: 1}
	}

	return page, nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, name, id string) (Item, error) {
	return s.one(ctx, name, id, http.MethodGet, nil)
}

// Create posts a new record and returns what the API stored.
func (s *Service) Create(ctx context.Context, name string, body any) (Item, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	raw, err := s.requester.Request(ctx, res.Path, apiclient.RequestOptions{Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return decodeItem(raw)
}

// Update replaces the record id.
func (s *Service) Update(ctx context.Context, name, id string, body any) (Item, error) {
	return s.one(ctx, name, id, http.MethodPut, body)
}

// Delete removes the record id.
func (s *Service) Delete(ctx context.Context, name, id string) error {
	_, err := s.one(ctx, name, id, http.MethodDelete, nil)
	return err
}

func (s *Service) one(ctx context.Context, name, id, method string, body any) (Item, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingID
	}

	raw, err := s.requester.Request(ctx, res.Path+"/"+url.PathEscape(id), apiclient.RequestOptions{Method: method, Body: body})
	if err != nil {
		return nil, fmt.Errorf("%s %s/%s: %w", strings.ToLower(method), name, id, err)
	}
	return decodeItem(raw)
}

func decodeItem(raw json.RawMessage) (Item, error) {
	var data json.RawMessage
	if _, err := apiclient.Unwrap(raw, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var item Item
	if err := decodeNumbers(data, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// decodeItems accepts a bare array or an object holding one under items.
func decodeItems(data json.RawMessage) ([]Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Item{}, nil
	}

	if data[0] == '{' {
		var wrapped struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return decodeItems(wrapped.Items)
	}

	items := []Item{}
	if err := decodeNumbers(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeNumbers(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
