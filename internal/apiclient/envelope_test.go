package apiclient

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	type gift struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	t.Run("envelope with metadata", func(t *testing.T) {
		raw := json.RawMessage(`{
			"status": 200,
			"success": true,
			"message": "ok",
			"data": [{"id": "1", "name": "Rose"}],
			"metadata": {"page": 2, "limit": 10, "total": 11, "total_pages": 2}
		}`)

		var out []gift
		meta, err := Unwrap(raw, &out)
		require.NoError(t, err)
		assert.Equal(t, []gift{{ID: "1", Name: "Rose"}}, out)
		assert.Equal(t, &Metadata{Page: 2, Limit: 10, Total: 11, TotalPages: 2}, meta)
	})

	t.Run("string status", func(t *testing.T) {
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(`{"status":"success","data":null}`), &env))
		assert.Equal(t, Status("success"), env.Status)
	})

	t.Run("bare object", func(t *testing.T) {
		var out gift
		meta, err := Unwrap(json.RawMessage(`{"id": "2", "name": "Heart"}`), &out)
		require.NoError(t, err)
		assert.Nil(t, meta)
		assert.Equal(t, gift{ID: "2", Name: "Heart"}, out)
	})

	t.Run("bare array", func(t *testing.T) {
		var out []gift
		_, err := Unwrap(json.RawMessage(`[{"id": "3"}]`), &out)
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("null data leaves out untouched", func(t *testing.T) {
		out := gift{ID: "keep"}
		_, err := Unwrap(json.RawMessage(`{"success": true, "data": null}`), &out)
		require.NoError(t, err)
		assert.Equal(t, "keep", out.ID)
	})

	t.Run("empty", func(t *testing.T) {
		meta, err := Unwrap(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("type mismatch", func(t *testing.T) {
		var out []gift
		_, err := Unwrap(json.RawMessage(`{"data": {"id": 1}}`), &out)
		require.Error(t, err)
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: http.StatusNotFound, Message: "user not found"}
	assert.Equal(t, "user not found (404 Not Found)", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(&APIError{StatusCode: http.StatusBadRequest}))
}
