package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the standard wrapper around API payloads.
type Envelope struct {
	Status   Status          `json:"status"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Metadata carries pagination for list responses.
type Metadata struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Status is the envelope status, the API sends either a number or a string.
type Status string

func (s *Status) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Status(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid envelope status: %w", err)
	}
	*s = Status(num.String())
	return nil
}

// Unwrap decodes an enveloped payload into out and returns its metadata.
// Bodies without a data member are decoded directly.
func Unwrap(raw json.RawMessage, out any) (*Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// not an object, decode as is
		if out == nil {
			return nil, nil
		}
		return nil, json.Unmarshal(raw, out)
	}

	if _, ok := fields["data"]; !ok {
		if out == nil {
			return nil, nil
		}
		return nil, json.Unmarshal(raw, out)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Metadata, err
		}
	}

	return env.Metadata, nil
}
