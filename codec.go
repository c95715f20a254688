package callapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// JSONSerializer is the default body serializer. Byte slices and strings
// pass through untouched; everything else is JSON-encoded.
func JSONSerializer(v any) ([]byte, string, error) {
	switch body := v.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return body, "", nil
	case string:
		return []byte(body), "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}

// JSONParser is the default response parser. JSON responses decode into
// generic values (map[string]any / []any / primitives); non-JSON bodies are
// returned as strings. An empty body parses to nil.
func JSONParser(resp *http.Response, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if resp != nil && isJSONContent(resp.Header.Get("Content-Type")) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode response body: %w", err)
		}
		return v, nil
	}
	return string(data), nil
}

func isJSONContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := contentType
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		mediaType = contentType[:idx]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// DecodeJSON unmarshals a result's raw body into T. It is the typed
// counterpart of Result.Data for callers that know the response shape.
func DecodeJSON[T any](res *Result) (T, error) {
	var out T
	if res == nil {
		return out, fmt.Errorf("callapi: nil result")
	}
	if res.Error != nil {
		return out, res.Error
	}
	if len(res.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return out, &Error{
			Type:    ErrorTypeParse,
			Message: "decode typed response",
			Cause:   err,
		}
	}
	return out, nil
}

// FetchJSON performs a call and decodes the response body into T.
func FetchJSON[T any](ctx context.Context, c *Client, url string, opts ...CallOption) (T, *Result, error) {
	res, err := c.Fetch(ctx, url, opts...)
	if err != nil {
		var zero T
		return zero, res, err
	}
	out, err := DecodeJSON[T](res)
	return out, res, err
}
