package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// apiPath is the GraphQL endpoint, relative to the configured base URL.
const apiPath = "/api/v1"

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute posts a query or mutation and decodes the data payload into out.
func (s *session) execute(ctx context.Context, op, query string, vars map[string]any, out any) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(gqlRequest{Query: query, Variables: vars}).
		Post(apiPath)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return decodeEnvelope(op, resp, out)
}

// executeUpload posts a mutation with a single attached file, following the
// GraphQL multipart request convention: an operations part holding the query
// with the file variable nulled out, a map part binding form field "0" to that
// variable, and the file itself as part "0".
func (s *session) executeUpload(ctx context.Context, op, query string, vars map[string]any, fileVar, filename string, file io.Reader, out any) error {
	vars[fileVar] = nil
	operations, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	fileMap, err := json.Marshal(map[string][]string{"0": {"variables." + fileVar}})
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"operations": string(operations),
			"map":        string(fileMap),
		}).
		SetMultipartField("0", filename, "application/octet-stream", file).
		Post(apiPath)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return decodeEnvelope(op, resp, out)
}

func decodeEnvelope(op string, resp *resty.Response, out any) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthenticationError{Reason: "token rejected by service"}
	case code < http.StatusOK || code >= http.StatusMultipleChoices:
		return &TransportError{Op: op, StatusCode: code, Body: strings.TrimSpace(string(resp.Body()))}
	}
	var env gqlEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &ResponseParseError{Op: op, Err: err}
	}
	if len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return &graphQLError{Op: op, Messages: msgs}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &ResponseParseError{Op: op, Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ResponseParseError{Op: op, Err: err}
	}
	return nil
}
