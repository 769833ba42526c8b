package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simp-lee/crudboard/internal/domain"
)

// ErrMalformedResponse is wrapped by errors produced for bodies that do not
// match the envelope contract.
var ErrMalformedResponse = errors.New("malformed response")

// Envelope is the decoded body of a successful response. Data holds the raw
// "data" member, or the whole body when the server answered with a bare item.
type Envelope struct {
	Data    json.RawMessage
	Meta    *domain.PageMeta
	Links   *domain.PageLinks
	Message string
}

// HasData reports whether the response carried a payload.
func (e *Envelope) HasData() bool {
	return e != nil && len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null"))
}

// errorBody is the shape of a failed response.
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// decodeEnvelope validates a 2xx body. An empty body (204) yields an empty
// envelope. A JSON object with a "data" member is treated as an envelope; any
// other JSON object is a bare item. Everything else is malformed.
func decodeEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &Envelope{}, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, malformed(err)
	}

	data, enveloped := members["data"]
	if !enveloped {
		return &Envelope{Data: json.RawMessage(raw)}, nil
	}

	env := &Envelope{Data: data}
	if m, ok := members["meta"]; ok && !isNull(m) {
		env.Meta = &domain.PageMeta{}
		if err := json.Unmarshal(m, env.Meta); err != nil {
			return nil, malformed(err)
		}
	}
	if l, ok := members["links"]; ok && !isNull(l) {
		env.Links = &domain.PageLinks{}
		if err := json.Unmarshal(l, env.Links); err != nil {
			return nil, malformed(err)
		}
	}
	if m, ok := members["message"]; ok && !isNull(m) {
		if err := json.Unmarshal(m, &env.Message); err != nil {
			return nil, malformed(err)
		}
	}
	return env, nil
}

// statusError converts a non-2xx response into an AppError. The server's
// message wins over the status text; field errors are kept only for 422.
func statusError(status int, raw []byte) *domain.AppError {
	var body errorBody
	if len(bytes.TrimSpace(raw)) > 0 {
		// Best effort: a non-JSON error page still yields a usable error.
		_ = json.Unmarshal(raw, &body)
	}

	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "request failed"
	}

	code := domain.CodeForStatus(status)
	if code == domain.CodeValidation {
		fields := body.Errors
		if fields == nil {
			fields = map[string][]string{}
		}
		return domain.NewValidationError(msg, fields)
	}
	return domain.NewAppError(code, msg, nil)
}

// DecodeData unmarshals the envelope payload into a T.
func DecodeData[T any](env *Envelope) (T, error) {
	var out T
	if !env.HasData() {
		return out, malformed(errors.New("missing data"))
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, malformed(err)
	}
	return out, nil
}

// DecodeList unmarshals a list response. The payload must be a JSON array.
func DecodeList[T any](env *Envelope) ([]T, error) {
	if !env.HasData() || bytes.TrimSpace(env.Data)[0] != '[' {
		return nil, malformed(errors.New("data is not a list"))
	}
	var out []T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, malformed(err)
	}
	return out, nil
}

func malformed(err error) error {
	return domain.NewAppError(domain.CodeInternal, ErrMalformedResponse.Error(), errors.Join(ErrMalformedResponse, err))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
