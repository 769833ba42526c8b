package apiclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/simp-lee/crudboard/internal/domain"
)

// File is a file part of a multipart request.
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Upload sends a multipart/form-data request built from fields and an
// optional file.
func (c *Client) Upload(ctx context.Context, method, path string, fields url.Values, file *File) (*Envelope, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				return nil, domain.NewAppError(domain.CodeInternal, "failed to encode form", err)
			}
		}
	}

	if file != nil && file.Content != nil {
		part, err := w.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeInternal, "failed to encode file", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, domain.NewAppError(domain.CodeInternal, "failed to read file", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to encode form", err)
	}

	return c.do(ctx, method, path, nil, &buf, w.FormDataContentType())
}
