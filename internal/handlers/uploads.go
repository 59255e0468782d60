package handlers

import (
	"fmt"
	"mime/multipart"
	"path"
	"strings"

	"github.com/google/uuid"
)

// uploadedFile wraps an optional multipart form file. Presence is checked
// once at the request boundary; a nil *uploadedFile means the field was not
// supplied.
type uploadedFile struct {
	header *multipart.FileHeader
	field  string
}

// formFile returns the first file submitted under the named field, or nil.
func formFile(form *multipart.Form, field string) *uploadedFile {
	if form == nil {
		return nil
	}
	headers := form.File[field]
	if len(headers) == 0 || headers[0] == nil {
		return nil
	}
	return &uploadedFile{header: headers[0], field: field}
}

func (f *uploadedFile) open() (multipart.File, error) {
	file, err := f.header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded %s: %w", f.field, err)
	}
	return file, nil
}

func (f *uploadedFile) contentType() string {
	return f.header.Header.Get("Content-Type")
}

// storageKey derives a collision-free object key under prefix, preserving the
// original file extension.
func (f *uploadedFile) storageKey(prefix string) string {
	ext := strings.ToLower(path.Ext(f.header.Filename))
	return fmt.Sprintf("%s/%s%s", strings.Trim(prefix, "/"), uuid.NewString(), ext)
}
