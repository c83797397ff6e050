package upload

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
)

const (
	// FileField is the multipart field name carrying the upload.
	FileField = "file"

	// DefaultFilename is used when the client omits a filename.
	DefaultFilename = "upload.bin"
)

// ExtractFile advances mr to the first part whose form name is field and
// returns it along with the client-declared filename. Parts before it are
// skipped without being buffered. The caller owns the returned part.
func ExtractFile(mr *multipart.Reader, field string) (*multipart.Part, string, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", ErrNoFile
		}
		if err != nil {
			return nil, "", err
		}

		if part.FormName() != field {
			_ = part.Close()
			continue
		}

		return part, declaredFilename(part), nil
	}
}

// declaredFilename returns the filename parameter exactly as the client sent
// it. Part.FileName strips directory components, which would hide them from
// key sanitization.
func declaredFilename(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil || params["filename"] == "" {
		return DefaultFilename
	}
	return params["filename"]
}
