package httpadapter

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

var uploadFields = []string{"files", "file"}

// readUploadCandidates parses a multipart upload and opens every file part
// under the "files" or "file" field. The returned close function releases the
// opened parts and any temporary files spooled by the parser.
func readUploadCandidates(r *http.Request) ([]domain.UploadCandidate, func(), error) {
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, domain.WrapError(domain.ErrValidation, "parse upload", err)
	}

	form := r.MultipartForm
	opened := make([]multipart.File, 0)
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = form.RemoveAll()
	}

	candidates := make([]domain.UploadCandidate, 0)
	for _, field := range uploadFields {
		for _, header := range form.File[field] {
			file, err := header.Open()
			if err != nil {
				closeAll()
				return nil, nil, domain.WrapError(domain.ErrIO, "open upload part "+header.Filename, err)
			}
			opened = append(opened, file)
			candidates = append(candidates, domain.UploadCandidate{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			})
		}
	}

	if len(candidates) == 0 {
		closeAll()
		return nil, nil, domain.NewError(domain.ErrValidation, "parse upload", "multipart field 'files' or 'file' is required")
	}
	return candidates, closeAll, nil
}
