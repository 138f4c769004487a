// Package pdfinspect reads structural facts from stored PDFs at admission.
package pdfinspect

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

type Inspector struct {
	conf *model.Configuration
}

func New() *Inspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Inspector{conf: conf}
}

// PageCount opens the document with the lightweight reader. Malformed input
// can panic inside the parser; that is reported as a validation failure.
func (i *Inspector) PageCount(ctx context.Context, path string) (pages int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.ContextError("count pages", err)
	}
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = domain.NewError(domain.ErrValidation, "count pages", fmt.Sprintf("unreadable pdf: %v", r))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, domain.WrapError(domain.ErrValidation, "count pages", err)
	}
	defer f.Close()

	n := reader.NumPage()
	if n <= 0 {
		return 0, domain.NewError(domain.ErrValidation, "count pages", "document has no pages")
	}
	return n, nil
}

// Validate runs the relaxed structural validation used in strict admission.
func (i *Inspector) Validate(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return domain.ContextError("validate pdf", err)
	}
	if err := api.ValidateFile(path, i.conf); err != nil {
		return domain.WrapError(domain.ErrValidation, "validate pdf", err)
	}
	return nil
}
