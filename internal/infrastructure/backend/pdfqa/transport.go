package pdfqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

const (
	maxErrorBodyBytes  = 64 << 10
	maxExportBodyBytes = 128 << 20
)

// rawResponse is a successful reply kept as bytes for callers that branch on
// the content type.
type rawResponse struct {
	ContentType string
	Body        []byte
}

func (r rawResponse) isJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}

func (c *Client) getJSON(ctx context.Context, path string, out any, operation string) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out, operation)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return c.doJSON(ctx, http.MethodPost, path, payload, out, operation)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	resp, err := c.send(ctx, method, path, payload, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ContextError(operation, ctxErr)
		}
		return domain.WrapError(domain.ErrResponseFormat, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) postRaw(ctx context.Context, path string, payload any, operation string) (rawResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, path, payload, operation)
	if err != nil {
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return rawResponse{}, statusError(operation, resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBodyBytes+1))
	if err != nil {
		return rawResponse{}, transportError(ctx, operation, err)
	}
	if len(body) > maxExportBodyBytes {
		return rawResponse{}, domain.NewError(domain.ErrResponseFormat, operation,
			fmt.Sprintf("response exceeds %d MiB", maxExportBodyBytes>>20))
	}
	return rawResponse{ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any, operation string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, operation, err)
	}
	return resp, nil
}

// transportError separates "the backend never answered" from caller
// cancellation and from the client-side timeout.
func transportError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.ContextError(operation, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.ErrTimeout, operation, err)
	}
	return domain.WrapError(domain.ErrUnreachable, operation, err)
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return domain.WrapError(domain.ErrBackendRejected, operation, &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	})
}
