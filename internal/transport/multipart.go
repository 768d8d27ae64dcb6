package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/af-corp/prism-gateway/internal/idempotency"
	"github.com/af-corp/prism-gateway/internal/upload"
)

// PostMultipart sends validated parts as a multipart/form-data body. File
// handles are opened here, per attempt, and closed on every exit path; the
// body is rebuilt from part metadata for each retry.
func (c *Client) PostMultipart(ctx context.Context, path string, parts []upload.Part, opts CallOptions) (*WireResponse, error) {
	var idemKey string
	if opts.Idempotent {
		key, err := idempotency.BuildKey(partsFingerprint(parts), c.cfg.IdempotencyBucketSeconds, time.Now())
		if err != nil {
			return nil, fmt.Errorf("build idempotency key: %w", err)
		}
		idemKey = key
	}

	return c.execute(ctx, opts, func() (*http.Request, error) {
		body, contentType, err := encodeMultipart(parts)
		if err != nil {
			return nil, err
		}

		uploadTotal := int64(body.Len())
		var reqBody io.Reader = body
		if opts.Progress != nil {
			reqBody = &countingReader{
				r:     body,
				total: uploadTotal,
				report: func(total, done int64) {
					opts.Progress(0, 0, total, done)
				},
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.ContentLength = uploadTotal
		req.Header.Set("Content-Type", contentType)
		c.setCommonHeaders(req, idemKey, opts.Headers)
		return req, nil
	})
}

// encodeMultipart writes all parts into a buffer. Each file is opened,
// copied, and closed inside its own scope so a failure mid-encode never
// leaks a handle.
func encodeMultipart(parts []upload.Part) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, part := range parts {
		if part.File == nil {
			if err := w.WriteField(part.Field, part.Value); err != nil {
				w.Close()
				return nil, "", fmt.Errorf("write field %s: %w", part.Field, err)
			}
			continue
		}
		if err := copyFilePart(w, part.Field, part.File); err != nil {
			w.Close()
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func copyFilePart(w *multipart.Writer, field string, ref *upload.FileRef) error {
	f, err := os.Open(ref.Path)
	if err != nil {
		return fmt.Errorf("open %s for part %s: %w", ref.Path, field, err)
	}
	defer f.Close()

	contentType := ref.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(ref.Path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, ref.Filename)}
	h["Content-Type"] = []string{contentType}
	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", field, err)
	}
	if _, err := io.Copy(pw, f); err != nil {
		return fmt.Errorf("copy %s into part %s: %w", ref.Path, field, err)
	}
	return nil
}

// partsFingerprint reduces parts to a stable payload for key derivation:
// scalar values as-is, files as path plus size.
func partsFingerprint(parts []upload.Part) map[string]any {
	m := make(map[string]any, len(parts))
	for _, part := range parts {
		if part.File != nil {
			m[part.Field] = fmt.Sprintf("%s:%d", part.File.Path, part.File.Size)
			continue
		}
		m[part.Field] = part.Value
	}
	return m
}
