package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidshare/moderator/internal/model"
)

const (
	uploadPath  = "api/v1/moderation"
	contentType = "application/json"
)

// VerdictRepoUploader sends verdicts to a moderation repository over HTTP.
type VerdictRepoUploader struct {
	requestURL *url.URL
	client     *http.Client
}

func NewVerdictRepoUploader(serverURL string) (*VerdictRepoUploader, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the server url with a scheme and without path, e.g. `http://some-url.com`")
	}

	parsedURL.Path = uploadPath

	c := &VerdictRepoUploader{
		requestURL: parsedURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}

	return c, nil
}

func (c *VerdictRepoUploader) Upload(ctx context.Context, v model.Verdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	createResp, err := c.decodeUploadResponse(resp)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "verdict uploaded successfully.",
		slog.String("id", createResp.ID),
		slog.String("source", v.Source))

	return nil
}

type VerdictCreateResponse struct {
	ID string `json:"id"`
}

func (c *VerdictRepoUploader) decodeUploadResponse(resp *http.Response) (VerdictCreateResponse, error) {
	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return VerdictCreateResponse{}, fmt.Errorf("failed to parse response content type header: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		if contentType != "application/json" {
			return VerdictCreateResponse{}, fmt.Errorf("expected `application/json` content type, got: %s", contentType)
		}
		var vc VerdictCreateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vc); err != nil {
			return VerdictCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		if vc.ID == "" {
			return VerdictCreateResponse{}, errors.New("received unexpected body")
		}
		return vc, nil

	case http.StatusBadRequest, http.StatusConflict, http.StatusUnsupportedMediaType:
		if contentType != "application/problem+json" {
			return VerdictCreateResponse{}, fmt.Errorf("expected `application/problem+json` content type, got: %s", contentType)
		}
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return VerdictCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		return VerdictCreateResponse{}, fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return VerdictCreateResponse{}, err
	}
	return VerdictCreateResponse{}, fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
