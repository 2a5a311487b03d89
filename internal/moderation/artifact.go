package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/vidshare/moderator/internal/metrics"
	"github.com/vidshare/moderator/internal/model"
)

// fields of the result artifact
const (
	fieldIsNSFW     = "is_nsfw"
	fieldConfidence = "confidence"
	fieldDetails    = "details"
	fieldError      = "error"
)

// shapeError returns a model.ModerationError of KindArtifactInvalidShape
func shapeError(format string, args ...any) error {
	return &model.ModerationError{
		Kind:    model.KindArtifactInvalidShape,
		Message: fmt.Sprintf(format, args...),
	}
}

// decodeArtifact parses and validates the analyzer result. In lenient mode
// an absent or invalid confidence or details field gets its zero value,
// in strict mode it is an error. A valid is_nsfw is always required.
func decodeArtifact(ctx context.Context, b []byte, strict bool) (model.ModerationResult, error) {
	var res model.ModerationResult
	if len(bytes.TrimSpace(b)) == 0 {
		return res, &model.ModerationError{
			Kind:    model.KindArtifactMalformed,
			Message: "artifact is empty",
		}
	}

	var raw json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return res, &model.ModerationError{
			Kind:    model.KindArtifactMalformed,
			Message: "parsing artifact",
			Err:     err,
		}
	}
	if kind := model.JSONKind(raw); kind != "object" {
		return res, shapeError("expected an object, got %s", kind)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return res, &model.ModerationError{
			Kind:    model.KindArtifactMalformed,
			Message: "parsing artifact",
			Err:     err,
		}
	}

	// the analyzer reports its own failures as {"error": "...", "is_nsfw": true}
	if v, ok := doc[fieldError]; ok && model.JSONKind(v) != "null" {
		var msg string
		if err := json.Unmarshal(v, &msg); err != nil {
			msg = string(v)
		}
		if msg != "" {
			return res, shapeError("analyzer reported error: %s", msg)
		}
	}

	v, ok := doc[fieldIsNSFW]
	if !ok {
		return res, shapeError("field %s is missing", fieldIsNSFW)
	}
	if kind := model.JSONKind(v); kind != "bool" {
		return res, shapeError("field %s: expected bool, got %s", fieldIsNSFW, kind)
	}
	if err := json.Unmarshal(v, &res.IsNSFW); err != nil {
		return res, shapeError("field %s: %v", fieldIsNSFW, err)
	}

	confidence, err := decodeConfidence(doc)
	if err != nil {
		if strict {
			return model.ModerationResult{}, err
		}
		slog.WarnContext(ctx, "defaulting confidence to 0", "reason", err.Error())
	}
	res.Confidence = confidence

	details, err := decodeDetails(doc)
	if err != nil {
		if strict {
			return model.ModerationResult{}, err
		}
		slog.WarnContext(ctx, "defaulting details to empty", "reason", err.Error())
		details = []model.Finding{}
	}
	res.Details = details

	return res, nil
}

func decodeConfidence(doc map[string]json.RawMessage) (float64, error) {
	v, ok := doc[fieldConfidence]
	if !ok {
		return 0, shapeError("field %s is missing", fieldConfidence)
	}
	if kind := model.JSONKind(v); kind != "number" {
		return 0, shapeError("field %s: expected number, got %s", fieldConfidence, kind)
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, shapeError("field %s: %v", fieldConfidence, err)
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, shapeError("field %s: %v out of range [0,1]", fieldConfidence, f)
	}
	return f, nil
}

func decodeDetails(doc map[string]json.RawMessage) ([]model.Finding, error) {
	v, ok := doc[fieldDetails]
	if !ok {
		return []model.Finding{}, shapeError("field %s is missing", fieldDetails)
	}
	if kind := model.JSONKind(v); kind != "array" {
		return []model.Finding{}, shapeError("field %s: expected array, got %s", fieldDetails, kind)
	}
	details := []model.Finding{}
	if err := json.Unmarshal(v, &details); err != nil {
		return []model.Finding{}, shapeError("field %s: %v", fieldDetails, err)
	}
	return details, nil
}

// RemoveArtifact deletes the result file at path. A missing file is not an
// error. Other errors are logged and returned, callers are free to ignore them.
func RemoveArtifact(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	metrics.RecordCleanupFailure()
	slog.WarnContext(ctx, "removing artifact", "path", path, "error", err)
	return err
}
