package model

import "context"

// Uploader publishes a verdict somewhere, implementations must be safe
// for a concurrent use.
type Uploader interface {
	Upload(ctx context.Context, v Verdict) error
}

type UploadCloser interface {
	Uploader
	Close() error
}
