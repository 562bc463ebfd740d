// Package media defines the normalized media model every platform
// extractor produces.
package media

import (
	"context"
	stderrors "errors"
	"time"

	"mediagrab/pkg/errors"
)

// FormatType classifies one downloadable asset
type FormatType string

const (
	FormatVideo FormatType = "video"
	FormatImage FormatType = "image"
	FormatAudio FormatType = "audio"
)

// ResultType classifies the overall content of an extraction
type ResultType string

const (
	TypeVideo     ResultType = "video"
	TypeImage     ResultType = "image"
	TypeSlideshow ResultType = "slideshow"
)

// Format is one extractable asset. Formats are ordered; the first format of
// each class is the preferred variant.
type Format struct {
	Type      FormatType `json:"type"`
	URL       string     `json:"url"`
	Label     string     `json:"label"`
	ItemID    string     `json:"item_id"`
	Thumbnail string     `json:"thumbnail,omitempty"`
}

// Engagement holds provider counters. It is only attached when the provider
// returned at least one nonzero value.
type Engagement struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Views    int64 `json:"views"`
}

// Zero reports whether every counter is zero
func (e Engagement) Zero() bool {
	return e.Likes == 0 && e.Comments == 0 && e.Shares == 0 && e.Views == 0
}

// Result is the outcome of one extraction. Exactly one of the success fields
// or the error fields is populated; Failed discriminates.
type Result struct {
	Title      string      `json:"title,omitempty"`
	Author     string      `json:"author,omitempty"`
	AuthorName string      `json:"author_name,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	Formats    []Format    `json:"formats,omitempty"`
	Type       ResultType  `json:"type,omitempty"`
	Engagement *Engagement `json:"engagement,omitempty"`
	UsedCookie bool        `json:"used_cookie"`
	Cached     bool        `json:"cached"`

	ErrorCode    errors.Kind `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Failed reports whether the result is the failure arm of the union
func (r *Result) Failed() bool {
	return r.ErrorCode != ""
}

// Failure builds a failure result from a taxonomy kind and message
func Failure(kind errors.Kind, message string) *Result {
	return &Result{ErrorCode: kind, ErrorMessage: message}
}

// FailureFromError builds a failure result from an error, unwrapping to
// find a taxonomy kind and classifying context expiry as TIMEOUT.
// Unrecognized errors become UNKNOWN.
func FailureFromError(err error) *Result {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return &Result{ErrorCode: e.Kind, ErrorMessage: e.Message}
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return &Result{ErrorCode: errors.KindTimeout, ErrorMessage: "operation timed out"}
	}
	return &Result{ErrorCode: errors.KindUnknown, ErrorMessage: err.Error()}
}

// Validate enforces the success invariant: a success carries at least one
// format. A zero-format success is rewritten into a NO_MEDIA failure.
func (r *Result) Validate() *Result {
	if r.Failed() {
		return r
	}
	if len(r.Formats) == 0 {
		return Failure(errors.KindNoMedia, "no downloadable media found")
	}
	return r
}

// CountByType returns the number of formats per media class, in a fixed
// video/image/audio key order
func (r *Result) CountByType() map[FormatType]int {
	counts := make(map[FormatType]int, 3)
	for _, f := range r.Formats {
		counts[f.Type]++
	}
	return counts
}

// DebugInfo is the introspection payload returned alongside a Result by the
// debug extraction path
type DebugInfo struct {
	Platform     string             `json:"platform"`
	Pool         map[string]int     `json:"pool"`
	TotalTime    time.Duration      `json:"total_time"`
	ProviderTime time.Duration      `json:"provider_time"`
	FormatCounts map[FormatType]int `json:"format_counts"`
}
