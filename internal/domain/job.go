package domain

import "strings"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindTextToVideo  JobKind = "text_to_video"
	JobKindImageToVideo JobKind = "image_to_video"
	JobKindTextToImage  JobKind = "text_to_image"
	JobKindImageToImage JobKind = "image_to_image"
)

// IsVideo reports whether the kind produces a video asset.
func (k JobKind) IsVideo() bool {
	return k == JobKindTextToVideo || k == JobKindImageToVideo
}

// IsImageDriven reports whether the kind requires at least one input image.
func (k JobKind) IsImageDriven() bool {
	return k == JobKindImageToVideo || k == JobKindImageToImage
}

// LifecycleState is the local simplification of the remote job status
// vocabulary. The UI renders this enum directly; the remote vocabulary is
// mapped onto it in exactly one place (MapRemoteStatus).
type LifecycleState string

const (
	StateWaiting    LifecycleState = "waiting"
	StateConfirmed  LifecycleState = "confirmed"
	StateGenerating LifecycleState = "generating"
	StateReady      LifecycleState = "ready"
	StateFailed     LifecycleState = "failed"
)

// Terminal reports whether the state stops polling.
func (s LifecycleState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// GenerationJob tracks one remote generation request locally.
type GenerationJob struct {
	JobID        string
	Kind         JobKind
	State        LifecycleState
	ResultURL    string
	ErrorMessage string
}

// SuccessStatus reports whether the remote status belongs to the success
// vocabulary, regardless of whether an asset has been delivered yet.
func SuccessStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "succeed", "success", "completed":
		return true
	}
	return false
}

// MapRemoteStatus translates a remote job status into the local lifecycle.
// A success status without a produced asset is still "generating": some
// providers report completion before the asset URL is available.
func MapRemoteStatus(status, assetURL string) LifecycleState {
	if SuccessStatus(status) {
		if strings.TrimSpace(assetURL) == "" {
			return StateGenerating
		}
		return StateReady
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "error":
		return StateFailed
	default:
		return StateGenerating
	}
}
