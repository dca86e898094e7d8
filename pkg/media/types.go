package media

import (
	"context"
	"fmt"
)

// TaskState is the normalized lifecycle of a remote async job. Provider
// specific status codes never leave this package.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateProcessing TaskState = "processing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
	// StateTimedOut is assigned locally when a bounded poll budget runs out.
	// The remote job may still finish and stays queryable by task id.
	StateTimedOut TaskState = "timed_out"
)

// Terminal reports whether the remote side will not change the state again.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TaskStatus is one observation of a remote task.
type TaskStatus struct {
	TaskID       string    `json:"taskId"`
	State        TaskState `json:"state"`
	ResultURL    string    `json:"resultUrl,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
}

// CheckTaskFunc looks up a task of unknown kind by id.
type CheckTaskFunc func(ctx context.Context, taskID string) (TaskStatus, error)

// SpeechSynthesizer submits text-to-speech jobs and reports their status.
// An empty voiceCloneID selects the provider's default voice.
type SpeechSynthesizer interface {
	SubmitTTS(ctx context.Context, text, voiceCloneID string) (string, error)
	Check(ctx context.Context, taskID string) (TaskStatus, error)
}

// VoiceCloner trains a voice from a sample recording. CheckVoiceClone
// additionally returns the clone id once the training task completes.
type VoiceCloner interface {
	SubmitVoiceClone(ctx context.Context, voiceSampleURL string) (string, error)
	CheckVoiceClone(ctx context.Context, taskID string) (TaskStatus, string, error)
}

// VideoSynthesizer animates a still image with an audio track.
type VideoSynthesizer interface {
	SubmitVideo(ctx context.Context, imageURL, audioURL, prompt string) (string, error)
	Check(ctx context.Context, taskID string) (TaskStatus, error)
}

// SubmissionError indicates a job could not be handed to the remote
// service at all, as opposed to a job that was accepted and later failed.
type SubmissionError struct {
	Op      string
	Status  int
	Message string
}

func (e *SubmissionError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s submission failed: %s (http %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s submission failed: %s", e.Op, e.Message)
}
