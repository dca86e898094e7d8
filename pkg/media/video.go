package media

import (
	"context"
	"strings"
)

const defaultVideoResolution = "480p"

// NewportVideo implements VideoSynthesizer on the DreamAvatar
// image-to-video API.
type NewportVideo struct {
	client     *NewportClient
	resolution string
}

// NewNewportVideo builds a video synthesizer.
func NewNewportVideo(client *NewportClient) *NewportVideo {
	return &NewportVideo{client: client, resolution: defaultVideoResolution}
}

// SubmitVideo starts a talking-head render from a still image and an
// audio track.
func (v *NewportVideo) SubmitVideo(ctx context.Context, imageURL, audioURL, prompt string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", &SubmissionError{Op: "video", Message: "image url required"}
	}
	if strings.TrimSpace(audioURL) == "" {
		return "", &SubmissionError{Op: "video", Message: "audio url required"}
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = "a person talking naturally"
	}
	return v.client.submit(ctx, "video", "/async/dreamavatar/image_to_video/3.0fast", map[string]string{
		"audio":      audioURL,
		"image":      imageURL,
		"prompt":     prompt,
		"resolution": v.resolution,
	})
}

// Check returns the normalized status of a video task, with the video URL
// filled in on completion.
func (v *NewportVideo) Check(ctx context.Context, taskID string) (TaskStatus, error) {
	status, data, err := v.client.getAsyncResult(ctx, taskID)
	if err != nil {
		return status, err
	}
	if status.State == StateCompleted {
		if len(data.Videos) == 0 || data.Videos[0].VideoURL == "" {
			status.State = StateFailed
			status.ErrorMessage = "completed task returned no video"
			return status, nil
		}
		status.ResultURL = data.Videos[0].VideoURL
	}
	return status, nil
}

var _ VideoSynthesizer = (*NewportVideo)(nil)
