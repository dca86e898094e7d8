package media

import (
	"context"
	"strings"
)

const defaultVoiceID = "en-US-1"

// NewportSpeech implements SpeechSynthesizer on the Newport TTS APIs.
type NewportSpeech struct {
	client       *NewportClient
	defaultVoice string
	language     string
}

// NewNewportSpeech builds a speech synthesizer. defaultVoice falls back to
// the provider stock voice when empty.
func NewNewportSpeech(client *NewportClient, defaultVoice string) *NewportSpeech {
	defaultVoice = strings.TrimSpace(defaultVoice)
	if defaultVoice == "" {
		defaultVoice = defaultVoiceID
	}
	return &NewportSpeech{client: client, defaultVoice: defaultVoice, language: "en"}
}

// SubmitTTS starts a text-to-speech job. A non-empty voiceCloneID selects
// the cloned-voice endpoint, otherwise the stock voice is used.
func (s *NewportSpeech) SubmitTTS(ctx context.Context, text, voiceCloneID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &SubmissionError{Op: "tts", Message: "text required"}
	}
	if voiceCloneID = strings.TrimSpace(voiceCloneID); voiceCloneID != "" {
		return s.client.submit(ctx, "tts", "/async/do_tts_clone", map[string]string{
			"cloneId": voiceCloneID,
			"text":    text,
			"lan":     s.language,
		})
	}
	return s.client.submit(ctx, "tts", "/async/do_tts_pro", map[string]string{
		"audioId": s.defaultVoice,
		"text":    text,
		"lan":     s.language,
	})
}

// Check returns the normalized status of a TTS task, with the audio URL
// filled in on completion.
func (s *NewportSpeech) Check(ctx context.Context, taskID string) (TaskStatus, error) {
	status, data, err := s.client.getAsyncResult(ctx, taskID)
	if err != nil {
		return status, err
	}
	if status.State == StateCompleted {
		if len(data.Audios) == 0 || data.Audios[0].AudioURL == "" {
			status.State = StateFailed
			status.ErrorMessage = "completed task returned no audio"
			return status, nil
		}
		status.ResultURL = data.Audios[0].AudioURL
	}
	return status, nil
}

// SubmitVoiceClone starts training a voice clone from a recorded sample.
func (s *NewportSpeech) SubmitVoiceClone(ctx context.Context, voiceSampleURL string) (string, error) {
	if strings.TrimSpace(voiceSampleURL) == "" {
		return "", &SubmissionError{Op: "voice_clone", Message: "voice sample url required"}
	}
	return s.client.submit(ctx, "voice_clone", "/async/voice_clone", map[string]string{
		"voiceUrl": voiceSampleURL,
	})
}

// CheckVoiceClone returns the clone task status; the clone id is carried
// in ResultURL's place via the returned string when completed.
func (s *NewportSpeech) CheckVoiceClone(ctx context.Context, taskID string) (TaskStatus, string, error) {
	status, data, err := s.client.getAsyncResult(ctx, taskID)
	if err != nil {
		return status, "", err
	}
	if status.State == StateCompleted {
		if data.CloneID == "" {
			status.State = StateFailed
			status.ErrorMessage = "completed clone task returned no clone id"
			return status, "", nil
		}
		return status, data.CloneID, nil
	}
	return status, "", nil
}

var _ SpeechSynthesizer = (*NewportSpeech)(nil)
