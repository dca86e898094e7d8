package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultNewportBaseURL = "https://api.newportai.com/api"

// Remote task status codes used by the Newport async APIs.
const (
	newportStatusPending    = 1
	newportStatusProcessing = 2
	newportStatusCompleted  = 3
	newportStatusFailed     = 4
)

// NewportClient talks to the Newport AI async job APIs. Both the speech
// and video synthesizers share it: submission endpoints differ per job
// kind, status is always fetched from getAsyncResult.
type NewportClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewNewportClient constructs a client with the provided API key.
func NewNewportClient(apiKey, baseURL string) (*NewportClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("newport api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultNewportBaseURL
	}
	return &NewportClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// submit posts a job payload and returns the remote task id. Any non-2xx
// response, API-level error code, or missing task id becomes a
// *SubmissionError.
func (c *NewportClient) submit(ctx context.Context, op, path string, payload any) (string, error) {
	var resp newportResponse
	status, err := c.doJSON(ctx, path, payload, &resp)
	if err != nil {
		return "", &SubmissionError{Op: op, Status: status, Message: err.Error()}
	}
	if resp.Code != 0 {
		return "", &SubmissionError{Op: op, Message: newportErrMessage(resp)}
	}
	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || strings.TrimSpace(data.TaskID) == "" {
		return "", &SubmissionError{Op: op, Message: "response missing task id"}
	}
	return data.TaskID, nil
}

// getAsyncResult fetches the raw remote status for a task and normalizes
// the provider status code into TaskState.
func (c *NewportClient) getAsyncResult(ctx context.Context, taskID string) (TaskStatus, asyncResultData, error) {
	status := TaskStatus{TaskID: taskID}
	var resp newportResponse
	if _, err := c.doJSON(ctx, "/getAsyncResult", map[string]string{"taskId": taskID}, &resp); err != nil {
		return status, asyncResultData{}, err
	}
	if resp.Code != 0 {
		status.State = StateFailed
		status.ErrorMessage = newportErrMessage(resp)
		return status, asyncResultData{}, nil
	}
	var data asyncResultData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return status, asyncResultData{}, fmt.Errorf("decode async result: %w", err)
	}
	switch data.Task.Status {
	case newportStatusPending:
		status.State = StatePending
	case newportStatusProcessing:
		status.State = StateProcessing
	case newportStatusCompleted:
		status.State = StateCompleted
	case newportStatusFailed:
		status.State = StateFailed
		status.ErrorMessage = data.Task.Reason
		if status.ErrorMessage == "" {
			status.ErrorMessage = "task failed"
		}
	default:
		status.State = StateFailed
		status.ErrorMessage = fmt.Sprintf("unknown remote status %d", data.Task.Status)
	}
	return status, data, nil
}

// CheckTask fetches status for a task of unknown kind. The result URL is
// taken from whichever media list the remote response carries.
func (c *NewportClient) CheckTask(ctx context.Context, taskID string) (TaskStatus, error) {
	status, data, err := c.getAsyncResult(ctx, taskID)
	if err != nil {
		return status, err
	}
	if status.State == StateCompleted {
		if len(data.Videos) > 0 {
			status.ResultURL = data.Videos[0].VideoURL
		} else if len(data.Audios) > 0 {
			status.ResultURL = data.Audios[0].AudioURL
		}
	}
	return status, nil
}

func (c *NewportClient) doJSON(ctx context.Context, path string, payload any, out *newportResponse) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp newportResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Message != "" {
			return resp.StatusCode, fmt.Errorf("newport api error: %s", errResp.Message)
		}
		return resp.StatusCode, fmt.Errorf("newport api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

type newportResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newportErrMessage(resp newportResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return fmt.Sprintf("remote error code %d", resp.Code)
}

type asyncResultData struct {
	Task struct {
		Status int    `json:"status"`
		Reason string `json:"reason"`
	} `json:"task"`
	Audios []struct {
		AudioURL string `json:"audioUrl"`
	} `json:"audios"`
	Videos []struct {
		VideoURL string `json:"videoUrl"`
	} `json:"videos"`
	CloneID string `json:"cloneId"`
}
