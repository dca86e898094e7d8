package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"echoself/internal/app"
	"echoself/internal/ratelimit"
	"echoself/pkg/ai"
	"echoself/pkg/media"
	"echoself/pkg/storage"
	"echoself/pkg/store"
)

type stubSessions struct {
	tokens map[string]string
	next   int
}

func newStubSessions() *stubSessions {
	return &stubSessions{tokens: map[string]string{}}
}

func (s *stubSessions) NewSession(userID string) (string, error) {
	s.next++
	token := fmt.Sprintf("tok-%d", s.next)
	s.tokens[token] = userID
	return token, nil
}

func (s *stubSessions) GetUserIDByToken(token string) (string, bool, error) {
	userID, ok := s.tokens[token]
	return userID, ok, nil
}

func (s *stubSessions) DeleteSession(token string) error {
	delete(s.tokens, token)
	return nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Complete(_ context.Context, _ string, _ []ai.ChatMessage) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type serverOptions struct {
	checker media.CheckTaskFunc
	limiter *ratelimit.FixedWindowLimiter
	speech  media.SpeechSynthesizer
	objects storage.ObjectStore
}

func newTestServer(t *testing.T, opts serverOptions) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{
		Store:       store.NewMemoryStore(),
		Sessions:    newStubSessions(),
		Generator:   &stubGenerator{reply: "hello from persona"},
		Embedder:    stubEmbedder{},
		TaskChecker: opts.checker,
		Speech:      opts.speech,
		Objects:     opts.objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := New(Config{App: a, ChatLimiter: opts.limiter})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func registerUser(t *testing.T, baseURL, email string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/auth/register", "", map[string]string{
		"email": email, "password": "secret-password", "name": "Alice",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(body["token"], &token); err != nil || token == "" {
		t.Fatalf("register returned no token: %v", err)
	}
	return token
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	token := registerUser(t, ts.URL, "alice@example.com")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with token expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token expected 401, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "secret-password", "name": "Alice Again",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register expected 409, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login expected 401, got %d (%s)", resp.StatusCode, body["error"])
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout expected 401, got %d", resp.StatusCode)
	}
}

func TestSendMessageOverHTTP(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	token := registerUser(t, ts.URL, "bob@example.com")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/conversations", token, map[string]string{"title": "First chat"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation expected 201, got %d", resp.StatusCode)
	}
	var convID string
	if err := json.Unmarshal(body["id"], &convID); err != nil || convID == "" {
		t.Fatalf("conversation response missing id: %v", err)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/conversations/"+convID+"/messages", token,
		map[string]string{"content": "hi there"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send message expected 200, got %d (%s)", resp.StatusCode, body["error"])
	}
	var mediaStatus string
	if err := json.Unmarshal(body["mediaStatus"], &mediaStatus); err != nil || mediaStatus != app.MediaNone {
		t.Fatalf("mediaStatus = %s, want %q", body["mediaStatus"], app.MediaNone)
	}
	var msg struct {
		Content string `json:"content"`
		Role    string `json:"role"`
	}
	if err := json.Unmarshal(body["message"], &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Content != "hello from persona" || msg.Role != "assistant" {
		t.Fatalf("unexpected reply %+v", msg)
	}

	// Someone else's (or nonexistent) conversation is indistinguishable
	// from a missing one.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/conversations/not-mine/messages", token,
		map[string]string{"content": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign conversation expected 404, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/conversations/"+convID+"/messages", token,
		map[string]string{"content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank content expected 400, got %d", resp.StatusCode)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewFixedWindowLimiter(client, "chat", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, serverOptions{limiter: limiter})
	token := registerUser(t, ts.URL, "carol@example.com")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/conversations", token, map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation expected 201, got %d (%s)", resp.StatusCode, body["error"])
	}
	var convID string
	_ = json.Unmarshal(body["id"], &convID)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/conversations/"+convID+"/messages", token,
		map[string]string{"content": "first"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first message expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/conversations/"+convID+"/messages", token,
		map[string]string{"content": "second"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second message expected 429, got %d", resp.StatusCode)
	}
}

func TestMediaStatusEndpoint(t *testing.T) {
	checker := func(_ context.Context, taskID string) (media.TaskStatus, error) {
		return media.TaskStatus{TaskID: taskID, State: media.StateCompleted, ResultURL: "https://cdn/video.mp4"}, nil
	}
	ts := newTestServer(t, serverOptions{checker: checker})
	token := registerUser(t, ts.URL, "dave@example.com")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/media/status/task-9", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("media status expected 200, got %d", resp.StatusCode)
	}
	var state string
	if err := json.Unmarshal(body["state"], &state); err != nil || state != string(media.StateCompleted) {
		t.Fatalf("state = %s, want completed", body["state"])
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/media/status/task-9", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated expected 401, got %d", resp.StatusCode)
	}
}

func TestKnowledgeUploadListDelete(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	token := registerUser(t, ts.URL, "erin@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, "The persona grew up near the sea and loves sailing."); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/knowledge", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d (%s)", resp.StatusCode, raw)
	}

	listResp, body := doJSON(t, http.MethodGet, ts.URL+"/knowledge", token, nil)
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("list expected 200, got %d", listResp.StatusCode)
	}
	var docs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body["documents"], &docs); err != nil || len(docs) == 0 {
		t.Fatalf("expected stored documents, got %s", body["documents"])
	}

	delResp, _ := doJSON(t, http.MethodDelete, ts.URL+"/knowledge/"+docs[0].ID, token, nil)
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete expected 200, got %d", delResp.StatusCode)
	}
}

type cloneSpeechStub struct {
	taskID string
	status media.TaskStatus
	clone  string
}

func (s *cloneSpeechStub) SubmitTTS(context.Context, string, string) (string, error) {
	return "", &media.SubmissionError{Op: "tts", Message: "not configured"}
}

func (s *cloneSpeechStub) Check(_ context.Context, taskID string) (media.TaskStatus, error) {
	return media.TaskStatus{TaskID: taskID, State: media.StateFailed}, nil
}

func (s *cloneSpeechStub) SubmitVoiceClone(context.Context, string) (string, error) {
	return s.taskID, nil
}

func (s *cloneSpeechStub) CheckVoiceClone(_ context.Context, taskID string) (media.TaskStatus, string, error) {
	status := s.status
	status.TaskID = taskID
	return status, s.clone, nil
}

func uploadMultipart(t *testing.T, url, token, field, filename string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, "payload-bytes"); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload %s: %v", url, err)
	}
	return resp
}

func TestVoiceCloneFlowOverHTTP(t *testing.T) {
	speech := &cloneSpeechStub{
		taskID: "VC7",
		status: media.TaskStatus{State: media.StateCompleted},
		clone:  "clone-7",
	}
	ts := newTestServer(t, serverOptions{speech: speech, objects: storage.NewMemoryObjectStore()})
	token := registerUser(t, ts.URL, "fay@example.com")

	resp := uploadMultipart(t, ts.URL+"/avatars", token, "image", "face.png", map[string]string{"name": "Persona"})
	var avatar struct {
		ID string `json:"id"`
	}
	err := json.NewDecoder(resp.Body).Decode(&avatar)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || err != nil || avatar.ID == "" {
		t.Fatalf("create avatar expected 201 with id, got %d (%v)", resp.StatusCode, err)
	}

	resp = uploadMultipart(t, ts.URL+"/avatars/"+avatar.ID+"/voice", token, "sample", "sample.wav", nil)
	var submitted struct {
		TaskID string `json:"taskId"`
	}
	err = json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || err != nil {
		t.Fatalf("voice upload expected 202, got %d (%v)", resp.StatusCode, err)
	}
	if submitted.TaskID != "VC7" {
		t.Fatalf("taskId = %q, want VC7", submitted.TaskID)
	}

	statusResp, body := doJSON(t, http.MethodGet, ts.URL+"/voice/clone-status/"+submitted.TaskID, token, nil)
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("clone status expected 200, got %d", statusResp.StatusCode)
	}
	var state string
	if err := json.Unmarshal(body["state"], &state); err != nil || state != string(media.StateCompleted) {
		t.Fatalf("state = %s, want completed", body["state"])
	}

	meResp, me := doJSON(t, http.MethodGet, ts.URL+"/auth/me", token, nil)
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me expected 200, got %d", meResp.StatusCode)
	}
	var voiceID string
	if err := json.Unmarshal(me["voiceId"], &voiceID); err != nil || voiceID != "clone-7" {
		t.Fatalf("voiceId = %s, want clone-7", me["voiceId"])
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, ok := bearerToken(r)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("bearerToken(%q) = %q,%v want %q,%v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}
