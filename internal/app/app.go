package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"echoself/internal/ingest"
	"echoself/internal/util"
	"echoself/pkg/ai"
	"echoself/pkg/domain"
	"echoself/pkg/media"
	"echoself/pkg/queue"
	"echoself/pkg/storage"
	"echoself/pkg/store"
)

// Media dispositions returned with a chat response. Submitted means a
// video task id was handed back, skipped means a media stage failed and
// the reply degraded to text-only, none means no persona image is set.
const (
	MediaNone      = "none"
	MediaSubmitted = "submitted"
	MediaSkipped   = "skipped"
)

// StatusCache remembers terminal remote states per task id.
type StatusCache interface {
	Put(ctx context.Context, status media.TaskStatus, ttl time.Duration) error
	Get(ctx context.Context, taskID string) (media.TaskStatus, bool, error)
	Delete(ctx context.Context, taskID string) error
}

// FinalizeQueue defers video completion handling to a background worker.
type FinalizeQueue interface {
	Enqueue(ctx context.Context, messageID, taskID, audioURL string) (queue.MediaJob, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore

	Generator ai.TextGenerator
	Embedder  ai.Embedder

	Speech      media.SpeechSynthesizer
	Video       media.VideoSynthesizer
	TaskChecker media.CheckTaskFunc

	Tasks    StatusCache
	Finalize FinalizeQueue
	Objects  storage.ObjectStore

	TopK         int
	HistoryLimit int

	SpeechPollAttempts int
	SpeechPollInterval time.Duration
	VideoPollAttempts  int
	VideoPollInterval  time.Duration

	TaskTTL time.Duration

	ChunkSize    int
	ChunkOverlap int
}

// App wires storage, the text generator, and the media pipeline together.
type App struct {
	store    store.Store
	sessions store.SessionStore

	generator ai.TextGenerator
	embedder  ai.Embedder

	speech      media.SpeechSynthesizer
	video       media.VideoSynthesizer
	taskChecker media.CheckTaskFunc

	tasks    StatusCache
	finalize FinalizeQueue
	objects  storage.ObjectStore
	parser   *ingest.Parser

	speechPoller media.Poller
	videoPoller  media.Poller

	topK         int
	historyLimit int
	taskTTL      time.Duration
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	speechAttempts := cfg.SpeechPollAttempts
	if speechAttempts <= 0 {
		speechAttempts = 30
	}
	speechInterval := cfg.SpeechPollInterval
	if speechInterval <= 0 {
		speechInterval = time.Second
	}
	videoAttempts := cfg.VideoPollAttempts
	if videoAttempts <= 0 {
		videoAttempts = 120
	}
	videoInterval := cfg.VideoPollInterval
	if videoInterval <= 0 {
		videoInterval = 2 * time.Second
	}
	taskTTL := cfg.TaskTTL
	if taskTTL <= 0 {
		taskTTL = time.Hour
	}

	return &App{
		store:        cfg.Store,
		sessions:     cfg.Sessions,
		generator:    cfg.Generator,
		embedder:     cfg.Embedder,
		speech:       cfg.Speech,
		video:        cfg.Video,
		taskChecker:  cfg.TaskChecker,
		tasks:        cfg.Tasks,
		finalize:     cfg.Finalize,
		objects:      cfg.Objects,
		parser:       ingest.NewParser(cfg.ChunkSize, cfg.ChunkOverlap),
		speechPoller: media.Poller{Attempts: speechAttempts, Interval: speechInterval},
		videoPoller:  media.Poller{Attempts: videoAttempts, Interval: videoInterval},
		topK:         topK,
		historyLimit: historyLimit,
		taskTTL:      taskTTL,
	}, nil
}

// SendResult is the outcome of one chat turn.
type SendResult struct {
	Message       domain.Message `json:"message"`
	MediaTaskID   string         `json:"videoTaskId,omitempty"`
	MediaStatus   string         `json:"mediaStatus"`
	KnowledgeUsed bool           `json:"knowledgeUsed"`
}

// SendMessage runs the full chat pipeline: persist the user message,
// generate the persona reply, then chain speech and video jobs when a
// persona image is configured. Media failures degrade to a text-only
// reply; only lookup, generation, and persistence failures abort.
func (a *App) SendMessage(ctx context.Context, userID, conversationID, content string) (SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return SendResult{}, fmt.Errorf("message content required")
	}
	conversation, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conversation.UserID != userID {
		return SendResult{}, ErrConversationNotFound
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return SendResult{}, ErrUserNotFound
	}

	start := time.Now()
	logger := util.LoggerFromContext(ctx)

	userMessage := domain.Message{
		ID:             util.NewID(),
		ConversationID: conversationID,
		Role:           "user",
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendMessage(conversationID, userMessage); err != nil {
		return SendResult{}, fmt.Errorf("save user message: %w", err)
	}

	hits := a.retrieveKnowledge(ctx, userID, content)
	systemPrompt := withKnowledgeContext(PersonalityPrompt(user), hits)

	history, err := a.store.ListMessages(conversationID, a.historyLimit+1)
	if err != nil {
		return SendResult{}, fmt.Errorf("load history: %w", err)
	}
	chatHistory := make([]ai.ChatMessage, 0, len(history))
	for _, msg := range history {
		chatHistory = append(chatHistory, ai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	reply, err := a.generator.Complete(ctx, systemPrompt, chatHistory)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	assistantMessage := domain.Message{
		ID:             util.NewID(),
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        reply,
		ResponseTimeMS: int(time.Since(start).Milliseconds()),
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendMessage(conversationID, assistantMessage); err != nil {
		return SendResult{}, fmt.Errorf("save assistant message: %w", err)
	}

	taskID, mediaStatus := a.runMediaChain(ctx, user, assistantMessage)
	if mediaStatus != MediaNone {
		logger.Info("media chain finished",
			"conversation_id", conversationID,
			"message_id", assistantMessage.ID,
			"media_status", mediaStatus,
			"video_task_id", taskID,
		)
	}

	return SendResult{
		Message:       assistantMessage,
		MediaTaskID:   taskID,
		MediaStatus:   mediaStatus,
		KnowledgeUsed: len(hits) > 0,
	}, nil
}

// retrieveKnowledge searches the user's knowledge base. Failures are
// swallowed and treated as empty context.
func (a *App) retrieveKnowledge(ctx context.Context, userID, query string) []domain.KnowledgeHit {
	if a.embedder == nil {
		return nil
	}
	logger := util.LoggerFromContext(ctx)
	embedding, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		logger.Warn("knowledge embed failed", "error", err)
		return nil
	}
	hits, err := a.store.SearchKnowledge(userID, embedding, a.topK)
	if err != nil {
		logger.Warn("knowledge search failed", "error", err)
		return nil
	}
	return hits
}

// runMediaChain submits the speech job, waits for the audio within the
// bounded poll budget, then submits the video job. It never fails the
// chat turn; every error path returns MediaSkipped.
func (a *App) runMediaChain(ctx context.Context, user domain.User, msg domain.Message) (string, string) {
	logger := util.LoggerFromContext(ctx)
	if a.speech == nil || a.video == nil {
		return "", MediaNone
	}
	if user.AvatarID == "" {
		return "", MediaNone
	}
	avatar, ok, err := a.store.GetAvatar(user.AvatarID)
	if err != nil {
		logger.Warn("avatar lookup failed", "avatar_id", user.AvatarID, "error", err)
		return "", MediaSkipped
	}
	if !ok || avatar.ImageURL == "" {
		return "", MediaNone
	}

	ttsTaskID, err := a.speech.SubmitTTS(ctx, msg.Content, user.VoiceID)
	if err != nil {
		logger.Warn("tts submission failed", "error", err)
		return "", MediaSkipped
	}

	ttsStatus, err := a.speechPoller.Poll(ctx, ttsTaskID, func(ctx context.Context) (media.TaskStatus, error) {
		return a.speech.Check(ctx, ttsTaskID)
	})
	if err != nil {
		logger.Warn("tts poll aborted", "task_id", ttsTaskID, "error", err)
		return "", MediaSkipped
	}
	if ttsStatus.State != media.StateCompleted {
		a.cacheTask(ctx, ttsStatus)
		logger.Warn("tts did not complete", "task_id", ttsTaskID, "state", string(ttsStatus.State), "error", ttsStatus.ErrorMessage)
		return "", MediaSkipped
	}
	a.cacheTask(ctx, ttsStatus)

	videoTaskID, err := a.video.SubmitVideo(ctx, avatar.ImageURL, ttsStatus.ResultURL, fmt.Sprintf("%s talking naturally", user.Name))
	if err != nil {
		logger.Warn("video submission failed", "tts_task_id", ttsTaskID, "error", err)
		return "", MediaSkipped
	}

	if err := a.store.SetMessageMedia(msg.ID, ttsStatus.ResultURL, ""); err != nil {
		logger.Warn("attach audio url failed", "message_id", msg.ID, "error", err)
	}
	if a.finalize != nil {
		if _, err := a.finalize.Enqueue(ctx, msg.ID, videoTaskID, ttsStatus.ResultURL); err != nil {
			logger.Warn("enqueue media finalize failed", "video_task_id", videoTaskID, "error", err)
		}
	}
	return videoTaskID, MediaSubmitted
}

// MediaTaskStatus reports the current state of a media task. Only
// terminal states are served from cache; anything still in flight goes
// back to the remote service so callers see progress, not a frozen
// snapshot.
func (a *App) MediaTaskStatus(ctx context.Context, taskID string) (media.TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return media.TaskStatus{}, fmt.Errorf("task id required")
	}
	if a.tasks != nil {
		status, ok, err := a.tasks.Get(ctx, taskID)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("task cache read failed", "task_id", taskID, "error", err)
		} else if ok && status.State.Terminal() {
			return status, nil
		}
	}
	if a.taskChecker == nil {
		return media.TaskStatus{}, ErrMediaDisabled
	}
	status, err := a.taskChecker(ctx, taskID)
	if err != nil {
		return media.TaskStatus{}, fmt.Errorf("check task %s: %w", taskID, err)
	}
	a.cacheTask(ctx, status)
	return status, nil
}

// FinalizeMedia is the queue handler that waits for a video task and
// writes the result back onto the assistant message. A poll timeout
// returns an error so the queue redelivers the job.
func (a *App) FinalizeMedia(ctx context.Context, job queue.MediaJob) error {
	if a.video == nil {
		return ErrMediaDisabled
	}
	logger := util.LoggerFromContext(ctx)
	status, err := a.videoPoller.Poll(ctx, job.TaskID, func(ctx context.Context) (media.TaskStatus, error) {
		return a.video.Check(ctx, job.TaskID)
	})
	if err != nil {
		return err
	}
	switch status.State {
	case media.StateCompleted:
		a.cacheTask(ctx, status)
		if err := a.store.SetMessageMedia(job.MessageID, job.AudioURL, status.ResultURL); err != nil {
			return fmt.Errorf("attach video url: %w", err)
		}
		logger.Info("media finalized", "message_id", job.MessageID, "video_task_id", job.TaskID)
		return nil
	case media.StateFailed:
		a.cacheTask(ctx, status)
		logger.Warn("video task failed", "video_task_id", job.TaskID, "error", status.ErrorMessage)
		return nil
	default:
		return fmt.Errorf("video task %s not finished", job.TaskID)
	}
}

// cacheTask records a remote observation. Only completed and failed are
// worth remembering: caching an in-flight state would pin status queries
// to it until the TTL expires, and timed_out is a local verdict the
// remote never issued.
func (a *App) cacheTask(ctx context.Context, status media.TaskStatus) {
	if a.tasks == nil || status.TaskID == "" || !status.State.Terminal() {
		return
	}
	if err := a.tasks.Put(ctx, status, a.taskTTL); err != nil {
		util.LoggerFromContext(ctx).Warn("task cache write failed", "task_id", status.TaskID, "error", err)
	}
}
