package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"echoself/internal/util"
	"echoself/pkg/domain"
	"echoself/pkg/media"
	"echoself/pkg/storage"
)

// Presigned asset URLs are handed to the remote media service, which
// fetches them asynchronously; keep them valid well past any poll budget.
const assetURLExpiry = 7 * 24 * time.Hour

// CreateAvatar stores a persona image and registers the avatar.
func (a *App) CreateAvatar(ctx context.Context, userID, name, filename string, r io.Reader, size int64, contentType string) (domain.Avatar, error) {
	if a.objects == nil {
		return domain.Avatar{}, fmt.Errorf("object storage not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Avatar{}, fmt.Errorf("avatar name required")
	}
	avatarID := util.NewID()
	key := storage.AvatarImageKey(avatarID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Avatar{}, fmt.Errorf("store avatar image: %w", err)
	}
	imageURL, err := a.objects.PresignGet(ctx, key, assetURLExpiry)
	if err != nil {
		return domain.Avatar{}, fmt.Errorf("presign avatar image: %w", err)
	}
	now := time.Now().UTC()
	avatar := domain.Avatar{
		ID:        avatarID,
		OwnerID:   userID,
		Name:      name,
		ImageURL:  imageURL,
		ImageKey:  key,
		Status:    domain.AvatarReady,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAvatar(avatar); err != nil {
		return domain.Avatar{}, fmt.Errorf("save avatar: %w", err)
	}
	return avatar, nil
}

// ListAvatars returns the user's avatars.
func (a *App) ListAvatars(userID string) ([]domain.Avatar, error) {
	avatars, err := a.store.ListAvatarsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	return avatars, nil
}

// SelectAvatar makes an avatar the user's active persona.
func (a *App) SelectAvatar(userID, avatarID string) error {
	avatar, ok, err := a.store.GetAvatar(avatarID)
	if err != nil {
		return fmt.Errorf("load avatar: %w", err)
	}
	if !ok || avatar.OwnerID != userID {
		return ErrAvatarNotFound
	}
	if err := a.store.SetUserAvatar(userID, avatarID); err != nil {
		return fmt.Errorf("select avatar: %w", err)
	}
	return nil
}

// DeleteAvatar removes an avatar and its stored assets. The user's active
// persona is cleared when it pointed at the deleted avatar.
func (a *App) DeleteAvatar(ctx context.Context, userID, avatarID string) error {
	avatar, ok, err := a.store.GetAvatar(avatarID)
	if err != nil {
		return fmt.Errorf("load avatar: %w", err)
	}
	if !ok || avatar.OwnerID != userID {
		return ErrAvatarNotFound
	}
	logger := util.LoggerFromContext(ctx)
	if a.objects != nil {
		for _, key := range []string{avatar.ImageKey, avatar.VoiceSampleKey} {
			if key == "" {
				continue
			}
			if err := a.objects.Delete(ctx, key); err != nil {
				logger.Warn("delete avatar asset failed", "key", key, "error", err)
			}
		}
	}
	if err := a.store.DeleteAvatar(avatarID); err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err == nil && ok && user.AvatarID == avatarID {
		if err := a.store.SetUserAvatar(userID, ""); err != nil {
			logger.Warn("clear active avatar failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// TrainVoice uploads a voice sample and submits a clone job, returning
// the remote task id. Cloning takes minutes, so the request does not
// wait: callers poll VoiceCloneStatus until the clone is ready.
func (a *App) TrainVoice(ctx context.Context, userID, avatarID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	cloner, ok := a.speech.(media.VoiceCloner)
	if !ok || a.objects == nil {
		return "", ErrMediaDisabled
	}
	avatar, found, err := a.store.GetAvatar(avatarID)
	if err != nil {
		return "", fmt.Errorf("load avatar: %w", err)
	}
	if !found || avatar.OwnerID != userID {
		return "", ErrAvatarNotFound
	}

	key := storage.VoiceSampleKey(avatarID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store voice sample: %w", err)
	}
	sampleURL, err := a.objects.PresignGet(ctx, key, assetURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign voice sample: %w", err)
	}

	taskID, err := cloner.SubmitVoiceClone(ctx, sampleURL)
	if err != nil {
		return "", fmt.Errorf("submit voice clone: %w", err)
	}

	avatar.VoiceSampleURL = sampleURL
	avatar.VoiceSampleKey = key
	avatar.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAvatar(avatar); err != nil {
		return "", fmt.Errorf("save avatar: %w", err)
	}
	return taskID, nil
}

// VoiceCloneStatus checks a clone job once. When the remote reports
// completion the clone id is persisted as the user's voice, so replies
// after that poll speak with the cloned voice.
func (a *App) VoiceCloneStatus(ctx context.Context, userID, taskID string) (media.TaskStatus, error) {
	cloner, ok := a.speech.(media.VoiceCloner)
	if !ok {
		return media.TaskStatus{}, ErrMediaDisabled
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return media.TaskStatus{}, fmt.Errorf("task id required")
	}
	status, cloneID, err := cloner.CheckVoiceClone(ctx, taskID)
	if err != nil {
		return media.TaskStatus{}, fmt.Errorf("check voice clone %s: %w", taskID, err)
	}
	if status.State == media.StateCompleted {
		if cloneID == "" {
			return media.TaskStatus{}, fmt.Errorf("voice clone %s completed without a clone id", taskID)
		}
		if err := a.store.SetUserVoice(userID, cloneID); err != nil {
			return media.TaskStatus{}, fmt.Errorf("save voice id: %w", err)
		}
	}
	a.cacheTask(ctx, status)
	return status, nil
}
