package voiceclone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ManagerAPI/internal/engine"
	"ManagerAPI/internal/models"
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/logger"
	stores "ManagerAPI/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgShutdown    = "training interrupted by shutdown"
	msgRestart     = "training interrupted by service restart"
	msgLost        = "training attempt lost"
	msgNoAudio     = "reference audio missing"
	msgAudioFailed = "reference audio unavailable"
	msgInternal    = "internal error during training"
)

// Outcome 一次训练的结果，VoiceID 为空即失败
type Outcome struct {
	VoiceID string
	Error   string
}

// StartTraining 将记录置为 TRAINING 并在后台调用克隆引擎，返回本次尝试的令牌。
// 返回时 TRAINING 状态已经落库。
func (s *Service) StartTraining(ctx context.Context, caller Caller, id string) (string, error) {
	s.life.RLock()
	defer s.life.RUnlock()
	if s.closed {
		return "", ErrClosed
	}

	unlock := s.locks.lock(id)
	defer unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch rec.TrainStatus {
	case models.TrainStatusTraining:
		return "", apperr.Conflict("voice clone %s is already training", id)
	case models.TrainStatusSuccess:
		return "", apperr.Conflict("voice clone %s is already trained, upload new reference audio to retrain", id)
	}
	ok, err := s.store.Exists(ctx, audioKey(id))
	if err != nil {
		return "", apperr.Wrap(err, "check reference audio")
	}
	if !ok {
		return "", apperr.Precondition("voice clone %s has no reference audio", id)
	}

	attempt := uuid.NewString()
	now := s.now()
	ok, err = s.repo.BeginTraining(ctx, id, attempt, caller.UserID, now)
	if err != nil {
		return "", apperr.Wrap(err, "begin training")
	}
	if !ok {
		return "", apperr.Conflict("voice clone %s changed state, retry", id)
	}

	s.track(attempt, id)
	s.wg.Add(1)
	go s.runAttempt(rec.ModelID, id, attempt)

	logger.Info("voice clone training started",
		zap.String("id", id), zap.String("attempt", attempt), zap.Int64("operator", caller.UserID))
	s.notifier.OnStatusChange(StatusEvent{
		ID:      id,
		UserID:  rec.UserID,
		Attempt: attempt,
		From:    rec.TrainStatus,
		To:      models.TrainStatusTraining,
		At:      now,
	})
	return attempt, nil
}

// CompleteAttempt 写回训练结果，只有记录仍处于该 attempt 的 TRAINING 时才生效。
// 过期的结果返回 false 且不报错。
func (s *Service) CompleteAttempt(ctx context.Context, id, attempt string, out Outcome) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rec, err := s.repo.Get(ctx, id)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		logger.Warn("discarding training result of deleted voice clone", zap.String("id", id), zap.String("attempt", attempt))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	status, voiceID, msg := models.TrainStatusSuccess, out.VoiceID, ""
	if out.VoiceID == "" {
		status = models.TrainStatusFailed
		msg = truncateError(out.Error)
	}
	now := s.now()
	ok, err := s.repo.CompleteTraining(ctx, id, attempt, status, voiceID, msg, now)
	if err != nil {
		return false, apperr.Wrap(err, "complete training")
	}
	if !ok {
		logger.Warn("discarding stale training result",
			zap.String("id", id), zap.String("attempt", attempt), zap.String("status", models.StatusName(rec.TrainStatus)))
		return false, nil
	}

	var took time.Duration
	if rec.TrainStartedAt != nil {
		took = now.Sub(*rec.TrainStartedAt)
	}
	logger.Info("voice clone training finished",
		zap.String("id", id), zap.String("attempt", attempt),
		zap.String("status", models.StatusName(status)), zap.String("trainError", msg), zap.Duration("took", took))
	s.notifier.OnStatusChange(StatusEvent{
		ID:       id,
		UserID:   rec.UserID,
		Attempt:  attempt,
		From:     models.TrainStatusTraining,
		To:       status,
		VoiceID:  voiceID,
		Error:    msg,
		Duration: took,
		At:       now,
	})
	return true, nil
}

// RecoverInterrupted 启动时调用，上个进程遗留的 TRAINING 记录全部置为 FAILED
func (s *Service) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.repo.FailTraining(ctx, FailFilter{Exclude: s.tracked()}, msgRestart, s.now())
	if err != nil {
		return 0, apperr.Wrap(err, "recover interrupted training")
	}
	if n > 0 {
		logger.Warn("failed interrupted voice clone trainings", zap.Int64("count", n))
	}
	return n, nil
}

// FailStale 将 cutoff 之前开始、本进程已不再跟踪的 TRAINING 记录置为 FAILED
func (s *Service) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.FailTraining(ctx, FailFilter{StartedBefore: &cutoff, Exclude: s.tracked()}, msgLost, s.now())
	if err != nil {
		return 0, apperr.Wrap(err, "fail stale training")
	}
	if n > 0 {
		logger.Warn("failed stale voice clone trainings", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// StaleCutoff 超过两倍训练超时仍未结束的尝试视为丢失
func (s *Service) StaleCutoff() time.Time {
	return s.now().Add(-2 * s.cfg.TrainTimeout)
}

// InFlight 当前进程中未结束的训练数
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Close 停止接受新训练并等待进行中的训练结束，ctx 到期后中断剩余训练
func (s *Service) Close(ctx context.Context) error {
	s.life.Lock()
	s.closed = true
	s.life.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) track(attempt, id string) {
	s.mu.Lock()
	s.inflight[attempt] = id
	s.mu.Unlock()
}

func (s *Service) untrack(attempt string) {
	s.mu.Lock()
	delete(s.inflight, attempt)
	s.mu.Unlock()
}

func (s *Service) tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for attempt := range s.inflight {
		out = append(out, attempt)
	}
	return out
}

func (s *Service) runAttempt(modelID, id, attempt string) {
	defer s.wg.Done()
	defer s.untrack(attempt)

	out := s.train(modelID, id, attempt)

	// 写回失败时重试，仍失败则留给过期扫描处理
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := s.CompleteAttempt(ctx, id, attempt, out)
		if err == nil {
			return
		}
		logger.Warn("persist training result failed", zap.String("id", id), zap.String("attempt", attempt), zap.Int("try", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	logger.Error("giving up persisting training result", zap.String("id", id), zap.String("attempt", attempt))
}

type submitResult struct {
	voiceID string
	err     error
}

func (s *Service) train(modelID, id, attempt string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("voice clone training panicked", zap.String("id", id), zap.String("attempt", attempt), zap.Any("panic", r))
			out = Outcome{Error: msgInternal}
		}
	}()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return Outcome{Error: msgShutdown}
	}
	defer s.sem.Release(1)

	audio, err := s.store.Get(s.ctx, audioKey(id))
	if errors.Is(err, stores.ErrNotFound) {
		return Outcome{Error: msgNoAudio}
	}
	if err != nil {
		logger.Warn("load reference audio failed", zap.String("id", id), zap.Error(err))
		return Outcome{Error: msgAudioFailed}
	}

	callCtx, cancel := context.WithTimeout(s.ctx, s.cfg.TrainTimeout)
	defer cancel()

	// 引擎不响应 ctx 时也要按时结束本次尝试
	ch := make(chan submitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- submitResult{err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		voiceID, err := s.engine.Submit(callCtx, engine.SubmitRequest{
			Audio:         audio,
			ModelID:       modelID,
			CorrelationID: attempt,
		})
		ch <- submitResult{voiceID: voiceID, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && r.voiceID != "" {
			return Outcome{VoiceID: r.voiceID}
		}
		return Outcome{Error: s.describe(callCtx, r.err)}
	case <-callCtx.Done():
		return Outcome{Error: s.describe(callCtx, callCtx.Err())}
	}
}

// describe 将引擎调用的错误转换为记录上的 trainError
func (s *Service) describe(callCtx context.Context, err error) string {
	var failure *engine.Failure
	switch {
	case s.ctx.Err() != nil:
		return msgShutdown
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("training timed out after %s", s.cfg.TrainTimeout)
	case errors.As(err, &failure):
		return failure.Reason
	default:
		if err != nil {
			logger.Warn("cloning engine call failed", zap.Error(err))
		}
		return engine.ErrUnavailable.Error()
	}
}

func truncateError(msg string) string {
	if msg == "" {
		msg = "unknown error"
	}
	r := []rune(msg)
	if len(r) > models.TrainErrorMaxLen {
		return string(r[:models.TrainErrorMaxLen])
	}
	return msg
}
