// Package conversation drives one advisory conversation from profile to
// persisted final state.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/statecodec"
	"github.com/wonny/finadvisor/pkg/logger"
)

var (
	// ErrMissingField is returned when a required input is blank or unknown
	ErrMissingField = errors.New("missing field")

	// ErrSessionCompleted is returned when a session already has a stored result
	ErrSessionCompleted = errors.New("session already completed")
)

// User-facing validation messages
const (
	MsgMissingUser  = "사용자 정보를 입력해주세요."
	MsgMissingTopic = "대화 주제를 입력해주세요."
)

// Runner streams stage updates for one run
type Runner interface {
	Run(ctx context.Context, cfg brain.RunConfig) iter.Seq2[brain.Update, error]
}

// Service owns conversation lifecycle operations
type Service struct {
	users    contracts.UserRepository
	sessions contracts.SessionRepository
	runner   Runner
	logger   *logger.Logger
}

// NewService creates a conversation service
func NewService(users contracts.UserRepository, sessions contracts.SessionRepository, runner Runner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		runner:   runner,
		logger:   log,
	}
}

func missing(msg string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, msg)
}

// SaveUser creates the user when the name is new, otherwise updates capital and risk
func (s *Service) SaveUser(ctx context.Context, name string, capital int64, riskLevel int) (*contracts.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || capital <= 0 || riskLevel < 1 || riskLevel > 5 {
		return nil, missing(MsgMissingUser)
	}

	user, err := s.users.GetByName(ctx, name)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		user = &contracts.User{Name: name, Capital: capital, RiskLevel: riskLevel}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		s.logger.WithField("user_id", user.ID).Info("User created")
		return user, nil
	case err != nil:
		return nil, fmt.Errorf("look up user: %w", err)
	}

	user.Capital = capital
	user.RiskLevel = riskLevel
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.WithField("user_id", user.ID).Info("User updated")
	return user, nil
}

// LoadUser returns the user with the given name
func (s *Service) LoadUser(ctx context.Context, name string) (*contracts.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, missing(MsgMissingUser)
	}
	return s.users.GetByName(ctx, strings.TrimSpace(name))
}

// Start validates the inputs, resolves the user and opens a session.
// Capital and risk are copied from the stored user.
func (s *Service) Start(ctx context.Context, name, topic string) (*contracts.Session, contracts.ChatProfile, error) {
	name = strings.TrimSpace(name)
	topic = strings.TrimSpace(topic)

	if name == "" {
		return nil, contracts.ChatProfile{}, missing(MsgMissingUser)
	}
	if topic == "" {
		return nil, contracts.ChatProfile{}, missing(MsgMissingTopic)
	}

	user, err := s.users.GetByName(ctx, name)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.ChatProfile{}, missing(MsgMissingUser)
	}
	if err != nil {
		return nil, contracts.ChatProfile{}, fmt.Errorf("look up user: %w", err)
	}

	session := &contracts.Session{
		UserID:    user.ID,
		Capital:   user.Capital,
		RiskLevel: user.RiskLevel,
		Topic:     topic,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, contracts.ChatProfile{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"user_id":    user.ID,
	}).Info("Conversation started")

	return session, user.Profile(topic), nil
}

// Resume rebuilds the profile of a session that has not produced a result yet.
// A session with a stored detail returns ErrSessionCompleted.
func (s *Service) Resume(ctx context.Context, sessionID int64) (*contracts.Session, contracts.ChatProfile, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, contracts.ChatProfile{}, err
	}
	switch _, err := s.sessions.GetDetail(ctx, sessionID); {
	case err == nil:
		return nil, contracts.ChatProfile{}, fmt.Errorf("session %d: %w", sessionID, ErrSessionCompleted)
	case !errors.Is(err, contracts.ErrNotFound):
		return nil, contracts.ChatProfile{}, fmt.Errorf("look up session detail: %w", err)
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, contracts.ChatProfile{}, fmt.Errorf("look up user: %w", err)
	}

	profile := contracts.ChatProfile{
		Topic:     session.Topic,
		UserName:  user.Name,
		Capital:   float64(session.Capital),
		RiskLevel: session.RiskLevel,
	}
	return session, profile, nil
}

// Stream runs the pipeline for a session and forwards every update.
// After the last stage the final state is persisted; a save failure is
// yielded as a trailing error.
func (s *Service) Stream(ctx context.Context, session *contracts.Session, profile contracts.ChatProfile, augment bool) iter.Seq2[brain.Update, error] {
	return func(yield func(brain.Update, error) bool) {
		var final *contracts.PipelineState

		for update, err := range s.runner.Run(ctx, brain.RunConfig{Profile: profile, Augment: augment}) {
			if err != nil {
				yield(update, err)
				return
			}
			final = update.State
			if !yield(update, nil) {
				return
			}
		}

		if final == nil {
			return
		}
		if err := s.save(ctx, session.ID, final); err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to save session result")
			yield(brain.Update{Stage: final.CurrentStage}, err)
		}
	}
}

func (s *Service) save(ctx context.Context, sessionID int64, st *contracts.PipelineState) error {
	encoded, err := statecodec.Encode(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.sessions.CreateDetail(ctx, &contracts.SessionDetail{SessionID: sessionID, Response: encoded}); err != nil {
		return fmt.Errorf("save session detail: %w", err)
	}
	s.logger.WithField("session_id", sessionID).Info("Session result saved")
	return nil
}

// History lists a user's sessions, newest first
func (s *Service) History(ctx context.Context, userID int64) ([]contracts.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Detail returns the decoded final state of a session
func (s *Service) Detail(ctx context.Context, sessionID int64) (*contracts.PipelineState, error) {
	detail, err := s.sessions.GetDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, err := statecodec.Decode(detail.Response)
	if err != nil {
		return nil, fmt.Errorf("decode session %d: %w", sessionID, err)
	}
	return st, nil
}

// Delete removes a session and its detail. It reports whether the session existed.
func (s *Service) Delete(ctx context.Context, sessionID int64) (bool, error) {
	if _, err := s.sessions.DeleteDetail(ctx, sessionID); err != nil {
		return false, err
	}
	deleted, err := s.sessions.DeleteSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.WithField("session_id", sessionID).Info("Session deleted")
	}
	return deleted, nil
}
