package contracts

import (
	"context"
	"time"
)

// User is a registered advisor user
type User struct {
	ID        int64     `json:"user_id"`
	Name      string    `json:"name"`
	Capital   int64     `json:"capital"` // 만원
	RiskLevel int       `json:"risk_level"`
	AuditAt   time.Time `json:"audit_dtm"`
}

// Profile builds the conversation profile for a topic
func (u User) Profile(topic string) ChatProfile {
	return ChatProfile{
		Topic:     topic,
		UserName:  u.Name,
		Capital:   float64(u.Capital),
		RiskLevel: u.RiskLevel,
	}
}

// Session is one started conversation. Capital and risk are copied from the
// user at start time.
type Session struct {
	ID        int64     `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Capital   int64     `json:"capital"`
	RiskLevel int       `json:"risk_level"`
	Topic     string    `json:"topic"`
	AuditAt   time.Time `json:"audit_dtm"`
}

// SessionDetail holds the serialized final state of a session
type SessionDetail struct {
	SessionID int64     `json:"session_id"`
	Response  string    `json:"response"`
	AuditAt   time.Time `json:"audit_dtm"`
}

// UserRepository persists users
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}

// SessionRepository persists sessions and details.
// Details are append/delete only.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id int64) (*Session, error)
	ListByUser(ctx context.Context, userID int64) ([]Session, error)
	DeleteSession(ctx context.Context, id int64) (bool, error)

	CreateDetail(ctx context.Context, detail *SessionDetail) error
	GetDetail(ctx context.Context, sessionID int64) (*SessionDetail, error)
	DeleteDetail(ctx context.Context, sessionID int64) (bool, error)
}
