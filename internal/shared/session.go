package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when the request carries no live session.
var ErrNoSession = errors.New("session not found")

// SessionManager keeps actor sessions in Redis, addressed by a cookie or bearer token.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session is the stored state behind a token.
type Session struct {
	ID       string    `json:"-"`
	ActorID  int64     `json:"actor_id"`
	Role     string    `json:"role"`
	IssuedAt time.Time `json:"issued_at"`
}

// Actor returns the caller the session belongs to.
func (s Session) Actor() Actor {
	return Actor{ID: s.ActorID, Role: s.Role}
}

func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Issue creates a session for actor and returns it with its token.
func (sm *SessionManager) Issue(ctx context.Context, actor Actor) (Session, error) {
	if actor.ID == 0 {
		return Session{}, errors.New("session actor required")
	}
	sess := Session{ID: uuid.NewString(), ActorID: actor.ID, Role: actor.Role, IssuedAt: time.Now().UTC()}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Load resolves the session of r and slides its expiry.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (Session, error) {
	token := sm.token(r)
	if token == "" {
		return Session{}, ErrNoSession
	}
	payload, err := sm.client.GetEx(ctx, sm.redisKey(token), sm.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, err
	}
	sess.ID = token
	return sess, nil
}

// Revoke deletes the session. Unknown tokens are ignored.
func (sm *SessionManager) Revoke(ctx context.Context, id string) error {
	if err := sm.client.Del(ctx, sm.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// SetCookie writes the session cookie.
func (sm *SessionManager) SetCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
}

func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) token(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(sm.cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
