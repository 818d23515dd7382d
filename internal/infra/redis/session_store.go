package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps each session in one Redis hash so answers can be written field by field:
//
//	HSET exam:session:{id} core <json> cursor <n> answer:{questionID} <json> completion <json>
//	ZADD exam:sessions {startedAt ms} {id}
//	ZADD exam:sessions:active {startedAt ms} {id}   (removed on completion)
//
// Creation, completion and writes that require an active session run as Lua scripts so each
// check and its writes are atomic.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

const (
	fieldCore       = "core"
	fieldCursor     = "cursor"
	fieldCompletion = "completion"
	answerPrefix    = "answer:"
	indexKey        = "exam:sessions"
	activeIndexKey  = "exam:sessions:active"
)

// activeWrite sets one field only while the session exists and has no completion.
// Returns -1 when missing, 0 when completed, 1 when written.
var activeWrite = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HEXISTS', KEYS[1], 'completion') == 1 then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// createSession writes a new hash and both index entries. ARGV: core, cursor, startedAt ms, id,
// ttl ms, then answer field/value pairs. Returns 0 when the session already exists.
var createSession = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'core', ARGV[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'cursor', ARGV[2])
for i = 6, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
if tonumber(ARGV[5]) > 0 then redis.call('PEXPIRE', KEYS[1], ARGV[5]) end
return 1
`)

// completeOnce records the completion unless one is already present and drops the session
// from the active index. Returns -1 when missing, 0 when another call already completed it,
// 1 when this call did.
var completeOnce = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local won = redis.call('HSETNX', KEYS[1], 'completion', ARGV[1])
if won == 1 then redis.call('ZREM', KEYS[2], ARGV[2]) end
return won
`)

type completion struct {
	CompletedAt time.Time     `json:"completedAt"`
	Result      domain.Result `json:"result"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return domain.Session{}, err
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return decodeSession(fields)
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	core := session
	core.Answers = nil
	core.CurrentQuestionIndex = 0
	core.CompletedAt = nil
	core.Result = nil
	raw, err := json.Marshal(core)
	if err != nil {
		return err
	}

	args := []interface{}{raw, session.CurrentQuestionIndex, session.StartedAt.UnixMilli(), session.ID, s.ttl.Milliseconds()}
	for questionID, answer := range session.Answers {
		encoded, err := json.Marshal(answer)
		if err != nil {
			return err
		}
		args = append(args, answerPrefix+questionID, encoded)
	}
	created, err := createSession.Run(ctx, s.client, []string{s.key(session.ID), indexKey, activeIndexKey}, args...).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

func (s *SessionStore) UpdateAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return s.writeActive(ctx, sessionID, answerPrefix+questionID, string(raw))
}

func (s *SessionStore) UpdateCurrentQuestion(ctx context.Context, sessionID string, index int) error {
	return s.writeActive(ctx, sessionID, fieldCursor, strconv.Itoa(index))
}

func (s *SessionStore) Complete(ctx context.Context, sessionID string, completedAt time.Time, result domain.Result) (domain.Session, bool, error) {
	raw, err := json.Marshal(completion{CompletedAt: completedAt.UTC(), Result: result})
	if err != nil {
		return domain.Session{}, false, err
	}
	status, err := completeOnce.Run(ctx, s.client, []string{s.key(sessionID), activeIndexKey}, string(raw), sessionID).Int()
	if err != nil {
		return domain.Session{}, false, err
	}
	if status < 0 {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, false, err
	}
	return session, status == 1, nil
}

func (s *SessionStore) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	index := indexKey
	if filter.Status == domain.StatusActive {
		index = activeIndexKey
	}
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !isNil(err) {
		return nil, err
	}

	var stale []interface{}
	sessions := make([]domain.Session, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		session, err := decodeSession(fields)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(session) {
			continue
		}
		sessions = append(sessions, session)
		if filter.Limit > 0 && len(sessions) == filter.Limit {
			break
		}
	}
	if len(stale) > 0 {
		// expired hashes leave their index entries behind
		pipe := s.client.Pipeline()
		pipe.ZRem(ctx, indexKey, stale...)
		pipe.ZRem(ctx, activeIndexKey, stale...)
		_, _ = pipe.Exec(ctx)
	}
	return sessions, nil
}

func (s *SessionStore) writeActive(ctx context.Context, sessionID, field, value string) error {
	status, err := activeWrite.Run(ctx, s.client, []string{s.key(sessionID)}, field, value).Int()
	if err != nil {
		return err
	}
	switch status {
	case -1:
		return domain.ErrSessionNotFound
	case 0:
		return domain.ErrSessionAlreadyCompleted
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	return "exam:session:" + sessionID
}

func decodeSession(fields map[string]string) (domain.Session, error) {
	var session domain.Session
	core, ok := fields[fieldCore]
	if !ok {
		return domain.Session{}, fmt.Errorf("session hash without core field")
	}
	if err := json.Unmarshal([]byte(core), &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	session.Answers = make(map[string]domain.Answer)
	for field, value := range fields {
		switch {
		case field == fieldCursor:
			n, err := strconv.Atoi(value)
			if err != nil {
				return domain.Session{}, fmt.Errorf("decode cursor: %w", err)
			}
			session.CurrentQuestionIndex = n
		case field == fieldCompletion:
			var c completion
			if err := json.Unmarshal([]byte(value), &c); err != nil {
				return domain.Session{}, fmt.Errorf("decode completion: %w", err)
			}
			completedAt := c.CompletedAt
			result := c.Result
			session.CompletedAt = &completedAt
			session.Result = &result
		case strings.HasPrefix(field, answerPrefix):
			var answer domain.Answer
			if err := json.Unmarshal([]byte(value), &answer); err != nil {
				return domain.Session{}, fmt.Errorf("decode answer: %w", err)
			}
			session.Answers[strings.TrimPrefix(field, answerPrefix)] = answer
		}
	}
	return session, nil
}
