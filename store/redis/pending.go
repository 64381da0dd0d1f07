package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/chatrelay/id"
	"github.com/xraph/chatrelay/pending"
)

// entryModel is the JSON representation stored in Redis.
type entryModel struct {
	UID          string    `json:"uid"`
	UserName     string    `json:"user_name"`
	SubmissionID string    `json:"submission_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

func toEntryModel(e *pending.Entry) *entryModel {
	return &entryModel{
		UID:          e.UID,
		UserName:     e.UserName,
		SubmissionID: e.SubmissionID.String(),
		SubmittedAt:  e.SubmittedAt,
	}
}

func fromEntryModel(m *entryModel) (*pending.Entry, error) {
	e := &pending.Entry{
		UID:         m.UID,
		UserName:    m.UserName,
		SubmittedAt: m.SubmittedAt,
	}
	if m.SubmissionID != "" {
		subID, err := id.ParseSubmissionID(m.SubmissionID)
		if err != nil {
			return nil, fmt.Errorf("parse submission ID %q: %w", m.SubmissionID, err)
		}
		e.SubmissionID = subID
	}
	return e, nil
}

func decodeEntry(raw string) (*pending.Entry, error) {
	var m entryModel
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("chatrelay/redis: unmarshal entry: %w", err)
	}
	return fromEntryModel(&m)
}

// resolveScript atomically claims a single entry.
// KEYS[1] = entry key
// KEYS[2] = pending index
// ARGV[1] = uid
var resolveScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return v
`)

// expireScript atomically claims entries scored at or below a threshold.
// KEYS[1] = pending index
// ARGV[1] = score threshold
// ARGV[2] = limit
// ARGV[3] = entry key prefix
var expireScript = goredis.NewScript(`
local uids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for _, uid in ipairs(uids) do
    redis.call('ZREM', KEYS[1], uid)
    local key = ARGV[3] .. uid
    local v = redis.call('GET', key)
    if v then
        redis.call('DEL', key)
        table.insert(out, v)
    end
end
return out
`)

// Track records an entry, replacing any entry with the same uid. The entry
// and its index member are written in one transaction.
func (s *Store) Track(ctx context.Context, e *pending.Entry) error {
	raw, err := encodeEntity(toEntryModel(e))
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.entityKey(e.UID), raw, 0)
		pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: scoreFromTime(e.SubmittedAt), Member: e.UID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("chatrelay/redis: track entry: %w", err)
	}
	return nil
}

// Get returns the entry for uid without removing it.
func (s *Store) Get(ctx context.Context, uid string) (*pending.Entry, error) {
	var m entryModel
	if err := s.getEntity(ctx, s.entityKey(uid), &m); err != nil {
		if isNotFound(err) {
			return nil, pending.ErrNotFound
		}
		return nil, fmt.Errorf("chatrelay/redis: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

// Resolve removes and returns the entry for uid.
func (s *Store) Resolve(ctx context.Context, uid string) (*pending.Entry, error) {
	raw, err := resolveScript.Run(ctx, s.rdb, []string{s.entityKey(uid), s.indexKey()}, uid).Text()
	if err != nil {
		if isRedisNil(err) {
			return nil, pending.ErrNotFound
		}
		return nil, fmt.Errorf("chatrelay/redis: resolve entry: %w", err)
	}
	return decodeEntry(raw)
}

// Expire removes and returns up to limit entries submitted before the given
// time, oldest first.
func (s *Store) Expire(ctx context.Context, before time.Time, limit int) ([]*pending.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	threshold := "(" + strconv.FormatFloat(scoreFromTime(before), 'f', -1, 64)

	raws, err := expireScript.Run(ctx, s.rdb,
		[]string{s.indexKey()},
		threshold, limit, s.prefix+prefixPending,
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatrelay/redis: expire entries: %w", err)
	}

	out := make([]*pending.Entry, 0, len(raws))
	for _, raw := range raws {
		e, decodeErr := decodeEntry(raw)
		if decodeErr != nil {
			return out, decodeErr
		}
		out = append(out, e)
	}
	return out, nil
}

// CountPending returns the number of tracked entries.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("chatrelay/redis: count pending: %w", err)
	}
	return n, nil
}
