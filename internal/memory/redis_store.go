package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avvvet/naina-chat/internal/models"
)

const defaultKeyPrefix = "naina:session:"

// RedisStore implements Store interface using Redis.
//
// A session is spread over four keys so every mutation is a single atomic
// command instead of a read-modify-write of one JSON blob:
//
//	<prefix><id>:meta      hash  visitor metadata and counters
//	<prefix><id>:messages  list  JSON messages, RPUSH order
//	<prefix><id>:attrs     hash  attribute -> JSON value
//	<prefix><id>:viewed    set   product ids shown
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // Session TTL (time to live), 0 keeps sessions forever
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) metaKey(sessionID string) string     { return r.prefix + sessionID + ":meta" }
func (r *RedisStore) messagesKey(sessionID string) string { return r.prefix + sessionID + ":messages" }
func (r *RedisStore) attrsKey(sessionID string) string    { return r.prefix + sessionID + ":attrs" }
func (r *RedisStore) viewedKey(sessionID string) string   { return r.prefix + sessionID + ":viewed" }

func (r *RedisStore) keys(sessionID string) []string {
	return []string{
		r.metaKey(sessionID),
		r.messagesKey(sessionID),
		r.attrsKey(sessionID),
		r.viewedKey(sessionID),
	}
}

// refresh queues a TTL refresh for every key of the session
func (r *RedisStore) refresh(ctx context.Context, pipe redis.Pipeliner, sessionID string) {
	if r.ttl <= 0 {
		return
	}
	for _, key := range r.keys(sessionID) {
		pipe.Expire(ctx, key, r.ttl)
	}
}

// GetOrCreate creates the session on first sight and bumps lastVisit on every call
func (r *RedisStore) GetOrCreate(ctx context.Context, sessionID string, visitor models.VisitorInfo) (*Session, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	key := r.metaKey(sessionID)

	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, key, "first_visit", now)
	pipe.HSetNX(ctx, key, "total_messages", 0)
	pipe.HSetNX(ctx, key, "total_products_shown", 0)
	if visitor.IPAddress != "" {
		pipe.HSetNX(ctx, key, "ip_address", visitor.IPAddress)
	}
	if visitor.UserAgent != "" {
		pipe.HSetNX(ctx, key, "user_agent", visitor.UserAgent)
	}
	if visitor.PageURL != "" {
		pipe.HSetNX(ctx, key, "page_url", visitor.PageURL)
	}
	pipe.HSet(ctx, key, "last_visit", now)
	r.refresh(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	return r.Load(ctx, sessionID)
}

// Load loads a session from Redis
func (r *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	pipe := r.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, r.metaKey(sessionID))
	msgsCmd := pipe.LRange(ctx, r.messagesKey(sessionID), 0, -1)
	attrsCmd := pipe.HGetAll(ctx, r.attrsKey(sessionID))
	viewedCmd := pipe.SMembers(ctx, r.viewedKey(sessionID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, ErrSessionNotFound
	}

	messages, err := decodeMessages(msgsCmd.Val())
	if err != nil {
		return nil, err
	}

	return &Session{
		SessionID:          sessionID,
		Messages:           messages,
		Attributes:         attrsCmd.Val(),
		Visitor:            decodeVisitor(meta),
		ProductsViewed:     viewedCmd.Val(),
		TotalProductsShown: atoi(meta["total_products_shown"]),
	}, nil
}

// AppendMessage appends a message with RPUSH, atomic per call
func (r *RedisStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.messagesKey(sessionID), data)
	pipe.HIncrBy(ctx, r.metaKey(sessionID), "total_messages", 1)
	r.refresh(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ReplaceLastMessage overwrites the tail of the message list
func (r *RedisStore) ReplaceLastMessage(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.client.LSet(ctx, r.messagesKey(sessionID), -1, data).Err(); err != nil {
		return fmt.Errorf("failed to replace last message: %w", err)
	}
	return nil
}

// UpdateAttributes shallow-merges attributes with HSET
func (r *RedisStore) UpdateAttributes(ctx context.Context, sessionID string, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	encoded, err := encodeAttributes(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	values := make(map[string]any, len(encoded))
	for k, v := range encoded {
		values[k] = v
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.attrsKey(sessionID), values)
	r.refresh(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update attributes: %w", err)
	}
	return nil
}

// TrackProductViews adds ids to the viewed set
func (r *RedisStore) TrackProductViews(ctx context.Context, sessionID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	members := make([]any, len(productIDs))
	for i, id := range productIDs {
		members[i] = id
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.viewedKey(sessionID), members...)
	pipe.HIncrBy(ctx, r.metaKey(sessionID), "total_products_shown", int64(len(productIDs)))
	r.refresh(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to track product views: %w", err)
	}
	return nil
}

// GetMessages retrieves all messages for a session
func (r *RedisStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return decodeMessages(raw)
}

// SessionExists checks if a session exists in Redis
func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.metaKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return exists > 0, nil
}

// ClearSession removes a session from Redis
func (r *RedisStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.keys(sessionID)...).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeMessages(raw []string) ([]Message, error) {
	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func decodeVisitor(meta map[string]string) VisitorMeta {
	return VisitorMeta{
		IPAddress:     meta["ip_address"],
		UserAgent:     meta["user_agent"],
		PageURL:       meta["page_url"],
		FirstVisit:    parseTime(meta["first_visit"]),
		LastVisit:     parseTime(meta["last_visit"]),
		TotalMessages: atoi(meta["total_messages"]),
	}
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
