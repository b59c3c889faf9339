package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// candidateLimit caps how many rows a partition scan loads before
// scoring. Partitions are per tenant+user, so the scan stays small.
const candidateLimit = 500

// Store persists conversation turns in sqlite and answers vector and
// keyword searches over one tenant+user partition.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates and returns a Store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "memory_store").Logger(),
	}
}

// StatementBuilder returns a Squirrel StatementBuilder configured for
// SQLite. SQLite uses '?' placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

func selectTurnColumns() []string {
	return []string{
		"id", "tenant_id", "user_id", "user_message", "ai_response",
		"embedding", "metadata", "created_at",
	}
}

// SaveTurn inserts one conversation turn and indexes its text for
// keyword search. The turn's ID and CreatedAt are filled in on return.
func (s *Store) SaveTurn(ctx context.Context, turn *ConversationTurn) error {
	if strings.TrimSpace(turn.UserMessage) == "" && strings.TrimSpace(turn.AIResponse) == "" {
		return errors.New("turn has no content")
	}
	if turn.TenantID == "" || turn.UserID == "" {
		return errors.New("turn must carry tenant and user identifiers")
	}

	var metaJSON []byte
	var err error
	if turn.Metadata != nil {
		metaJSON, err = json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	nowUnix := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := StatementBuilder().
		Insert("conversation_memories").
		Columns("tenant_id", "user_id", "user_message", "ai_response",
			"embedding", "metadata", "created_at").
		Values(turn.TenantID, turn.UserID, turn.UserMessage, turn.AIResponse,
			encodeVector(turn.Embedding), metaJSON, nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("insert conversation turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversation_memories_fts (rowid, content) VALUES (?, ?)
`, id, turn.UserMessage+"\n"+turn.AIResponse); err != nil {
		return fmt.Errorf("insert fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	turn.ID = id
	turn.CreatedAt = time.Unix(nowUnix, 0)
	s.logger.Debug().
		Int64("id", id).
		Str("tenant_id", turn.TenantID).
		Str("user_id", turn.UserID).
		Msg("conversation turn stored")
	return nil
}

// SearchByVector scores the tenant+user partition against the query
// embedding and returns up to Limit results in descending relevance.
// Turns stored without an embedding never match.
func (s *Store) SearchByVector(ctx context.Context, q *SearchQuery) ([]SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	query := StatementBuilder().
		Select(selectTurnColumns()...).
		From("conversation_memories").
		Where(sq.Eq{"tenant_id": q.TenantID, "user_id": q.UserID}).
		OrderBy("created_at DESC").
		Limit(uint64(candidateLimit))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var results []SearchResult
	for rows.Next() {
		turn, err := loadTurnFromRow(rows)
		if err != nil {
			return nil, err
		}
		if len(turn.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(q.QueryEmbedding, turn.Embedding)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Turn: turn, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	s.logger.Debug().
		Str("tenant_id", q.TenantID).
		Str("user_id", q.UserID).
		Int("results", len(results)).
		Msg("vector search completed")
	return results, nil
}

// SearchByKeyword runs a full-text search over the partition. Scores
// are uniform; ordering beyond FTS rank is not guaranteed.
func (s *Store) SearchByKeyword(ctx context.Context, q *SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(q.QueryText) == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT rowid
FROM conversation_memories_fts
WHERE conversation_memories_fts MATCH ?
LIMIT ?
`, q.QueryText, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	turns, err := s.loadTurnsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, turn := range turns {
		if turn.TenantID != q.TenantID || turn.UserID != q.UserID {
			continue
		}
		results = append(results, SearchResult{Turn: turn, Score: 1.0})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *Store) loadTurnsByIDs(ctx context.Context, ids []int64) ([]*ConversationTurn, error) {
	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}

	query := StatementBuilder().
		Select(selectTurnColumns()...).
		From("conversation_memories").
		Where(sq.Eq{"id": idArgs})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var turns []*ConversationTurn
	for rows.Next() {
		turn, err := loadTurnFromRow(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func loadTurnFromRow(rows *sql.Rows) (*ConversationTurn, error) {
	var (
		id          int64
		tenantID    string
		userID      string
		userMessage string
		aiResponse  string
		embBlob     []byte
		metaJSON    sql.NullString
		createdAt   int64
	)
	if err := rows.Scan(&id, &tenantID, &userID, &userMessage, &aiResponse,
		&embBlob, &metaJSON, &createdAt); err != nil {
		return nil, err
	}

	vec, err := decodeVector(embBlob)
	if err != nil {
		return nil, err
	}

	var meta map[string]interface{}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &meta)
	}

	return &ConversationTurn{
		ID:          id,
		TenantID:    tenantID,
		UserID:      userID,
		UserMessage: userMessage,
		AIResponse:  aiResponse,
		Embedding:   vec,
		Metadata:    meta,
		CreatedAt:   time.Unix(createdAt, 0),
	}, nil
}
