// Package memory augments chat completions with prior conversation
// context. Turns are embedded and stored per tenant+user; retrieval is
// cosine nearest-neighbor over that partition.
//
// The engine is deliberately forgiving: retrieval failures produce an
// empty context and storage failures are only logged, so memory being
// down never fails a completion.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// storeTimeout bounds each background write; the caller has already
// moved on by the time it fires.
const storeTimeout = 30 * time.Second

// Engine ties an Embedder to a Store.
type Engine struct {
	store    *Store
	embedder Embedder
	logger   zerolog.Logger

	retrievalK int

	wg sync.WaitGroup
}

// NewEngine creates an Engine. retrievalK is the default number of
// snippets RetrieveContext returns when the caller passes k <= 0.
func NewEngine(store *Store, embedder Embedder, retrievalK int, logger zerolog.Logger) *Engine {
	if retrievalK <= 0 {
		retrievalK = 3
	}
	return &Engine{
		store:      store,
		embedder:   embedder,
		retrievalK: retrievalK,
		logger:     logger.With().Str("component", "memory_engine").Logger(),
	}
}

// RetrieveContext embeds the query and returns up to k snippets from
// the tenant+user partition in descending relevance. Any failure along
// the way degrades to an empty slice; memory never fails a completion.
func (e *Engine) RetrieveContext(ctx context.Context, query, tenantID, userID string, k int) []string {
	if k <= 0 {
		k = e.retrievalK
	}
	if e.embedder == nil || tenantID == "" || userID == "" {
		return nil
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn().Err(err).Msg("query embedding failed, returning empty context")
		return nil
	}

	results, err := e.store.SearchByVector(ctx, &SearchQuery{
		QueryEmbedding: embedding,
		TenantID:       tenantID,
		UserID:         userID,
		Limit:          k,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("vector search failed, returning empty context")
		return nil
	}

	return lo.Map(results, func(r SearchResult, _ int) string {
		return formatSnippet(r.Turn)
	})
}

// AddConversation stores one exchange asynchronously. The write embeds
// the combined text and saves it in the background; failures are logged
// and never surfaced to the caller.
func (e *Engine) AddConversation(userMsg, aiResp, tenantID, userID string, metadata map[string]interface{}) {
	if tenantID == "" || userID == "" {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		turn := &ConversationTurn{
			TenantID:    tenantID,
			UserID:      userID,
			UserMessage: userMsg,
			AIResponse:  aiResp,
			Metadata:    metadata,
		}
		if e.embedder != nil {
			embedding, err := e.embedder.Embed(ctx, formatSnippet(turn))
			if err != nil {
				e.logger.Warn().Err(err).Msg("turn embedding failed, saving without embedding")
			} else {
				turn.Embedding = embedding
			}
		}

		if err := e.store.SaveTurn(ctx, turn); err != nil {
			e.logger.Warn().
				Err(err).
				Str("tenant_id", tenantID).
				Str("user_id", userID).
				Msg("failed to store conversation turn")
		}
	}()
}

// Close waits for in-flight background writes to finish. Call it
// during shutdown so pending turns are not lost.
func (e *Engine) Close() {
	e.wg.Wait()
}

func formatSnippet(turn *ConversationTurn) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", turn.UserMessage, turn.AIResponse)
}
