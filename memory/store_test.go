package memory

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/2ai-cx/llmcore/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// semanticEmbedder hashes words into a fixed-dimension vector so texts
// sharing words land near each other. Deterministic, no external
// service, suitable for CI.
type semanticEmbedder struct {
	dimensions int
}

func (e *semanticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.Fields(strings.ToLower(text))
	embedding := make([]float32, e.dimensions)
	if len(words) == 0 {
		return embedding, nil
	}

	for _, word := range words {
		h := fnv.New32a()
		if _, err := h.Write([]byte(word)); err != nil {
			return nil, err
		}
		hash := h.Sum32()
		for i := 0; i < 3; i++ {
			dim := int((hash + uint32(i)*2654435761) % uint32(e.dimensions)) // nolint:gosec // Test code
			embedding[dim] += float32(math.Sin(float64(hash+uint32(i))*0.1) + 1.0)
		}
	}

	var magnitude float32
	for _, val := range embedding {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))
	if magnitude > 0 {
		for i := range embedding {
			embedding[i] /= magnitude
		}
	}
	return embedding, nil
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.RunMigrations(db, filepath.Join("..", "migrations"), zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func mustSave(t *testing.T, s *Store, e Embedder, tenantID, userID, userMsg, aiResp string) {
	t.Helper()
	ctx := context.Background()
	turn := &ConversationTurn{
		TenantID:    tenantID,
		UserID:      userID,
		UserMessage: userMsg,
		AIResponse:  aiResp,
	}
	if e != nil {
		vec, err := e.Embed(ctx, userMsg+"\n"+aiResp)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		turn.Embedding = vec
	}
	if err := s.SaveTurn(ctx, turn); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	if turn.ID == 0 {
		t.Fatal("Expected SaveTurn to assign an ID")
	}
}

func TestStoreVectorSearchRanksByRelevance(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zerolog.Nop())
	emb := &semanticEmbedder{dimensions: 64}
	ctx := context.Background()

	mustSave(t, store, emb, "tenant-a", "user-1",
		"What invoicing rules apply to contractors?",
		"Contractors submit invoices monthly with itemized hours.")
	mustSave(t, store, emb, "tenant-a", "user-1",
		"How do I reset my password?",
		"Use the account settings page to reset your password.")

	queryVec, err := emb.Embed(ctx, "contractor invoices itemized hours")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	results, err := store.SearchByVector(ctx, &SearchQuery{
		QueryEmbedding: queryVec,
		TenantID:       "tenant-a",
		UserID:         "user-1",
		Limit:          2,
	})
	if err != nil {
		t.Fatalf("SearchByVector: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected at least one result")
	}
	if !strings.Contains(results[0].Turn.UserMessage, "invoicing") {
		t.Errorf("Expected invoicing turn ranked first, got %q", results[0].Turn.UserMessage)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("Expected results in descending score order")
		}
	}
}

func TestStorePartitionIsolation(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zerolog.Nop())
	emb := &semanticEmbedder{dimensions: 64}
	ctx := context.Background()

	mustSave(t, store, emb, "tenant-a", "user-1", "budget planning", "budget answer")
	mustSave(t, store, emb, "tenant-b", "user-1", "budget planning", "other tenant answer")
	mustSave(t, store, emb, "tenant-a", "user-2", "budget planning", "other user answer")

	queryVec, _ := emb.Embed(ctx, "budget planning")
	results, err := store.SearchByVector(ctx, &SearchQuery{
		QueryEmbedding: queryVec,
		TenantID:       "tenant-a",
		UserID:         "user-1",
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("SearchByVector: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected only the tenant-a/user-1 turn, got %d results", len(results))
	}
	if results[0].Turn.AIResponse != "budget answer" {
		t.Errorf("Expected the partition's own turn, got %q", results[0].Turn.AIResponse)
	}
}

func TestStoreSkipsTurnsWithoutEmbedding(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zerolog.Nop())
	emb := &semanticEmbedder{dimensions: 64}
	ctx := context.Background()

	mustSave(t, store, nil, "tenant-a", "user-1", "no embedding here", "stored anyway")

	queryVec, _ := emb.Embed(ctx, "no embedding here")
	results, err := store.SearchByVector(ctx, &SearchQuery{
		QueryEmbedding: queryVec,
		TenantID:       "tenant-a",
		UserID:         "user-1",
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("SearchByVector: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected unembedded turns to be unmatchable, got %d results", len(results))
	}
}

func TestStoreKeywordSearch(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	mustSave(t, store, nil, "tenant-a", "user-1",
		"Tell me about the quarterly roadmap", "The roadmap ships in October.")
	mustSave(t, store, nil, "tenant-b", "user-1",
		"roadmap for another tenant", "different answer")

	results, err := store.SearchByKeyword(ctx, &SearchQuery{
		QueryText: "roadmap",
		TenantID:  "tenant-a",
		UserID:    "user-1",
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("SearchByKeyword: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 scoped keyword match, got %d", len(results))
	}
	if results[0].Turn.AIResponse != "The roadmap ships in October." {
		t.Errorf("Unexpected match %q", results[0].Turn.AIResponse)
	}
}

func TestStoreRejectsUnscopedTurns(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	err := store.SaveTurn(ctx, &ConversationTurn{
		UserMessage: "hello",
		AIResponse:  "hi",
	})
	if err == nil {
		t.Error("Expected SaveTurn to reject a turn without tenant and user identifiers")
	}
}
