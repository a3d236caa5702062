package engine

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/lazypower/mnemo/internal/store"
)

// hashEmbedder is a deterministic test embedder: hashed bag-of-words,
// so identical text embeds to identical unit vectors.
type hashEmbedder struct{}

func (hashEmbedder) Model() string   { return "hash" }
func (hashEmbedder) Dimensions() int { return 64 }

func (hashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, 64)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%64]++
	}
	normalize(vec)
	return vec, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, hashEmbedder{})
}

func remember(t *testing.T, e *Engine, in RememberInput) *RememberResult {
	t.Helper()
	result, err := e.Remember(context.Background(), in)
	if err != nil {
		t.Fatalf("Remember(%q): %v", in.Content, err)
	}
	return result
}

func TestRememberExplicitStored(t *testing.T) {
	e := newTestEngine(t)

	result := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "allergic to shellfish",
		Categories: []string{"fact"},
	})
	if result.Status != StatusStored {
		t.Fatalf("status = %q, want stored", result.Status)
	}
	if result.ID == 0 {
		t.Fatal("no id assigned")
	}

	results, err := e.Recall(context.Background(), "u1", "shellfish allergy", 5, RecallFilters{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("stored memory not recallable")
	}
	if results[0].Memory.ID != result.ID {
		t.Errorf("top recall = %d, want %d", results[0].Memory.ID, result.ID)
	}
	if results[0].RecencyWeight != 1.0 {
		t.Errorf("fresh record recency weight = %v, want 1.0", results[0].RecencyWeight)
	}
}

func TestRememberPermanentOverride(t *testing.T) {
	e := newTestEngine(t)

	result := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "wants to learn woodworking someday",
		Categories: []string{"goal"},
		Permanent:  true,
	})
	if result.Status != StatusStored {
		t.Fatalf("status = %q, want stored", result.Status)
	}

	m, err := e.db.GetMemory("u1", result.ID)
	if err != nil || m == nil {
		t.Fatalf("GetMemory: %v, %v", m, err)
	}
	if !m.IsPermanent {
		t.Error("permanence override not persisted")
	}
}

func TestRememberAutoNoise(t *testing.T) {
	e := newTestEngine(t)

	result := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "ok",
		Categories: []string{"context"},
		Tags:       []string{"auto"},
		Confidence: 0.99,
	})
	if result.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", result.Status)
	}

	n, _ := e.db.CountMemories("u1")
	if n != 0 {
		t.Errorf("record count = %d after rejection, want 0", n)
	}
}

func TestRememberAutoSuggested(t *testing.T) {
	e := newTestEngine(t)

	result := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "seems to prefer window seats on flights",
		Categories: []string{"preference"},
		Tags:       []string{"auto"},
		Confidence: 0.80,
	})
	if result.Status != StatusSuggested {
		t.Fatalf("status = %q, want suggested", result.Status)
	}
	if result.Content == "" {
		t.Error("suggested result should echo candidate content")
	}

	n, _ := e.db.CountMemories("u1")
	if n != 0 {
		t.Errorf("record count = %d after suggestion, want 0", n)
	}
}

func TestRememberAutoDuplicate(t *testing.T) {
	e := newTestEngine(t)

	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "training for the Portland marathon in October",
		Categories: []string{"goal"},
	})

	result := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "training for the Portland marathon in October",
		Categories: []string{"goal"},
		Tags:       []string{"auto"},
		Confidence: 0.99,
	})
	if result.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", result.Status)
	}
	if result.Reason != "duplicate" {
		t.Errorf("reason = %q, want duplicate", result.Reason)
	}

	n, _ := e.db.CountMemories("u1")
	if n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
}

func TestRememberWaitDrainsExtraction(t *testing.T) {
	e := newTestEngine(t)

	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "My sister Sarah lives in Portland",
		Categories: []string{"fact", "relationship"},
	})

	// After Wait the extracted graph must be durable, so a later
	// process can traverse it.
	e.Wait()

	sarah, err := e.db.FindEntityByName("u1", "sarah")
	if err != nil {
		t.Fatalf("FindEntityByName: %v", err)
	}
	if sarah == nil {
		t.Fatal("extraction not drained: Sarah missing after Wait")
	}

	result, err := e.RelateQuery("u1", []string{"my sister", "place"})
	if err != nil {
		t.Fatalf("RelateQuery: %v", err)
	}
	if !result.Found || result.Entity.Name != "Portland" {
		t.Errorf("traversal after Wait = %+v, want Portland", result)
	}
}

func TestRecallIsolation(t *testing.T) {
	e := newTestEngine(t)

	remember(t, e, RememberInput{
		Owner:      "alice",
		Content:    "planning a surprise trip to Lisbon",
		Categories: []string{"event"},
	})
	remember(t, e, RememberInput{
		Owner:      "bob",
		Content:    "planning a surprise trip to Lisbon",
		Categories: []string{"event"},
	})

	results, err := e.Recall(context.Background(), "alice", "surprise trip Lisbon", 10, RecallFilters{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want exactly alice's record", len(results))
	}
	if results[0].Memory.Owner != "alice" {
		t.Errorf("owner = %q, want alice", results[0].Memory.Owner)
	}
}

func TestRecallFilters(t *testing.T) {
	e := newTestEngine(t)

	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "worried about the mortgage payments",
		Categories: []string{"concern"},
	})
	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "mortgage rate locked in at a good number",
		Categories: []string{"fact"},
	})

	results, err := e.Recall(context.Background(), "u1", "mortgage", 10,
		RecallFilters{Categories: []string{"concern"}})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, r := range results {
		if !r.Memory.HasCategory("concern") {
			t.Errorf("filter leak: %q has categories %v", r.Memory.Content, r.Memory.Categories)
		}
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestRecallCacheInvalidatedByWrite(t *testing.T) {
	e := newTestEngine(t)

	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "first note about the garden project",
		Categories: []string{"topic"},
	})

	before, err := e.Recall(context.Background(), "u1", "garden project", 10, RecallFilters{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}

	remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "second note about the garden project",
		Categories: []string{"topic"},
	})

	after, err := e.Recall(context.Background(), "u1", "garden project", 10, RecallFilters{})
	if err != nil {
		t.Fatalf("Recall after write: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Errorf("results after write = %d, want %d (cache must not serve stale data)",
			len(after), len(before)+1)
	}
}

func TestForgetTwoCallSafety(t *testing.T) {
	e := newTestEngine(t)

	stored := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "notes from the camping trip last summer",
		Categories: []string{"event"},
	})

	// A query surfaces candidates but never deletes.
	result, err := e.Forget(context.Background(), ForgetInput{Owner: "u1", Query: "camping trip"})
	if err != nil {
		t.Fatalf("Forget query: %v", err)
	}
	if result.Status != StatusCandidates {
		t.Fatalf("status = %q, want candidates", result.Status)
	}
	if n, _ := e.db.CountMemories("u1"); n != 1 {
		t.Fatalf("record count = %d after candidate search, want 1", n)
	}

	// Confirming the candidate id deletes it.
	result, err = e.Forget(context.Background(), ForgetInput{Owner: "u1", ConfirmIDs: []int64{stored.ID}})
	if err != nil {
		t.Fatalf("Forget confirm: %v", err)
	}
	if result.Status != StatusDeleted {
		t.Fatalf("status = %q, want deleted", result.Status)
	}
	if n, _ := e.db.CountMemories("u1"); n != 0 {
		t.Errorf("record count = %d after confirmed delete, want 0", n)
	}
}

func TestForgetCascadeCompleteness(t *testing.T) {
	e := newTestEngine(t)

	stored := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "met with the accountant about taxes",
		Categories: []string{"event"},
	})

	if _, err := e.Forget(context.Background(), ForgetInput{Owner: "u1", ID: stored.ID}); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	results, _ := e.Recall(context.Background(), "u1", "accountant taxes", 10, RecallFilters{})
	for _, r := range results {
		if r.Memory.ID == stored.ID {
			t.Error("deleted record returned by recall")
		}
	}

	lexical, _ := e.db.SearchLexical("u1", "accountant", 10)
	for _, r := range lexical {
		if r.MemoryID == stored.ID {
			t.Error("deleted record still in lexical index")
		}
	}

	if v, _ := e.db.GetVector(stored.ID); v != nil {
		t.Error("deleted record still in semantic index")
	}
}

func TestForgetCrossOwnerNotFound(t *testing.T) {
	e := newTestEngine(t)

	stored := remember(t, e, RememberInput{
		Owner:      "u1",
		Content:    "confidential plans belonging to u1",
		Categories: []string{"fact"},
	})

	result, err := e.Forget(context.Background(), ForgetInput{Owner: "u2", ID: stored.ID})
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if result.Status != StatusNotFound {
		t.Errorf("status = %q, want not_found", result.Status)
	}
	if n, _ := e.db.CountMemories("u1"); n != 1 {
		t.Errorf("cross-owner forget removed a record")
	}
}

func TestRelateInfersEndpointTypes(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Relate("u1", "Sarah", "Lisbon", "lives_in", ""); err != nil {
		t.Fatalf("Relate: %v", err)
	}

	lisbon, err := e.db.FindEntityByName("u1", "lisbon")
	if err != nil || lisbon == nil {
		t.Fatalf("Lisbon not created: %v, %v", lisbon, err)
	}
	if lisbon.EntityType != "place" {
		t.Errorf("Lisbon type = %q, want place", lisbon.EntityType)
	}

	if err := e.Relate("u1", "Sarah", "Initech", "works_at", ""); err != nil {
		t.Fatalf("Relate works_at: %v", err)
	}
	initech, _ := e.db.FindEntityByName("u1", "initech")
	if initech == nil || initech.EntityType != "organization" {
		t.Errorf("Initech = %+v, want organization", initech)
	}

	// An unknown relationship fails before minting any entity.
	if err := e.Relate("u1", "Sarah", "Moriarty", "arch_nemesis_of", ""); err == nil {
		t.Fatal("expected error for relationship outside the vocabulary")
	}
	if ghost, _ := e.db.FindEntityByName("u1", "moriarty"); ghost != nil {
		t.Error("rejected link still created an entity")
	}
}

func TestReindexRecoversDroppedIndex(t *testing.T) {
	e := newTestEngine(t)

	// Insert directly, skipping both index updates, as after a crash
	// between commit and index write.
	m := &store.Memory{Owner: "u1", Content: "rebuilt from the structured store", Categories: []string{"fact"}}
	if err := e.db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	indexed, embedded, err := e.Reindex(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if indexed != 1 {
		t.Errorf("indexed = %d, want 1", indexed)
	}
	if embedded != 1 {
		t.Errorf("embedded = %d, want 1", embedded)
	}

	results, err := e.Recall(context.Background(), "u1", "structured store rebuilt", 5, RecallFilters{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Error("reindexed record not recallable")
	}
}
