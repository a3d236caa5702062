package store

import (
	"testing"
)

func TestGetOrCreateEntity(t *testing.T) {
	db := testDB(t)

	e1, created, err := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	if err != nil {
		t.Fatalf("GetOrCreateEntity: %v", err)
	}
	if !created {
		t.Error("first resolve should create")
	}
	if e1.MentionCount != 1 {
		t.Errorf("MentionCount = %d, want 1", e1.MentionCount)
	}

	e2, created, err := db.GetOrCreateEntity("u1", "person", "sarah", "sarah")
	if err != nil {
		t.Fatalf("GetOrCreateEntity second: %v", err)
	}
	if created {
		t.Error("second resolve should hit the existing entity")
	}
	if e2.ID != e1.ID {
		t.Errorf("resolved id = %d, want %d", e2.ID, e1.ID)
	}
	if e2.MentionCount != 2 {
		t.Errorf("MentionCount = %d, want 2", e2.MentionCount)
	}
}

func TestEntityOwnerScoping(t *testing.T) {
	db := testDB(t)

	a, _, _ := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	b, _, _ := db.GetOrCreateEntity("u2", "person", "Sarah", "sarah")
	if a.ID == b.ID {
		t.Error("same entity id across owners")
	}
}

func TestAliases(t *testing.T) {
	db := testDB(t)

	sarah, _, _ := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	if err := db.AddAlias("u1", sarah.ID, "My Sister", "relationship"); err != nil {
		t.Fatalf("AddAlias: %v", err)
	}
	// Re-adding the same alias is a no-op.
	if err := db.AddAlias("u1", sarah.ID, "my sister", "relationship"); err != nil {
		t.Fatalf("AddAlias duplicate: %v", err)
	}

	got, err := db.FindEntityByAlias("u1", "my sister")
	if err != nil {
		t.Fatalf("FindEntityByAlias: %v", err)
	}
	if got == nil || got.ID != sarah.ID {
		t.Errorf("alias resolved to %+v, want Sarah", got)
	}

	// Alias is owner-scoped.
	got, _ = db.FindEntityByAlias("u2", "my sister")
	if got != nil {
		t.Error("alias leaked across owners")
	}
}

func TestAddRelationship(t *testing.T) {
	db := testDB(t)

	sarah, _, _ := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	portland, _, _ := db.GetOrCreateEntity("u1", "place", "Portland", "portland")

	if err := db.AddRelationship("u1", sarah.ID, portland.ID, "lives_in", "", 1.0, 0); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	// Duplicate edge is a no-op.
	if err := db.AddRelationship("u1", sarah.ID, portland.ID, "lives_in", "", 1.0, 0); err != nil {
		t.Fatalf("AddRelationship duplicate: %v", err)
	}

	rels, err := db.ListRelationships("u1")
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("relationships = %d, want 1", len(rels))
	}
	if rels[0].Relationship != "lives_in" {
		t.Errorf("relationship = %q, want lives_in", rels[0].Relationship)
	}

	if err := db.AddRelationship("u1", sarah.ID, portland.ID, "hates", "", 1.0, 0); err == nil {
		t.Error("expected error for relationship outside the vocabulary")
	}
}

func TestEntityCascadeDelete(t *testing.T) {
	db := testDB(t)

	sarah, _, _ := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	max, _, _ := db.GetOrCreateEntity("u1", "pet", "Max", "max")
	db.AddAlias("u1", sarah.ID, "my sister", "relationship")
	db.AddRelationship("u1", sarah.ID, max.ID, "owns", "", 1.0, 0)

	if _, err := db.Exec("DELETE FROM entities WHERE id = ?", sarah.ID); err != nil {
		t.Fatalf("delete entity: %v", err)
	}

	if got, _ := db.FindEntityByAlias("u1", "my sister"); got != nil {
		t.Error("alias survived entity deletion")
	}
	rels, _ := db.ListRelationships("u1")
	if len(rels) != 0 {
		t.Errorf("relationships = %d after endpoint deletion, want 0", len(rels))
	}
}

func TestMemoryDeleteCascadesRefsAndProvenance(t *testing.T) {
	db := testDB(t)

	m := mustCreate(t, db, "u1", "My sister Sarah lives in Portland", "fact", "relationship")
	sarah, _, _ := db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	portland, _, _ := db.GetOrCreateEntity("u1", "place", "Portland", "portland")
	db.AddEntityRef(m.ID, sarah.ID, "")
	db.AddRelationship("u1", sarah.ID, portland.ID, "lives_in", "", 1.0, m.ID)

	if _, _, err := db.DeleteMemories("u1", []int64{m.ID}); err != nil {
		t.Fatalf("DeleteMemories: %v", err)
	}

	ids, _ := db.MemoryIDsForEntity(sarah.ID)
	if len(ids) != 0 {
		t.Errorf("refs = %d after memory deletion, want 0", len(ids))
	}

	// The edge outlives its provenance; the memory pointer nulls out.
	rels, _ := db.ListRelationships("u1")
	if len(rels) != 1 {
		t.Fatalf("relationships = %d, want 1", len(rels))
	}
	if rels[0].SourceMemoryID != 0 {
		t.Errorf("SourceMemoryID = %d after memory deletion, want 0", rels[0].SourceMemoryID)
	}
}

func TestPopularEntities(t *testing.T) {
	db := testDB(t)

	db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	db.GetOrCreateEntity("u1", "person", "Sarah", "sarah")
	db.GetOrCreateEntity("u1", "pet", "Max", "max")

	popular, err := db.PopularEntities("u1", 1)
	if err != nil {
		t.Fatalf("PopularEntities: %v", err)
	}
	if len(popular) != 1 || popular[0].Name != "Sarah" {
		t.Errorf("PopularEntities = %v, want [Sarah]", popular)
	}
	if popular[0].MentionCount != 3 {
		t.Errorf("MentionCount = %d, want 3", popular[0].MentionCount)
	}
}
