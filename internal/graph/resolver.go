package graph

import (
	"regexp"
	"strings"

	"github.com/lazypower/mnemo/internal/store"
)

var (
	titlePrefix      = regexp.MustCompile(`(?i)^(?:dr|mr|mrs|ms|prof)\.?\s+`)
	possessivePrefix = regexp.MustCompile(`(?i)^(?:my|his|her|their|our)\s+`)
)

// Normalize canonicalizes an entity name for the uniqueness key.
// Person names lose honorific titles, relationship phrases lose the
// possessive, and everything is lowercased.
func Normalize(name, entityType string) string {
	n := strings.TrimSpace(name)
	switch entityType {
	case "person":
		n = titlePrefix.ReplaceAllString(n, "")
	case "relationship_ref":
		n = possessivePrefix.ReplaceAllString(n, "")
	}
	return strings.ToLower(n)
}

// ResolveOrCreate resolves a natural-language reference to a canonical
// entity: the alias table first, then normalized name, then a fresh
// entity of the given type. Aliases take priority so "my sister"
// resolves to the same node as "Sarah" once linked.
func ResolveOrCreate(db *store.DB, owner, reference, entityType string) (*store.Entity, error) {
	ref := strings.ToLower(strings.TrimSpace(reference))

	if e, err := db.FindEntityByAlias(owner, ref); err != nil {
		return nil, err
	} else if e != nil {
		return e, nil
	}

	normalized := Normalize(reference, entityType)
	if e, err := db.FindEntityByName(owner, normalized); err != nil {
		return nil, err
	} else if e != nil {
		return e, nil
	}

	e, _, err := db.GetOrCreateEntity(owner, entityType, strings.TrimSpace(reference), normalized)
	return e, err
}
