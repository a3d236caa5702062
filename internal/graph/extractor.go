package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lazypower/mnemo/internal/store"
)

// Extraction is pattern-based, not ML-based: capitalized proper nouns
// become person candidates, possessive phrases type pets and produce
// aliases, and "lives in" / "works at" phrases type places and
// organizations while yielding the matching relationship edge.
var (
	personPattern = regexp.MustCompile(
		`\b(?:(?:Dr|Mr|Mrs|Ms|Prof)\.?\s+)?([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})\b`)

	petPattern = regexp.MustCompile(
		`(?i)(?:my|his|her|their|our)\s+(?:dog|cat|pet|bird|fish|hamster|rabbit|parrot|turtle|horse)\s+([A-Z][a-z]+)\b`)

	relationshipRefPattern = regexp.MustCompile(
		`(?i)\b((?:my|his|her|their|our)\s+` +
			`(?:mom|mother|dad|father|sister|brother|wife|husband|` +
			`partner|boyfriend|girlfriend|son|daughter|friend|boss|coworker|neighbor|` +
			`aunt|uncle|cousin|grandma|grandmother|grandpa|grandfather|` +
			`niece|nephew|roommate|fiance|fiancee))\b`)

	placePattern = regexp.MustCompile(
		`(?:lives?|lived|living|moved to|moving to)\s+(?:in\s+)?([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)

	orgPattern = regexp.MustCompile(
		`(?:works?|worked|working)\s+(?:at|for)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\b`)
)

// extractionStopWords filters proper-noun false positives: sentence
// starters, pronouns, weekdays, months.
var extractionStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "use": true,
	"get": true, "set": true, "add": true, "new": true, "this": true,
	"that": true, "from": true, "have": true, "been": true, "will": true,
	"can": true, "should": true, "just": true, "also": true, "very": true,
	"much": true, "some": true, "any": true, "all": true, "but": true,
	"not": true, "what": true, "when": true, "where": true, "how": true,
	"why": true, "who": true, "which": true, "would": true, "could": true,
	"there": true, "about": true, "like": true, "into": true, "over": true,
	"then": true, "them": true, "being": true, "having": true, "doing": true,
	"going": true, "today": true, "tomorrow": true, "yesterday": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"my": true, "his": true, "her": true, "their": true, "our": true,
	"your": true, "its": true, "she": true, "he": true, "they": true,
	"we": true, "you": true, "said": true, "told": true, "went": true,
	"had": true, "was": true, "were": true, "are": true, "really": true,
	"think": true, "know": true, "want": true, "need": true, "love": true,
	"hate": true, "still": true, "maybe": true, "sure": true, "well": true,
	"now": true, "here": true, "oh": true, "hey": true, "hi": true,
	"yes": true, "no": true, "okay": true, "yeah": true, "nah": true,
	"so": true, "because": true, "since": true, "after": true, "before": true,
}

// Mention is one extracted entity reference with its position in the
// source text.
type Mention struct {
	Type     string
	Name     string
	Context  string
	Position int
}

// ExtractMentions finds entity references in text, deduplicated by
// (type, lowercased name) and sorted by position.
func ExtractMentions(text string) []Mention {
	if text == "" {
		return nil
	}

	var mentions []Mention
	seen := make(map[string]bool)

	collect := func(entityType string, pattern *regexp.Regexp) {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if start < 0 {
				continue
			}
			name := strings.TrimSpace(text[start:end])
			if len(name) < 2 || extractionStopWords[strings.ToLower(name)] {
				continue
			}
			key := entityType + ":" + strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			mentions = append(mentions, Mention{
				Type:     entityType,
				Name:     name,
				Context:  snippet(text, loc[0], loc[1]),
				Position: start,
			})
		}
	}

	collect("person", personPattern)
	collect("pet", petPattern)
	collect("place", placePattern)
	collect("organization", orgPattern)
	collect("relationship_ref", relationshipRefPattern)

	// A name claimed by a typed pattern is not also a person: "Max" in
	// "my dog Max" and "Portland" in "lives in Portland" stay out of the
	// person list.
	claimed := make(map[string]bool)
	for _, m := range mentions {
		if m.Type == "pet" || m.Type == "place" || m.Type == "organization" {
			claimed[strings.ToLower(m.Name)] = true
		}
	}
	filtered := mentions[:0]
	for _, m := range mentions {
		if m.Type == "person" && claimed[strings.ToLower(m.Name)] {
			continue
		}
		filtered = append(filtered, m)
	}
	mentions = filtered

	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].Position < mentions[j].Position
	})
	return mentions
}

func snippet(text string, start, end int) string {
	s := start - 25
	if s < 0 {
		s = 0
	}
	e := end + 25
	if e > len(text) {
		e = len(text)
	}
	return "..." + text[s:e] + "..."
}

// ExtractAndStore extracts entities from a memory's content and commits
// them to the structured store: canonical entities, provenance refs,
// relationship edges (owns / lives_in / works_at), and aliases for
// relationship references.
func ExtractAndStore(db *store.DB, owner string, memoryID int64, content string) error {
	mentions := ExtractMentions(content)
	if len(mentions) == 0 {
		return nil
	}

	// Person positions drive subject attribution for edges and aliases.
	type placed struct {
		entity   *store.Entity
		position int
	}
	var persons []placed

	resolved := make(map[string]*store.Entity)
	for _, m := range mentions {
		if m.Type == "relationship_ref" {
			continue
		}
		e, err := ResolveOrCreate(db, owner, m.Name, m.Type)
		if err != nil {
			return fmt.Errorf("resolve %s %q: %w", m.Type, m.Name, err)
		}
		resolved[m.Type+":"+strings.ToLower(m.Name)] = e
		if err := db.AddEntityRef(memoryID, e.ID, m.Context); err != nil {
			return fmt.Errorf("ref %q: %w", m.Name, err)
		}
		if m.Type == "person" {
			persons = append(persons, placed{entity: e, position: m.Position})
		}
	}

	subjectBefore := func(position int) *store.Entity {
		var best *store.Entity
		for _, p := range persons {
			if p.position < position {
				best = p.entity
			}
		}
		return best
	}

	for _, m := range mentions {
		e := resolved[m.Type+":"+strings.ToLower(m.Name)]
		var rel string
		switch m.Type {
		case "pet":
			rel = "owns"
		case "place":
			rel = "lives_in"
		case "organization":
			rel = "works_at"
		default:
			continue
		}
		subject := subjectBefore(m.Position)
		if subject == nil || e == nil {
			continue
		}
		if err := db.AddRelationship(owner, subject.ID, e.ID, rel, m.Context, 0.9, memoryID); err != nil {
			return fmt.Errorf("edge %s: %w", rel, err)
		}
	}

	// Relationship references alias the subject person: in "My sister
	// Sarah lives in Portland", "my sister" points at Sarah. Nearest
	// preceding person wins; otherwise the first person in the text.
	for _, m := range mentions {
		if m.Type != "relationship_ref" {
			continue
		}
		subject := subjectBefore(m.Position)
		if subject == nil && len(persons) > 0 {
			subject = persons[0].entity
		}
		if subject == nil {
			continue
		}
		if err := db.AddAlias(owner, subject.ID, m.Name, "relationship"); err != nil {
			return fmt.Errorf("alias %q: %w", m.Name, err)
		}
	}

	return nil
}
