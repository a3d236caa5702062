package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/store"
)

var flagOwner string

func owner() string {
	if flagOwner != "" {
		return flagOwner
	}
	if o := os.Getenv("MNEMO_OWNER"); o != "" {
		return o
	}
	return "default"
}

// openEngine opens the database and wires an engine for direct CLI use,
// without going through the HTTP server.
func openEngine() (*engine.Engine, *store.DB, error) {
	dbPath := os.Getenv("MNEMO_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	return engine.New(db, pickEmbedder(db, cfg)), db, nil
}

// --- remember ---

var (
	rememberCategories []string
	rememberTags       []string
	rememberPermanent  bool
	rememberConfidence float64
)

var rememberCmd = &cobra.Command{
	Use:   "remember [content]",
	Short: "Store a memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

func runRemember(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()
	// Extraction runs in the background; a one-shot process must let it
	// finish before the store closes.
	defer eng.Wait()

	result, err := eng.Remember(context.Background(), engine.RememberInput{
		Owner:      owner(),
		Content:    strings.Join(args, " "),
		Categories: rememberCategories,
		Tags:       rememberTags,
		Permanent:  rememberPermanent,
		Confidence: rememberConfidence,
	})
	if err != nil {
		return err
	}

	switch result.Status {
	case engine.StatusStored:
		fmt.Printf("stored #%d\n", result.ID)
	case engine.StatusSuggested:
		fmt.Printf("suggested (confirm to store): %s\n", result.Content)
	default:
		fmt.Printf("skipped: %s\n", result.Reason)
	}
	return nil
}

// --- recall ---

var (
	recallLimit      int
	recallCategories []string
	recallTags       []string
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Retrieve relevant memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := eng.Recall(context.Background(), owner(), strings.Join(args, " "),
		recallLimit, engine.RecallFilters{Categories: recallCategories, Tags: recallTags})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no memories found")
		return nil
	}

	for _, r := range results {
		fmt.Printf("#%d [%.3f] (%s) %s\n", r.Memory.ID, r.Relevance, r.TimeAgo, r.Memory.Content)
		if r.FirstMentioned != "" {
			fmt.Printf("      %s\n", r.FirstMentioned)
		}
	}
	return nil
}

// --- forget ---

var (
	forgetID      int64
	forgetQuery   string
	forgetConfirm []int64
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete memories (query first, confirm by id)",
	RunE:  runForget,
}

func runForget(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := eng.Forget(context.Background(), engine.ForgetInput{
		Owner:      owner(),
		ID:         forgetID,
		Query:      forgetQuery,
		ConfirmIDs: forgetConfirm,
	})
	if err != nil {
		return err
	}

	switch result.Status {
	case engine.StatusCandidates:
		fmt.Println("candidates (re-run with --confirm to delete):")
		for _, c := range result.Candidates {
			fmt.Printf("  #%d (%s) %s\n", c.Memory.ID, c.TimeAgo, c.Memory.Content)
		}
	case engine.StatusDeleted:
		fmt.Printf("deleted %d memories\n", len(result.Deleted))
		if len(result.NotFound) > 0 {
			fmt.Printf("not found: %v\n", result.NotFound)
		}
	default:
		fmt.Println("not found")
	}
	return nil
}

// --- relate ---

var (
	relateSource string
	relateTarget string
	relateType   string
	relateDesc   string
)

var relateCmd = &cobra.Command{
	Use:   "relate [references...]",
	Short: "Query the knowledge graph, or link two entities with --source/--target",
	RunE:  runRelate,
}

func runRelate(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	if relateSource != "" || relateTarget != "" {
		if relateSource == "" || relateTarget == "" || relateType == "" {
			return fmt.Errorf("linking requires --source, --target, and --type")
		}
		if err := eng.Relate(owner(), relateSource, relateTarget, relateType, relateDesc); err != nil {
			return err
		}
		fmt.Printf("linked %s -%s-> %s\n", relateSource, relateType, relateTarget)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("provide references to traverse, e.g.: mnemo relate \"my sister\" dog")
	}

	result, err := eng.RelateQuery(owner(), args)
	if err != nil {
		return err
	}
	if !result.Found {
		fmt.Printf("no connection: %s\n", result.Error)
		return nil
	}

	fmt.Printf("%s (%s) via %s\n", result.Entity.Name, result.Entity.EntityType,
		strings.Join(result.Path, " -> "))
	for _, m := range result.Memories {
		fmt.Printf("  #%d %s\n", m.ID, m.Content)
	}
	return nil
}

// --- entities ---

var entitiesLimit int

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List known entities by mention count",
	RunE:  runEntities,
}

func runEntities(cmd *cobra.Command, args []string) error {
	_, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	var entities []store.Entity
	if entitiesLimit > 0 {
		entities, err = db.PopularEntities(owner(), entitiesLimit)
	} else {
		entities, err = db.ListEntities(owner())
	}
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		fmt.Println("no entities yet")
		return nil
	}
	for _, e := range entities {
		fmt.Printf("%-14s %s (%d mentions)\n", e.EntityType, e.Name, e.MentionCount)
	}
	return nil
}

// --- communities ---

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Group connected entities into communities",
	RunE:  runCommunities,
}

func runCommunities(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	communities, err := eng.Communities(owner())
	if err != nil {
		return err
	}
	if len(communities) == 0 {
		fmt.Println("no entities yet")
		return nil
	}
	for i, c := range communities {
		names := make([]string, len(c.Entities))
		for j, e := range c.Entities {
			names[j] = e.Name
		}
		fmt.Printf("community %d (%d): %s\n", i+1, c.Size, strings.Join(names, ", "))
	}
	return nil
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the lexical index and backfill missing embeddings",
	RunE:  runReindex,
}

func runReindex(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	indexed, embedded, err := eng.Reindex(context.Background(), owner())
	if err != nil {
		return err
	}
	fmt.Printf("reindexed %d memories, embedded %d\n", indexed, embedded)
	return nil
}

func init() {
	rememberCmd.Flags().StringSliceVarP(&rememberCategories, "categories", "c", nil, "Categories (required, e.g. fact,preference)")
	rememberCmd.Flags().StringSliceVarP(&rememberTags, "tags", "t", nil, "Tags (e.g. auto,explicit)")
	rememberCmd.Flags().BoolVar(&rememberPermanent, "permanent", false, "Never decay this memory")
	rememberCmd.Flags().Float64Var(&rememberConfidence, "confidence", 1.0, "Detection confidence for auto-tagged content")
	rememberCmd.MarkFlagRequired("categories")

	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 5, "Maximum number of results")
	recallCmd.Flags().StringSliceVarP(&recallCategories, "categories", "c", nil, "Filter by categories")
	recallCmd.Flags().StringSliceVarP(&recallTags, "tags", "t", nil, "Filter by tags")

	forgetCmd.Flags().Int64Var(&forgetID, "id", 0, "Delete a single memory by id")
	forgetCmd.Flags().StringVarP(&forgetQuery, "query", "q", "", "Find deletion candidates (never deletes)")
	forgetCmd.Flags().Int64SliceVar(&forgetConfirm, "confirm", nil, "Delete these confirmed ids")

	relateCmd.Flags().StringVar(&relateSource, "source", "", "Link mode: source entity reference")
	relateCmd.Flags().StringVar(&relateTarget, "target", "", "Link mode: target entity reference")
	relateCmd.Flags().StringVar(&relateType, "type", "", "Link mode: relationship type")
	relateCmd.Flags().StringVar(&relateDesc, "description", "", "Link mode: optional description")

	entitiesCmd.Flags().IntVarP(&entitiesLimit, "limit", "n", 0, "Show only the most mentioned entities")
}
