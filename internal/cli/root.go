package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Local personal memory engine",
	Long:  "Mnemo stores short personal facts, recalls them with hybrid lexical and semantic search weighted by recency, and maintains a personal knowledge graph for relational queries.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "Owner scope (default $MNEMO_OWNER or \"default\")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(communitiesCmd)
	rootCmd.AddCommand(reindexCmd)
}
