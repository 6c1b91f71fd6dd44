package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/config"
	"github.com/spigell/freelance-pipeline/internal/logger"
	"github.com/spigell/freelance-pipeline/internal/store"
	"github.com/spigell/freelance-pipeline/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recently persisted jobs",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "how many jobs to show")
	historyCmd.Flags().BoolP("proposals", "p", false, "print proposals below each job")
}

func history(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	// Only the store section matters here, so the config is not validated.
	cfg, err := config.Decode(viper.AllSettings())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	seen, err := store.Open(ctx, storeOptions(cfg))
	if err != nil {
		logger.Fatal("opening the job store", zap.Error(err))
	}
	defer seen.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	withProposals, _ := cmd.Flags().GetBool("proposals")

	items, err := seen.Recent(ctx, limit)
	if err != nil {
		logger.Fatal("listing jobs", zap.Error(err))
	}

	if len(items) == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs persisted yet"))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FOUND\tSCORE\tSOURCE\tBUDGET\tTITLE\tURL")
	for _, j := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			j.FoundAt.Local().Format("2006-01-02 15:04"), j.Score, j.Source, j.Budget, utils.Cap(j.Title, 50), j.URL)
		if withProposals {
			fmt.Fprintf(w, "\t\t\t\t%s (%s)\t\n", utils.TruncateForLog(j.Proposal, 120), j.ProposalSource)
		}
	}
	_ = w.Flush()
}
