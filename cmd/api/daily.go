package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDailyCommand() *cobra.Command {
	var (
		date   string
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Print the vocabulary words and icon cards for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			svc, err := newVocabulary(cfg.Vocabulary)
			if err != nil {
				return err
			}

			day := svc.Today()
			if date != "" {
				if day, err = svc.ParseDate(date); err != nil {
					return err
				}
			}
			words := svc.Daily(day, count)
			cards := svc.Visual(day, count)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"words": words, "visual": cards})
			}

			fmt.Fprintf(out, "Words for %s\n", words.Date)
			for i, item := range words.Items {
				fmt.Fprintf(out, "%2d. %s: %s\n", i+1, item.Term, item.Definition)
				if item.Example != "" {
					fmt.Fprintf(out, "    e.g. %s\n", item.Example)
				}
			}
			fmt.Fprintf(out, "\nCards for %s\n", cards.Date)
			for _, card := range cards.Cards {
				fmt.Fprintf(out, "  %s  %s\n", card.Icon, card.Term)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to select for, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&count, "count", 0, "items per list, 0 uses the configured default")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
