package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage enrolled people",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled people with their sample counts",
	RunE:  runIdentitiesList,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a person and all of their samples",
	Long: `Delete a person and all of their samples. The trained model still knows
the person until the next "train" run.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentitiesDelete,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd, identitiesDeleteCmd)
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openSamples(cfg)
	roster, skipped, err := store.Roster()
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-30s %s\n", "ID", "NAME", "SAMPLES")
	for _, id := range roster.Identities() {
		n, err := store.Count(id)
		if err != nil {
			return err
		}
		fmt.Printf("%-6d %-30s %d\n", id.Label, id.Name, n)
	}
	for _, s := range skipped {
		fmt.Printf("skipped %s: %s\n", s.Path, s.Reason)
	}
	fmt.Printf("\n%d people, next free id %d\n", roster.Len(), roster.NextLabel())
	return nil
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	label, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openSamples(cfg)
	roster, _, err := store.Roster()
	if err != nil {
		return err
	}
	id, ok := roster.Lookup(label)
	if !ok {
		return fmt.Errorf("no person with id %d", label)
	}
	if err := store.Remove(id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}
