package main

import (
	"github.com/spf13/cobra"

	"github.com/nxboot/rcmx/pkg/favorites"
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorite payloads",
	Long:  "Favorites are payloads copied into the favorites directory, to be executed by name with execute --favorite.",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite payloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := favorites.New(favoritesDir)
		if err != nil {
			return err
		}
		favs, err := store.List()
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			printf("No favorites\n")
			return nil
		}
		for _, f := range favs {
			printf("%s\n", f.Name)
		}
		return nil
	},
}

var favoritesAddNoValidate bool

var favoritesAddCmd = &cobra.Command{
	Use:   "add [payload]",
	Short: "Add a payload to favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := favorites.New(favoritesDir)
		if err != nil {
			return err
		}
		fav, err := store.Add(args[0], !favoritesAddNoValidate)
		if err != nil {
			return err
		}
		printf("Added favorite: %s\n", fav.Name)
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a favorite payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := favorites.New(favoritesDir)
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		printf("Removed favorite: %s\n", args[0])
		return nil
	},
}
