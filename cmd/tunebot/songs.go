package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sglre6355/tunebot/internal/modules/music_player/infrastructure"
)

var songsDir string

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "List the local music library",
	Long:  `List the playable files of the local music directory with the numbers used by "play <number>".`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := songsDir
		if dir == "" {
			dir = os.Getenv("LOCAL_MUSIC_DIR")
		}
		if dir == "" {
			return errors.New("no local music directory configured; set LOCAL_MUSIC_DIR or pass --dir")
		}

		library, err := infrastructure.NewLocalLibrary(dir)
		if err != nil {
			return err
		}
		defer library.Close()

		songs, err := library.Songs(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(songs) == 0 {
			fmt.Fprintln(out, "No local songs found")
			return nil
		}
		for i, song := range songs {
			fmt.Fprintf(out, "%3d. %s\n", i+1, song.Title)
		}
		return nil
	},
}

func init() {
	songsCmd.Flags().StringVar(&songsDir, "dir", "", "music directory (defaults to LOCAL_MUSIC_DIR)")
	rootCmd.AddCommand(songsCmd)
}
