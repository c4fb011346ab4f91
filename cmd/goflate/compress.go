package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-students/goflate/zipfile"
)

var compressCmd = &cobra.Command{
	Use:   "compress <zip> <files...>",
	Short: "Create or update a ZIP archive from one or more files",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCompress,
}

func init() {
	compressCmd.Flags().IntP("level", "l", 6, "compression level (0-9)")
	viper.BindPFlag("level", compressCmd.Flags().Lookup("level"))
}

func runCompress(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}

	level := viper.GetInt("level")
	if level < 0 || level > 9 {
		return usageError{fmt.Errorf("compress: level must be 0-9, got %d", level)}
	}

	archivePath := args[0]
	inputs := args[1:]

	archive, err := openOrCreate(archivePath)
	if err != nil {
		return err
	}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return err
		}
		name := filepath.Base(input)
		if info.IsDir() {
			if err := archive.AddDirectory(name+"/", info.ModTime()); err != nil {
				return err
			}
			slog.Debug("added directory", "name", name)
			continue
		}

		f, err := os.Open(input)
		if err != nil {
			return err
		}
		err = archive.AddFile(name, f, info.ModTime(), level)
		f.Close()
		if err != nil {
			return err
		}
		slog.Debug("added file", "name", name, "level", level)
	}

	if err := archive.Save(); err != nil {
		return err
	}
	slog.Info("archive written", "path", archivePath, "entries", len(inputs))
	return nil
}

// openOrCreate opens an existing archive for appending, or creates a new
// one if it doesn't exist yet.
func openOrCreate(path string) (*zipfile.Archive, error) {
	if _, err := os.Stat(path); err == nil {
		return zipfile.Open(path)
	}
	return zipfile.Create(path)
}
