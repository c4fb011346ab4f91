package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-students/goflate/zipfile"
)

var extractCmd = &cobra.Command{
	Use:   "extract <zip> <dir>",
	Short: "Extract every entry of a ZIP archive into a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}

	archivePath, destDir := args[0], args[1]

	archive, err := zipfile.Open(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	for _, h := range archive.List() {
		dest := filepath.Join(destDir, filepath.FromSlash(h.Name))

		if h.IsPath {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		result, err := archive.Extract(h.Name, f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		if !result.ModTime.IsZero() {
			os.Chtimes(dest, result.ModTime, result.ModTime)
		}
		slog.Debug("extracted", "name", h.Name, "bytes", h.UncompressedSize)
	}

	slog.Info("archive extracted", "path", archivePath, "dest", destDir, "entries", len(archive.List()))
	return nil
}
