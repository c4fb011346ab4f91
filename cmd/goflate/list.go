package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-students/goflate/zipfile"
)

var listCmd = &cobra.Command{
	Use:   "list <zip>",
	Short: "List the entries of a ZIP archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}

	archive, err := zipfile.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	for _, h := range archive.List() {
		method := "deflate"
		if h.Method == 0 {
			method = "stored"
		}
		fmt.Printf("%10d  %10d  %-8s  %s  %s\n",
			h.UncompressedSize, h.CompressedSize, method,
			h.ModTime.Format("2006-01-02 15:04:05"), h.Name)
	}
	return nil
}
