package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"notion-helper/lib/notion"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	uploadPage     string
	uploadProperty string
	uploadName     string
)

func init() {
	uploadCmd.Flags().StringVar(&uploadPage, "page", "", "Attach the upload to this page.")
	uploadCmd.Flags().StringVar(&uploadProperty, "property", "Files", "The files property the upload is attached to.")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "The filename to store, defaults to the source's name.")
	rootCmd.AddCommand(uploadCmd)
}

func uploadSource(arg string) (notion.UploadSource, error) {
	info, err := os.Stat(arg)
	if errors.Is(err, fs.ErrNotExist) {
		return notion.UploadSource{URL: arg, Filename: uploadName}, nil
	}
	if err != nil {
		return notion.UploadSource{}, err
	}
	if info.IsDir() {
		return notion.UploadSource{}, fmt.Errorf("%s is a directory", arg)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return notion.UploadSource{}, err
	}
	name := uploadName
	if name == "" {
		name = filepath.Base(arg)
	}
	return notion.UploadSource{
		Data:        data,
		Filename:    name,
		ContentType: notion.ContentTypeFor(name),
	}, nil
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file|url>",
	Short: "Uploads a local file or a remote url to notion.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := uploadSource(args[0])
		if err != nil {
			return err
		}
		ref, err := state.notion.UploadFromSource(cmd.Context(), src)
		if err != nil {
			return err
		}

		if uploadPage != "" {
			_, err = state.notion.UpdatePageProperties(cmd.Context(), uploadPage, map[string]any{
				uploadProperty: map[string]any{
					"files": []map[string]any{ref.PropertyItem()},
				},
			})
			if err != nil {
				return fmt.Errorf("uploaded %s but failed to attach it: %w", ref.ID, err)
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"Upload ID", "Name"})
		t.AppendRow(table.Row{ref.ID, ref.Name})
		t.Render()
		return nil
	},
}
