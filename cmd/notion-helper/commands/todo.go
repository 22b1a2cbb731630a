package commands

import (
	"fmt"
	"strings"

	"notion-helper/lib/notion"

	"github.com/spf13/cobra"
)

var todoPage string

func init() {
	todoCmd.Flags().StringVar(&todoPage, "page", "", "The page to append to, defaults to todo.page_id.")
	rootCmd.AddCommand(todoCmd)
}

var todoCmd = &cobra.Command{
	Use:   "todo <text...>",
	Short: "Appends an unchecked to-do item to a page.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page := todoPage
		if page == "" {
			page = state.cfg.Todo.PageID
		}
		if page == "" {
			return fmt.Errorf("no page given, pass --page or set todo.page_id")
		}

		text := strings.Join(args, " ")
		_, err := state.notion.AppendBlockChildren(cmd.Context(), page, []notion.Block{
			notion.ToDo(text, false),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %q\n", text)
		return nil
	},
}
