package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

var deleteFiles bool

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id...]",
	Short: "Remove documents from the index",
	Long: `Removes every chunk of the given documents. Deleting a document
that is not indexed is not an error.

With --file, arguments are file paths and the id each file was indexed
under is derived from its absolute path.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteFiles, "file", false, "treat arguments as file paths")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	for _, arg := range args {
		id := arg
		if deleteFiles {
			id = services.FileDocumentID(arg)
		}
		if err := r.Retrieval.Delete(commandContext(cmd), id); err != nil {
			return fmt.Errorf("deleting %s: %w", arg, describe(err))
		}
		cmd.Printf("Deleted %s\n", id)
	}
	return nil
}
