package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

var (
	ingestID     string
	ingestTitle  string
	ingestSource string
)

// stdinIsTerminal reports whether stdin is interactive.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Index files, directories or piped text",
	Long: `Chunks, embeds and indexes documents.

Each file is indexed under an id derived from its absolute path, so running
ingest again replaces the previous version. Directories are walked for
.txt, .md and .markdown files, skipping hidden entries.

With no paths, text is read from stdin and indexed as one document:

  cat notes.txt | sercha-rag ingest --title "Meeting notes"`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id for stdin input")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title for stdin input")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "document source for stdin input")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return ingestStdin(cmd, r)
	}

	var (
		indexed int
		errs    []error
	)
	for _, arg := range args {
		paths, err := expandPath(arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, path := range paths {
			res, err := services.IngestFile(commandContext(cmd), r.Retrieval, path)
			if err != nil {
				cmd.PrintErrf("✗ %s: %v\n", path, describe(err))
				errs = append(errs, err)
				continue
			}
			indexed++
			cmd.Printf("✓ %s (%d chunks)\n", path, res.ChunkCount)
		}
	}

	cmd.Printf("Indexed %d document(s)\n", indexed)
	if len(errs) > 0 {
		return fmt.Errorf("%d document(s) failed", len(errs))
	}
	return nil
}

// expandPath returns path itself for a file or its indexable files for a
// directory.
func expandPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return services.IndexableFiles(path)
}

func ingestStdin(cmd *cobra.Command, r *Runtime) error {
	if cmd.InOrStdin() == os.Stdin && stdinIsTerminal() {
		return errors.New("no input: pass paths or pipe text on stdin")
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	req := domain.IngestRequest{
		ID:     ingestID,
		Title:  ingestTitle,
		Text:   string(data),
		Source: ingestSource,
	}
	if req.ID == "" && req.Title == "" && req.Source == "" {
		req.ID = uuid.NewString()
	}

	res, err := r.Retrieval.Ingest(commandContext(cmd), req)
	if err != nil {
		return describe(err)
	}
	cmd.Printf("Indexed %s (%d chunks)\n", res.DocumentID, res.ChunkCount)
	return nil
}
