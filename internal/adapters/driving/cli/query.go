package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// previewRunes is how much of each chunk the table output shows.
const previewRunes = 160

// queryFlags are the options shared by query and context.
type queryFlags struct {
	topK     int
	jsonOut  bool
	source   string
	document string
	dedupe   bool
}

var (
	queryOpts   queryFlags
	contextOpts queryFlags
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Find the passages most relevant to a question",
	Long: `Embeds the query and returns the best matching chunks, highest
score first. Scores are cosine similarities in [-1, 1].`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var contextCmd = &cobra.Command{
	Use:   "context [text]",
	Short: "Assemble retrieved passages for answer generation",
	Long: `Runs a query and prints the chunk texts in ranked order, ready to
be passed to a language model together with their sources.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	bindQueryFlags(queryCmd, &queryOpts)
	bindQueryFlags(contextCmd, &contextOpts)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(contextCmd)
}

func bindQueryFlags(cmd *cobra.Command, f *queryFlags) {
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of results (0 = configured default)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output as JSON")
	cmd.Flags().StringVar(&f.source, "source", "", "only match chunks from this source")
	cmd.Flags().StringVar(&f.document, "document", "", "only match chunks of this document id")
	cmd.Flags().BoolVar(&f.dedupe, "dedupe", false, "return at most one chunk per document")
}

// request builds the query request. Dedupe is only set when the flag was
// given, so the configured default applies otherwise.
func (f *queryFlags) request(cmd *cobra.Command, query string) domain.QueryRequest {
	req := domain.QueryRequest{Query: query, TopK: f.topK}

	filters := make(map[string]string, 2)
	if f.source != "" {
		filters[domain.FilterSource] = f.source
	}
	if f.document != "" {
		filters[domain.FilterDocumentID] = f.document
	}
	if len(filters) > 0 {
		req.Filters = filters
	}

	if cmd.Flags().Changed("dedupe") {
		dedupe := f.dedupe
		req.Dedupe = &dedupe
	}
	return req
}

func runQuery(cmd *cobra.Command, args []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	results, err := r.Retrieval.Query(commandContext(cmd), queryOpts.request(cmd, args[0]))
	if err != nil {
		return describe(err)
	}

	if queryOpts.jsonOut {
		if results == nil {
			results = []domain.SearchResult{}
		}
		return printJSON(cmd, results)
	}
	printResults(cmd, results)
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	payload, err := r.Retrieval.BuildContext(commandContext(cmd), contextOpts.request(cmd, args[0]))
	if err != nil {
		return describe(err)
	}

	if contextOpts.jsonOut {
		return printJSON(cmd, payload)
	}

	if len(payload.Context) == 0 {
		cmd.Println("No context found.")
		return nil
	}
	for i, text := range payload.Context {
		heading := ""
		if i < len(payload.Sources) {
			heading = resultName(&payload.Sources[i])
		}
		cmd.Printf("[%d] %s\n%s\n\n", i+1, heading, text)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printResults(cmd *cobra.Command, results []domain.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		res := &results[i]
		// Format: [N] source #chunk (score)
		cmd.Printf("[%d] %s (%.3f)\n", i+1, resultName(res), res.Score)

		preview := strings.Join(strings.Fields(res.Text), " ")
		cmd.Printf("    %s\n\n", domain.Truncate(preview, previewRunes))
	}
}

// resultName names a result by its source file, or its document id when
// it has no source.
func resultName(res *domain.SearchResult) string {
	name := res.DocumentID
	if res.Source != "" {
		name = filepath.Base(res.Source)
	}
	return fmt.Sprintf("%s #%d", name, res.ChunkIndex)
}
