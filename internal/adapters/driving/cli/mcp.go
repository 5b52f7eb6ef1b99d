package cli

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose retrieval as MCP tools",
	Long: `Serves the search, build_context, ingest, delete_document and health
tools and the sercha-rag://health resource.

The server speaks JSON-RPC over stdio unless --port is given, in which case
it serves streamable HTTP on --host:--port with a plain GET /healthz probe.

  sercha-rag mcp serve
  sercha-rag mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "sercha-rag": {
        "command": "/path/to/sercha-rag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "127.0.0.1", "HTTP bind address")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	server, err := newMCPServer(r)
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(commandContext(cmd))
	}
	addr := mcpAddr(mcpHost, mcpPort)
	cmd.Printf("MCP server listening on http://%s (health: http://%s%s)\n", addr, addr, mcp.HealthPath)
	return server.RunHTTP(commandContext(cmd), addr)
}

func newMCPServer(r *Runtime) (*mcp.Server, error) {
	return mcp.NewServer(&mcp.Ports{
		Retrieval:   r.Retrieval,
		DefaultTopK: r.Settings.Retrieval.DefaultTopK,
	})
}

func mcpAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
