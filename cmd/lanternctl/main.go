// Command lanternctl is the command-line client for a running lanternd
// instance: it issues a query, inspects stats and detected models, and
// manages stored conversations over the daemon's HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lanternctl",
		Short: "Command-line client for the Lantern routing daemon",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "lanternd base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print the raw HTTP response")

	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(reloadCmd())
	rootCmd.AddCommand(conversationCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

type client struct {
	base string
	hc   *http.Client
}

func newClient() *client {
	return &client{base: strings.TrimRight(serverURL, "/"), hc: &http.Client{Timeout: 120 * time.Second}}
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &cliError{code: 3, msg: fmt.Sprintf("could not reach lanternd at %s: %v", c.base, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintln(os.Stderr, string(raw))
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return &cliError{code: codeForStatus(resp.StatusCode), msg: apiErr.Error}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// cliError carries the process exit code alongside a message, following
// the convention: 1 usage, 2 configuration, 3 all backends failed, 4 store.
type cliError struct {
	code int
	msg  string
}

func (e *cliError) Error() string { return e.msg }

func codeForStatus(status int) int {
	switch {
	case status == http.StatusBadRequest:
		return 1
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return 3
	case status == http.StatusNotFound:
		return 4
	default:
		return 1
	}
}

func exitCodeFor(err error) int {
	if ce, ok := err.(*cliError); ok {
		return ce.code
	}
	return 1
}

func queryCmd() *cobra.Command {
	var forceModel string
	var sessionID string
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Send a prompt through the router",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Success  bool           `json:"success"`
				Model    string         `json:"model"`
				Response string         `json:"response"`
				Metadata map[string]any `json:"metadata"`
			}
			err := newClient().do(http.MethodPost, "/router/query", map[string]any{
				"input":       strings.Join(args, " "),
				"force_model": forceModel,
				"session_id":  sessionID,
			}, &result)
			if err != nil {
				return err
			}
			if !result.Success {
				return &cliError{code: 3, msg: "all backends failed"}
			}
			fmt.Printf("[%s]\n%s\n", result.Model, result.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&forceModel, "model", "", "bypass triage and force this model ref")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing conversation")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Trigger a background rescan of local runtimes",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := newClient().do(http.MethodPost, "/models/scan", nil, nil)
			if err != nil {
				return err
			}
			fmt.Println("scan started")
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print router usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats map[string]any
			if err := newClient().do(http.MethodGet, "/router/stats", nil, &stats); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List detected models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var detected map[string]any
			if err := newClient().do(http.MethodGet, "/models/detected", nil, &detected); err != nil {
				return err
			}
			return printJSON(detected)
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the daemon's configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().do(http.MethodPost, "/router/config/reload", nil, nil); err != nil {
				return err
			}
			fmt.Println("configuration reloaded")
			return nil
		},
	}
}

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Manage stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			if err := newClient().do(http.MethodGet, "/api/v1/conversations", nil, &body); err != nil {
				return err
			}
			return printJSON(body)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			if err := newClient().do(http.MethodGet, "/api/v1/conversations/"+args[0], nil, &body); err != nil {
				return err
			}
			return printJSON(body)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search across stored conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			q := strings.Join(args, " ")
			if err := newClient().do(http.MethodGet, "/api/v1/search?q="+q, nil, &body); err != nil {
				return err
			}
			return printJSON(body)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export [ids...]",
		Short: "Export conversations as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			err := newClient().do(http.MethodPost, "/api/v1/export", map[string]any{"conversation_ids": args}, &body)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Import conversations from an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return &cliError{code: 4, msg: err.Error()}
			}
			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}
			var body map[string]any
			if err := newClient().do(http.MethodPost, "/api/v1/import", doc, &body); err != nil {
				return err
			}
			return printJSON(body)
		},
	})

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
