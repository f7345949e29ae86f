package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/gridquery"
	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var descriptorPath string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query descriptor and print the result as JSON",
		Example: `  gridquery query --backend memory --data rows.json --descriptor query.json
  echo '{"group":[{"selector":"status"}]}' | gridquery query --data rows.json -d -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descriptor, err := readDescriptor(descriptorPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *gridquery.Service) error {
				result, err := svc.Query(cmd.Context(), descriptor)
				if err != nil {
					return err
				}
				return printJSON(a.stdout, result)
			})
		},
	}

	cmd.Flags().StringVarP(&descriptorPath, "descriptor", "d", "-", "Query descriptor JSON file, or - for stdin")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id>",
		Short: "Print one row by its external identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *gridquery.Service) error {
				item, err := svc.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(a.stdout, item)
			})
		},
	}
}

func readDescriptor(path string, stdin io.Reader) (griddata.QueryDescriptor, error) {
	var r io.Reader = stdin
	if path = strings.TrimSpace(path); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return griddata.QueryDescriptor{}, fmt.Errorf("open descriptor: %w", err)
		}
		defer f.Close()
		r = f
	}

	var descriptor griddata.QueryDescriptor
	if err := json.NewDecoder(r).Decode(&descriptor); err != nil {
		return griddata.QueryDescriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	return descriptor, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
