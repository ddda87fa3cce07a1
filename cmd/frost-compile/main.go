// Command frost-compile prints the SQL the service compiles for a query.
// The database and the plugins are configured through FROST_* environment
// variables, the query is a JSON document read from a file or stdin.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	frost "github.com/pbaumard/FROST-Server"
)

var (
	migrate bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "frost-compile",
	Short:         "Compile SensorThings queries to SQL",
	Long:          "Loads the model from the configured plugins and prints the SQL of a query given as JSON expression tree.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var compileCmd = &cobra.Command{
	Use:   "compile [entity-type] [query-file]",
	Short: "Print the SQL of a query",
	Long:  `Reads the query from query-file, or from stdin when it is omitted or "-".`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 2 {
			path = args[1]
		}
		data, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		q, err := parseRequest(data)
		if err != nil {
			return err
		}
		service, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		return compile(cmd.Context(), cmd.OutOrStdout(), service, args[0], q)
	},
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the entity types and conformance classes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		return listTypes(cmd.OutOrStdout(), service)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&migrate, "migrate", false, "Create missing tables before compiling")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.AddCommand(compileCmd, typesCmd)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query: %w", err)
	}
	return data, nil
}

func openService(ctx context.Context) (*frost.Service, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := frost.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if migrate {
		cfg.AutoMigrate = true
	}
	db, err := frost.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	service, err := frost.NewServiceWithConfig(db, cfg)
	if err != nil {
		return nil, err
	}
	if err := service.SetLogger(logger); err != nil {
		return nil, err
	}
	if err := service.Initialize(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

func compile(ctx context.Context, out io.Writer, service *frost.Service, typeName string, q frost.Query) error {
	et, ok := service.EntityType(typeName)
	if !ok {
		return fmt.Errorf("unknown entity type %s", typeName)
	}
	cq, err := service.Compile(ctx, et, q)
	if err != nil {
		return err
	}
	sql, args := cq.SQL()
	if err := printStatement(out, sql, args); err != nil {
		return err
	}
	if q.Count {
		countSQL, countArgs := cq.CountSQL()
		return printStatement(out, countSQL, countArgs)
	}
	return nil
}

func printStatement(out io.Writer, sql string, args []any) error {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s\nargs: %s\n", sql, encoded)
	return err
}

func listTypes(out io.Writer, service *frost.Service) error {
	for _, et := range service.Registry().EntityTypes() {
		if _, err := fmt.Fprintf(out, "%s (%s)\n", et.Name(), et.PluralName()); err != nil {
			return err
		}
	}
	for _, c := range service.Conformance() {
		if _, err := fmt.Fprintf(out, "conformance: %s\n", c); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
