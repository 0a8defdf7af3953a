package hash

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
)

var (
	hashFiles bool
	hashJSON  bool
)

// HashCmd prints the digests an export of an asset would be named by.
var HashCmd = &cobra.Command{
	Use:   "hash <asset>",
	Short: "Show the content hashes of an asset",
	Long: "Show the content hashes of an asset.\n\n" +
		"Resolves the asset's dependency closure to files on disk and prints the " +
		"BLAKE3 and SHA-256 digests of its main file along with the combined " +
		"BLAKE3 digest over every file in the closure. Nothing is written and " +
		"the catalog server is not contacted.",
	Example: `  # Show hashes for an asset
  snapshot hash /Game/Props/Chair.Chair

  # Include the file manifest
  snapshot hash /Game/Props/Chair.Chair --files

  # Machine readable output
  snapshot hash /Game/Props/Chair.Chair --json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateHash,
	RunE:    runHash,
}

func init() {
	HashCmd.Flags().BoolVarP(&hashFiles, "files", "f", false, "List every file in the dependency closure")
	HashCmd.Flags().BoolVar(&hashJSON, "json", false, "Print the result as JSON")
}

func validateHash(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

type hashOutput struct {
	ObjectPath string   `json:"object_path"`
	Class      string   `json:"class"`
	Kind       string   `json:"kind"`
	MainFile   string   `json:"main_file"`
	HashMain   string   `json:"hash_main_blake3"`
	HashSHA256 string   `json:"hash_main_sha256,omitempty"`
	HashFull   string   `json:"hash_full_blake3"`
	Packages   []string `json:"packages"`
	Files      []string `json:"files,omitempty"`
	TotalBytes int64    `json:"total_bytes"`
}

func runHash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	app, err := cmdutil.Open(ctx, cmdutil.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	exp, err := app.Exporter()
	if err != nil {
		return err
	}

	in, err := exp.Inspect(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to hash %s; %w", args[0], err)
	}

	result := hashOutput{
		ObjectPath: in.ObjectPath,
		Class:      in.Class,
		Kind:       in.Kind.String(),
		MainFile:   in.MainFile,
		HashMain:   in.Digests.MainBLAKE3,
		HashSHA256: in.Digests.MainSHA256,
		HashFull:   in.Digests.FullBLAKE3,
		Packages:   in.Packages,
		TotalBytes: in.Manifest.TotalBytes,
	}
	if hashFiles || hashJSON {
		result.Files = in.Manifest.Rel
	}

	if hashJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	sha := result.HashSHA256
	if sha == "" {
		sha = cmdutil.MutedText.Render("unavailable")
	}
	cmdutil.PrintSummary(out, result.ObjectPath, []cmdutil.Field{
		{Label: "Class", Value: result.Class},
		{Label: "Main file", Value: result.MainFile},
		{Label: "BLAKE3", Value: result.HashMain},
		{Label: "SHA-256", Value: sha},
		{Label: "Closure BLAKE3", Value: result.HashFull},
		{Label: "Packages", Value: len(result.Packages)},
		{Label: "Files", Value: fmt.Sprintf("%d (%d bytes)", in.Manifest.Len(), result.TotalBytes)},
	})

	if hashFiles {
		fmt.Fprintln(out)
		for _, f := range result.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	return nil
}
