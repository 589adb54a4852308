package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lippkg/lip-index/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <tooth.json>...",
	Short: "Check tooth manifests against the manifest schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	invalid := 0
	for _, path := range args {
		data, err := os.ReadFile(path) // #nosec G304 -- paths come from the command line
		if err != nil {
			invalid++
			cmd.PrintErrf("%s: %v\n", path, err)
			continue
		}

		m, err := manifest.Validate(data)
		if err != nil {
			invalid++
			cmd.PrintErrf("%s: %v\n", path, err)
			continue
		}
		cmd.Printf("%s: ok (%s@%s)\n", path, m.ToothRepoPath(), m.Version())
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d manifests are invalid", invalid, len(args))
	}
	return nil
}
