package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediagrab/pkg/extractor"
	"mediagrab/pkg/scraper"
)

var (
	flagHighQuality bool
	flagSkipCache   bool
	flagDebug       bool
)

// extractCmd runs one extraction from the command line
var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract media formats for a single URL",
	Example: `  # Extract a TikTok video
  mediagrab extract https://www.tiktok.com/@user/video/7300000000000000000

  # Prefer high-quality sources and include the debug payload
  mediagrab extract --high-quality --debug https://twitter.com/user/status/1700000000000000000`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&flagHighQuality, "high-quality", false, "Prefer the provider's alternate high-quality source where one exists")
	extractCmd.Flags().BoolVar(&flagSkipCache, "skip-cache", false, "Bypass the response cache")
	extractCmd.Flags().BoolVar(&flagDebug, "debug", false, "Include pool and timing introspection")
}

func runExtract(cmd *cobra.Command, args []string) error {
	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := extractor.Options{
		PreferHighQuality: flagHighQuality,
		SkipCache:         flagSkipCache,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if flagDebug {
		result, debug := svc.ExtractDebug(cmd.Context(), args[0], opts)
		if err := enc.Encode(map[string]interface{}{"result": result, "debug": debug}); err != nil {
			return err
		}
		if result.Failed() {
			return fmt.Errorf("extraction failed: %s", result.ErrorCode)
		}
		return nil
	}

	result := svc.Extract(cmd.Context(), args[0], opts)
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("extraction failed: %s", result.ErrorCode)
	}
	return nil
}
