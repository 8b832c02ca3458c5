package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// crawlOutput mirrors the body returned to callers that trigger a crawl.
type crawlOutput struct {
	Success         bool                 `json:"success"`
	CrawlSourceID   string               `json:"crawl_source_id"`
	Status          crawler.SourceStatus `json:"status,omitempty"`
	InsightsCreated int                  `json:"insights_created"`
	InsightsDropped int                  `json:"insights_dropped"`
	Error           string               `json:"error,omitempty"`
}

// newCrawlCmd runs one crawl synchronously, for external schedulers that
// prefer a process per crawl over the API.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <source-id>",
		Short: "Crawls one registered source and prints the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sourceID := args[0]
			out := crawlOutput{CrawlSourceID: sourceID}

			result, err := appInstance.CrawlOnce(cmd.Context(), sourceID)
			switch {
			case err != nil:
				out.Error = crawler.FailureMessage(unwrapSentinel(err))
			case result.Err != nil:
				out.Status = result.Status
				out.InsightsCreated = result.InsightsCreated
				out.InsightsDropped = result.InsightsDropped
				out.Error = crawler.FailureMessage(result.Err)
				err = result.Err
			default:
				out.Success = result.Success()
				out.Status = result.Status
				out.InsightsCreated = result.InsightsCreated
				out.InsightsDropped = result.InsightsDropped
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(out); encErr != nil {
				return fmt.Errorf("write result: %w", encErr)
			}
			if err != nil {
				appInstance.Logger().Warn("crawl failed", zap.String("source_id", sourceID), zap.Error(err))
				return fmt.Errorf("crawl %s: %w", sourceID, err)
			}
			return nil
		},
	}
}

// unwrapSentinel strips op prefixes from lease errors so the printed message
// matches the API's.
func unwrapSentinel(err error) error {
	for _, sentinel := range []error{crawler.ErrNotFound, crawler.ErrAlreadyCrawling} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
