package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	s3blob "github.com/rustyeddy/tradesim/blob/s3"
	"github.com/rustyeddy/tradesim/config"
)

var publishCmd = &cobra.Command{
	Use:   "publish <run-dir>",
	Short: "Upload a run directory to S3-compatible storage",
	Long: `Publish verifies the run's manifest and uploads every artifact under
<publish.prefix>/<run_id>/ in publish.bucket, manifest last.

Credentials come from the standard AWS chain, or from TRADESIM_S3_ACCESS_KEY
and TRADESIM_S3_SECRET_KEY.

Example:
  tradesim publish -c run.yaml runs/<run_id>`,
	Args: cobra.ExactArgs(1),
	RunE: runPublishCmd,
}

var publishConfigPath string

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVarP(&publishConfigPath, "config", "c", "", "run config holding the publish section")
}

func runPublishCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if publishConfigPath != "" {
		var err error
		if cfg, err = config.Load(publishConfigPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	keys, err := publishDir(cmd.Context(), cfg.Publish, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("✓ Published %d objects to s3://%s\n", len(keys), cfg.Publish.Bucket)
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
	return nil
}

func publishDir(ctx context.Context, p config.PublishSection, dir string) ([]string, error) {
	access, secret := config.S3Credentials()
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       p.Endpoint,
		Region:         p.Region,
		Bucket:         p.Bucket,
		AccessKey:      access,
		SecretKey:      secret,
		ForcePathStyle: p.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3blob.NewPublisher(client, p.Bucket, p.Prefix, logger).Publish(ctx, dir)
}
