package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixelpost/pixelpost/internal/pipeline/config"
)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's quota usage and recent records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent records to show")
	return cmd
}

func showStatus(limit int) error {
	ctx := context.Background()

	if configFile == "" {
		configFile = config.DefaultConfigFile
	}
	if err := config.LoadConfig(configFile); err != nil {
		return err
	}
	cfg := config.Config()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	today, aerr := st.CountSuccessesOn(ctx, time.Now())
	if aerr != nil {
		return aerr
	}
	fmt.Printf("Today: %d of %d published\n", today, cfg.Batch.DailyLimit)

	records, aerr := st.ListRecent(ctx, limit)
	if aerr != nil {
		return aerr
	}
	if len(records) == 0 {
		fmt.Println("No records yet.")
		return nil
	}

	fmt.Println("\nRecent records:")
	for _, rec := range records {
		line := fmt.Sprintf("  %s  %-7s  %s  %s",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.Status,
			rec.ContentHash[:12],
			rec.Meta.Title)
		switch rec.Status {
		case "success":
			okLabel.Println(line)
		case "failed":
			errorLabel.Println(line)
		default:
			fmt.Println(line)
		}
	}
	return nil
}
