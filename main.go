package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slack-code-review/handlers"
	"slack-code-review/services"
)

const channelCacheTTL = 10 * time.Minute

type app struct {
	config  *services.Config
	handler *handlers.ReviewHandler
}

func newApp() (*app, error) {
	config, err := services.LoadConfig()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(config.DatabasePath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", config.DatabasePath, err)
	}

	store, err := services.NewGormCheckpointStore(db)
	if err != nil {
		return nil, err
	}

	api := services.NewSlackClient(config.SlackBotToken)
	handler := handlers.NewReviewHandler(api, store,
		services.NewGitHubClient(config.GitHubToken),
		services.NewChannelDirectory(api, channelCacheTTL),
		config)

	return &app{config: config, handler: handler}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack interactivity server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	r := handlers.SetupRouter(a.handler, a.config.SlackSigningSecret)
	log.Printf("listening on :%s", a.config.Port)
	return r.Run(":" + a.config.Port)
}

func listCmd() *cobra.Command {
	var (
		channelID string
		filter    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List PR code reviews in a channel",
		Long: `List PR code reviews found in a channel's history and print them as JSON.

Examples:
  slack-code-review list --channel C0123456789
  slack-code-review list --channel C0123456789 --filter unapproved`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := services.ListOptions{Label: filter}
			switch filter {
			case "incomplete":
				opts.Filter = services.IncompleteReviews
			case "unapproved":
				opts.Filter = services.UnapprovedReviews
			default:
				return fmt.Errorf("unknown filter %q (want incomplete or unapproved)", filter)
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			result, err := a.handler.Lister.ListReviews(cmd.Context(), channelID, "", opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "channel ID to scan")
	cmd.Flags().StringVar(&filter, "filter", "incomplete", "incomplete or unapproved")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "slack-code-review",
		Short:        "Slack bot that tracks pull request code reviews",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	rootCmd.AddCommand(serveCmd(), listCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
