package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"plume/pkg/config"
	"plume/pkg/federation"
	"plume/pkg/keys"
	"plume/pkg/types"
	"plume/pkg/vocab"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func deliverCmd() *cobra.Command {
	var (
		activityFile  string
		inboxes       []string
		sharedInboxes []string
		localInboxes  []string
		actorFiles    []string
		proxy         string
	)

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Broadcast an activity to remote inboxes",
		Long: `Sign the activity in --activity with the instance key and post it to every
recipient. --shared-inbox values pair with --inbox values by position.
Recipients can also be given as actor documents with --actor.`,
		Example: `  plumefed deliver --activity note.json --inbox https://remote.example/users/bob/inbox
  plumefed deliver --activity note.json --actor bob.json --actor carol.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if proxy != "" {
				cfg.Federation.Proxy = proxy
			}
			proxyURL, err := cfg.Federation.ProxyURL()
			if err != nil {
				return err
			}

			signer, err := keys.LoadSigner(cfg.Instance.KeyPath, cfg.Instance.KeyID)
			if err != nil {
				return fmt.Errorf("failed to load signer: %w", err)
			}

			activity, err := loadActivity(activityFile, cfg)
			if err != nil {
				return err
			}

			recipients, err := buildRecipients(cfg, inboxes, sharedInboxes, localInboxes, actorFiles)
			if err != nil {
				return err
			}
			if len(recipients) == 0 {
				return fmt.Errorf("no recipients given")
			}

			dispatcher := federation.NewDispatcher(cfg.Federation, nil, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			if err := dispatcher.Broadcast(ctx, signer, activity, recipients, proxyURL); err != nil {
				return err
			}

			printDeliverySummary(dispatcher.Stats(), len(recipients), time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVarP(&activityFile, "activity", "f", "", "activity JSON file")
	cmd.Flags().StringSliceVar(&inboxes, "inbox", nil, "recipient inbox URL")
	cmd.Flags().StringSliceVar(&sharedInboxes, "shared-inbox", nil, "shared inbox of the --inbox at the same position")
	cmd.Flags().StringSliceVar(&localInboxes, "local", nil, "local recipient inbox URL (never delivered)")
	cmd.Flags().StringSliceVar(&actorFiles, "actor", nil, "recipient actor JSON file")
	cmd.Flags().StringVar(&proxy, "proxy", "", "proxy URL for every attempt (overrides federation.proxy)")
	cmd.MarkFlagRequired("activity")

	return cmd
}

// loadActivity reads an activity and fills in id and actor when missing
func loadActivity(path string, cfg *config.Config) (*vocab.Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}
	doc, err := vocab.ParseProperties(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}

	base := strings.TrimRight(cfg.Instance.BaseURL, "/")
	if !doc.Has("id") {
		if err := doc.Set("id", types.NewActivityID(base+"/activities")); err != nil {
			return nil, err
		}
	}
	if !doc.Has("actor") {
		if err := doc.Set("actor", cfg.ActorURL()); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func buildRecipients(cfg *config.Config, inboxes, shared, local, actorFiles []string) ([]types.DeliveryTarget, error) {
	if len(shared) > len(inboxes) {
		return nil, fmt.Errorf("%d --shared-inbox values for %d --inbox values", len(shared), len(inboxes))
	}

	var recipients []types.DeliveryTarget
	for i, inbox := range inboxes {
		t := federation.StaticTarget{Inbox: inbox}
		if i < len(shared) {
			t.SharedInbox = shared[i]
		}
		recipients = append(recipients, t)
	}
	for _, inbox := range local {
		recipients = append(recipients, federation.StaticTarget{Inbox: inbox, Local: true})
	}

	for _, path := range actorFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read actor: %w", err)
		}
		entity, err := vocab.Decode(data, &vocab.Actor{})
		if err != nil {
			return nil, fmt.Errorf("failed to decode actor %s: %w", path, err)
		}
		target, err := federation.NewActorTarget(entity, cfg.Instance.Domain)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		recipients = append(recipients, target)
	}
	return recipients, nil
}

func printDeliverySummary(stats federation.Stats, recipients int, elapsed time.Duration) {
	failed := stats.Attempts - stats.Delivered

	failedStyle := accentValueStyle
	if failed > 0 {
		failedStyle = dangerValueStyle
	}
	skippedStyle := accentValueStyle
	if stats.Skipped > 0 {
		skippedStyle = warningValueStyle
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Broadcast settled"),
		renderField("Recipients", fmt.Sprintf("%d", recipients)),
		renderField("Destinations", fmt.Sprintf("%d", stats.Destinations)),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Delivered"), accentValueStyle.Render(fmt.Sprintf("%d", stats.Delivered))),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Failed"), failedStyle.Render(fmt.Sprintf("%d", failed))),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Skipped"), skippedStyle.Render(fmt.Sprintf("%d", stats.Skipped))),
		renderField("Elapsed", elapsed.Round(time.Millisecond).String()),
		"",
		mutedStyle.Render("Per-destination details are in the log (-v for successes)"),
	)
	fmt.Println(panelStyle.Render(content))
}
