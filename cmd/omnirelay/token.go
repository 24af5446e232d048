package main

import (
	"github.com/spf13/cobra"

	"github.com/omnirelay/omnirelay/internal/gateway"
	"github.com/omnirelay/omnirelay/internal/webhook"
)

// newTokenCmd mints routing tokens for handing out ingestion URLs.
func newTokenCmd() *cobra.Command {
	var (
		tenantID       string
		projectID      string
		kind           string
		provider       string
		channel        string
		implementation string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a webhook routing token",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := gateway.Encode(gateway.RoutingToken{
				TenantID:       tenantID,
				ProjectID:      projectID,
				Kind:           webhook.Kind(kind),
				Provider:       provider,
				Channel:        channel,
				Implementation: implementation,
			})
			if err != nil {
				return err
			}
			cmd.Println(encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&kind, "kind", string(webhook.KindChat), "webhook kind: CHAT or PAYMENT")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name (required)")
	cmd.Flags().StringVar(&channel, "channel", "", "channel name")
	cmd.Flags().StringVar(&implementation, "implementation", "", "provider implementation")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
