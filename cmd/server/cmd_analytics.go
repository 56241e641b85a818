package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"kasirbill/backend/internal/config"
	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/service"
)

var (
	analyticsType       string
	analyticsIdentifier string
)

// kasirbill analytics: run one report against the configured store.
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print a customer, cashier or product report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		return printReport(cmd, a.service, domain.AnalyticsRequest{
			Type:       analyticsType,
			Identifier: analyticsIdentifier,
		})
	},
}

func init() {
	analyticsCmd.Flags().StringVar(&analyticsType, "type", "", "report type: customer, cashier or product")
	analyticsCmd.Flags().StringVar(&analyticsIdentifier, "identifier", "", "customer email, cashier email, product id or product name")
	_ = analyticsCmd.MarkFlagRequired("type")
}

func printReport(cmd *cobra.Command, svc *service.Service, req domain.AnalyticsRequest) error {
	result, err := svc.RunAnalytics(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), result)
}

func writeReport(w io.Writer, result domain.AnalyticsResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"type":   result.Type,
		"result": result.Report(),
	})
}
