package main

import (
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagCount           = "count"
	flagPrefix          = "prefix"
	flagPoints          = "points"
	flagExpiryDays      = "expiry-days"
	flagOrderType       = "order-type"
	flagDeliveryPartner = "delivery-partner"
)

func newGenerateCodesCommand(cfg *runtimeConfig) *cobra.Command {
	request := loyalty.CodeBatchRequest{}
	cmd := &cobra.Command{
		Use:   "generate-codes",
		Short: "Issue a batch of delivery codes and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			app, err := buildApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			started := time.Now()
			codes, err := app.service.GenerateCodes(ctx, request)
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			logger.Info("codes generated",
				zap.Int("count", len(codes)),
				zap.String("prefix", request.Prefix),
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&request.Count, flagCount, 10, "number of codes (1-1000)")
	cmd.Flags().StringVar(&request.Prefix, flagPrefix, "", "alphanumeric code prefix")
	cmd.Flags().Int64Var(&request.PointsAwarded, flagPoints, loyalty.DefaultCodePoints, "points awarded per code")
	cmd.Flags().IntVar(&request.ExpiryDays, flagExpiryDays, 30, "days until the codes expire")
	cmd.Flags().StringVar(&request.OrderType, flagOrderType, "", "order type recorded with the codes")
	cmd.Flags().StringVar(&request.DeliveryPartner, flagDeliveryPartner, "", "delivery partner recorded with the codes")
	return cmd
}
