package main

import (
	"os"

	"github.com/spf13/cobra"

	"meetcap/internal/domain"
	"meetcap/internal/output"
	"meetcap/internal/quota"
)

func newQuotaCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quota [tier]",
		Short: "Show recording limits per plan tier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers := []domain.Tier{domain.TierFree, domain.TierPremium}
			if len(args) == 1 {
				tier, err := quota.ParseTier(args[0])
				if err != nil {
					return err
				}
				tiers = []domain.Tier{tier}
			}

			formatter := output.NewFormatter(os.Stdout)
			for _, tier := range tiers {
				profile, err := quota.Resolve(tier)
				if err != nil {
					return err
				}
				formatter.Quota(tier, profile)
			}
			return nil
		},
	}
}
