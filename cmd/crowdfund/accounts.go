package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"moff.io/crowdfund/internal/chains"
	"moff.io/crowdfund/internal/config"
)

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Connect the wallet and show the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, config.Global)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.connect(ctx); err != nil {
				return err
			}
			st := a.ctrl.State()
			chain := chains.Lookup(config.Global.Chain.ChainID)
			return pterm.DefaultTable.WithData(pterm.TableData{
				{"Phase", st.Phase.String()},
				{"Account", st.Account},
				{"Contract", st.Contract.Address.Hex()},
				{"Chain", chain.Name + " (" + chain.IDHex() + ")"},
			}).Render()
		},
	}
}
