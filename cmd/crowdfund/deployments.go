package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"moff.io/crowdfund/internal/chains"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/internal/database"
	"moff.io/crowdfund/internal/http"
	"moff.io/crowdfund/pkg/errors"
)

func deploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "Manage the contract deployments served by the registry",
	}
	cmd.AddCommand(recordCmd(), latestCmd())
	return cmd
}

func recordCmd() *cobra.Command {
	var abiPath, txHash string
	cmd := &cobra.Command{
		Use:   "record ADDRESS",
		Short: "Record a deployment of the configured contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return errors.NewKind(errors.KindInvalidInput, "not a hex address: "+args[0])
			}
			source, err := http.NewStaticSource(args[0], abiPath)
			if err != nil {
				return err
			}
			resp, err := source.Contract(cmd.Context())
			if err != nil {
				return err
			}
			conf := config.Global
			d, err := database.NewContractDeployment(conf.MetadataServer.ContractName, conf.Chain.ChainID,
				common.HexToAddress(args[0]).Hex(), txHash, resp.ContractABI)
			if err != nil {
				return err
			}
			db, err := database.InitPostgres(&conf.Postgres)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.SaveDeployment(cmd.Context(), db, d); err != nil {
				return err
			}
			pterm.Success.Printfln("Recorded %s at %s on chain %d", d.Name, d.Address, d.ChainID)
			return nil
		},
	}
	cmd.Flags().StringVar(&abiPath, "abi", "contract/Crowdfunding.json", "abi array or compiler artifact")
	cmd.Flags().StringVar(&txHash, "tx", "", "deployment transaction hash")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the deployment the registry serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := config.Global
			db, err := database.InitPostgres(&conf.Postgres)
			if err != nil {
				return err
			}
			defer database.Close()
			d, err := database.LatestDeployment(cmd.Context(), db, conf.MetadataServer.ContractName, conf.Chain.ChainID)
			if err != nil {
				return err
			}
			if d == nil {
				pterm.Warning.Printfln("No %s deployment recorded on chain %d", conf.MetadataServer.ContractName, conf.Chain.ChainID)
				return nil
			}
			return pterm.DefaultTable.WithData(pterm.TableData{
				{"Name", d.Name},
				{"Chain", chains.Lookup(d.ChainID).Name},
				{"Address", d.Address},
				{"Tx", d.TxHash},
				{"Recorded", d.CreatedAt.Format("2006-01-02 15:04:05")},
			}).Render()
		},
	}
}
