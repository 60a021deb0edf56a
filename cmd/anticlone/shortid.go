package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/shortid"
)

var shortidCmd = &cobra.Command{
	Use:   "shortid",
	Short: "Convert between site ids and short ids",
}

var shortidEncodeCmd = &cobra.Command{
	Use:   "encode <site id>",
	Short: "Print the short id of a site id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse site id: %w", err)
		}
		fmt.Println(shortid.Encode(id))
		return nil
	},
}

var shortidDecodeCmd = &cobra.Command{
	Use:   "decode <short id>",
	Short: "Print the id prefix a short id resolves against",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := shortid.Decode(args[0])
		if err != nil {
			return err
		}
		fmt.Println(prefix)
		return nil
	},
}

func init() {
	shortidCmd.AddCommand(shortidEncodeCmd, shortidDecodeCmd)
	rootCmd.AddCommand(shortidCmd)
}
