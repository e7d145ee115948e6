package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	recommendUser int64
	recommendSize int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "为用户计算一页推荐",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if recommendUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.ranker()
		if err != nil {
			return err
		}
		res, err := r.Rank(cmd.Context(), recommendUser, recommendSize)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int64Var(&recommendUser, "user", 0, "用户 ID")
	recommendCmd.Flags().IntVar(&recommendSize, "size", 0, "推荐条数（0 使用默认值）")
	rootCmd.AddCommand(recommendCmd)
}
