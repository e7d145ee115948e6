package main

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/embedrec/backfill"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "同步执行向量回填",
}

var backfillCategoryCmd = &cobra.Command{
	Use:   "category <id>",
	Short: "获取单个类目的向量",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid category id %q", args[0])
		}
		return runBackfill(cmd, backfill.CategoryJob{ID: id})
	},
}

var backfillCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "获取全部缺失的类目向量",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBackfill(cmd, backfill.AllCategoriesJob{})
	},
}

var (
	itemsStart int64
	itemsBatch int
	itemsAll   bool
)

var backfillItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "计算物品平均向量（单批或 --all 走完整个目录）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if itemsStart < 0 {
			return fmt.Errorf("--start must be >= 0")
		}
		if itemsAll {
			return runBackfill(cmd, backfill.ItemSweepJob{StartID: itemsStart, BatchSize: itemsBatch})
		}
		if itemsBatch <= 0 {
			return fmt.Errorf("--batch must be > 0")
		}
		return runBackfill(cmd, backfill.ItemRangeJob{StartID: itemsStart, BatchSize: itemsBatch})
	},
}

func init() {
	backfillItemsCmd.Flags().Int64Var(&itemsStart, "start", 0, "起始物品 ID（包含）")
	backfillItemsCmd.Flags().IntVar(&itemsBatch, "batch", 100, "批大小")
	backfillItemsCmd.Flags().BoolVar(&itemsAll, "all", false, "从 --start 开始推进游标直到目录末尾")

	backfillCmd.AddCommand(backfillCategoryCmd, backfillCategoriesCmd, backfillItemsCmd)
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, job backfill.Job) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.runner(nil)
	if err != nil {
		return err
	}
	res := r.Run(cmd.Context(), job)
	if res.Err != nil {
		return fmt.Errorf("%s: %w", res.Job, res.Err)
	}
	if res.Report == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s done in %s\n", res.Job, res.Took)
		return nil
	}
	out, err := json.MarshalIndent(res.Report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
