package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "embedrec",
	Short: "基于类目向量的内容推荐服务",
	Long: `embedrec 为目录中的类目获取文本向量，计算物品平均向量，
并按用户评价构建画像，以余弦相似度 + 偏好类目加权给出推荐。`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 $EMBEDREC_CONFIG 或 ./config.yaml）")
}
