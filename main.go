package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/fachebot/feedback-intel/internal/ingest"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/scheduler"
	"github.com/fachebot/feedback-intel/internal/svc"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "feedback-intel",
	Short:         "校园反馈智能引擎：去重、分类、主题聚类与洞察",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var submitFlags struct {
	title       string
	description string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "提交一条反馈，重复则加票，否则分类后创建新话题",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(svcCtx *svc.ServiceContext) error {
			result, err := svcCtx.IngestFlow.Submit(cmd.Context(), ingest.Submission{
				Title:       submitFlags.title,
				Description: submitFlags.description,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		})
	},
}

var themesFlags struct {
	category  string
	threshold float64
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "按词汇重叠度聚类话题并输出主题",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(svcCtx *svc.ServiceContext) error {
			threshold := *svcCtx.Config.Engine.Threshold
			if cmd.Flags().Changed("threshold") {
				if themesFlags.threshold < 0 || themesFlags.threshold > 1 {
					return fmt.Errorf("threshold 必须在 [0, 1] 区间内")
				}
				threshold = themesFlags.threshold
			}

			_, filter := svcCtx.Aggregator.ResolveCategory(themesFlags.category)
			topics, err := svcCtx.TopicModel.FindByFilter(cmd.Context(), filter, svcCtx.Config.Insights.SampleSize)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), svcCtx.ThemeEngine.Cluster(topics, threshold))
		})
	},
}

var insightsFlags struct {
	category string
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "输出洞察：总数、热门话题、分类分布、趋势、主题、严重度排行榜和摘要",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(svcCtx *svc.ServiceContext) error {
			payload, err := svcCtx.Aggregator.Build(cmd.Context(), insightsFlags.category)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), payload)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动每日洞察调度器，直到收到退出信号",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.EnableFile("logs"); err != nil {
			return fmt.Errorf("开启文件日志失败: %w", err)
		}

		return withService(func(svcCtx *svc.ServiceContext) error {
			if !svcCtx.Config.Digest.Enable {
				return fmt.Errorf("Digest 未启用，无需运行调度器")
			}

			// 创建并启动调度器
			schedulerInstance := scheduler.NewScheduler(svcCtx.Aggregator, svcCtx.DigestModel, &svcCtx.Config.Digest)
			if err := schedulerInstance.Start(); err != nil {
				return fmt.Errorf("[Scheduler] 启动调度器失败: %w", err)
			}

			// 等待程序退出
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			<-ch

			// 优雅关闭
			logger.Infof("正在关闭服务...")
			schedulerInstance.Stop()
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "etc/config.yaml", "the config file")

	f := submitCmd.Flags()
	f.StringVar(&submitFlags.title, "title", "", "反馈标题")
	f.StringVar(&submitFlags.description, "description", "", "反馈描述")
	_ = submitCmd.MarkFlagRequired("title")
	_ = submitCmd.MarkFlagRequired("description")

	themesCmd.Flags().StringVar(&themesFlags.category, "category", "All", "分类过滤，All 表示全部")
	themesCmd.Flags().Float64Var(&themesFlags.threshold, "threshold", 0, "相似度阈值，默认读取配置")

	insightsCmd.Flags().StringVar(&insightsFlags.category, "category", "All", "分类过滤，All 表示全部")

	rootCmd.AddCommand(submitCmd, themesCmd, insightsCmd, serveCmd)
}

// withService 读取配置并创建服务上下文，fn 返回后关闭数据库
func withService(fn func(svcCtx *svc.ServiceContext) error) error {
	c, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	svcCtx, err := svc.NewServiceContext(c)
	if err != nil {
		return err
	}
	defer svcCtx.Close()

	return fn(svcCtx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	// 标准输出只留给 JSON 结果
	logger.SetConsoleOutput(os.Stderr)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatalf("%v", err)
	}
}
