package svc

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/fachebot/feedback-intel/internal/classify"
	"github.com/fachebot/feedback-intel/internal/config"
	"github.com/fachebot/feedback-intel/internal/ingest"
	"github.com/fachebot/feedback-intel/internal/insights"
	"github.com/fachebot/feedback-intel/internal/lexical"
	"github.com/fachebot/feedback-intel/internal/llm"
	"github.com/fachebot/feedback-intel/internal/logger"
	"github.com/fachebot/feedback-intel/internal/model"
	"github.com/fachebot/feedback-intel/internal/theme"

	"github.com/jmoiron/sqlx"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	DB             *sqlx.DB
	TransportProxy *http.Transport
	TopicModel     *model.TopicModel
	DigestModel    *model.DigestModel
	Oracle         llm.Oracle
	Classifier     *classify.Classifier
	Matcher        *classify.Matcher
	ThemeEngine    *theme.Engine
	IngestFlow     *ingest.Flow
	Aggregator     *insights.Aggregator
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	// 打开数据库
	db, err := model.Open(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 创建SOCKS5代理
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("创建SOCKS5代理失败: %w", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// LLM 关闭时 oracle 保持 nil 接口，各组件直接走本地兜底
	var oracle llm.Oracle
	if c.LLM.Enable {
		oracle = llm.NewClient(&c.LLM, transportProxy)
	} else {
		logger.Infof("[LLM] 未启用，分类、去重和摘要均使用本地规则")
	}

	topicModel := model.NewTopicModel(db)
	tokenizer := lexical.NewTokenizer(c.Engine.Stopwords)
	classifier := classify.NewClassifier(oracle, seconds(c.LLM.ClassifyTimeout), toCategories(c.Engine.Categories), toKeywordRules(c.Engine.KeywordRules))
	matcher := classify.NewMatcher(oracle, seconds(c.LLM.MatchTimeout))
	engine := theme.NewEngine(tokenizer)

	svcCtx := &ServiceContext{
		Config:         c,
		DB:             db,
		TransportProxy: transportProxy,
		TopicModel:     topicModel,
		DigestModel:    model.NewDigestModel(db),
		Oracle:         oracle,
		Classifier:     classifier,
		Matcher:        matcher,
		ThemeEngine:    engine,
		IngestFlow:     ingest.NewFlow(topicModel, matcher, classifier),
		Aggregator:     insights.NewAggregator(topicModel, engine, oracle, classifier.Categories(), c),
	}
	return svcCtx, nil
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func toCategories(names []string) []model.Category {
	categories := make([]model.Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, model.Category(name))
	}
	return categories
}

func toKeywordRules(rules []config.KeywordRule) []classify.KeywordRule {
	result := make([]classify.KeywordRule, 0, len(rules))
	for _, rule := range rules {
		result = append(result, classify.KeywordRule{
			Category: model.Category(rule.Category),
			Keywords: rule.Keywords,
		})
	}
	return result
}
