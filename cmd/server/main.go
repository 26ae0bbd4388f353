package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/klog/v2"

	"github.com/studiodesk/ffetrack/config"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/handler"
	"github.com/studiodesk/ffetrack/internal/pkg/cache"
	"github.com/studiodesk/ffetrack/internal/pkg/database"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"github.com/studiodesk/ffetrack/internal/router"
	"github.com/studiodesk/ffetrack/internal/service"
	"github.com/studiodesk/ffetrack/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if cfg.Database.Type != "mysql" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath(cfg.Database.DSN)), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if cfg.FFE.SeedTemplates {
		if err := service.InitDefaultTemplates(db, cfg.FFE.DefaultOrganizationID); err != nil {
			klog.Errorf("初始化预置模板失败: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store := repository.NewStore(db)
	bus := eventbus.NewChangeEventBus()
	progressCache := cache.NewProgressCache(cfg.Redis)

	// 初始化 Service
	currency := cfg.FFE.DefaultCurrency
	templateService := service.NewTemplateService(store, bus, m)
	roomService := service.NewRoomService(store, bus, m)
	materializer := service.NewMaterializerService(store, bus, m, currency)
	itemService := service.NewItemService(store, bus, m, progressCache)
	treeService := service.NewInstanceTreeService(store, bus, m, currency)
	linkingService := service.NewLinkingService(store, bus, m, currency)
	pricingService := service.NewPricingService(store)
	changeLogService := service.NewChangeLogService(store)

	// 订阅变更事件
	subscriber.NewProgressEventSubscriber(progressCache).Register(bus)
	subscriber.NewMetricsEventSubscriber(m).Register(bus)

	// 初始化 Handler
	handlers := router.Handlers{
		Templates:  handler.NewTemplateHandler(templateService),
		Rooms:      handler.NewRoomHandler(roomService, materializer),
		Instances:  handler.NewInstanceHandler(materializer, itemService, treeService, pricingService, changeLogService),
		Items:      handler.NewItemHandler(itemService, treeService, linkingService, pricingService),
		ChangeLogs: handler.NewChangeLogHandler(changeLogService),
	}

	// 设置路由
	r := router.Setup(cfg, registry, handlers)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// sqlitePath 去掉 DSN 中的查询参数
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	return path
}
