package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yiyuanduobao/duobao/config"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/api/admin"
	"github.com/yiyuanduobao/duobao/internal/api/graph"
	"github.com/yiyuanduobao/duobao/internal/fulfillment"
	intkafka "github.com/yiyuanduobao/duobao/internal/kafka"
	"github.com/yiyuanduobao/duobao/internal/ledger"
	"github.com/yiyuanduobao/duobao/internal/lifecycle"
	"github.com/yiyuanduobao/duobao/internal/lock"
	"github.com/yiyuanduobao/duobao/internal/repository"
	"github.com/yiyuanduobao/duobao/internal/verifier"
)

const (
	LeaderLockTimeout = 30 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功，当前实例ID: %d", *instanceID)

	// 创建数据库连接
	mysqlRepo, err := repository.NewMySQLRepository()
	if err != nil {
		log.Fatalf("初始化MySQL仓库失败: %v", err)
	}
	defer mysqlRepo.Close()
	log.Printf("MySQL仓库初始化成功")

	// 创建Redis连接
	redisRepo, err := repository.NewRedisRepository()
	if err != nil {
		log.Fatalf("初始化Redis仓库失败: %v", err)
	}
	defer redisRepo.Close()
	log.Printf("Redis仓库初始化成功")

	// 创建分布式锁
	distributedLock, err := newLock(cfg.Draw.LockProvider)
	if err != nil {
		log.Fatalf("初始化分布式锁失败: %v", err)
	}
	defer distributedLock.Close()
	log.Printf("分布式锁初始化成功, 实现: %s", cfg.Draw.LockProvider)

	// 竞选调度主节点，只有主节点运行激活/开奖巡检
	leaderAcquired, err := distributedLock.AcquireLock(lock.SchedulerLeaderLockName, LeaderLockTimeout)
	if err != nil {
		log.Printf("获取调度主锁失败: %v，将以普通节点模式启动", err)
	}
	if leaderAcquired {
		log.Printf("实例 %d 获取调度主锁成功，将运行状态巡检", *instanceID)
		defer distributedLock.ReleaseLock(lock.SchedulerLeaderLockName)
	} else {
		log.Printf("实例 %d 未获取到调度主锁，以普通节点模式启动", *instanceID)
	}

	// 创建Kafka生产者
	producer, err := intkafka.NewProducer()
	if err != nil {
		log.Fatalf("初始化Kafka生产者失败: %v", err)
	}
	defer producer.Close()
	log.Printf("Kafka生产者初始化成功")

	// 创建Kafka消费者
	consumer, err := intkafka.NewConsumer()
	if err != nil {
		log.Fatalf("初始化Kafka消费者失败: %v", err)
	}
	defer consumer.Stop()
	log.Printf("Kafka消费者初始化成功")

	// 算法注册表，启动时登记内置算法
	registry := algorithm.NewRegistry(mysqlRepo)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.SyncBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("登记内置算法失败: %v", err)
	}
	cancel()
	log.Printf("开奖算法注册完成")

	// 期次生命周期控制器
	controller := lifecycle.NewController(mysqlRepo, redisRepo, registry, distributedLock, producer, lifecycle.Options{
		SellOutDelay:     cfg.Draw.SellOutDelay,
		SweepInterval:    cfg.Draw.SweepInterval,
		PeriodRetryCount: cfg.Draw.PeriodRetryCount,
		LockTimeout:      cfg.Draw.LockTimeout,
	})

	// 份额台账
	ticketLedger := ledger.NewTicketLedger(mysqlRepo, redisRepo, cfg.Draw.SellOutDelay)
	ticketLedger.OnSoldOut(controller.OnSoldOut)
	log.Printf("份额台账初始化成功")

	// 恢复崩溃前挂起的开奖计划
	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.RecoverSchedules(recoverCtx); err != nil {
		log.Printf("恢复开奖计划失败: %v", err)
	}
	recoverCancel()

	// 主节点运行巡检任务
	if leaderAcquired {
		controller.StartSweeps()
		defer controller.StopSweeps()
	}

	// 交割事件消费
	handler := fulfillment.NewHandler(mysqlRepo)
	consumer.StartConsuming(handler.HandleEvent)
	log.Printf("Kafka消费者已启动")

	// 开奖复核器
	drawVerifier := verifier.NewVerifier(mysqlRepo, registry)

	// 买家侧GraphQL服务
	graphqlServer := graph.NewGraphQLServer(ticketLedger, controller, drawVerifier, registry)
	log.Printf("GraphQL服务初始化成功")

	// 运营侧HTTP服务
	adminServer := admin.NewServer(controller, registry)

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1
	adminPort := cfg.Admin.Port + *instanceID - 1

	go func() {
		if err := graphqlServer.Start(serverPort); err != nil {
			log.Fatalf("启动GraphQL服务器失败: %v", err)
		}
	}()

	go func() {
		if err := adminServer.Start(adminPort); err != nil {
			log.Fatalf("启动运营侧服务器失败: %v", err)
		}
	}()

	log.Printf("夺宝引擎 (实例 %d) 已启动, 买家侧: http://localhost:%d, 运营侧: http://localhost:%d",
		*instanceID, serverPort, adminPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")
}

// newLock 按配置选择分布式锁实现
func newLock(provider string) (lock.Lock, error) {
	if provider == "redlock" {
		return lock.NewRedLock()
	}
	return lock.NewETCDLock()
}
