package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yiyuanduobao/duobao/config"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultTTLSeconds = 10 // 配置缺省时的锁租约时间（秒）

// ETCDLock 基于etcd租约+事务实现的分布式锁
type ETCDLock struct {
	client *clientv3.Client
	ttl    int64
	mu     sync.Mutex            // 保护locks的互斥锁
	locks  map[string]*lockEntry // 当前持有的锁
}

type lockEntry struct {
	leaseID clientv3.LeaseID
	key     string
	cancel  context.CancelFunc // 用于停止自动续约
}

func NewETCDLock() (*ETCDLock, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   config.AppConfig.ETCD.Endpoints,
		DialTimeout: config.AppConfig.ETCD.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建etcd客户端失败: %w", err)
	}

	ttl := int64(config.AppConfig.ETCD.SessionTTL / time.Second)
	if ttl <= 0 {
		ttl = defaultTTLSeconds
	}

	return &ETCDLock{
		client: cli,
		ttl:    ttl,
		locks:  make(map[string]*lockEntry),
	}, nil
}

// AcquireLock 获取分布式锁。锁未被任何实例持有时通过CreateRevision=0的事务抢占。
func (el *ETCDLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	// 检查是否已持有锁
	if _, ok := el.locks[lockName]; ok {
		return false, fmt.Errorf("锁 %s 已被当前实例持有", lockName)
	}

	key := fmt.Sprintf("/duobao/locks/%s", lockName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 创建租约
	lease := clientv3.NewLease(el.client)
	grantResp, err := lease.Grant(ctx, el.ttl)
	if err != nil {
		return false, fmt.Errorf("创建租约失败: %w", err)
	}

	// 尝试获取锁
	txn := el.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "", clientv3.WithLease(grantResp.ID))).
		Else()

	txnResp, err := txn.Commit()
	if err != nil {
		lease.Revoke(context.Background(), grantResp.ID)
		return false, fmt.Errorf("锁事务执行失败: %w", err)
	}

	if !txnResp.Succeeded {
		lease.Revoke(context.Background(), grantResp.ID)
		return false, nil
	}

	// 启动自动续约
	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())
	go el.keepAlive(keepAliveCtx, grantResp.ID)

	el.locks[lockName] = &lockEntry{
		leaseID: grantResp.ID,
		key:     key,
		cancel:  keepAliveCancel,
	}

	return true, nil
}

// RefreshLock 刷新锁的租约
func (el *ETCDLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	entry, ok := el.locks[lockName]
	if !ok {
		return false, fmt.Errorf("未持有锁 %s", lockName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := clientv3.NewLease(el.client).KeepAliveOnce(ctx, entry.leaseID)
	if err != nil {
		if err == rpctypes.ErrLeaseNotFound {
			delete(el.locks, lockName)
			return false, nil
		}
		return false, fmt.Errorf("续约失败: %w", err)
	}

	return true, nil
}

// ReleaseLock 释放分布式锁
func (el *ETCDLock) ReleaseLock(lockName string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	return el.releaseLock(lockName)
}

// ReleaseAllLocks 释放所有持有的锁
func (el *ETCDLock) ReleaseAllLocks() {
	el.mu.Lock()
	defer el.mu.Unlock()

	for lockName := range el.locks {
		el.releaseLock(lockName)
	}
}

// Close 关闭etcd客户端
func (el *ETCDLock) Close() error {
	el.ReleaseAllLocks()
	return el.client.Close()
}

// keepAlive 周期性续约直到锁被释放
func (el *ETCDLock) keepAlive(ctx context.Context, leaseID clientv3.LeaseID) {
	lease := clientv3.NewLease(el.client)
	ticker := time.NewTicker(time.Duration(el.ttl/2) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := lease.KeepAliveOnce(ctx, leaseID)
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// releaseLock 内部释放锁方法，调用方需持有el.mu
func (el *ETCDLock) releaseLock(lockName string) error {
	entry, ok := el.locks[lockName]
	if !ok {
		return nil
	}

	// 停止自动续约
	entry.cancel()

	if _, err := el.client.Delete(context.Background(), entry.key); err != nil {
		return fmt.Errorf("删除锁键失败: %w", err)
	}

	if _, err := clientv3.NewLease(el.client).Revoke(context.Background(), entry.leaseID); err != nil {
		return fmt.Errorf("释放租约失败: %w", err)
	}

	delete(el.locks, lockName)
	return nil
}
