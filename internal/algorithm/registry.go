package algorithm

import (
	"context"
	"fmt"
	"log"

	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// Registry 开奖算法注册表。算法实现编译期注册，
// 启用状态与默认算法由运营方在存储层维护，注册表只做两者的合流。
type Registry struct {
	store repository.Store
	algos map[string]Algorithm
}

// NewRegistry 创建注册表并登记内置算法
func NewRegistry(store repository.Store) *Registry {
	r := &Registry{
		store: store,
		algos: make(map[string]Algorithm),
	}
	r.register(NewTimestampSum())
	r.register(NewHashMod())
	return r
}

func (r *Registry) register(algo Algorithm) {
	if _, exists := r.algos[algo.Name()]; exists {
		panic(fmt.Sprintf("开奖算法 %s 重复注册", algo.Name()))
	}
	r.algos[algo.Name()] = algo
}

// SyncBuiltins 将内置算法的元数据登记到存储层。
// 已存在的记录不会覆盖运营方修改过的启用/默认开关。
func (r *Registry) SyncBuiltins(ctx context.Context) error {
	for name, algo := range r.algos {
		meta := algo.Meta()
		if err := r.store.UpsertAlgorithm(ctx, &meta); err != nil {
			return fmt.Errorf("登记内置算法 %s 失败: %w", name, err)
		}
	}
	return nil
}

// Default 返回当前的默认算法。
// 用于新开奖；默认算法必须同时存在于编译期注册表和存储层。
func (r *Registry) Default(ctx context.Context) (Algorithm, error) {
	meta, err := r.store.GetDefaultAlgorithm(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询默认开奖算法失败: %w", err)
	}
	algo, exists := r.algos[meta.Name]
	if !exists {
		return nil, fmt.Errorf("默认算法 %s 在存储层存在但没有对应实现", meta.Name)
	}
	if !meta.Active {
		return nil, fmt.Errorf("默认算法 %s 处于停用状态: %w", meta.Name, repository.ErrAlgorithmInactive)
	}
	return algo, nil
}

// Resolve 按机器名取算法实现。
// 验证历史开奖结果时使用，因此不检查启用状态：
// 一个算法被停用不影响用它开出的历史结果的可复核性。
func (r *Registry) Resolve(name string) (Algorithm, error) {
	algo, exists := r.algos[name]
	if !exists {
		return nil, fmt.Errorf("算法 %s: %w", name, repository.ErrAlgorithmNotFound)
	}
	return algo, nil
}

// List 返回存储层登记的全部算法配置
func (r *Registry) List(ctx context.Context) ([]model.DrawAlgorithm, error) {
	algos, err := r.store.ListAlgorithms(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询算法列表失败: %w", err)
	}
	for i := range algos {
		if _, exists := r.algos[algos[i].Name]; !exists {
			log.Printf("警告: 算法 %s 在存储层登记但没有对应实现", algos[i].Name)
		}
	}
	return algos, nil
}

// SetDefault 切换默认算法，要求目标算法有实现且已启用
func (r *Registry) SetDefault(ctx context.Context, name string) error {
	if _, exists := r.algos[name]; !exists {
		return fmt.Errorf("算法 %s: %w", name, repository.ErrAlgorithmNotFound)
	}
	return r.store.SetDefaultAlgorithm(ctx, name)
}

// SetActive 启用/停用算法。默认算法不允许停用。
func (r *Registry) SetActive(ctx context.Context, name string, active bool) error {
	if _, exists := r.algos[name]; !exists {
		return fmt.Errorf("算法 %s: %w", name, repository.ErrAlgorithmNotFound)
	}
	return r.store.SetAlgorithmActive(ctx, name, active)
}
