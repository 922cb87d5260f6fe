// Package exclusion 管理用户的排除集合：持久化的拉黑列表与会话内的忽略列表。
package exclusion

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
)

// Merge 返回 permanent ∪ ephemeral 的新集合，不修改入参。
func Merge(permanent, ephemeral core.IDSet) core.IDSet {
	out := make(core.IDSet, len(permanent)+len(ephemeral))
	for id := range permanent {
		out[id] = struct{}{}
	}
	for id := range ephemeral {
		out[id] = struct{}{}
	}
	return out
}

// Manager 读写持久化的拉黑列表。
type Manager struct {
	store  core.BlockStore
	logger *zap.Logger
}

// NewManager 创建 Manager；store 不能为空。
func NewManager(store core.BlockStore, l *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger.OrNop(l)}
}

// Permanent 返回用户在该内容类型下的拉黑集合。
func (m *Manager) Permanent(ctx context.Context, userID string, ct core.ContentType) (core.IDSet, error) {
	ids, err := m.store.Blocked(ctx, userID, ct)
	if err != nil {
		return nil, fmt.Errorf("load blocked titles: %w", err)
	}
	if ids == nil {
		ids = core.NewIDSet()
	}
	return ids, nil
}

// Block 追加一条永久排除；重复拉黑是 no-op。
func (m *Manager) Block(ctx context.Context, userID string, id core.ExternalID, ct core.ContentType) error {
	if err := validateBlock(userID, ct); err != nil {
		return err
	}
	if err := m.store.Block(ctx, userID, id, ct); err != nil {
		return fmt.Errorf("block title: %w", err)
	}
	m.logger.Info("title blocked",
		zap.String("user_id", userID), zap.Int64("id", int64(id)), zap.String("type", string(ct)))
	return nil
}

func validateBlock(userID string, ct core.ContentType) error {
	if userID == "" || !ct.Valid() {
		return core.ErrInvalidRequest.Wrap(fmt.Errorf("block requires user and content type, got %q/%q", userID, ct))
	}
	return nil
}

// NewSession 为用户创建会话。
func (m *Manager) NewSession(userID string) *Session {
	return &Session{
		manager:   m,
		userID:    userID,
		ephemeral: make(map[core.ContentType]core.IDSet),
	}
}

// Session 是单个用户的会话状态：本会话忽略/拉黑的作品与最近一次同步的已看列表。
// 会话内集合只增不减。可被并发访问。
type Session struct {
	manager *Manager
	userID  string

	mu        sync.RWMutex
	ephemeral map[core.ContentType]core.IDSet
	watched   core.IDSet
}

// UserID 返回会话所属用户。
func (s *Session) UserID() string { return s.userID }

// Dismiss 在本会话内隐藏作品，不持久化。
func (s *Session) Dismiss(id core.ExternalID, ct core.ContentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.ephemeral[ct]
	if !ok {
		set = core.NewIDSet()
		s.ephemeral[ct] = set
	}
	set.Add(id)
}

// Block 永久拉黑，并立即在本会话中生效。
// 参数不合法时不做任何修改；持久化失败时作品仍从当前视图中隐藏，错误返回给调用方。
func (s *Session) Block(ctx context.Context, id core.ExternalID, ct core.ContentType) error {
	if err := validateBlock(s.userID, ct); err != nil {
		return err
	}
	s.Dismiss(id, ct)
	return s.manager.Block(ctx, s.userID, id, ct)
}

// SetWatched 用最新同步的已看列表替换会话中的已看集合。
func (s *Session) SetWatched(ids core.IDSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = ids.Clone()
}

// Ephemeral 返回会话内排除集合的副本。
func (s *Session) Ephemeral(ct core.ContentType) core.IDSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ephemeral[ct].Clone()
}

// Exclusions 返回本次请求的排除集合：(拉黑 ∪ 已看) ∪ 会话忽略。
// 在请求开始时调用一次，之后的修改不影响已返回的集合。
func (s *Session) Exclusions(ctx context.Context, ct core.ContentType) (core.IDSet, error) {
	permanent, err := s.manager.Permanent(ctx, s.userID, ct)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Merge(Merge(permanent, s.watched), s.ephemeral[ct]), nil
}
