package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rushteam/cinerank/core"
)

// KVPersistence 把 core.KeyValueStore 适配为拉黑列表与精选列表的持久化契约。
//
// key 布局：
//   - 拉黑：{prefix}:block:{userID}:{contentType}  (Hash，field 为作品 ID，value 为拉黑时间)
//   - 精选：{prefix}:curated:{userID}               (JSON)
type KVPersistence struct {
	kv     core.KeyValueStore
	prefix string
	now    func() time.Time
}

// NewKVPersistence 创建适配器，key 前缀默认为 "cinerank"。
func NewKVPersistence(kv core.KeyValueStore) *KVPersistence {
	return &KVPersistence{kv: kv, prefix: "cinerank", now: time.Now}
}

func (p *KVPersistence) blockKey(userID string, ct core.ContentType) string {
	return p.prefix + ":block:" + userID + ":" + string(ct)
}

func (p *KVPersistence) curatedKey(userID string) string {
	return p.prefix + ":curated:" + userID
}

// Block 幂等写入：HSetNX 保证重复拉黑不覆盖首次时间，也不报错。
func (p *KVPersistence) Block(ctx context.Context, userID string, id core.ExternalID, ct core.ContentType) error {
	field := strconv.FormatInt(int64(id), 10)
	ts := []byte(p.now().UTC().Format(time.RFC3339))
	if _, err := p.kv.HSetNX(ctx, p.blockKey(userID, ct), field, ts); err != nil {
		return fmt.Errorf("block %s/%d: %w", ct, id, err)
	}
	return nil
}

func (p *KVPersistence) Blocked(ctx context.Context, userID string, ct core.ContentType) (core.IDSet, error) {
	fields, err := p.kv.HGetAll(ctx, p.blockKey(userID, ct))
	if err != nil {
		return nil, fmt.Errorf("load blocked: %w", err)
	}
	out := core.NewIDSet()
	for f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}
		out.Add(core.ExternalID(n))
	}
	return out, nil
}

func (p *KVPersistence) UpsertCuratedList(ctx context.Context, list *core.CuratedList) error {
	if list == nil || list.UserID == "" {
		return core.ErrInvalidRequest.Wrap(fmt.Errorf("curated list requires user id"))
	}
	cp := *list
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = p.now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode curated list: %w", err)
	}
	return p.kv.Set(ctx, p.curatedKey(list.UserID), data)
}

func (p *KVPersistence) CuratedList(ctx context.Context, userID string) (*core.CuratedList, error) {
	data, err := p.kv.Get(ctx, p.curatedKey(userID))
	if err != nil {
		return nil, err
	}
	var list core.CuratedList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode curated list: %w", err)
	}
	return &list, nil
}

var (
	_ core.BlockStore       = (*KVPersistence)(nil)
	_ core.CuratedListStore = (*KVPersistence)(nil)
)
