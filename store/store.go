// Package store 提供 core.Store / core.KeyValueStore 的实现，以及基于它们的持久化适配。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	var blocks core.BlockStore = store.NewKVPersistence(kv)
package store
