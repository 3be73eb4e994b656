/*
File: sharded_singleflight.go
Version: 2.0.0
Description: Sharded wrapper around singleflight.Group plus a typed helper.
             Coalesces concurrent cache misses for the same key.
*/

package main

import (
	"hash/maphash"

	"golang.org/x/sync/singleflight"
)

const shardedFlightCount = 64

type ShardedGroup struct {
	shards []*singleflight.Group
	seed   maphash.Seed
}

func NewShardedGroup() *ShardedGroup {
	sg := &ShardedGroup{
		shards: make([]*singleflight.Group, shardedFlightCount),
		seed:   maphash.MakeSeed(),
	}
	for i := range sg.shards {
		sg.shards[i] = &singleflight.Group{}
	}
	return sg
}

func (g *ShardedGroup) getShard(key string) *singleflight.Group {
	return g.shards[maphash.String(g.seed, key)&(shardedFlightCount-1)]
}

func (g *ShardedGroup) Do(key string, fn func() (interface{}, error)) (v interface{}, err error, shared bool) {
	return g.getShard(key).Do(key, fn)
}

// flightDo runs fn once per key among concurrent callers and returns its typed result.
func flightDo[T any](g *ShardedGroup, key string, fn func() (T, error)) (T, bool, error) {
	v, err, shared := g.Do(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, shared, err
	}
	return v.(T), shared, nil
}
