package remotecache

import (
	"fmt"

	"github.com/driftdb/cluster/pkg/clustererr"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// SchemaPuller issues the PullSchemaRequest RPC against one node
// (spec.md §6, "PullSchemaRequest(header, prefixPaths) → PullSchemaResp").
type SchemaPuller interface {
	PullSchema(node types.Node, prefixPaths []string) (map[string]Entry, error)
}

// LatencyRanker orders a replica group's nodes by observed latency, fastest
// first, so MetaPuller tries the most likely-to-respond node first
// (spec.md §4.4, "latency-ordered list from the coordinator collaborator").
type LatencyRanker interface {
	OrderByLatency(group types.ReplicaGroup) []types.Node
}

// Puller resolves a path's schema on a local cache miss by pulling from the
// group that owns its storage group.
type Puller struct {
	cache       *Cache
	tableSource partition.TableProvider
	resolver    partition.StorageGroupResolver
	rpc         SchemaPuller
	ranker      LatencyRanker
}

// NewPuller builds a Puller over cache, routing misses through the table
// read live from tableSource on every miss, using resolver to find a path's
// storage group, ranker to order candidate nodes, and rpc to perform the
// pull. Reading the table through tableSource rather than a snapshot means
// a table swapped in after construction (join, heartbeat, snapshot-restore)
// is still seen.
func NewPuller(cache *Cache, tableSource partition.TableProvider, resolver partition.StorageGroupResolver, rpc SchemaPuller, ranker LatencyRanker) *Puller {
	return &Puller{cache: cache, tableSource: tableSource, resolver: resolver, rpc: rpc, ranker: ranker}
}

// Resolve returns path's schema, consulting the cache first and falling
// back to a remote pull on miss (spec.md §4.4). Every schema returned by a
// successful pull is cached, not just the one requested.
func (p *Puller) Resolve(path string) (Entry, error) {
	if entry, ok := p.cache.Get(path); ok {
		return entry, nil
	}

	sg, err := p.resolver.StorageGroupOf(path)
	if err != nil {
		return Entry{}, clustererr.New(clustererr.KindStorageGroupNotSet, err)
	}

	group, err := p.tableSource.Table().Route(sg, 0)
	if err != nil {
		return Entry{}, clustererr.New(clustererr.KindPathNotExist, err)
	}

	logger := log.WithGroupHeader(fmt.Sprintf("%d", group.Header().Identifier))

	var lastErr error
	for _, node := range p.ranker.OrderByLatency(group) {
		resp, err := p.rpc.PullSchema(node, []string{path})
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Str("node", node.String()).Msg("schema pull failed, trying next node")
			continue
		}
		if resp == nil {
			continue
		}
		for pulledPath, entry := range resp {
			p.cache.Put(pulledPath, entry)
		}
		if entry, ok := resp[path]; ok {
			return entry, nil
		}
	}

	if lastErr != nil {
		return Entry{}, clustererr.New(clustererr.KindTimeout, lastErr)
	}
	return Entry{}, clustererr.New(clustererr.KindPathNotExist, fmt.Errorf("no group member returned schema for %s", path))
}
