package meta

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/clustererr"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/types"
)

// SeedClient is the collaborator JoinCluster uses to contact a seed node's
// AddNode RPC (spec.md §4.3.1).
type SeedClient interface {
	RequestAddNode(ctx context.Context, seed types.Node, self types.Node, status types.StartUpStatus) (AddNodeResult, error)
}

// StatusChecker is the collaborator BuildCluster uses to confirm every
// other seed agrees on StartUpStatus.
type StatusChecker interface {
	CheckStatus(ctx context.Context, seed types.Node) (types.StartUpStatus, error)
}

func (m *Member) startRaft(dataDir string, bootstrap bool, bindAddr string) error {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(fmt.Sprintf("%d", m.self.Identifier))
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve meta bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create raft stable store: %w", err)
	}

	fsm := NewFSM(m.store, m.table, m.cfg.ReplicationNum, m.cfg.HashSalt, m.setTable)

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to start raft: %w", err)
	}
	m.raft = r
	m.fsm = fsm

	if bootstrap {
		cfg := raft.Configuration{Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}}}
		if err := r.BootstrapCluster(cfg).Error(); err != nil {
			return fmt.Errorf("failed to bootstrap meta raft group: %w", err)
		}
	}

	go m.watchLeadership()
	return nil
}

// raftServerID and raftServerAddress derive a node's Raft identity from its
// cluster identifier and meta address, the same values startRaft uses for
// the local node's own LocalID/transport bind address.
func raftServerID(n types.Node) raft.ServerID {
	return raft.ServerID(fmt.Sprintf("%d", n.Identifier))
}

func raftServerAddress(n types.Node) raft.ServerAddress {
	return raft.ServerAddress(fmt.Sprintf("%s:%d", n.Host, n.MetaPort))
}

func (m *Member) watchLeadership() {
	for isLeader := range m.raft.LeaderCh() {
		if isLeader {
			m.setCharacter(CharacterLeader)
		} else if m.Character() == CharacterLeader {
			m.setCharacter(CharacterFollower)
		}
	}
}

// BuildCluster performs the seed bootstrap path (spec.md §4.3.1): a
// pairwise StartUpStatus check against every other seed with exponential
// retry until a quorum agrees or the global deadline elapses, then loads
// any persisted table or, failing that, builds a fresh one from the seed
// list (or from this node alone when there is at most one seed).
func (m *Member) BuildCluster(ctx context.Context, dataDir string, bindAddr string, seeds []types.Node, checker StatusChecker) error {
	logger := log.WithComponent("meta")

	deadline := time.Now().Add(m.cfg.StartUpTimeThreshold())
	quorum := len(seeds)/2 + 1
	backoff := 200 * time.Millisecond

	for {
		agreed := 1 // self always agrees with itself
		for _, seed := range seeds {
			if seed.Identifier == m.self.Identifier {
				continue
			}
			remote, err := checker.CheckStatus(ctx, seed)
			if err != nil {
				logger.Warn().Err(err).Str("seed", seed.String()).Msg("seed status check failed")
				continue
			}
			if m.cfg.StartUpStatus().Diff(remote).Success {
				agreed++
			}
		}
		if agreed >= quorum {
			break
		}
		if time.Now().After(deadline) {
			return clustererr.New(clustererr.KindConfigInconsistent, fmt.Errorf("seeds failed to reach startup quorum (%d/%d) before deadline", agreed, quorum))
		}
		time.Sleep(backoff)
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}

	persisted, err := m.store.LoadPartitionTable()
	if err != nil {
		return fmt.Errorf("failed to load persisted partition table: %w", err)
	}
	if persisted != nil {
		table, err := partition.Deserialize(persisted)
		if err != nil {
			return fmt.Errorf("failed to deserialize persisted partition table: %w", err)
		}
		m.setTable(table)
	} else if len(seeds) <= 1 {
		m.setTable(partition.New([]types.Node{m.self}, m.cfg.HashSalt, m.cfg.ReplicationNum))
	} else {
		m.setTable(partition.New(seeds, m.cfg.HashSalt, m.cfg.ReplicationNum))
	}

	if err := m.startRaft(dataDir, true, bindAddr); err != nil {
		return err
	}
	m.setCharacter(CharacterFollower)
	logger.Info().Int("seeds", len(seeds)).Msg("cluster built from seeds")
	return nil
}

// JoinCluster performs the non-seed join path (spec.md §4.3.1): contact a
// randomly chosen seed with an AddNode request, retrying on
// PARTITION_TABLE_UNAVAILABLE up to DefaultJoinRetry times.
func (m *Member) JoinCluster(ctx context.Context, dataDir string, bindAddr string, seeds []types.Node, client SeedClient) error {
	if len(seeds) == 0 {
		return fmt.Errorf("no seed nodes configured")
	}
	logger := log.WithComponent("meta")

	for attempt := 0; attempt < config.DefaultJoinRetry; attempt++ {
		seed := seeds[rand.Intn(len(seeds))]
		result, err := client.RequestAddNode(ctx, seed, m.self, m.cfg.StartUpStatus())
		if err != nil {
			logger.Warn().Err(err).Str("seed", seed.String()).Msg("add-node request failed")
			time.Sleep(config.JoinRetryInterval)
			continue
		}

		switch result.Code {
		case types.ResponseAgree:
			table, err := partition.Deserialize(result.SerialTable)
			if err != nil {
				return fmt.Errorf("failed to deserialize partition table from seed: %w", err)
			}
			m.setTable(table)
			if err := m.startRaft(dataDir, false, bindAddr); err != nil {
				return err
			}
			m.setCharacter(CharacterFollower)
			logger.Info().Str("seed", seed.String()).Msg("joined cluster")
			return nil

		case types.ResponseIdentifierConflict:
			m.mu.Lock()
			m.self.Identifier = rand.Int31()
			m.mu.Unlock()
			logger.Warn().Msg("identifier conflict on join, regenerated")
			continue

		case types.ResponseNewNodeParameterConflict:
			return clustererr.New(clustererr.KindConfigInconsistent, fmt.Errorf("startup parameters disagree with cluster: %+v", result.Diff))

		case types.ResponsePartitionTableUnavailable:
			logger.Warn().Int("attempt", attempt+1).Msg("seed has no partition table yet, retrying")
			time.Sleep(config.JoinRetryInterval)
			continue

		default:
			return fmt.Errorf("unexpected add-node response %s", result.Code)
		}
	}

	return fmt.Errorf("exhausted %d join retries", config.DefaultJoinRetry)
}
