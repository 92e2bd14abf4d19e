// Package clusterstore persists the meta-group's durable state — cluster
// membership, storage groups and the current partition table — behind the
// Raft FSM, the way the teacher's pkg/storage persists orchestration state
// behind the Warren FSM.
package clusterstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/driftdb/cluster/pkg/types"
)

var (
	bucketNodes         = []byte("nodes")
	bucketStorageGroups = []byte("storage_groups")
	bucketTable         = []byte("partition_table")
)

const tableKey = "current"

// Store is a bbolt-backed persistence layer for the FSM.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cluster store database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "cluster.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketStorageGroups, bucketTable} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// PutNode upserts a cluster member.
func (s *Store) PutNode(n types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put(nodeKey(n.Identifier), data)
	})
}

// DeleteNode removes a cluster member by identifier.
func (s *Store) DeleteNode(identifier int32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete(nodeKey(identifier))
	})
}

// ListNodes returns every persisted cluster member.
func (s *Store) ListNodes() ([]types.Node, error) {
	var nodes []types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	return nodes, err
}

// PutStorageGroup records a storage group name as registered.
func (s *Store) PutStorageGroup(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorageGroups).Put([]byte(name), []byte{1})
	})
}

// DeleteStorageGroup removes a storage group registration.
func (s *Store) DeleteStorageGroup(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorageGroups).Delete([]byte(name))
	})
}

// ListStorageGroups returns every registered storage group name.
func (s *Store) ListStorageGroups() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorageGroups).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// SavePartitionTable persists the serialized partition table.
func (s *Store) SavePartitionTable(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTable).Put([]byte(tableKey), data)
	})
}

// LoadPartitionTable returns the last persisted partition table, or
// (nil, nil) if none has ever been saved.
func (s *Store) LoadPartitionTable() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTable).Get([]byte(tableKey))
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	return data, err
}

func nodeKey(identifier int32) []byte {
	return []byte(fmt.Sprintf("%d", identifier))
}
