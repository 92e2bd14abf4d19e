package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/driftdb/cluster/internal/config"
	"github.com/driftdb/cluster/pkg/clusterreport"
	"github.com/driftdb/cluster/pkg/clusterstore"
	"github.com/driftdb/cluster/pkg/compaction"
	"github.com/driftdb/cluster/pkg/log"
	"github.com/driftdb/cluster/pkg/meta"
	"github.com/driftdb/cluster/pkg/metrics"
	"github.com/driftdb/cluster/pkg/partition"
	"github.com/driftdb/cluster/pkg/remotecache"
	"github.com/driftdb/cluster/pkg/rpc"
	"github.com/driftdb/cluster/pkg/types"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "driftnode",
	Short:   "driftnode runs one node of a clustered time-series database",
	Version: Version,
}

var (
	flagConfig     string
	flagIdentifier int32
	flagHost       string
	flagMetaPort   int
	flagDataPort   int
	flagClientPort int
	flagMetricsBind string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().Int32Var(&flagIdentifier, "identifier", 0, "this node's cluster identifier (0 = generate)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "127.0.0.1", "this node's advertised host")
	rootCmd.PersistentFlags().IntVar(&flagMetaPort, "meta-port", 9003, "meta RPC port")
	rootCmd.PersistentFlags().IntVar(&flagDataPort, "data-port", 9004, "data RPC port")
	rootCmd.PersistentFlags().IntVar(&flagClientPort, "client-port", 9005, "client port")
	rootCmd.PersistentFlags().StringVar(&flagMetricsBind, "metrics-bind", ":9090", "Prometheus metrics listen address")

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(statusCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: false})
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "bootstrap a new cluster from this node and a set of seeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, true)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "join an existing cluster through one of its seed nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, false)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show this node's membership and partition-table summary",
	Long: `Prints the cluster name, the persisted members, and the persisted
partition table's group count and replication number by reading the local
cluster store directly. Leader and term are not shown. There is no SQL
frontend in this node, so this is the only introspection surface available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		store, err := clusterstore.Open(cfg.NodeDataDir)
		if err != nil {
			return fmt.Errorf("failed to open cluster store: %w", err)
		}
		defer store.Close()

		nodes, err := store.ListNodes()
		if err != nil {
			return err
		}
		table, err := store.LoadPartitionTable()
		if err != nil {
			return err
		}

		fmt.Printf("cluster: %s\n", cfg.ClusterName)
		fmt.Printf("members: %d\n", len(nodes))
		for _, n := range nodes {
			fmt.Printf("  - %s\n", n.String())
		}
		if table == nil {
			fmt.Println("partition table: none persisted yet")
			return nil
		}
		pt, err := partition.Deserialize(table)
		if err != nil {
			return fmt.Errorf("failed to deserialize partition table: %w", err)
		}
		fmt.Printf("partition table: %d groups, replication %d\n", len(pt.AllGroups()), pt.ReplicationNum())
		return nil
	},
}

func parseSeeds(urls []string) ([]types.Node, error) {
	var seeds []types.Node
	for i, raw := range urls {
		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid seed node url %q, expected host:port", raw)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid seed node port in %q: %w", raw, err)
		}
		seeds = append(seeds, types.Node{Identifier: int32(i + 1), Host: parts[0], MetaPort: port})
	}
	return seeds, nil
}

func runNode(cmd *cobra.Command, bootstrap bool) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	self := types.Node{
		Identifier: flagIdentifier,
		Host:       flagHost,
		MetaPort:   flagMetaPort,
		DataPort:   flagDataPort,
		ClientPort: flagClientPort,
	}

	store, err := clusterstore.Open(cfg.NodeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open cluster store: %w", err)
	}

	member := meta.New(cfg, self, store)
	pool := rpc.NewPool()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartUpTimeThreshold()+30*time.Second)
	defer cancel()

	seeds, err := parseSeeds(cfg.SeedNodeURLs)
	if err != nil {
		return err
	}

	if bootstrap {
		if err := member.BuildCluster(ctx, cfg.NodeDataDir, cfg.MetaBind, seeds, pool); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
	} else {
		if err := member.JoinCluster(ctx, cfg.NodeDataDir, cfg.MetaBind, seeds, pool); err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
	}

	resolver := noopResolver{}
	router := partition.NewRouter(member, resolver, cfg.PartitionInterval)
	dispatcher := meta.NewDispatcher(member, router, noopLocalExecutor{}, noopExpander{}, pool, pool, cfg)

	cache, err := remotecache.NewCache(cfg.MRemoteSchemaCacheSize)
	if err != nil {
		return fmt.Errorf("failed to build schema cache: %w", err)
	}
	puller := remotecache.NewPuller(cache, member, resolver, pool, pool)

	logger := log.WithComponent("driftnode")

	handler := rpc.NewInstrumentedHandler(&nodeHandler{member: member, dispatcher: dispatcher, pool: pool, puller: puller})
	server := rpc.NewServer(handler)
	go func() {
		if err := server.Serve(cfg.MetaBind); err != nil {
			logger.Error().Err(err).Msg("rpc server stopped")
		}
	}()
	defer server.Stop()

	reporter := clusterreport.NewReporter(memberView{m: member}, nil)
	reporter.Start(10 * time.Second)
	defer reporter.Stop()

	collector := metrics.NewCollector(member)
	collector.Start(15 * time.Second)
	defer collector.Stop()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go member.RunHeartbeatLoop(bgCtx, pool, cfg.HeartbeatInterval())

	metrics.RegisterComponent("raft", true, "")
	metrics.RegisterComponent("rpc", true, "")

	fs := afero.NewOsFs()
	cleaner := clusterreport.NewHardLinkCleaner(fs, []string{cfg.NodeDataDir}, alwaysOrphanResources{})
	cleaner.Start(3600 * time.Second)
	defer cleaner.Stop()

	scheduler := compaction.NewScheduler(cfg, func(sg string, task compaction.Task) *compaction.Executor {
		return compaction.NewExecutor(fs, nil, nil, cfg.NodeDataDir, sg)
	})
	scheduler.Start(30 * time.Second)
	defer scheduler.Stop()

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/healthz", metrics.HealthHandler())
	http.Handle("/readyz", metrics.ReadyHandler())
	http.Handle("/livez", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(flagMetricsBind, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().Str("node", self.String()).Bool("bootstrap", bootstrap).Msg("driftnode started")

	sig := make(chan struct{})
	<-sig
	return nil
}

// alwaysOrphanResources is a placeholder ResourceLister: without a wired
// storage engine there are no live ts-file resources to check against, so
// the cleaner would otherwise never run. Replacing this with a real
// tsfile.List-backed lister is future work once the storage engine lands.
type alwaysOrphanResources struct{}

func (alwaysOrphanResources) HasResource(path string) bool { return false }
