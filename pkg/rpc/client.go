package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/driftdb/cluster/pkg/meta"
	"github.com/driftdb/cluster/pkg/remotecache"
	"github.com/driftdb/cluster/pkg/types"
)

// Client wraps a single node's gRPC connection and implements every
// client-side collaborator interface pkg/meta and pkg/remotecache need
// (GroupSender, SeedClient, StatusChecker, ExileNotifier, GroupForwarder,
// remotecache.SchemaPuller) — the way the teacher's single pkg/client.Client
// implements every CLI-facing RPC against one connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens an RPC connection to node's meta port. Cluster RPC runs
// without mTLS: certificate issuance is out of scope for this node's
// control plane, unlike the teacher's worker/CLI enrollment flow.
func Dial(node types.Node) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", node.Host, node.MetaPort)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, req, reply interface{}) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, reply)
}

// RequestAddNode implements meta.SeedClient.
func (c *Client) RequestAddNode(ctx context.Context, seed types.Node, self types.Node, status types.StartUpStatus) (meta.AddNodeResult, error) {
	req := &AddNodeRequest{Node: self, Status: status}
	reply := new(AddNodeReply)
	if err := c.invoke(ctx, "AddNode", req, reply); err != nil {
		return meta.AddNodeResult{}, err
	}
	return meta.AddNodeResult{Code: reply.Code, Diff: reply.Diff, SerialTable: reply.SerialTable}, nil
}

// CheckStatus implements meta.StatusChecker.
func (c *Client) CheckStatus(ctx context.Context, seed types.Node) (types.StartUpStatus, error) {
	reply := new(CheckStatusReply)
	if err := c.invoke(ctx, "CheckStatus", &CheckStatusRequest{}, reply); err != nil {
		return types.StartUpStatus{}, err
	}
	return reply.Status, nil
}

// SendLog implements meta.GroupSender.
func (c *Client) SendLog(ctx context.Context, node types.Node, entry []byte) error {
	reply := new(ReplicateLogReply)
	if err := c.invoke(ctx, "ReplicateLog", &ReplicateLogRequest{Entry: entry}, reply); err != nil {
		return err
	}
	if !reply.Accepted {
		return fmt.Errorf("node %s rejected replicated log entry", node.String())
	}
	return nil
}

// Exile implements meta.ExileNotifier.
func (c *Client) Exile(ctx context.Context, node types.Node) error {
	return c.invoke(ctx, "Exile", &ExileRequest{}, new(ExileReply))
}

// Forward implements meta.GroupForwarder.
func (c *Client) Forward(ctx context.Context, node types.Node, plan types.Plan) (types.TSStatus, error) {
	reply := new(ForwardPlanReply)
	if err := c.invoke(ctx, "ForwardPlan", &ForwardPlanRequest{Plan: plan}, reply); err != nil {
		return types.TSStatus{}, err
	}
	return reply.Status, nil
}

// PullSchema implements remotecache.SchemaPuller.
func (c *Client) PullSchema(node types.Node, prefixPaths []string) (map[string]remotecache.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply := new(PullSchemaReply)
	if err := c.invoke(ctx, "PullSchema", &PullSchemaRequest{PrefixPaths: prefixPaths}, reply); err != nil {
		return nil, err
	}
	out := make(map[string]remotecache.Entry, len(reply.Entries))
	for _, e := range reply.Entries {
		out[e.Path] = remotecache.Entry{Schema: e.Schema, LastValuePair: e.LastValuePair}
	}
	return out, nil
}

// Heartbeat implements the leader-side heartbeat send; the follower's
// identifier side-channel comes back in the reply.
func (c *Client) Heartbeat(ctx context.Context, hb HeartbeatRequest) (HeartbeatReply, error) {
	reply := new(HeartbeatReply)
	if err := c.invoke(ctx, "Heartbeat", &hb, reply); err != nil {
		return HeartbeatReply{}, err
	}
	return *reply, nil
}

// Pool dials nodes lazily and reuses connections, tracking each node's
// observed round-trip latency so it can serve as a LatencyRanker for both
// pkg/meta's Dispatcher and pkg/remotecache's Puller
// (spec.md §4.3.6, §4.4, "latency-ordered coordinator collaborator").
type Pool struct {
	mu      sync.Mutex
	clients map[int32]*Client
	latency map[int32]time.Duration
}

// NewPool creates an empty connection pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[int32]*Client), latency: make(map[int32]time.Duration)}
}

// Get returns node's client, dialing on first use.
func (p *Pool) Get(node types.Node) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[node.Identifier]; ok {
		return c, nil
	}
	c, err := Dial(node)
	if err != nil {
		return nil, err
	}
	p.clients[node.Identifier] = c
	return c, nil
}

// Record stores node's most recently observed RPC latency.
func (p *Pool) Record(node types.Node, d time.Duration) {
	p.mu.Lock()
	p.latency[node.Identifier] = d
	p.mu.Unlock()
}

// OrderByLatency implements meta.LatencyRanker and remotecache.LatencyRanker:
// nodes with a recorded latency sort fastest-first, unmeasured nodes are
// tried last in group order.
func (p *Pool) OrderByLatency(group types.ReplicaGroup) []types.Node {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := make([]types.Node, len(group))
	copy(ordered, group)
	known := func(n types.Node) (time.Duration, bool) {
		d, ok := p.latency[n.Identifier]
		return d, ok
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			dj, okj := known(ordered[j])
			di, oki := known(ordered[j-1])
			swap := false
			switch {
			case okj && oki:
				swap = dj < di
			case okj && !oki:
				swap = true
			}
			if !swap {
				break
			}
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// Forward implements meta.GroupForwarder by dialing node lazily and
// recording its observed latency for OrderByLatency.
func (p *Pool) Forward(ctx context.Context, node types.Node, plan types.Plan) (types.TSStatus, error) {
	c, err := p.Get(node)
	if err != nil {
		return types.TSStatus{}, err
	}
	start := time.Now()
	status, err := c.Forward(ctx, node, plan)
	p.Record(node, time.Since(start))
	return status, err
}

// SendLog implements meta.GroupSender over the pool.
func (p *Pool) SendLog(ctx context.Context, node types.Node, entry []byte) error {
	c, err := p.Get(node)
	if err != nil {
		return err
	}
	return c.SendLog(ctx, node, entry)
}

// Exile implements meta.ExileNotifier over the pool.
func (p *Pool) Exile(ctx context.Context, node types.Node) error {
	c, err := p.Get(node)
	if err != nil {
		return err
	}
	return c.Exile(ctx, node)
}

// RequestAddNode implements meta.SeedClient over the pool.
func (p *Pool) RequestAddNode(ctx context.Context, seed types.Node, self types.Node, status types.StartUpStatus) (meta.AddNodeResult, error) {
	c, err := p.Get(seed)
	if err != nil {
		return meta.AddNodeResult{}, err
	}
	return c.RequestAddNode(ctx, seed, self, status)
}

// CheckStatus implements meta.StatusChecker over the pool.
func (p *Pool) CheckStatus(ctx context.Context, seed types.Node) (types.StartUpStatus, error) {
	c, err := p.Get(seed)
	if err != nil {
		return types.StartUpStatus{}, err
	}
	return c.CheckStatus(ctx, seed)
}

// PullSchema implements remotecache.SchemaPuller over the pool, looking up
// (or dialing) the client by the node's identifier since the puller only
// has a types.Node, not an already-dialed client.
func (p *Pool) PullSchema(node types.Node, prefixPaths []string) (map[string]remotecache.Entry, error) {
	c, err := p.Get(node)
	if err != nil {
		return nil, err
	}
	return c.PullSchema(node, prefixPaths)
}

// SendHeartbeat implements meta.HeartbeatSender over the pool, translating
// between meta's Heartbeat/HeartbeatResponse and the RPC wire types.
func (p *Pool) SendHeartbeat(ctx context.Context, node types.Node, hb meta.Heartbeat) (meta.HeartbeatResponse, error) {
	c, err := p.Get(node)
	if err != nil {
		return meta.HeartbeatResponse{}, err
	}
	reply, err := c.Heartbeat(ctx, HeartbeatRequest{
		Term:                 hb.Term,
		Leader:               hb.Leader,
		PartitionTable:       hb.PartitionTable,
		RegenerateIdentifier: hb.RegenerateIdentifier,
	})
	if err != nil {
		return meta.HeartbeatResponse{}, err
	}
	return meta.HeartbeatResponse{
		Term:            reply.Term,
		RequestTable:    reply.RequestTable,
		Identifier:      reply.Identifier,
		SendsIdentifier: reply.SendsIdentifier,
	}, nil
}
