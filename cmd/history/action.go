package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/store"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/internal/sim"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/internal/tracing"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/quorum"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

// action holds the state shared by the commands. The global flags are read
// once before any command runs.
type action struct {
	out io.Writer

	cfg    config.Config
	hash   crypto.HashFactory
	tracer opentracing.Tracer
	server *http.Server
}

func (a *action) setup(c *urfave.Context) error {
	a.cfg = config.Default()

	path := c.String("config")
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return xerrors.Errorf("couldn't load config: %v", err)
		}

		a.cfg = cfg
	}

	level := c.String("log-level")
	if level == "" {
		level = a.cfg.LogLevel
	}

	err := hiero.SetLevel(level)
	if err != nil {
		return xerrors.Errorf("couldn't set log level: %v", err)
	}

	algorithm, err := crypto.ParseHashAlgorithm(c.String("hash"))
	if err != nil {
		return xerrors.Errorf("invalid hash flag: %v", err)
	}

	a.hash = crypto.NewHashFactory(algorithm)

	addr := c.String("prometheus")
	if addr != "" {
		err = a.servePrometheus(addr)
		if err != nil {
			return xerrors.Errorf("couldn't start prometheus: %v", err)
		}
	}

	service := c.String("tracing")
	if service != "" {
		a.tracer, err = tracing.ForService(service)
		if err != nil {
			return xerrors.Errorf("couldn't start tracing: %v", err)
		}
	}

	return nil
}

func (a *action) teardown(c *urfave.Context) error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := a.server.Shutdown(ctx)
		if err != nil {
			return xerrors.Errorf("couldn't stop prometheus: %v", err)
		}
	}

	err := tracing.CloseAll()
	if err != nil {
		return xerrors.Errorf("couldn't stop tracing: %v", err)
	}

	return nil
}

func (a *action) servePrometheus(addr string) error {
	registry := prometheus.NewRegistry()

	for _, c := range hiero.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			return xerrors.Errorf("couldn't register collector: %v", err)
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Errorf("couldn't listen: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	a.server = &http.Server{Handler: mux}

	go func() {
		err := a.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			hiero.Logger.Err(err).Msg("prometheus server stopped")
		}
	}()

	hiero.Logger.Info().Str("addr", listener.Addr().String()).Msg("prometheus endpoint started")

	return nil
}

func (a *action) quorumAction(c *urfave.Context) error {
	nodes, err := parseNodes(c.StringSlice("node"))
	if err != nil {
		return xerrors.Errorf("invalid node flag: %v", err)
	}

	members := make([]roster.Entry, len(nodes))
	for i, n := range nodes {
		members[i] = roster.Entry{NodeID: n.ID, Weight: n.Weight}
	}

	total, err := roster.New(members...).TotalWeight()
	if err != nil {
		return xerrors.Errorf("couldn't compute total weight: %v", err)
	}

	fmt.Fprintf(a.out, "total weight: %d\n", total)

	partitions := []struct {
		name string
		fn   func([]quorum.Node) ([]quorum.Node, error)
	}{
		{"strong minority", quorum.SmallestStrongMinority},
		{"majority", quorum.SmallestMajority},
		{"super-majority", quorum.SmallestSuperMajority},
		{"sub strong minority", quorum.LargestSubStrongMinority},
	}

	for _, p := range partitions {
		subset, err := p.fn(nodes)
		if err != nil {
			fmt.Fprintf(a.out, "%s: %v\n", p.name, err)
			continue
		}

		var weight uint64
		ids := make([]string, len(subset))

		for i, n := range subset {
			weight += n.Weight
			ids[i] = strconv.FormatUint(n.ID, 10)
		}

		fmt.Fprintf(a.out, "%s: [%s] weight %d\n", p.name, strings.Join(ids, " "), weight)
	}

	return nil
}

func (a *action) inspectAction(c *urfave.Context) error {
	path := c.String("db")
	if path == "" {
		path = a.cfg.DatabasePath
	}

	_, err := os.Stat(path)
	if err != nil {
		return xerrors.Errorf("couldn't find database: %v", err)
	}

	db, err := kv.New(path)
	if err != nil {
		return xerrors.Errorf("couldn't open database: %v", err)
	}

	defer db.Close()

	st, err := store.NewStore(db)
	if err != nil {
		return xerrors.Errorf("couldn't create store: %v", err)
	}

	ledgerID, err := st.GetLedgerID()
	if err != nil {
		return xerrors.Errorf("couldn't read ledger id: %v", err)
	}

	if ledgerID == nil {
		fmt.Fprintln(a.out, "ledger id: unknown")
	} else {
		fmt.Fprintf(a.out, "ledger id: %x\n", ledgerID)
	}

	constructions, err := st.ListConstructions()
	if err != nil {
		return xerrors.Errorf("couldn't list constructions: %v", err)
	}

	active, err := st.GetActiveConstruction()
	if err != nil {
		return xerrors.Errorf("couldn't read active construction: %v", err)
	}

	for _, construction := range constructions {
		marker := ""
		if active != nil && active.ConstructionID == construction.ConstructionID {
			marker = " (active)"
		}

		fmt.Fprintf(a.out, "construction %d%s: %s\n",
			construction.ConstructionID, marker, describe(construction))
	}

	return nil
}

func (a *action) simulateAction(c *urfave.Context) error {
	size := c.Int("nodes")
	if size <= 0 {
		return xerrors.Errorf("invalid number of nodes: %d", size)
	}

	weight := c.Int("weight")
	if weight <= 0 {
		return xerrors.Errorf("invalid weight: %d", weight)
	}

	dir := c.String("dir")
	if dir == "" {
		tmp, err := os.MkdirTemp("", "history-sim")
		if err != nil {
			return xerrors.Errorf("couldn't create directory: %v", err)
		}

		defer os.RemoveAll(tmp)

		dir = tmp
	}

	entries := make([]roster.Entry, size)
	for i := range entries {
		entries[i] = roster.Entry{NodeID: uint64(i + 1), Weight: uint64(weight)}
	}

	network, err := sim.NewNetwork(sim.Param{
		Dir:         dir,
		Config:      a.cfg,
		HashFactory: a.hash,
		Tracer:      a.tracer,
		MaxRounds:   c.Int("rounds"),
	}, roster.New(entries...))
	if err != nil {
		return xerrors.Errorf("couldn't create network: %v", err)
	}

	defer network.Close()

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	proof, err := network.Bootstrap(ctx, []byte("verification-key-0"))
	if err != nil {
		return xerrors.Errorf("couldn't bootstrap: %v", err)
	}

	fmt.Fprintf(a.out, "bootstrap %s: %s\n", formatRoster(entries), describeProof(proof))

	next := uint64(size + 1)

	for i := 1; i <= c.Int("transitions"); i++ {
		// The last member of the roster is replaced by a new node.
		candidate := append([]roster.Entry{}, entries[:len(entries)-1]...)
		candidate = append(candidate, roster.Entry{NodeID: next, Weight: uint64(weight)})
		next++

		vk := []byte(fmt.Sprintf("verification-key-%d", i))

		proof, err = network.Transition(ctx, roster.New(candidate...), vk)
		if err != nil {
			return xerrors.Errorf("couldn't run transition %d: %v", i, err)
		}

		entries = candidate

		fmt.Fprintf(a.out, "transition %d %s: %s\n", i, formatRoster(entries), describeProof(proof))
	}

	return nil
}

func describe(construction types.Construction) string {
	switch {
	case construction.HasTargetProof():
		return "finished with " + describeProof(*construction.TargetProof)
	case construction.HasFailed():
		return "failed: " + construction.FailureReason
	case construction.HasAssemblyStartTime():
		return "assembling since " + construction.AssemblyStartTime.Format(time.RFC3339)
	default:
		return "collecting keys"
	}
}

func describeProof(proof types.Proof) string {
	kind := "none"
	if proof.HasChainOfTrustProof() {
		kind = proof.ChainOfTrustProof.Kind.String()
	}

	return fmt.Sprintf("proof %s kind %s keys %d metadata %s", proof.ID()[:16], kind,
		len(proof.TargetProofKeys), hex.EncodeToString(proof.TargetHistory.Metadata))
}

func formatRoster(entries []roster.Entry) string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = strconv.FormatUint(e.NodeID, 10)
	}

	return "[" + strings.Join(ids, " ") + "]"
}

// parseNodes reads the <id>=<weight> definitions of the nodes.
func parseNodes(values []string) ([]quorum.Node, error) {
	nodes := make([]quorum.Node, 0, len(values))

	for _, value := range values {
		parts := strings.SplitN(value, "=", 2)
		if len(parts) != 2 {
			return nil, xerrors.Errorf("malformed node '%s'", value)
		}

		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("malformed node id '%s': %v", parts[0], err)
		}

		weight, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("malformed node weight '%s': %v", parts[1], err)
		}

		nodes = append(nodes, quorum.Node{ID: id, Weight: weight})
	}

	return nodes, nil
}
