// Package diagram turns a normalized change-set into a node/edge graph for
// rendering.
package diagram

import (
	"fmt"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/sui"
)

// NodeKind is the type of entity a node represents.
type NodeKind string

const (
	NodeAddress NodeKind = "address"
	NodeObject  NodeKind = "object"
	NodePackage NodeKind = "package"
)

// EdgeKind is the type of relation an edge represents.
type EdgeKind string

const (
	EdgeTransfer EdgeKind = "transfer"
	EdgeMutation EdgeKind = "mutation"
	EdgeCreation EdgeKind = "creation"
	EdgeDeletion EdgeKind = "deletion"
)

// Node is a graph vertex. ID is the raw address, object id or package id.
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"type"`
}

// Edge is a directed relation between two nodes of the same graph.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Label  string   `json:"label"`
	Kind   EdgeKind `json:"type"`
}

// Graph is the rendered view of one transaction.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	// Unresolved counts objects whose actor could not be determined. They
	// have a node but no incoming edge.
	Unresolved int `json:"unresolved"`
}

const (
	truncateHead   = 6
	truncateTail   = 4
	maxStructLabel = 20
)

var objectEdges = map[analysis.ObjectKind]struct {
	kind  EdgeKind
	label string
	node  string
}{
	analysis.ObjectCreated: {EdgeCreation, "created", "New"},
	analysis.ObjectMutated: {EdgeMutation, "modified", "Modified"},
	analysis.ObjectDeleted: {EdgeDeletion, "deleted", "Deleted"},
	analysis.ObjectWrapped: {EdgeDeletion, "wrapped", "Wrapped"},
}

// Build constructs the graph of a change-set. It is deterministic: the same
// change-set and sender always yield the same nodes and edges in the same
// order with the same ids.
func Build(cs *analysis.ChangeSet, sender string) *Graph {
	b := &builder{
		graph:    &Graph{Nodes: []Node{}, Edges: []Edge{}},
		nodes:    make(map[string]bool),
		ordinals: make(map[string]int),
	}

	if sender != "" {
		b.addNode(sender, TruncateAddress(sender), NodeAddress)
	}
	for _, bc := range cs.BalanceChanges {
		b.addNode(bc.Address, TruncateAddress(bc.Address), NodeAddress)
	}
	packages := make(map[string]bool, len(cs.Packages))
	for _, p := range cs.Packages {
		b.addNode(p.PackageID, packageLabel(p), NodePackage)
		packages[p.PackageID] = true
	}

	b.addTransfers(cs.BalanceChanges, sender)

	for _, obj := range cs.Objects {
		rule, ok := objectEdges[obj.Kind]
		if !ok {
			b.graph.Unresolved++
			continue
		}

		label := rule.label
		actor := ""
		switch {
		case obj.TypeTag == analysis.PackageTypeTag && packages[obj.ObjectID]:
			// The package node already exists; the sender published it.
			actor = sender
			label = "published"
		case obj.OwnerKind == sui.OwnerAddress && obj.Owner != nil:
			actor = *obj.Owner
			b.addNode(actor, TruncateAddress(actor), NodeAddress)
		case obj.Type.Package != nil && packages[*obj.Type.Package]:
			actor = *obj.Type.Package
		}

		b.addNode(obj.ObjectID, rule.node+": "+objectName(obj), NodeObject)

		if actor == "" {
			b.graph.Unresolved++
			continue
		}
		b.addEdge(actor, obj.ObjectID, label, rule.kind)
	}

	return b.graph
}

type builder struct {
	graph    *Graph
	nodes    map[string]bool
	ordinals map[string]int
}

// addNode keeps the first label seen for an id.
func (b *builder) addNode(id, label string, kind NodeKind) {
	if id == "" || b.nodes[id] {
		return
	}
	b.nodes[id] = true
	b.graph.Nodes = append(b.graph.Nodes, Node{ID: id, Label: label, Kind: kind})
}

// addEdge assigns the next ordinal within the edge's (source, target, kind)
// group. Both endpoints must already be nodes.
func (b *builder) addEdge(source, target, label string, kind EdgeKind) {
	if !b.nodes[source] || !b.nodes[target] {
		return
	}
	group := source + "\x00" + target + "\x00" + string(kind)
	ordinal := b.ordinals[group]
	b.ordinals[group] = ordinal + 1

	b.graph.Edges = append(b.graph.Edges, Edge{
		ID:     fmt.Sprintf("%s->%s:%s:%d", source, target, kind, ordinal),
		Source: source,
		Target: target,
		Label:  label,
		Kind:   kind,
	})
}

// addTransfers emits one edge per credit, grouped by coin type in order of
// first appearance. The source is the sender when the sender paid in that
// coin, otherwise the first debited address, otherwise the sender.
func (b *builder) addTransfers(changes []analysis.BalanceChange, sender string) {
	var coins []string
	byCoin := make(map[string][]analysis.BalanceChange)
	for _, bc := range changes {
		if _, ok := byCoin[bc.CoinType]; !ok {
			coins = append(coins, bc.CoinType)
		}
		byCoin[bc.CoinType] = append(byCoin[bc.CoinType], bc)
	}

	for _, coin := range coins {
		group := byCoin[coin]

		source := ""
		for _, bc := range group {
			if !bc.Amount.IsNegative() {
				continue
			}
			if bc.Address == sender {
				source = sender
				break
			}
			if source == "" {
				source = bc.Address
			}
		}
		if source == "" {
			source = sender
		}
		if source == "" {
			continue
		}

		for _, bc := range group {
			if !bc.Amount.IsPositive() || bc.Address == source {
				continue
			}
			outgoing := analysis.BalanceChange{
				Address:  source,
				CoinType: coin,
				Amount:   bc.Amount.Neg(),
				Decimals: bc.Decimals,
			}
			b.addEdge(source, bc.Address, outgoing.Display(), EdgeTransfer)
		}
	}
}

func packageLabel(p analysis.PackageCall) string {
	if p.Module == nil || *p.Module == "" {
		return TruncateAddress(p.PackageID)
	}
	if p.Function == nil || *p.Function == "" {
		return *p.Module
	}
	return *p.Module + "::" + *p.Function
}

func objectName(obj analysis.ObjectChange) string {
	name := obj.Type.Struct
	if name == "" {
		return TruncateAddress(obj.ObjectID)
	}
	if r := []rune(name); len(r) > maxStructLabel {
		name = string(r[:maxStructLabel])
	}
	return name
}

// TruncateAddress shortens long ids to their first six and last four
// characters, e.g. 0x1234...cdef. Short ids are returned unchanged.
func TruncateAddress(addr string) string {
	if len(addr) <= truncateHead+truncateTail+3 {
		return addr
	}
	return addr[:truncateHead] + "..." + addr[len(addr)-truncateTail:]
}
