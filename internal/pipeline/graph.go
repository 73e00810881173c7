package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"campaignforge/internal/domain"
)

// Node names.
const (
	NodeStrategist = "strategist"
	NodeCreative   = "creative_prompt_builder"
	NodeImage      = "image_generation"
	NodeVideo      = "video_generation"
)

// Node is one vertex of the stage graph.
type Node struct {
	Name string
	Run  Stage
	// Produces reports whether the node's expected output is present after its
	// patch was applied.
	Produces func(State) bool
	// Asset is set for generation nodes; the orchestrator tracks their progress
	// and bounds them with a timeout.
	Asset domain.AssetKind
	Next  []string
	// Route replaces Next when set. Every name it can return must be listed
	// in Next so validation sees the full edge set.
	Route func(State) []string
}

// Graph is a validated DAG of stage nodes.
type Graph struct {
	nodes map[string]Node
}

// NewGraph builds and validates a graph.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if n.Name == "" {
			return nil, errors.New("pipeline: node name is required")
		}
		if _, dup := g.nodes[n.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate node %s", n.Name)
		}
		if n.Run == nil {
			return nil, fmt.Errorf("pipeline: node %s has no stage", n.Name)
		}
		g.nodes[n.Name] = n
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Node returns the named node.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Validate rejects edges to unknown nodes and cycles.
func (g *Graph) Validate() error {
	names := g.sortedNames()
	for _, name := range names {
		for _, next := range g.nodes[name].Next {
			if _, ok := g.nodes[next]; !ok {
				return fmt.Errorf("pipeline: node %s references unknown node %s", name, next)
			}
		}
	}
	visiting := map[string]bool{}
	visited := map[string]bool{}
	var dfs func(string) error
	dfs = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("pipeline: cycle detected at node %s", name)
		}
		visiting[name] = true
		for _, next := range g.nodes[name].Next {
			if err := dfs(next); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		return nil
	}
	for _, name := range names {
		if err := dfs(name); err != nil {
			return err
		}
	}
	return nil
}

// Plan walks the graph from start for st and returns the nodes grouped into
// levels. Nodes in one level do not depend on each other and may run
// concurrently.
func (g *Graph) Plan(start string, st State) ([][]string, error) {
	if _, ok := g.nodes[start]; !ok {
		return nil, fmt.Errorf("pipeline: unknown start node %s", start)
	}
	var levels [][]string
	seen := map[string]bool{start: true}
	current := []string{start}
	for len(current) > 0 {
		levels = append(levels, current)
		var next []string
		for _, name := range current {
			for _, succ := range g.successors(g.nodes[name], st) {
				if _, ok := g.nodes[succ]; !ok {
					return nil, fmt.Errorf("pipeline: node %s routed to unknown node %s", name, succ)
				}
				if seen[succ] {
					continue
				}
				seen[succ] = true
				next = append(next, succ)
			}
		}
		current = next
	}
	return levels, nil
}

func (g *Graph) successors(n Node, st State) []string {
	if n.Route != nil {
		return n.Route(st)
	}
	return n.Next
}

func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartNode returns where a job of mode enters the graph. video-fast reuses
// a cached brain and skips strategy and creative.
func StartNode(mode domain.Mode) string {
	if mode == domain.ModeVideoFast {
		return NodeVideo
	}
	return NodeStrategist
}

// RouteByMode picks the generation nodes for the job's mode.
func RouteByMode(st State) []string {
	switch st.Mode {
	case domain.ModeImage:
		return []string{NodeImage}
	case domain.ModeVideo, domain.ModeVideoFast:
		return []string{NodeVideo}
	case domain.ModeBoth:
		return []string{NodeImage, NodeVideo}
	default:
		return nil
	}
}

// NewCampaignGraph wires the stages into the campaign graph.
func NewCampaignGraph(s *Stages) (*Graph, error) {
	return NewGraph(
		Node{
			Name:     NodeStrategist,
			Run:      s.Strategist,
			Produces: func(st State) bool { return st.Brief != nil },
			Next:     []string{NodeCreative},
		},
		Node{
			Name: NodeCreative,
			Run:  s.CreativePromptBuilder,
			Produces: func(st State) bool {
				return st.Creative != nil && len(st.Creative.Scenes) == len(domain.SceneBeats)
			},
			Next:  []string{NodeImage, NodeVideo},
			Route: RouteByMode,
		},
		Node{
			Name:     NodeImage,
			Run:      s.ImageGeneration,
			Produces: func(st State) bool { return len(st.AdImages) == len(imageVariants) },
			Asset:    domain.AssetImage,
		},
		Node{
			Name:     NodeVideo,
			Run:      s.VideoGeneration,
			Produces: func(st State) bool { return st.VideoURL != "" },
			Asset:    domain.AssetVideo,
		},
	)
}
