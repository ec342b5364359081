// Package graph rebuilds a renderable execution graph by merging a
// workflow's static topology with the engine's late-arriving runtime data.
package graph

import "sort"

// Status is the derived per-node run status
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Node is one renderable workflow node in execution order.
type Node struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Position      []float64 `json:"position"`
	Status        Status    `json:"status"`
	ExecutionTime *float64  `json:"execution_time,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Edge is one directed connection between two named nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the renderable structure returned to detail-view callers.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type nodeInfo struct {
	id       string
	name     string
	nodeType string
	position []float64
	children []string
}

// Build parses the topology document into nodes and edges, orders the nodes
// by Kahn's topological sort (ties broken lexicographically by name), and
// merges per-node status from the runtime document when one is given.
//
// Nodes that never reach zero in-degree — members of a cycle, or nodes
// unreachable from any root — are silently excluded from the node list.
// The edge list is independent of the sort and keeps all discovered pairs.
func Build(topology map[string]interface{}, runtime map[string]interface{}) Graph {
	nodeMap := map[string]*nodeInfo{}
	var edges []Edge

	rawNodes, _ := topology["nodes"].([]interface{})
	for _, raw := range rawNodes {
		node, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := node["name"].(string)
		if name == "" {
			continue
		}

		id, _ := node["id"].(string)
		if id == "" {
			id = name
		}
		nodeType, _ := node["type"].(string)
		if nodeType == "" {
			nodeType = "unknown"
		}

		nodeMap[name] = &nodeInfo{
			id:       id,
			name:     name,
			nodeType: nodeType,
			position: asPosition(node["position"]),
		}
	}

	// Adjacency: edges grouped by output port, each pointing at a target
	// node name.
	connections, _ := topology["connections"].(map[string]interface{})
	for sourceName, rawOutputs := range connections {
		source, ok := nodeMap[sourceName]
		if !ok {
			continue
		}
		outputs, ok := rawOutputs.(map[string]interface{})
		if !ok {
			continue
		}
		for _, rawGroups := range outputs {
			groups, ok := rawGroups.([]interface{})
			if !ok {
				continue
			}
			for _, rawGroup := range groups {
				group, ok := rawGroup.([]interface{})
				if !ok {
					continue
				}
				for _, rawConn := range group {
					conn, ok := rawConn.(map[string]interface{})
					if !ok {
						continue
					}
					target, _ := conn["node"].(string)
					if target == "" {
						continue
					}
					source.children = append(source.children, target)
					edges = append(edges, Edge{From: sourceName, To: target})
				}
			}
		}
	}

	runData := extractRunData(runtime)

	nodes := make([]Node, 0, len(nodeMap))
	for _, name := range topoSort(nodeMap) {
		info := nodeMap[name]
		node := Node{
			ID:       info.id,
			Name:     info.name,
			Type:     info.nodeType,
			Position: info.position,
			Status:   StatusPending,
		}
		node.Status, node.ExecutionTime, node.Error = deriveStatus(runData, name)
		nodes = append(nodes, node)
	}

	return Graph{Nodes: nodes, Edges: edges}
}

// topoSort runs Kahn's algorithm over the node map. The frontier is sorted
// by name before each pop so simultaneously-ready nodes emerge in a
// deterministic order.
func topoSort(nodeMap map[string]*nodeInfo) []string {
	inDegree := make(map[string]int, len(nodeMap))
	for name := range nodeMap {
		inDegree[name] = 0
	}
	for _, info := range nodeMap {
		for _, child := range info.children {
			if _, ok := inDegree[child]; ok {
				inDegree[child]++
			}
		}
	}

	var frontier []string
	for name, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, name)
		}
	}

	sorted := make([]string, 0, len(nodeMap))
	for len(frontier) > 0 {
		sort.Strings(frontier)
		current := frontier[0]
		frontier = frontier[1:]
		sorted = append(sorted, current)

		for _, child := range nodeMap[current].children {
			if _, ok := inDegree[child]; !ok {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				frontier = append(frontier, child)
			}
		}
	}

	return sorted
}

// extractRunData digs the per-node run records out of the engine's runtime
// document: data.resultData.runData, keyed by node name.
func extractRunData(runtime map[string]interface{}) map[string]interface{} {
	if runtime == nil {
		return nil
	}
	data, _ := runtime["data"].(map[string]interface{})
	resultData, _ := data["resultData"].(map[string]interface{})
	runData, _ := resultData["runData"].(map[string]interface{})
	return runData
}

// deriveStatus reads a node's last run record: absent means pending, an
// error field means error (with the extracted message), otherwise success.
func deriveStatus(runData map[string]interface{}, name string) (Status, *float64, string) {
	runs, _ := runData[name].([]interface{})
	if len(runs) == 0 {
		return StatusPending, nil, ""
	}

	lastRun, _ := runs[len(runs)-1].(map[string]interface{})
	if lastRun == nil {
		return StatusPending, nil, ""
	}

	var execTime *float64
	if t, ok := lastRun["executionTime"].(float64); ok {
		execTime = &t
	}

	if rawErr, ok := lastRun["error"]; ok && rawErr != nil {
		message := "Unknown error"
		if errMap, ok := rawErr.(map[string]interface{}); ok {
			if m, ok := errMap["message"].(string); ok && m != "" {
				message = m
			}
		}
		return StatusError, execTime, message
	}

	return StatusSuccess, execTime, ""
}

func asPosition(raw interface{}) []float64 {
	list, ok := raw.([]interface{})
	if !ok {
		return []float64{0, 0}
	}
	position := make([]float64, 0, len(list))
	for _, v := range list {
		f, _ := v.(float64)
		position = append(position, f)
	}
	return position
}
