// Package registry holds GitNexus's fixed catalogue of 15 read-only code
// analysis tools: their names, agent-facing descriptions, JSON-Schema input
// shapes, and quick/heavy category. The catalogue is a process-global,
// read-only singleton, generalized from the teacher's three hand-built
// mcp.Tool literals (internal/mcp/schemas.go) into a data-driven table.
package registry

import "github.com/mark3labs/mcp-go/mcp"

// Category determines which resilience timeout a tool's calls use.
type Category string

const (
	CategoryQuick Category = "quick"
	CategoryHeavy Category = "heavy"
)

// Descriptor is the immutable, per-release tool descriptor of spec §3.
type Descriptor struct {
	Tool     mcp.Tool
	Category Category
}

// Name returns the tool's MCP-facing name.
func (d Descriptor) Name() string { return d.Tool.Name }

func obj(props map[string]any, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func strEnum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func boolean(desc string, def bool) map[string]any {
	return map[string]any{"type": "boolean", "description": desc, "default": def}
}

func integer(desc string, min, max, def int) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": desc,
		"minimum":     min,
		"maximum":     max,
		"default":     def,
	}
}

func number(desc string, min, max, def float64) map[string]any {
	return map[string]any{
		"type":        "number",
		"description": desc,
		"minimum":     min,
		"maximum":     max,
		"default":     def,
	}
}

func strArray(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": desc,
		"items":       map[string]any{"type": "string"},
	}
}

// catalogue is built once, at package init, from the 15-tool table of
// spec §6. It is never mutated after init.
var catalogue = []Descriptor{
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "context",
			Description: "Returns project statistics, top hotspots, the folder tree, the tool list, and the graph schema.",
			InputSchema: obj(map[string]any{}),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "search",
			Description: "Hybrid keyword and semantic search over the indexed codebase.",
			InputSchema: obj(map[string]any{
				"query":              str("Search query, at least one character."),
				"limit":              integer("Maximum number of results.", 1, 100, 10),
				"group_by_process":   boolean("Group results by enclosing business process.", true),
			}, "query"),
		},
	},
	{
		Category: CategoryHeavy,
		Tool: mcp.Tool{
			Name:        "cypher",
			Description: "Run a read-only Cypher query against the code graph. Mutating clauses are rejected by the query firewall.",
			InputSchema: obj(map[string]any{
				"query": str("Read-only Cypher query, at least one character."),
			}, "query"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "grep",
			Description: "Regular-expression search over file contents.",
			InputSchema: obj(map[string]any{
				"pattern":        str("Regular expression pattern, at least one character."),
				"case_sensitive": boolean("Match case-sensitively.", false),
				"max_results":    integer("Maximum number of matches.", 1, 500, 50),
			}, "pattern"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "read",
			Description: "Read a file, optionally restricted to a line range.",
			InputSchema: obj(map[string]any{
				"file_path":  str("Path to the file, at least one character."),
				"start_line": map[string]any{"type": "integer", "description": "First line to read (1-based).", "minimum": 1, "maximum": 1 << 30},
				"end_line":   map[string]any{"type": "integer", "description": "Last line to read (1-based); must be >= start_line.", "minimum": 1, "maximum": 1 << 30},
			}, "file_path"),
		},
	},
	{
		Category: CategoryHeavy,
		Tool: mcp.Tool{
			Name:        "explore",
			Description: "Look up a symbol, cluster, or process by name and return its graph neighborhood.",
			InputSchema: obj(map[string]any{
				"name": str("Name of the symbol, cluster, or process."),
				"type": strEnum("Kind of node to look up.", "symbol", "cluster", "process"),
			}, "name", "type"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "overview",
			Description: "Summarize the codebase: top processes, clusters, and counts.",
			InputSchema: obj(map[string]any{
				"show_processes": boolean("Include the top business processes.", true),
				"show_clusters":  boolean("Include the top clusters.", true),
				"limit":          integer("Maximum items per section.", 1, 100, 20),
			}),
		},
	},
	{
		Category: CategoryHeavy,
		Tool: mcp.Tool{
			Name:        "impact",
			Description: "Trace upstream or downstream impact of a change to a target symbol.",
			InputSchema: obj(map[string]any{
				"target":          str("Name of the symbol to analyze."),
				"direction":       strEnum("Direction to traverse.", "upstream", "downstream"),
				"max_depth":       integer("Maximum traversal depth.", 1, 10, 3),
				"relation_types":  strArray("Restrict traversal to these relation types."),
				"include_tests":   boolean("Include test files in the impact set.", false),
				"min_confidence":  number("Minimum edge confidence to follow.", 0, 1, 0.7),
			}, "target", "direction"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "highlight",
			Description: "Highlight the given nodes in the browser's graph view. A UI side effect; returns an acknowledgement.",
			InputSchema: obj(map[string]any{
				"node_ids": strArray("IDs of the nodes to highlight, at least one."),
				"color":    str("Optional highlight color."),
			}, "node_ids"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "diff",
			Description: "Show what changed in the codebase relative to a baseline.",
			InputSchema: obj(map[string]any{
				"baseline":       str("Baseline to diff against."),
				"include_content": boolean("Include full file content in the diff.", false),
				"filter":         strEnum("Restrict to this kind of change.", "all", "added", "modified", "deleted"),
			}),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "deep_dive",
			Description: "Composite tool: explore a symbol, trace its impact, and read its source in one call.",
			InputSchema: obj(map[string]any{
				"name": str("Name of the symbol to deep-dive on."),
			}, "name"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "review_file",
			Description: "Composite tool: summarize a file's symbols, imports, and the processes it participates in.",
			InputSchema: obj(map[string]any{
				"file_path": str("Path to the file to review."),
			}, "file_path"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "trace_flow",
			Description: "Trace the call/data flow starting from a symbol, optionally to a target.",
			InputSchema: obj(map[string]any{
				"from":      str("Name of the symbol to start from."),
				"to":        str("Optional name of the symbol to trace toward."),
				"max_steps": integer("Maximum number of steps to trace.", 1, 20, 10),
			}, "from"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "find_similar",
			Description: "Find symbols structurally or semantically similar to a named symbol.",
			InputSchema: obj(map[string]any{
				"name":  str("Name of the symbol to compare against."),
				"limit": integer("Maximum number of similar symbols to return.", 1, 20, 5),
			}, "name"),
		},
	},
	{
		Category: CategoryQuick,
		Tool: mcp.Tool{
			Name:        "test_impact",
			Description: "Given a set of changed files, suggest which tests are affected.",
			InputSchema: obj(map[string]any{
				"changed_files":  strArray("Paths of changed files, at least one."),
				"max_depth":      integer("Maximum dependency depth to consider.", 1, 5, 2),
				"suggest_tests":  boolean("Include suggested test names in the result.", true),
			}, "changed_files"),
		},
	},
}

// byName is built once at init for O(1) lookups.
var byName = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(catalogue))
	for _, d := range catalogue {
		m[d.Name()] = d
	}
	return m
}()

// All returns the full catalogue in a stable order. Callers must not mutate
// the returned slice's Descriptor values.
func All() []Descriptor {
	out := make([]Descriptor, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the descriptor for name, or false if no such tool exists.
func Lookup(name string) (Descriptor, bool) {
	d, ok := byName[name]
	return d, ok
}

// Names returns every registered tool name, in catalogue order.
func Names() []string {
	out := make([]string, len(catalogue))
	for i, d := range catalogue {
		out[i] = d.Name()
	}
	return out
}

// CypherToolName is the name of the sole free-form tool subject to the
// query firewall (spec §4.D).
const CypherToolName = "cypher"
