package validate

// Args is the tagged-union marker for a decoded, normalized tool-call
// argument set: one concrete type per tool, selected by DecodeArgs based
// on the tool name the caller already validated. The dispatcher logs the
// decoded Args at debug level; the bridge call itself is built from the
// normalized map.
type Args interface {
	isArgs()
}

type ContextArgs struct{}

func (ContextArgs) isArgs() {}

type SearchArgs struct {
	Query          string
	Limit          int
	GroupByProcess bool
}

func (SearchArgs) isArgs() {}

type CypherArgs struct {
	Query string
}

func (CypherArgs) isArgs() {}

type GrepArgs struct {
	Pattern       string
	CaseSensitive bool
	MaxResults    int
}

func (GrepArgs) isArgs() {}

type ReadArgs struct {
	FilePath  string
	StartLine int
	EndLine   int
	HasRange  bool
}

func (ReadArgs) isArgs() {}

type ExploreArgs struct {
	Name string
	Type string
}

func (ExploreArgs) isArgs() {}

type OverviewArgs struct {
	ShowProcesses bool
	ShowClusters  bool
	Limit         int
}

func (OverviewArgs) isArgs() {}

type ImpactArgs struct {
	Target        string
	Direction     string
	MaxDepth      int
	RelationTypes []string
	IncludeTests  bool
	MinConfidence float64
}

func (ImpactArgs) isArgs() {}

type HighlightArgs struct {
	NodeIDs []string
	Color   string
}

func (HighlightArgs) isArgs() {}

type DiffArgs struct {
	Baseline       string
	IncludeContent bool
	Filter         string
}

func (DiffArgs) isArgs() {}

type DeepDiveArgs struct {
	Name string
}

func (DeepDiveArgs) isArgs() {}

type ReviewFileArgs struct {
	FilePath string
}

func (ReviewFileArgs) isArgs() {}

type TraceFlowArgs struct {
	From     string
	To       string
	MaxSteps int
}

func (TraceFlowArgs) isArgs() {}

type FindSimilarArgs struct {
	Name  string
	Limit int
}

func (FindSimilarArgs) isArgs() {}

type TestImpactArgs struct {
	ChangedFiles []string
	MaxDepth     int
	SuggestTests bool
}

func (TestImpactArgs) isArgs() {}

// DecodeArgs converts an already-normalized mapping (the output of
// Validate) into its tool's typed Args variant. It never re-validates;
// callers must have called Validate first.
func DecodeArgs(tool string, normalized map[string]any) Args {
	switch tool {
	case "context":
		return ContextArgs{}
	case "search":
		return SearchArgs{
			Query:          str(normalized, "query"),
			Limit:          intv(normalized, "limit"),
			GroupByProcess: boolv(normalized, "group_by_process"),
		}
	case "cypher":
		return CypherArgs{Query: str(normalized, "query")}
	case "grep":
		return GrepArgs{
			Pattern:       str(normalized, "pattern"),
			CaseSensitive: boolv(normalized, "case_sensitive"),
			MaxResults:    intv(normalized, "max_results"),
		}
	case "read":
		_, hasStart := normalized["start_line"]
		_, hasEnd := normalized["end_line"]
		return ReadArgs{
			FilePath:  str(normalized, "file_path"),
			StartLine: intv(normalized, "start_line"),
			EndLine:   intv(normalized, "end_line"),
			HasRange:  hasStart || hasEnd,
		}
	case "explore":
		return ExploreArgs{Name: str(normalized, "name"), Type: str(normalized, "type")}
	case "overview":
		return OverviewArgs{
			ShowProcesses: boolv(normalized, "show_processes"),
			ShowClusters:  boolv(normalized, "show_clusters"),
			Limit:         intv(normalized, "limit"),
		}
	case "impact":
		return ImpactArgs{
			Target:        str(normalized, "target"),
			Direction:     str(normalized, "direction"),
			MaxDepth:      intv(normalized, "max_depth"),
			RelationTypes: strArrv(normalized, "relation_types"),
			IncludeTests:  boolv(normalized, "include_tests"),
			MinConfidence: floatv(normalized, "min_confidence"),
		}
	case "highlight":
		return HighlightArgs{
			NodeIDs: strArrv(normalized, "node_ids"),
			Color:   str(normalized, "color"),
		}
	case "diff":
		return DiffArgs{
			Baseline:       str(normalized, "baseline"),
			IncludeContent: boolv(normalized, "include_content"),
			Filter:         str(normalized, "filter"),
		}
	case "deep_dive":
		return DeepDiveArgs{Name: str(normalized, "name")}
	case "review_file":
		return ReviewFileArgs{FilePath: str(normalized, "file_path")}
	case "trace_flow":
		return TraceFlowArgs{
			From:     str(normalized, "from"),
			To:       str(normalized, "to"),
			MaxSteps: intv(normalized, "max_steps"),
		}
	case "find_similar":
		return FindSimilarArgs{Name: str(normalized, "name"), Limit: intv(normalized, "limit")}
	case "test_impact":
		return TestImpactArgs{
			ChangedFiles: strArrv(normalized, "changed_files"),
			MaxDepth:     intv(normalized, "max_depth"),
			SuggestTests: boolv(normalized, "suggest_tests"),
		}
	default:
		return nil
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intv(m map[string]any, key string) int {
	n, _ := m[key].(int)
	return n
}

func floatv(m map[string]any, key string) float64 {
	switch n := m[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func boolv(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func strArrv(m map[string]any, key string) []string {
	s, _ := m[key].([]string)
	return s
}
