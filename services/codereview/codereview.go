// Package codereview is a sample toolset built on top of the engine:
// it parses Go source handed in via state, scores it, and loops
// suggestions back through itself until a quality threshold is met or
// an iteration cap is hit. It exists to demonstrate a real looping
// graph end to end, the way the reference implementation's code
// review workflow did for Python source (grounded in
// original_source/app/workflows/code_review.py).
package codereview

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/flowlattice/workflow-engine/services/graph"
	"github.com/flowlattice/workflow-engine/services/registry"
)

// FunctionInfo describes one analyzed function.
type FunctionInfo struct {
	Name       string `json:"name"`
	NumLines   int    `json:"num_lines"`
	Complexity int    `json:"complexity"`
	MaxDepth   int    `json:"max_depth"`
}

// Issue is a single detected code smell.
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Function string `json:"function"`
}

// Suggestion is a single generated improvement.
type Suggestion struct {
	Priority   string `json:"priority"`
	Suggestion string `json:"suggestion"`
}

const (
	maxFunctionLines = 40
	maxNestingDepth  = 3
	maxComplexity    = 10
	qualityThreshold = 8.0
	maxImprovementIterations = 5
)

// Register wires the code review toolset into reg under the
// "codereview." prefix.
func Register(reg *registry.Registry) error {
	tools := map[string]registry.Func{
		"codereview.extract_functions":   extractFunctions,
		"codereview.check_complexity":    checkComplexity,
		"codereview.detect_issues":       detectIssues,
		"codereview.suggest_improvements": suggestImprovements,
		"codereview.calculate_quality":   calculateQuality,
	}
	for name, fn := range tools {
		if err := reg.Register(name, fn, false); err != nil {
			return err
		}
	}
	return nil
}

// extractFunctions parses state["code"] as Go source and records every
// top-level function declaration.
func extractFunctions(ctx context.Context, state map[string]any) (map[string]any, error) {
	src, _ := state["code"].(string)
	if src == "" {
		return nil, fmt.Errorf("codereview.extract_functions: state['code'] is required")
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "input.go", src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("codereview.extract_functions: parse error: %w", err)
	}

	var functions []FunctionInfo
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		start := fset.Position(fn.Body.Lbrace).Line
		end := fset.Position(fn.Body.Rbrace).Line
		functions = append(functions, FunctionInfo{
			Name:     fn.Name.Name,
			NumLines: end - start + 1,
			MaxDepth: maxDepth(fn.Body),
		})
	}

	state["functions"] = functions
	state["num_functions"] = len(functions)
	// The quality gate reads improvement_iteration, so start it at 0
	// before the first pass reaches the gate.
	if _, ok := state["improvement_iteration"]; !ok {
		state["improvement_iteration"] = 0.0
	}
	return state, nil
}

// checkComplexity computes a cyclomatic-complexity approximation for
// each previously extracted function: 1 plus one for every decision
// point (if, for, case, &&, ||).
func checkComplexity(ctx context.Context, state map[string]any) (map[string]any, error) {
	src, _ := state["code"].(string)
	functions, _ := state["functions"].([]FunctionInfo)
	if src == "" || functions == nil {
		return nil, fmt.Errorf("codereview.check_complexity: requires functions from extract_functions")
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "input.go", src, 0)
	if err != nil {
		return nil, fmt.Errorf("codereview.check_complexity: parse error: %w", err)
	}

	complexityByName := make(map[string]int)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		complexityByName[fn.Name.Name] = complexity(fn.Body)
	}

	updated := make([]FunctionInfo, len(functions))
	for i, f := range functions {
		f.Complexity = complexityByName[f.Name]
		updated[i] = f
	}

	state["functions"] = updated
	return state, nil
}

// complexity counts decision points inside body, starting from a
// baseline of 1 (a single straight-line path).
func complexity(body *ast.BlockStmt) int {
	count := 1
	ast.Inspect(body, func(n ast.Node) bool {
		switch stmt := n.(type) {
		case *ast.IfStmt:
			count++
		case *ast.ForStmt:
			count++
		case *ast.RangeStmt:
			count++
		case *ast.CaseClause:
			if len(stmt.List) > 0 {
				count++
			}
		case *ast.BinaryExpr:
			if stmt.Op == token.LAND || stmt.Op == token.LOR {
				count++
			}
		}
		return true
	})
	return count
}

// maxDepth reports the deepest nesting of if/for/switch blocks inside
// body.
func maxDepth(body *ast.BlockStmt) int {
	var walk func(n ast.Node, depth int) int
	walk = func(n ast.Node, depth int) int {
		best := depth
		ast.Inspect(n, func(child ast.Node) bool {
			if child == n {
				return true
			}
			switch child.(type) {
			case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt:
				d := walk(child, depth+1)
				if d > best {
					best = d
				}
				return false
			}
			return true
		})
		return best
	}
	return walk(body, 0)
}

// detectIssues flags functions that are too long, too deeply nested,
// or too complex.
func detectIssues(ctx context.Context, state map[string]any) (map[string]any, error) {
	functions, _ := state["functions"].([]FunctionInfo)

	var issues []Issue
	for _, f := range functions {
		if f.NumLines > maxFunctionLines {
			issues = append(issues, Issue{
				Severity: "warning",
				Function: f.Name,
				Message:  fmt.Sprintf("function %q is %d lines long (limit %d)", f.Name, f.NumLines, maxFunctionLines),
			})
		}
		if f.MaxDepth > maxNestingDepth {
			issues = append(issues, Issue{
				Severity: "warning",
				Function: f.Name,
				Message:  fmt.Sprintf("function %q nests %d levels deep (limit %d)", f.Name, f.MaxDepth, maxNestingDepth),
			})
		}
		if f.Complexity > maxComplexity {
			issues = append(issues, Issue{
				Severity: "critical",
				Function: f.Name,
				Message:  fmt.Sprintf("function %q has cyclomatic complexity %d (limit %d)", f.Name, f.Complexity, maxComplexity),
			})
		}
	}

	state["issues"] = issues
	state["issue_count"] = len(issues)
	return state, nil
}

// suggestImprovements turns each issue into an actionable suggestion
// and increments the loop counter that guards the review cycle.
func suggestImprovements(ctx context.Context, state map[string]any) (map[string]any, error) {
	issues, _ := state["issues"].([]Issue)

	var suggestions []Suggestion
	for _, issue := range issues {
		priority := "medium"
		if issue.Severity == "critical" {
			priority = "high"
		}
		suggestions = append(suggestions, Suggestion{
			Priority:   priority,
			Suggestion: fmt.Sprintf("refactor %q: %s", issue.Function, issue.Message),
		})
	}

	iteration, _ := state["improvement_iteration"].(float64)
	state["improvement_iteration"] = iteration + 1
	state["suggestions"] = suggestions
	state["suggestion_count"] = len(suggestions)
	return state, nil
}

// calculateQuality scores the reviewed code from 0 to 10: it starts
// at 10 and loses a point per warning and two per critical issue.
func calculateQuality(ctx context.Context, state map[string]any) (map[string]any, error) {
	issues, _ := state["issues"].([]Issue)

	score := 10.0
	for _, issue := range issues {
		if issue.Severity == "critical" {
			score -= 2
		} else {
			score -= 1
		}
	}
	if score < 0 {
		score = 0
	}

	state["quality_score"] = score
	state["quality_passed"] = score >= qualityThreshold
	return state, nil
}

// BuildGraph constructs the demo graph: extract -> complexity ->
// detect -> calculate_quality -> (loop to suggest_improvements while
// quality_score < 8 and improvement_iteration < 5, else end).
func BuildGraph() (*graph.GraphDefinition, error) {
	extractTool := "codereview.extract_functions"
	complexityTool := "codereview.check_complexity"
	detectTool := "codereview.detect_issues"
	suggestTool := "codereview.suggest_improvements"
	qualityTool := "codereview.calculate_quality"

	loopCond := fmt.Sprintf("state['quality_score'] < %g && state['improvement_iteration'] < %d", qualityThreshold, maxImprovementIterations)

	nodes := []graph.NodeDefinition{
		{Name: "start", NodeType: graph.NodeStart},
		{Name: "extract_functions", NodeType: graph.NodeFunction, ToolName: &extractTool},
		{Name: "check_complexity", NodeType: graph.NodeFunction, ToolName: &complexityTool},
		{Name: "detect_issues", NodeType: graph.NodeFunction, ToolName: &detectTool},
		{Name: "calculate_quality", NodeType: graph.NodeFunction, ToolName: &qualityTool},
		{Name: "quality_gate", NodeType: graph.NodeConditional},
		{Name: "suggest_improvements", NodeType: graph.NodeFunction, ToolName: &suggestTool},
		{Name: "end", NodeType: graph.NodeEnd},
	}

	edges := []graph.EdgeDefinition{
		{FromNode: "start", ToNode: "extract_functions"},
		{FromNode: "extract_functions", ToNode: "check_complexity"},
		{FromNode: "check_complexity", ToNode: "detect_issues"},
		{FromNode: "detect_issues", ToNode: "calculate_quality"},
		{FromNode: "calculate_quality", ToNode: "quality_gate"},
		{FromNode: "quality_gate", ToNode: "suggest_improvements", Condition: &loopCond},
		{FromNode: "quality_gate", ToNode: "end"},
		{FromNode: "suggest_improvements", ToNode: "check_complexity"},
	}

	return graph.New("code_review", descriptionPtr("Iteratively reviews Go source until it meets a quality bar"), nodes, edges, "start")
}

func descriptionPtr(s string) *string { return &s }
