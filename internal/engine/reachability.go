package engine

import "ilfuzz/internal/il"

// reachabilityEdge is one block-opening generator's effect on Context:
// from any state containing RequiredContext, applying it transitions to
// Next (either ContextToOpen alone, or the union with the surrounding
// context, depending on whether the operation propagates it).
type reachabilityEdge struct {
	generator CodeGenerator
}

func (e reachabilityEdge) nextContext(current il.Context) il.Context {
	op := e.closerOperation()
	if op.Attributes().Has(il.AttrPropagatesSurroundingContext) {
		return current.Union(op.ContextToOpen())
	}
	return op.ContextToOpen()
}

// closerOperation reconstructs a representative Operation value for
// the generator's opener, sufficient to query its static Attributes/
// ContextToOpen via the il package (which only needs the Opcode and,
// for BeginFunctionDefinition, FunctionKind — plain is a safe default
// for reachability queries, since generator/async bits only add
// context, never remove reachability).
func (e reachabilityEdge) closerOperation() il.Operation {
	return il.Operation{Op: e.openerOpcode()}
}

func (e reachabilityEdge) openerOpcode() il.Opcode {
	switch e.generator.Name {
	case "BeginIf":
		return il.BeginIf
	case "BeginWhile":
		return il.BeginWhile
	case "BeginFor":
		return il.BeginFor
	case "BeginFunctionDefinition":
		return il.BeginFunctionDefinition
	default:
		return il.BeginIf
	}
}

// reachabilityGraph maps the set of opener generators reachable from
// each starting Context (spec.md §4.2: "a directed graph whose nodes
// are Context values and whose edges are labeled with the set of
// generators that can transition from a context to another").
type reachabilityGraph struct {
	edges []reachabilityEdge
}

func buildReachabilityGraph() reachabilityGraph {
	g := reachabilityGraph{}
	for _, gen := range Generators {
		if gen.OpensBlock {
			g.edges = append(g.edges, reachabilityEdge{generator: gen})
		}
	}
	return g
}

// findPath runs a breadth-first search from src to a context
// containing every bit of dst, ignoring cycles (spec.md §4.2), and
// returns the sequence of generators that realizes one shortest path.
// Returns ok=false if dst is unreachable from src.
func (g reachabilityGraph) findPath(src, dst il.Context) ([]CodeGenerator, bool) {
	if src.Contains(dst) {
		return nil, true
	}
	type state struct {
		ctx  il.Context
		path []CodeGenerator
	}
	visited := map[il.Context]bool{src: true}
	queue := []state{{ctx: src}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges {
			next := e.nextContext(cur.ctx)
			if visited[next] {
				continue
			}
			path := append(append([]CodeGenerator{}, cur.path...), e.generator)
			if next.Contains(dst) {
				return path, true
			}
			visited[next] = true
			queue = append(queue, state{ctx: next, path: path})
		}
	}
	return nil, false
}
