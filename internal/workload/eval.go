package workload

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Traversal roots a wait_for entry may start with.
const (
	rootCommand   = "command"
	rootUserEvent = "user_event"
)

// functions are callable from every workload expression.
var functions = map[string]function.Function{
	"concat": stdlib.ConcatFunc,
	"length": stdlib.LengthFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"range":  stdlib.RangeFunc,
}

// newEvalContext exposes locals as local.<name> together with the workload
// functions.
func newEvalContext(locals map[string]cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"local": cty.ObjectVal(locals)},
		Functions: functions,
	}
}

// evalLocals evaluates every attribute of blocks into dst. Locals may call
// functions but not reference each other.
func evalLocals(blocks []*hclLocals, dst map[string]cty.Value) error {
	evalCtx := &hcl.EvalContext{Functions: functions}
	for _, block := range blocks {
		names := make([]string, 0, len(block.Attrs))
		for name := range block.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if _, exists := dst[name]; exists {
				return fmt.Errorf("local %q declared twice", name)
			}
			v, diags := block.Attrs[name].Expr.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("local %q: %w", name, diags)
			}
			dst[name] = v
		}
	}
	return nil
}

// bufferObjects exposes buffer.<name>.size to command expressions.
func bufferObjects(buffers []*Buffer) cty.Value {
	objs := make(map[string]cty.Value, len(buffers))
	for _, b := range buffers {
		objs[b.Name] = cty.ObjectVal(map[string]cty.Value{
			"size": cty.NumberIntVal(int64(b.Size)),
		})
	}
	return cty.ObjectVal(objs)
}

// eventRef is one wait_for entry. root is empty when the entry was a plain
// string rather than a command.<name> or user_event.<name> reference.
type eventRef struct {
	root string
	name string
}

// parseEventTraversal recognises command.<name> and user_event.<name>.
func parseEventTraversal(traversal hcl.Traversal) (eventRef, bool) {
	root := traversal.RootName()
	if root != rootCommand && root != rootUserEvent {
		return eventRef{}, false
	}
	if len(traversal) != 2 {
		return eventRef{}, false
	}
	nameAttr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return eventRef{}, false
	}
	return eventRef{root: root, name: nameAttr.Name}, true
}

func traversalString(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// decodeWaitList reads a wait_for list. Each entry is either a reference such
// as command.fill or user_event.go, or any expression yielding a name.
func decodeWaitList(attr *hcl.Attribute, evalCtx *hcl.EvalContext) ([]eventRef, error) {
	if attr == nil {
		return nil, nil
	}
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("wait_for: %w", diags)
	}

	refs := make([]eventRef, 0, len(exprs))
	for i, expr := range exprs {
		if traversal, tdiags := hcl.AbsTraversalForExpr(expr); !tdiags.HasErrors() {
			root := traversal.RootName()
			if root == rootCommand || root == rootUserEvent {
				ref, ok := parseEventTraversal(traversal)
				if !ok {
					return nil, fmt.Errorf("wait_for entry %d: %s must have the form %s.<name>", i, traversalString(traversal), root)
				}
				refs = append(refs, ref)
				continue
			}
		}

		var name string
		if diags := gohcl.DecodeExpression(expr, evalCtx, &name); diags.HasErrors() {
			return nil, fmt.Errorf("wait_for entry %d: %w", i, diags)
		}
		refs = append(refs, eventRef{name: name})
	}
	return refs, nil
}
