package binder

import (
	"fmt"
	"sort"

	"github.com/vvuk/idlebind/ast"
)

// overloadPlan is the arity-based dispatch plan for one member name.
// Overloads are ordered ascending by arity; the generated entry selects
// the native call whose arity equals the count of arguments up to the
// first trailing omitted argument.
type overloadPlan struct {
	Name    string
	Static  bool
	Ret     *TypeDescriptor
	ByArity map[int]*ast.Operation
	Arities []int // ascending
}

// MaxArity returns the largest overload arity, or 0 for an empty plan.
func (p *overloadPlan) MaxArity() int {
	if len(p.Arities) == 0 {
		return 0
	}
	return p.Arities[len(p.Arities)-1]
}

// planOverloads groups same-named operations, validating that the group is
// return-type- and staticness-consistent and that no two overloads share an
// arity. Return descriptors are memoized, so consistency is pointer equality.
func planOverloads(s *Session, ifaceName, name string, ops []*ast.Operation) (*overloadPlan, error) {
	plan := &overloadPlan{
		Name:    name,
		Static:  ops[0].Static,
		ByArity: make(map[int]*ast.Operation),
	}

	ret0, err := s.Resolve(ops[0].Ret, ops[0].RetMod)
	if err != nil {
		return nil, fmt.Errorf("interface %s, operation %s: %w", ifaceName, name, err)
	}
	plan.Ret = ret0

	for _, op := range ops {
		if op.Static != plan.Static {
			return nil, fmt.Errorf("interface %s, operation %s: overloads mix static and instance declarations", ifaceName, name)
		}
		ret, err := s.Resolve(op.Ret, op.RetMod)
		if err != nil {
			return nil, fmt.Errorf("interface %s, operation %s: %w", ifaceName, name, err)
		}
		if ret != ret0 {
			return nil, fmt.Errorf("interface %s, operation %s: overloads disagree on return type (%s vs %s)",
				ifaceName, name, ret0, ret)
		}
		arity := len(op.Args)
		if _, dup := plan.ByArity[arity]; dup {
			return nil, fmt.Errorf("interface %s, operation %s: two overloads take %d argument(s); arity-based dispatch cannot distinguish them",
				ifaceName, name, arity)
		}
		plan.ByArity[arity] = op
		plan.Arities = append(plan.Arities, arity)
	}
	sort.Ints(plan.Arities)
	return plan, nil
}

// planConstructors builds the constructor overload plan. Zero constructors
// is legal: the interface is non-constructible and the generated script
// constructor fails at call time, not at generation time.
func (s *Session) planConstructors(iface *ast.Interface) (*overloadPlan, error) {
	plan := &overloadPlan{
		Name:    iface.Name,
		ByArity: make(map[int]*ast.Operation),
	}
	for _, ctor := range iface.Constructors {
		arity := len(ctor.Args)
		if _, dup := plan.ByArity[arity]; dup {
			return nil, fmt.Errorf("interface %s: two constructors take %d argument(s); arity-based dispatch cannot distinguish them",
				iface.Name, arity)
		}
		plan.ByArity[arity] = ctor
		plan.Arities = append(plan.Arities, arity)
	}
	sort.Ints(plan.Arities)
	return plan, nil
}
