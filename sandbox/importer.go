package sandbox

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/geeth24/codeflow/vm"
)

// ImportRejectedError is raised into the traced program when it loads
// a module outside the allow-list. It surfaces as a normal runtime
// failure of the run, never as a crash of the caller.
type ImportRejectedError struct {
	Module string
}

func (e *ImportRejectedError) Error() string {
	return fmt.Sprintf("Import of module '%s' is not allowed", e.Module)
}

// DefaultAllowedModules is the stock allow-list.
func DefaultAllowedModules() []string {
	return []string{"math", "random"}
}

// Gatekeeper checks module-load requests against an allow-list and
// hands back the module value for permitted names. It is scoped to
// one run and holds no process-wide state.
type Gatekeeper struct {
	allowed map[string]bool
}

func NewGatekeeper(allowed []string) *Gatekeeper {
	if allowed == nil {
		allowed = DefaultAllowedModules()
	}
	g := &Gatekeeper{allowed: make(map[string]bool, len(allowed))}
	for _, name := range allowed {
		g.allowed[name] = true
	}
	return g
}

func (g *Gatekeeper) Allowed(name string) bool {
	return g.allowed[name]
}

// Load resolves a module-load request from traced code.
func (g *Gatekeeper) Load(name string) (vm.Value, error) {
	if !g.allowed[name] {
		log.Debug().Str("module", name).Msg("Gatekeeper: rejected import")
		return nil, &ImportRejectedError{Module: name}
	}
	mod, ok := moduleValue(name)
	if !ok {
		return nil, fmt.Errorf("module '%s' is allowed but has no implementation", name)
	}
	return mod, nil
}

func moduleValue(name string) (vm.Value, bool) {
	switch name {
	case "math":
		return vm.ModuleMath(), true
	case "random":
		return moduleRandom(), true
	}
	return nil, false
}

// moduleRandom builds the value bound by load("random", ...). The
// functions resolve to host builtins so randomness stays run-scoped.
func moduleRandom() vm.StructValue {
	out := vm.StructValue{}
	for _, name := range []string{"random", "randint", "uniform", "choice", "seed"} {
		out[name] = vm.BuiltinValue{Name: "random." + name}
	}
	return out
}
