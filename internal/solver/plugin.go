package solver

import (
	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/pkg/ir"
)

// Plugin observes solver events. Callbacks run synchronously on the solver's
// goroutine and may add facts only through the Solver's mutation API.
type Plugin interface {
	// SetSolver is called once, before OnStart.
	SetSolver(s *Solver)

	// OnStart is called before the work list is first drained.
	OnStart()

	// OnFinish is called after the fixpoint is reached and the result built.
	OnFinish()

	// OnNewMethod is called the first time a method becomes reachable in
	// any context.
	OnNewMethod(m *ir.Method)

	// OnNewCSMethod is called after the statements of a newly reachable
	// context-sensitive method have been translated.
	OnNewCSMethod(m cs.CSMethod)

	// OnClassInitialized is called once per class, before its superclass
	// and static initializer are processed.
	OnClassInitialized(c *ir.Class)

	// OnNewCallEdge is called once per distinct call edge.
	OnNewCallEdge(e CallEdge)

	// OnUnresolvedCall is called when no callee is found for inv. recv is
	// cs.NoObj for static calls.
	OnUnresolvedCall(recv cs.CSObj, ctx cs.Context, inv *ir.Invoke)

	// OnNewPointsToSet is called with the objects newly added to the
	// points-to set of a variable pointer.
	OnNewPointsToSet(v cs.Pointer, diff *cs.Set)
}

// BasePlugin implements every Plugin callback as a no-op and records the
// solver. Embed it to implement only the callbacks of interest.
type BasePlugin struct {
	Solver *Solver
}

func (p *BasePlugin) SetSolver(s *Solver) {
	p.Solver = s
}

func (*BasePlugin) OnStart() {
}

func (*BasePlugin) OnFinish() {
}

func (*BasePlugin) OnNewMethod(*ir.Method) {
}

func (*BasePlugin) OnNewCSMethod(cs.CSMethod) {
}

func (*BasePlugin) OnClassInitialized(*ir.Class) {
}

func (*BasePlugin) OnNewCallEdge(CallEdge) {
}

func (*BasePlugin) OnUnresolvedCall(cs.CSObj, cs.Context, *ir.Invoke) {
}

func (*BasePlugin) OnNewPointsToSet(cs.Pointer, *cs.Set) {
}

// CompositePlugin broadcasts every event to its plugins in order.
type CompositePlugin struct {
	plugins []Plugin
}

var _ Plugin = (*CompositePlugin)(nil)

// NewCompositePlugin returns a plugin broadcasting to plugins.
func NewCompositePlugin(plugins ...Plugin) *CompositePlugin {
	return &CompositePlugin{plugins: plugins}
}

// Add appends p. Plugins added after SetSolver do not receive it.
func (c *CompositePlugin) Add(p Plugin) {
	c.plugins = append(c.plugins, p)
}

// Plugins returns the composed plugins in broadcast order.
func (c *CompositePlugin) Plugins() []Plugin {
	return c.plugins
}

func (c *CompositePlugin) SetSolver(s *Solver) {
	for _, p := range c.plugins {
		p.SetSolver(s)
	}
}

func (c *CompositePlugin) OnStart() {
	for _, p := range c.plugins {
		p.OnStart()
	}
}

func (c *CompositePlugin) OnFinish() {
	for _, p := range c.plugins {
		p.OnFinish()
	}
}

func (c *CompositePlugin) OnNewMethod(m *ir.Method) {
	for _, p := range c.plugins {
		p.OnNewMethod(m)
	}
}

func (c *CompositePlugin) OnNewCSMethod(m cs.CSMethod) {
	for _, p := range c.plugins {
		p.OnNewCSMethod(m)
	}
}

func (c *CompositePlugin) OnClassInitialized(cls *ir.Class) {
	for _, p := range c.plugins {
		p.OnClassInitialized(cls)
	}
}

func (c *CompositePlugin) OnNewCallEdge(e CallEdge) {
	for _, p := range c.plugins {
		p.OnNewCallEdge(e)
	}
}

func (c *CompositePlugin) OnUnresolvedCall(recv cs.CSObj, ctx cs.Context, inv *ir.Invoke) {
	for _, p := range c.plugins {
		p.OnUnresolvedCall(recv, ctx, inv)
	}
}

func (c *CompositePlugin) OnNewPointsToSet(v cs.Pointer, diff *cs.Set) {
	for _, p := range c.plugins {
		p.OnNewPointsToSet(v, diff)
	}
}
