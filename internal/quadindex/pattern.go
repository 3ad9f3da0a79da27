package quadindex

// Quad is a quad of term OIDs. Graph 0 is the default graph.
type Quad struct {
	Subject   int64
	Predicate int64
	Object    int64
	Graph     int64
}

// Component returns the OID at position c
func (q Quad) Component(c Component) int64 {
	switch c {
	case Subject:
		return q.Subject
	case Predicate:
		return q.Predicate
	case Object:
		return q.Object
	default:
		return q.Graph
	}
}

// Binding is a pattern position that is either bound to an OID or unbound
type Binding struct {
	OID   int64
	Bound bool
}

// Bind returns a binding to oid
func Bind(oid int64) Binding {
	return Binding{OID: oid, Bound: true}
}

// Unbound matches any OID
var Unbound = Binding{}

// Pattern selects quads by their bound positions. The zero Pattern
// matches every quad.
type Pattern struct {
	Subject   Binding
	Predicate Binding
	Object    Binding
	Graph     Binding
}

// PatternOf returns the fully bound pattern of q
func PatternOf(q Quad) Pattern {
	return Pattern{
		Subject:   Bind(q.Subject),
		Predicate: Bind(q.Predicate),
		Object:    Bind(q.Object),
		Graph:     Bind(q.Graph),
	}
}

// Binding returns the binding at position c
func (p Pattern) Binding(c Component) Binding {
	switch c {
	case Subject:
		return p.Subject
	case Predicate:
		return p.Predicate
	case Object:
		return p.Object
	default:
		return p.Graph
	}
}

// Matches reports whether q agrees with every bound position
func (p Pattern) Matches(q Quad) bool {
	for _, c := range []Component{Subject, Predicate, Object, Graph} {
		if b := p.Binding(c); b.Bound && b.OID != q.Component(c) {
			return false
		}
	}
	return true
}

func (p Pattern) boundCount() int {
	n := 0
	for _, c := range []Component{Subject, Predicate, Object, Graph} {
		if p.Binding(c).Bound {
			n++
		}
	}
	return n
}
