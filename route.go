package zetro

import "fmt"

// RouteKind tags a route as a read-only query or a side-effecting mutation.
// The numeric values are the wire method codes carried in the request
// envelope.
type RouteKind uint8

const (
	RouteQuery    RouteKind = 1
	RouteMutation RouteKind = 2
)

func (k RouteKind) String() string {
	switch k {
	case RouteQuery:
		return "query"
	case RouteMutation:
		return "mutation"
	default:
		return fmt.Sprintf("RouteKind(%d)", uint8(k))
	}
}

// SafeToRetry reports whether a transport failure may be retried
// transparently. Queries have no server-side effect; mutations need an
// idempotency mechanism this layer does not provide.
func (k RouteKind) SafeToRetry() bool { return k == RouteQuery }

// MarshalJSON emits the kind as its lowercase name.
func (k RouteKind) MarshalJSON() ([]byte, error) {
	switch k {
	case RouteQuery, RouteMutation:
		return []byte(`"` + k.String() + `"`), nil
	default:
		return nil, fmt.Errorf("zetro: invalid route kind %d", uint8(k))
	}
}

// UnmarshalJSON accepts "query" or "mutation".
func (k *RouteKind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"query"`:
		*k = RouteQuery
	case `"mutation"`:
		*k = RouteMutation
	default:
		return fmt.Errorf("zetro: invalid route kind %s", data)
	}
	return nil
}

// Route is one compiled request/response operation.
type Route struct {
	Name string    `json:"name"`
	Doc  string    `json:"doc,omitempty"`
	Kind RouteKind `json:"kind"`

	// WireName is the identifier sent on the wire. It equals Name unless
	// the compiler mangled route names.
	WireName string `json:"wireName"`

	Request  *TypeRef `json:"request"`
	Response *TypeRef `json:"response"`
}

// RouteTable is the compiled dispatch surface: every route in declaration
// order plus the layout they were compiled against. Immutable once built;
// safe for concurrent readers.
type RouteTable struct {
	Layout *Layout `json:"layout"`
	Routes []Route `json:"routes"`

	byName map[string]int
	byWire map[string]int
}

// NewRouteTable assembles a RouteTable and its lookup indexes. Route names
// and wire names must be unique.
func NewRouteTable(layout *Layout, routes []Route) (*RouteTable, error) {
	t := &RouteTable{
		Layout: layout,
		Routes: routes,
		byName: make(map[string]int, len(routes)),
		byWire: make(map[string]int, len(routes)),
	}
	for i, r := range routes {
		if _, ok := t.byName[r.Name]; ok {
			return nil, fmt.Errorf("zetro: duplicate route %q", r.Name)
		}
		if _, ok := t.byWire[r.WireName]; ok {
			return nil, fmt.Errorf("zetro: duplicate wire name %q (route %q)", r.WireName, r.Name)
		}
		if r.Request == nil || r.Response == nil {
			return nil, fmt.Errorf("zetro: route %q has unresolved types", r.Name)
		}
		t.byName[r.Name] = i
		t.byWire[r.WireName] = i
	}
	return t, nil
}

// Route returns the route with the given declared name.
func (t *RouteTable) Route(name string) (*Route, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.Routes[i], true
}

// RouteByWireName returns the route carrying the given wire identifier.
func (t *RouteTable) RouteByWireName(wire string) (*Route, bool) {
	i, ok := t.byWire[wire]
	if !ok {
		return nil, false
	}
	return &t.Routes[i], true
}
