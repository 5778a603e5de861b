package compiler

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"

	"github.com/jnsquire/zetro"
)

// CompileRoutes assigns wire names and builds the dispatch table. Every
// route keeps its position; duplicate names and unlinked request or
// response types are the failure modes.
func CompileRoutes(s *Schema, layout *zetro.Layout, opts ...Option) (*zetro.RouteTable, error) {
	cfg := newConfig(opts)
	seen := make(map[string]bool, len(s.Routes))
	routes := make([]zetro.Route, 0, len(s.Routes))
	for _, r := range s.Routes {
		if seen[r.Name] {
			return nil, &DuplicateRouteError{Name: r.Name}
		}
		seen[r.Name] = true
		if r.Request == nil {
			return nil, &UnresolvedRouteTypeError{Route: r.Name, Which: "request"}
		}
		if r.Response == nil {
			return nil, &UnresolvedRouteTypeError{Route: r.Name, Which: "response"}
		}
		wire := r.Name
		if cfg.mangle {
			wire = mangleRouteName(r.Name)
		}
		routes = append(routes, zetro.Route{
			Name:     r.Name,
			Doc:      r.Doc,
			Kind:     r.Kind,
			WireName: wire,
			Request:  r.Request,
			Response: r.Response,
		})
	}
	return zetro.NewRouteTable(layout, routes)
}

// mangleRouteName hides a declared route name behind a keyed digest so the
// wire surface reveals nothing about the API. Both peers compile the same
// schema and therefore derive the same identifier; nothing at runtime ever
// reverses the mapping.
func mangleRouteName(name string) string {
	mac := hmac.New(sha1.New, []byte("zetro"))
	io.WriteString(mac, name)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
