// Package route matches GET request URIs against path templates.
//
// A template is a path with variables in braces. A variable has a name
// and an optional pattern, either a regular expression or one of the
// macros uuid, int, slug, alpha, alphanum, hex and token:
//
//	r := route.NewRouter()
//	r.Handle("/clients/{id:int}", func(id int64, req *route.Request) {
//		clientID := req.Vars["id"]
//		// ...
//	})
//
// Without a pattern a variable matches one path segment.
package route
