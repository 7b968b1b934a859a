// Package template renders response bodies from request data.
//
// Placeholders use double braces. Request values may be written with or
// without the "request." prefix:
//
//	{{path}}                    full request path
//	{{path.[1]}}                second path segment
//	{{query.id}}                first value of query parameter id
//	{{headers.X-Trace}}         header value, case-insensitive
//	{{cookies.session}}         cookie value
//	{{body.user.name}}          field of a JSON or XML body
//	{{body.items.[0].id}}       array index inside the body
//	{{pathParams.id}}           capture from a "{id}" path segment
//	{{method}} {{url}}
//
// Helpers:
//
//	{{now}} {{now("2006-01-02")}} {{timestamp}} {{uuid}}
//	{{random.int(1, 10)}} {{random.string(8)}}
//	{{upper(query.name)}} {{lower(...)}} {{title(...)}}
//	{{default(query.name, "anonymous")}}
//	{{jsonPath("$.items[0].id")}} {{xPath("/order/id")}}
//	{{sequence("orders")}} {{sequence("orders", 100)}}
//
// Unresolvable placeholders render as the empty string. Process still
// returns the rendered output in that case, together with a
// *ResolutionWarning listing what could not be resolved.
package template
