package mapping

// Clone returns a deep copy of m.
func (m *Mapping) Clone() *Mapping {
	if m == nil {
		return nil
	}
	out := *m
	if m.Request != nil {
		req := Request{Matchers: make([]Matcher, len(m.Request.Matchers))}
		for i, mt := range m.Request.Matchers {
			mt.Patterns = append([]string(nil), mt.Patterns...)
			mt.Value = CloneValue(mt.Value)
			req.Matchers[i] = mt
		}
		out.Request = &req
	}
	if m.Response != nil {
		resp := *m.Response
		resp.Headers = append(Headers(nil), m.Response.Headers...)
		resp.JSONBody = CloneValue(m.Response.JSONBody)
		out.Response = &resp
	}
	return &out
}

// CloneValue deep-copies decoded JSON or YAML data. Scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneValue(val)
		}
		return out
	default:
		return v
	}
}
