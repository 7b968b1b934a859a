package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/request"
	"github.com/getmockd/stubd/pkg/template"
)

// Rendered is a response ready to be written.
type Rendered struct {
	Status int
	Header http.Header
	Body   []byte
	Delay  time.Duration
}

// Render builds the response of res. Header values are sent literally;
// body templates are rendered against res.Request. Unresolved placeholders
// render empty, are logged and counted, and never fail the response.
func (e *Engine) Render(res *MatchResult) (*Rendered, error) {
	resp := res.Mapping.Response
	out := &Rendered{
		Status: resp.StatusOrDefault(),
		Header: make(http.Header, len(resp.Headers)+1),
		Delay:  time.Duration(resp.DelayMs) * time.Millisecond,
	}
	for _, h := range resp.Headers {
		out.Header.Add(h.Name, h.Value)
	}

	body, isJSON, err := e.renderBody(resp, res)
	if err != nil {
		return nil, err
	}
	out.Body = body

	if out.Header.Get("Content-Type") == "" && len(body) > 0 {
		switch {
		case isJSON || request.LooksLikeJSON(body):
			out.Header.Set("Content-Type", "application/json")
		case request.LooksLikeXML(body):
			out.Header.Set("Content-Type", "application/xml")
		default:
			out.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	return out, nil
}

func (e *Engine) renderBody(resp *mapping.Response, res *MatchResult) ([]byte, bool, error) {
	switch {
	case resp.Base64Body != "":
		data, err := base64.StdEncoding.DecodeString(resp.Base64Body)
		if err != nil {
			return nil, false, fmt.Errorf("decoding base64 body of mapping %s: %w", res.Mapping.ID, err)
		}
		return data, false, nil

	case resp.JSONBody != nil:
		v := resp.JSONBody
		if resp.Template {
			rendered, err := e.templates.ProcessValue(v, template.NewContext(res.Request))
			e.noteTemplateWarning(res, err)
			v = rendered
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("encoding json body of mapping %s: %w", res.Mapping.ID, err)
		}
		return data, true, nil

	case resp.Body != "":
		if !resp.Template {
			return []byte(resp.Body), false, nil
		}
		rendered, err := e.templates.Process(resp.Body, template.NewContext(res.Request))
		e.noteTemplateWarning(res, err)
		return []byte(rendered), false, nil
	}
	return nil, false, nil
}

func (e *Engine) noteTemplateWarning(res *MatchResult, err error) {
	if err == nil {
		return
	}
	e.metrics.TemplateWarning()
	e.logger.Warn("template placeholders unresolved",
		"mapping_id", res.Mapping.ID,
		"error", err,
	)
}
