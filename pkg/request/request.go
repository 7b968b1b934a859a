// Package request holds the parsed view of an inbound mock request shared by
// matchers and the template engine. Body trees are parsed lazily, at most
// once, and only when the content looks structured.
package request

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/beevik/etree"
)

// Request is an immutable snapshot of an inbound HTTP request.
type Request struct {
	Method      string
	Path        string
	URL         string
	Query       url.Values
	Header      http.Header
	Cookies     map[string]string
	Body        []byte
	ContentType string

	// PathParams holds captures from the selected mapping's path matcher.
	PathParams map[string]string

	jsonOnce sync.Once
	jsonVal  any
	jsonOK   bool

	xmlOnce sync.Once
	xmlDoc  *etree.Document
}

// FromHTTP builds a Request from r and its already-read body.
func FromHTTP(r *http.Request, body []byte) *Request {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		if _, seen := cookies[c.Name]; !seen {
			cookies[c.Name] = c.Value
		}
	}
	return &Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		URL:         r.URL.RequestURI(),
		Query:       r.URL.Query(),
		Header:      r.Header.Clone(),
		Cookies:     cookies,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
	}
}

// New builds a Request without an http.Request, mostly for tests and probes.
func New(method, rawURL string, header http.Header, body []byte) *Request {
	u, err := url.Parse(rawURL)
	if err != nil {
		u = &url.URL{Path: rawURL}
	}
	if header == nil {
		header = http.Header{}
	}
	r := &http.Request{Method: method, URL: u, Header: header}
	return FromHTTP(r, body)
}

// Segments returns the non-empty path segments in order.
func (r *Request) Segments() []string {
	parts := strings.Split(r.Path, "/")
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HeaderValues returns all values for name, looked up case-insensitively.
func (r *Request) HeaderValues(name string) ([]string, bool) {
	if vals, ok := r.Header[http.CanonicalHeaderKey(name)]; ok {
		return vals, true
	}
	for k, vals := range r.Header {
		if strings.EqualFold(k, name) {
			return vals, true
		}
	}
	return nil, false
}

// QueryValues returns all values of the query parameter name.
func (r *Request) QueryValues(name string) ([]string, bool) {
	vals, ok := r.Query[name]
	return vals, ok
}

// Cookie returns the first cookie named name.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	return v, ok
}

// WithPathParams returns a shallow copy carrying params. Parsed body trees
// are not shared with the copy.
func (r *Request) WithPathParams(params map[string]string) *Request {
	c := r.copy()
	c.PathParams = params
	return c
}

// WithMethod returns a shallow copy with a different method.
func (r *Request) WithMethod(method string) *Request {
	c := r.copy()
	c.Method = method
	return c
}

func (r *Request) copy() *Request {
	return &Request{
		Method:      r.Method,
		Path:        r.Path,
		URL:         r.URL,
		Query:       r.Query,
		Header:      r.Header,
		Cookies:     r.Cookies,
		Body:        r.Body,
		ContentType: r.ContentType,
		PathParams:  r.PathParams,
	}
}

// JSON returns the body decoded as JSON. Decoding is attempted when the
// content type names JSON or the body looks like a JSON document.
func (r *Request) JSON() (any, bool) {
	r.jsonOnce.Do(func() {
		if len(r.Body) == 0 || !(IsJSONContentType(r.ContentType) || LooksLikeJSON(r.Body)) {
			return
		}
		var v any
		if err := json.Unmarshal(r.Body, &v); err == nil {
			r.jsonVal, r.jsonOK = v, true
		}
	})
	return r.jsonVal, r.jsonOK
}

// XML returns the body parsed as an XML document.
func (r *Request) XML() (*etree.Document, bool) {
	r.xmlOnce.Do(func() {
		if len(r.Body) == 0 || !(IsXMLContentType(r.ContentType) || LooksLikeXML(r.Body)) {
			return
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(r.Body); err == nil && doc.Root() != nil {
			r.xmlDoc = doc
		}
	})
	return r.xmlDoc, r.xmlDoc != nil
}

// IsJSONContentType reports whether ct is application/json or a +json type.
func IsJSONContentType(ct string) bool {
	mt := mediaType(ct)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsXMLContentType reports whether ct is an XML media type.
func IsXMLContentType(ct string) bool {
	mt := mediaType(ct)
	return mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml")
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt
}

// LooksLikeJSON reports whether data is a valid JSON object or array.
func LooksLikeJSON(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false
	}
	if !(data[0] == '{' && data[len(data)-1] == '}') && !(data[0] == '[' && data[len(data)-1] == ']') {
		return false
	}
	return json.Valid(data)
}

// LooksLikeXML reports whether data starts like an XML document.
func LooksLikeXML(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '<' && data[len(data)-1] == '>'
}
