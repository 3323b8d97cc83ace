package web

import "net/http"

// RequestContext carries what the handlers need to know about who is asking.
type RequestContext struct {
	IsHTMX bool // HX-Request header present; answer with a fragment
}

func parseRequestContext(r *http.Request) RequestContext {
	return RequestContext{
		IsHTMX: r.Header.Get("HX-Request") == "true",
	}
}
