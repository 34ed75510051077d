package server

import (
	"strings"

	"httpcore/internal/exchange"
	"httpcore/internal/header"
	"httpcore/internal/routing"
)

// inputFromRequest projects an exchange's request onto the routing.Input
// shape the Router's chain of links consumes, per spec.md §4.7.
func inputFromRequest(ex *exchange.Exchange) *routing.Input {
	headers := map[string][]string{}
	var contentType, accept, acceptLanguage string
	for _, h := range ex.Request.Headers {
		headers[h.Name] = append(headers[h.Name], h.Raw)
		switch strings.ToLower(h.Name) {
		case "content-type":
			contentType = h.Raw
		case "accept":
			accept = h.Raw
		case "accept-language":
			acceptLanguage = h.Raw
		}
	}

	return &routing.Input{
		Method:         ex.Request.Method,
		Path:           ex.Request.Path,
		Authority:      ex.Request.Authority,
		ContentType:    contentType,
		Accept:         accept,
		AcceptLanguage: acceptLanguage,
		Headers:        headers,
		Query:          ex.Request.QueryParams,
		WSSubprotocols: subprotocolsOffered(ex),
	}
}

func subprotocolsOffered(ex *exchange.Exchange) []string {
	for _, h := range ex.Request.Headers {
		if strings.EqualFold(h.Name, "Sec-WebSocket-Protocol") {
			var out []string
			for _, p := range strings.Split(h.Raw, ",") {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	}
	return nil
}

// isWebSocketUpgrade reports whether an HTTP/1.1 request declares the
// classic RFC 6455 upgrade handshake (Connection: Upgrade, Upgrade:
// websocket). HTTP/2's Extended CONNECT path is recognised upstream,
// before an exchange ever reaches the dispatcher, by ex.Request.WSSession
// already being set.
func isWebSocketUpgrade(headers []header.Header) bool {
	hasUpgradeConn, hasWSUpgrade := false, false
	for _, h := range headers {
		switch {
		case strings.EqualFold(h.Name, "Connection") && strings.Contains(strings.ToLower(h.Raw), "upgrade"):
			hasUpgradeConn = true
		case strings.EqualFold(h.Name, "Upgrade") && strings.EqualFold(strings.TrimSpace(h.Raw), "websocket"):
			hasWSUpgrade = true
		}
	}
	return hasUpgradeConn && hasWSUpgrade
}
