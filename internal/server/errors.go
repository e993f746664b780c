package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/chunkcast/internal/logger"
)

// ErrorDetail is the inner structure of a JSON error response.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponseJSON is the full JSON error response body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

type htmlMessage struct {
	Title   string
	Heading string
	Message string
}

var defaultHTMLMessages = map[int]htmlMessage{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an internal error and was unable to complete your request.",
	},
	http.StatusMethodNotAllowed: {
		Title:   "405 Method Not Allowed",
		Heading: "Method Not Allowed",
		Message: "The method is not allowed for the requested resource.",
	},
	http.StatusBadRequest: {
		Title:   "400 Bad Request",
		Heading: "Bad Request",
		Message: "The server cannot process the request due to a client error.",
	},
	http.StatusRequestEntityTooLarge: {
		Title:   "413 Request Entity Too Large",
		Heading: "Request Entity Too Large",
		Message: "The request body exceeds the configured limit.",
	},
	http.StatusServiceUnavailable: {
		Title:   "503 Service Unavailable",
		Heading: "Service Unavailable",
		Message: "The server is shutting down.",
	},
}

// PrefersJSON reports whether the most preferred media type in an Accept
// header is application/json. Ties on q are broken by specificity, then by
// position. An empty header prefers HTML.
func PrefersJSON(accept string) bool {
	if accept == "" {
		return false
	}

	type offer struct {
		mediaType string
		q         float64
		specific  bool
		order     int
	}
	var offers []offer

	for i, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		mediaType, params, _ := strings.Cut(part, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
		q := qValue(params)
		// q=0 means "not acceptable".
		if q > 0 && mediaType != "" {
			offers = append(offers, offer{
				mediaType: mediaType,
				q:         q,
				specific:  !strings.HasSuffix(mediaType, "/*"),
				order:     i,
			})
		}
	}
	if len(offers) == 0 {
		return false
	}

	sort.Slice(offers, func(i, j int) bool {
		if offers[i].q != offers[j].q {
			return offers[i].q > offers[j].q
		}
		if offers[i].specific != offers[j].specific {
			return offers[i].specific
		}
		return offers[i].order < offers[j].order
	})
	return offers[0].mediaType == "application/json"
}

// AcceptsEncoding reports whether an Accept-Encoding header allows the
// content coding. An empty header allows only identity. "*" covers codings
// the header does not name, and "x-gzip" is an alias of "gzip".
func AcceptsEncoding(acceptEncoding, coding string) bool {
	coding = strings.ToLower(coding)
	wildcard := -1.0
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "x-gzip" {
			name = "gzip"
		}
		switch name {
		case coding:
			return qValue(params) > 0
		case "*":
			wildcard = qValue(params)
		}
	}
	return wildcard > 0
}

// qValue returns the q parameter of a header element's parameters, 1 when
// absent and 0 when malformed.
func qValue(params string) float64 {
	for _, param := range strings.Split(params, ";") {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "q=") {
			continue
		}
		v, err := strconv.ParseFloat(param[2:], 64)
		if err != nil || v < 0 || v > 1 {
			return 0
		}
		return v
	}
	return 1
}

// WriteErrorResponse sends a complete error response, JSON when the client
// prefers it and HTML otherwise. It must be called before anything else is
// written to w.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, detail string, log *logger.Logger) {
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "Error"
	}

	accept := ""
	if r != nil {
		accept = r.Header.Get("Accept")
	}

	var body []byte
	contentType := "application/json; charset=utf-8"
	if PrefersJSON(accept) {
		b, err := json.Marshal(ErrorResponseJSON{Error: ErrorDetail{
			StatusCode: statusCode,
			Message:    statusText,
			Detail:     detail,
		}})
		if err != nil {
			log.Error("Failed to marshal JSON error response, falling back to HTML", logger.LogFields{"error": err.Error()})
		} else {
			body = b
		}
	}
	if body == nil {
		contentType = "text/html; charset=utf-8"
		body = htmlErrorBody(statusCode, statusText, detail)
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.Debug("Failed to write error response body", logger.LogFields{"status": statusCode, "error": err.Error()})
	}
}

func htmlErrorBody(statusCode int, statusText, detail string) []byte {
	msg, known := defaultHTMLMessages[statusCode]
	if !known {
		msg = htmlMessage{
			Title:   fmt.Sprintf("%d %s", statusCode, statusText),
			Heading: statusText,
			Message: "The server encountered an error processing your request.",
		}
	}
	text := html.EscapeString(msg.Message)
	if detail != "" {
		if known {
			text += " " + html.EscapeString(detail)
		} else {
			text = html.EscapeString(detail)
		}
	}
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(msg.Title), html.EscapeString(msg.Heading), text))
}
