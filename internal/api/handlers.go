package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/pac"
	"github.com/rennerdo30/pacparser/internal/version"
)

// maxDecodeBody bounds the proxy specification accepted by the decode endpoint.
const maxDecodeBody = 64 << 10

// ProxyResponse is the result of a lookup or a decode.
type ProxyResponse struct {
	URL     string            `json:"url,omitempty"`
	Host    string            `json:"host,omitempty"`
	Proxy   string            `json:"proxy"`
	Entries []directive.Entry `json:"entries"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, version.Get())
}

func (a *API) handlePAC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ns-proxy-autoconfig")
	w.Header().Set("Content-Disposition", "inline; filename=\"proxy.pac\"")
	w.Write(a.source()) //nolint:errcheck
}

func (a *API) handleFindProxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		a.writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	if a.finder == nil {
		a.writeError(w, http.StatusServiceUnavailable, "no PAC script loaded")
		return
	}

	host := r.URL.Query().Get("host")
	if host == "" {
		var err error
		if host, err = pac.HostOf(rawURL); err != nil {
			a.writeEvalError(w, r.WithContext(logging.WithLookup(r.Context(), rawURL, "")), err)
			return
		}
	}
	r = r.WithContext(logging.WithLookup(r.Context(), rawURL, host))

	entries, err := a.finder.FindProxyForHost(rawURL, host)
	if err != nil {
		a.writeEvalError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, ProxyResponse{
		URL:     rawURL,
		Host:    host,
		Proxy:   directive.Format(entries),
		Entries: entries,
	})
}

func (a *API) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDecodeBody))
	if err != nil {
		a.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	entries, err := directive.Decode(string(body))
	if err != nil {
		a.writeEvalError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, ProxyResponse{
		Proxy:   directive.Format(entries),
		Entries: entries,
	})
}

// statusFor maps evaluation failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pac.ErrNoHost), errors.Is(err, directive.ErrMalformedEntry):
		return http.StatusBadRequest
	case errors.Is(err, pac.ErrInvalidPacReturn), errors.Is(err, pac.ErrScript):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pac.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeEvalError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("PAC evaluation failed", "error", err)
	}
	a.writeError(w, status, err.Error())
}
