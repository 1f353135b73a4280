package offline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"
)

const (
	headerAccept         = "Accept"
	headerContentType    = "Content-Type"
	headerSecFetchMode   = "Sec-Fetch-Mode"
	headerUpgrade        = "Upgrade"
	headerXServedBy      = "X-Offline-Source"
	contentTypeJSON      = "application/json"
	contentTypeHTML      = "text/html; charset=utf-8"
	contentTypeTextPlain = "text/plain; charset=utf-8"
)

// response sources reported in X-Offline-Source and metrics
const (
	sourceNetwork   = "network"
	sourceCache     = "cache"
	sourceFallback  = "offline-page"
	sourceSynthetic = "synthetic"
)

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// captureResponse dumps resp into a CacheItem. The body is buffered and
// resp.Body is replaced so the caller can still read it.
func captureResponse(resp *http.Response, now time.Time) (*CacheItem, error) {
	b, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}
	return &CacheItem{Response: b, StoredAt: now.UTC()}, nil
}

// isEventStream reports whether resp is a server-sent event stream, which never
// ends on its own and cannot be captured.
func isEventStream(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get(headerContentType))
	return err == nil && mt == "text/event-stream"
}

type readCloser struct {
	io.Reader
	io.Closer
}

// fitsCaptureLimit reports whether resp's body is at most limit bytes. A body
// of unknown length is read up to limit+1 bytes; either way resp.Body still
// yields the complete body afterwards. A limit of zero or less means no limit.
func fitsCaptureLimit(resp *http.Response, limit int64) (bool, error) {
	if limit <= 0 || resp.Body == nil {
		return true, nil
	}
	if resp.ContentLength > limit {
		return false, nil
	}
	if resp.ContentLength >= 0 {
		return true, nil
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil || int64(len(buf)) > limit {
		resp.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), resp.Body), Closer: resp.Body}
		return false, err
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	return true, nil
}

func restoreResponse(item *CacheItem, r *http.Request) (*http.Response, error) {
	nr := bufio.NewReader(bytes.NewReader(item.Response))
	return http.ReadResponse(nr, r)
}

func syntheticResponse(r *http.Request, status int, contentType string, body []byte) *http.Response {
	h := make(http.Header)
	h.Set(headerContentType, contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set(headerXServedBy, sourceSynthetic)
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}

type offlineBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Queued  bool   `json:"queued,omitempty"`
}

func offlineJSON(r *http.Request, body offlineBody) *http.Response {
	b, _ := json.Marshal(body)
	return syntheticResponse(r, http.StatusServiceUnavailable, contentTypeJSON, b)
}

func offlineAPIResponse(r *http.Request) *http.Response {
	return offlineJSON(r, offlineBody{Success: false, Message: "You are offline"})
}

func offlineTextResponse(r *http.Request) *http.Response {
	return syntheticResponse(r, http.StatusServiceUnavailable, contentTypeTextPlain, []byte("Offline"))
}

const offlineHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>Please check your connection and try again.</p></body></html>`

func offlineHTMLResponse(r *http.Request) *http.Response {
	return syntheticResponse(r, http.StatusServiceUnavailable, contentTypeHTML, []byte(offlineHTML))
}

func markSource(resp *http.Response, source string) *http.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(headerXServedBy, source)
	return resp
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
