package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"xdao.co/ipfs-simple/storage"
)

// remoteTransport speaks the gateway's HTTP API: every command is a POST to
// base + command path, with the identifier as the last path segment.
type remoteTransport struct {
	base string
	http *http.Client
}

func (*remoteTransport) sealed() {}

// apiError is the gateway's error body.
type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (r *remoteTransport) post(ctx context.Context, path string, query url.Values, body io.Reader, contentType string) ([]byte, int, error) {
	u := r.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

// call posts and decodes a 2xx JSON body into out (when non-nil).
func (r *remoteTransport) call(ctx context.Context, op, ref, path string, query url.Values, body io.Reader, contentType string, out any) error {
	b, code, err := r.post(ctx, path, query, body, contentType)
	if err != nil {
		return err
	}
	if !is2xx(code) {
		return gatewayError(op, ref, code, b)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &storage.Error{Kind: storage.KindBackend, Op: op, Ref: ref, Message: "malformed gateway response", Cause: err}
	}
	return nil
}

func (r *remoteTransport) pinAdd(ctx context.Context, id string) ([]string, error) {
	var out struct {
		Pins []string `json:"Pins"`
	}
	if err := r.call(ctx, opPinAdd, id, "pin/add/"+id, nil, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Pins, nil
}

func (r *remoteTransport) pinRm(ctx context.Context, id string) error {
	return r.call(ctx, opPinRm, id, "pin/rm/"+id, nil, nil, "", nil)
}

func (r *remoteTransport) cat(ctx context.Context, id string) ([]byte, error) {
	b, code, err := r.post(ctx, "cat/"+id, nil, nil, "")
	if err != nil {
		return nil, err
	}
	if !is2xx(code) {
		return nil, gatewayError(opCat, id, code, b)
	}
	return b, nil
}

func (r *remoteTransport) add(ctx context.Context, data []byte, opts storage.AddOptions) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("path", "path")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("pin", strconv.FormatBool(opts.Pin))
	if opts.RawLeaves {
		q.Set("raw-leaves", "true")
	}
	if opts.HashFunc != "" {
		q.Set("hash", opts.HashFunc)
	}

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := r.call(ctx, opAdd, "", "add", q, &buf, w.FormDataContentType(), &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", storage.NewError(storage.KindBackend, opAdd, "", "gateway returned no hash")
	}
	return out.Hash, nil
}

// isPinned reads the body whatever the status: a Type field means the
// gateway reported the identifier as not pinned, which is an answer rather
// than a failure.
func (r *remoteTransport) isPinned(ctx context.Context, id string) (bool, error) {
	b, code, err := r.post(ctx, "pin/ls/"+id, nil, nil, "")
	if err != nil {
		return false, err
	}
	var fields map[string]json.RawMessage
	if jerr := json.Unmarshal(b, &fields); jerr != nil {
		if !is2xx(code) {
			return false, gatewayError(opPinLs, id, code, b)
		}
		return false, &storage.Error{Kind: storage.KindBackend, Op: opPinLs, Ref: id, Message: "malformed gateway response", Cause: jerr}
	}
	if _, has := fields["Type"]; has {
		return false, nil
	}
	if !is2xx(code) {
		return false, gatewayError(opPinLs, id, code, b)
	}
	return true, nil
}

func (r *remoteTransport) listPinned(ctx context.Context) ([]string, error) {
	var out struct {
		Keys map[string]json.RawMessage `json:"Keys"`
	}
	if err := r.call(ctx, opPinLs, "", "pin/ls", nil, nil, "", &out); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out.Keys))
	for k := range out.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *remoteTransport) objectStat(ctx context.Context, id string) (storage.ObjectStat, error) {
	var out storage.ObjectStat
	err := r.call(ctx, opObjectStat, id, "object/stat/"+id, nil, nil, "", &out)
	return out, err
}

func (r *remoteTransport) swarmConnect(ctx context.Context, addr string) ([]string, error) {
	var out struct {
		Strings []string `json:"Strings"`
	}
	q := url.Values{}
	q.Set("arg", addr)
	if err := r.call(ctx, opSwarmConnect, addr, "swarm/connect", q, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Strings, nil
}

func (r *remoteTransport) id(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := r.call(ctx, opIdentify, "", "id", nil, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func is2xx(code int) bool { return code >= 200 && code < 300 }

// gatewayError carries the gateway's message into a Backend error, or
// NotFound when the message says the content does not exist.
func gatewayError(op, ref string, code int, body []byte) error {
	var e apiError
	var msg string
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		msg = e.Message
	} else {
		msg = strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(code)
		}
	}
	kind := storage.KindBackend
	if isLikelyNotFound(msg) {
		kind = storage.KindNotFound
	}
	return storage.NewError(kind, op, ref, msg)
}

func isLikelyNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no link named")
}
