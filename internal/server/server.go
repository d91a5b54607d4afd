package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	admission "github.com/classhub/gqlgate/internal/admission"
	cachecontrol "github.com/classhub/gqlgate/internal/cachecontrol"
	eventbus "github.com/classhub/gqlgate/internal/eventbus"
	events "github.com/classhub/gqlgate/internal/events"
	language "github.com/classhub/gqlgate/internal/language"
	reqid "github.com/classhub/gqlgate/internal/reqid"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Handler is an http.Handler that fronts an upstream GraphQL executor.
// It parses requests, runs the admission engine, stamps a Cache-Control
// directive, and forwards admitted operations upstream. Rejected operations
// never reach a resolver.
type Handler struct {
	engine   *admission.Engine
	cache    *cachecontrol.Selector
	upstream *url.URL
	client   *http.Client
	opt      Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has
	// none. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Client performs upstream round trips. Defaults to a client bounded
	// by Timeout.
	Client *http.Client
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option  { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                  { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option     { return func(o *Options) { o.MaxBodyBytes = n } }
func WithClient(c *http.Client) Option    { return func(o *Options) { o.Client = c } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates the admission handler. upstream is the URL of the GraphQL
// executor admitted requests are forwarded to.
func New(engine *admission.Engine, cache *cachecontrol.Selector, upstream string, opts ...Option) (*Handler, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", upstream)
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	client := op.Client
	if client == nil {
		client = &http.Client{Timeout: op.Timeout}
	}
	return &Handler{engine: engine, cache: cache, upstream: u, client: client, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Cache-Control", cachecontrol.NoStore)
		writeJSON(w, status, errorResponse(gqlerror.Errorf("method not allowed")), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		w.Header().Set("Cache-Control", cachecontrol.NoStore)
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// A single header cannot carry per-item directives, so batched
		// responses are never cacheable.
		w.Header().Set("Cache-Control", cachecontrol.NoStore)
		out := make([]any, len(batch))
		for i := range batch {
			res, _ := h.handleOne(ctx, batch[i])
			out[i] = res
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	res, directive := h.handleOne(ctx, req)
	w.Header().Set("Cache-Control", directive)
	writeJSON(w, status, res, h.opt.Pretty)
}

// handleOne runs one request through admission and, when admitted, the
// upstream executor. It returns the response payload and the Cache-Control
// directive for it. Responses carrying errors are always no-store.
func (h *Handler) handleOne(ctx context.Context, req GraphQLRequest) (any, string) {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		if ge, ok := err.(*gqlerror.Error); ok {
			return errorResponse(ge), cachecontrol.NoStore
		}
		return errorResponse(gqlerror.Errorf("%s", err.Error())), cachecontrol.NoStore
	}

	start := time.Now()
	report, decision := h.engine.Check(doc, req.OperationName)
	evt := events.AdmissionEvaluated{
		OperationType: report.OperationType,
		OperationName: report.OperationName,
		Complexity:    report.Complexity,
		Depth:         report.Depth,
		Allowed:       decision.Allowed,
		Duration:      time.Since(start),
	}
	if decision.Rejection != nil {
		evt.RejectionCode = string(decision.Rejection.Code)
	}
	eventbus.Publish(ctx, evt)

	// The selector runs regardless of the admission outcome; the directive
	// only sticks when the response is error-free.
	directive := h.cache.ForOperation(language.Operation(report.OperationType), report.OperationName)

	if !decision.Allowed {
		return errorResponse(rejectionError(decision.Rejection)), cachecontrol.NoStore
	}

	body, err := h.forward(ctx, req)
	if err != nil {
		return errorResponse(gqlerror.Errorf("upstream unavailable")), cachecontrol.NoStore
	}
	return body, directive
}

// forward relays an admitted request to the upstream executor and returns
// its raw response document.
func (h *Handler) forward(ctx context.Context, req GraphQLRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.upstream.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(hreq)
	if err != nil {
		eventbus.Publish(ctx, events.UpstreamFinish{Err: err, Duration: time.Since(start)})
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	eventbus.Publish(ctx, events.UpstreamFinish{Status: resp.StatusCode, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

// rejectionError converts a gate rejection into the client-facing GraphQL
// error, carrying the machine-readable code and the observed/configured
// numbers so clients can retry narrower.
func rejectionError(rej *admission.Rejection) *gqlerror.Error {
	switch rej.Code {
	case admission.CodeTooComplex:
		return &gqlerror.Error{
			Message: fmt.Sprintf("query exceeds maximum complexity (%g > %g)", rej.Complexity, rej.MaxComplexity),
			Extensions: map[string]any{
				"code":          string(rej.Code),
				"complexity":    rej.Complexity,
				"maxComplexity": rej.MaxComplexity,
			},
		}
	case admission.CodeTooDeep:
		return &gqlerror.Error{
			Message: fmt.Sprintf("query exceeds maximum depth (%d > %d)", rej.Depth, rej.MaxDepth),
			Extensions: map[string]any{
				"code":     string(rej.Code),
				"depth":    rej.Depth,
				"maxDepth": rej.MaxDepth,
			},
		}
	}
	return gqlerror.Errorf("query rejected")
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *gqlerror.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, gqlerror.Errorf("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, gqlerror.Errorf("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, gqlerror.Errorf("failed to read body")
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, gqlerror.Errorf(errBodyTooLargeMessage)
		}

		// Try array (batch)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, gqlerror.Errorf("invalid JSON")
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, gqlerror.Errorf("empty batch")
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, gqlerror.Errorf("invalid JSON")
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, gqlerror.Errorf("missing 'query'")
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, gqlerror.Errorf("unsupported Content-Type")
}

// ------------------ Response formatting ------------------

type specResult struct {
	Data   any           `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

func errorResponse(errs ...*gqlerror.Error) specResult {
	return specResult{Data: nil, Errors: gqlerror.List(errs)}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
