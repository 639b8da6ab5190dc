package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// protocolVersion is the initialize protocol revision the endpoint is probed
// against; servers negotiate down from it.
const protocolVersion = "2024-11-05"

const clientName = "warden"

// maxBodyBytes caps how much of a probe response is read for classification.
const maxBodyBytes = 1 << 20

// initializeRequest is the envelope sent on every probe. The endpoint treats
// it as a session handshake; a well-formed "result" answer proves the whole
// request path (auth, transport, protocol) is live.
type initializeRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Method  string           `json:"method"`
	Params  initializeParams `json:"params"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPProber checks a remote tool-calling endpoint by issuing one initialize
// call per Probe invocation.
type HTTPProber struct {
	Target  Target
	Version string // reported in clientInfo; defaults to "dev"
	Client  *http.Client
}

// NewHTTPProber builds a prober for target with a dedicated client.
func NewHTTPProber(target Target) *HTTPProber {
	return &HTTPProber{Target: target, Client: &http.Client{}}
}

func (p *HTTPProber) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

// Probe sends a single initialize request and classifies the outcome.
// One outbound call per invocation; timeouts come from the target.
func (p *HTTPProber) Probe(ctx context.Context) Result {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.Target.EffectiveTimeout())
	defer cancel()

	res := p.doProbe(ctx)
	res.CheckedAt = started
	res.Elapsed = time.Since(started)
	return res
}

func (p *HTTPProber) doProbe(ctx context.Context) Result {
	version := p.Version
	if version == "" {
		version = "dev"
	}
	body, err := json.Marshal(initializeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: initializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{},
			ClientInfo:      clientInfo{Name: clientName, Version: version},
		},
	})
	if err != nil {
		return Result{State: StateUnhealthy, Reason: "encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Target.URL, bytes.NewReader(body))
	if err != nil {
		return Result{State: StateUnhealthy, Reason: "build request: " + err.Error()}
	}
	if p.Target.Authorization != "" {
		req.Header.Set("Authorization", p.Target.Authorization)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := p.client().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{State: StateTimedOut, Reason: "request deadline exceeded"}
		}
		return Result{State: StateUnhealthy, Reason: "request failed: " + err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{State: StateUnhealthy, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	payload, err := readPayload(resp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{State: StateTimedOut, Reason: "response deadline exceeded"}
		}
		return Result{State: StateUnhealthy, Reason: err.Error()}
	}
	return classify(payload)
}

// readPayload extracts the JSON document to classify. Streamed responses
// (text/event-stream) carry it as the first data: line.
func readPayload(resp *http.Response) ([]byte, error) {
	ct := resp.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	rd := io.LimitReader(resp.Body, maxBodyBytes)

	if mt == "text/event-stream" {
		sc := bufio.NewScanner(rd)
		sc.Buffer(make([]byte, 0, 64*1024), maxBodyBytes)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				return []byte(strings.TrimSpace(data)), nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("event stream contained no data line")
	}

	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func classify(payload []byte) Result {
	var env rpcEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Result{State: StateUnhealthy, Reason: "malformed response: " + err.Error()}
	}
	if env.Error != nil {
		return Result{State: StateUnhealthy, Reason: fmt.Sprintf("endpoint error %d: %s", env.Error.Code, env.Error.Message)}
	}
	if len(env.Result) == 0 {
		return Result{State: StateUnhealthy, Reason: "response missing result"}
	}
	return Result{State: StateHealthy}
}
