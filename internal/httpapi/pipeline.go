package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llmrouter/llmrouter/internal/amp"
	"github.com/llmrouter/llmrouter/internal/balancer"
	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/events"
	"github.com/llmrouter/llmrouter/internal/ratelimit"
	"github.com/llmrouter/llmrouter/internal/route"
	"github.com/llmrouter/llmrouter/internal/state"
	"github.com/llmrouter/llmrouter/internal/translate"
	"github.com/llmrouter/llmrouter/internal/upstream"
)

// CompletionsHandler runs the routing pipeline for one completion request.
// pathFormat pins the source format for format-specific paths; empty means
// detect from the body shape.
func CompletionsHandler(d Dependencies, pathFormat config.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config()

		if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
			jsonError(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		maxBody := d.Options.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = 1 << 20
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			jsonError(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		var probe bodyProbe
		if err := json.Unmarshal(body, &probe); err != nil {
			jsonError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}

		sourceFormat := pathFormat
		if sourceFormat == "" {
			sourceFormat = detectSourceFormat(&probe)
		}

		requested := amp.Apply(cfg.AmpRouting, probe.Model, r.Header)

		p := &pipeline{
			d:            d,
			cfg:          cfg,
			sourceFormat: sourceFormat,
			body:         body,
			stream:       probe.Stream,
		}
		p.run(w, r, requested)
	}
}

// pipeline carries one request through resolve, rank, and the attempt loop.
type pipeline struct {
	d            Dependencies
	cfg          *config.Config
	sourceFormat config.Format
	body         []byte
	stream       bool

	plan     *route.RoutePlan
	result   *balancer.Result
	routeKey string
	skipped  []string
	attempts []string
}

func (p *pipeline) run(w http.ResponseWriter, r *http.Request, requested string) {
	d := p.d

	plan, err := route.Resolve(p.cfg, requested, p.sourceFormat)
	p.plan = plan
	if err != nil {
		p.writeDebugHeaders(w)
		writeRouteError(w, "invalid_request_error", err.Error(), http.StatusBadRequest)
		return
	}

	now := d.now()
	// Best-effort state hygiene; a failed prune never blocks the request.
	if pr, perr := d.Store.PruneExpired(r.Context(), now); perr == nil {
		if d.EventBus != nil && pr.PrunedBuckets+pr.PrunedCandidateStates > 0 {
			d.EventBus.Publish(events.Event{
				Type:          events.EventStatePruned,
				PrunedEntries: pr.PrunedBuckets + pr.PrunedCandidateStates,
			})
		}
	}

	var candidates []*route.Candidate
	for _, c := range plan.Candidates() {
		if c.TargetFormat == config.FormatOpenAI || c.TargetFormat == config.FormatClaude {
			candidates = append(candidates, c)
			continue
		}
		p.skipped = append(p.skipped, c.RequestModelID+":format-incompatible")
		if d.Metrics != nil {
			d.Metrics.CandidateSkipsTotal.WithLabelValues("format-incompatible").Inc()
		}
	}
	if len(candidates) == 0 {
		p.writeDebugHeaders(w)
		writeRouteError(w, "invalid_request_error", "no candidate supports a known wire format", http.StatusBadRequest)
		return
	}

	p.routeKey = state.RouteKey(plan.RouteType, plan.RouteRef, string(p.sourceFormat))
	res, err := balancer.Rank(r.Context(), d.Store, candidates, plan.RouteStrategy, p.routeKey, now)
	if err != nil {
		p.writeDebugHeaders(w)
		writeRouteError(w, "api_error", "state store failure: "+err.Error(), http.StatusInternalServerError)
		return
	}
	p.result = res
	for _, e := range res.Skipped {
		p.skipped = append(p.skipped, e.Candidate.RequestModelID+":"+strings.Join(e.SkipReasons, "+"))
		if d.Metrics != nil {
			for _, reason := range e.SkipReasons {
				d.Metrics.CandidateSkipsTotal.WithLabelValues(reason).Inc()
			}
		}
	}

	if res.Selected == nil {
		p.writeDebugHeaders(w)
		writeRouteError(w, "overloaded_error", "no eligible upstream candidate", http.StatusServiceUnavailable)
		return
	}

	p.attemptLoop(w, r)
}

// lastFailure remembers the terminal error while falling through candidates.
type lastFailure struct {
	status   int
	category string
	message  string
}

func (p *pipeline) attemptLoop(w http.ResponseWriter, r *http.Request) {
	d := p.d
	effort := translate.ExtractEffort(p.body, p.sourceFormat, r.Header)

	maxOriginAttempts := d.Options.OriginRetryAttempts
	if maxOriginAttempts < 1 {
		maxOriginAttempts = 1
	}

	cursorCommitted := false
	fellBack := false
	consumed := make(map[string]bool)
	var last *lastFailure

	for _, e := range p.result.Entries {
		if !e.Eligible {
			continue
		}
		c := e.Candidate

		outBody, err := translate.Request(p.body, p.sourceFormat, c.TargetFormat, c.ModelID)
		if err != nil {
			p.writeDebugHeaders(w)
			writeRouteError(w, "invalid_request_error", "request translation failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		if stamped, serr := translate.StampEffort(outBody, c.TargetFormat, c.ModelID, effort); serr == nil {
			outBody = stamped
		}

		url := upstream.ResolveProviderURL(c.Provider, c.TargetFormat, upstream.OperationChat)
		headers := upstream.BuildHeaders(c.Provider, c.TargetFormat, r.Header)
		candKey := state.CandidateKey(c.RequestModelID, string(c.TargetFormat))

		if e != p.result.Selected && !fellBack {
			fellBack = true
			if d.Metrics != nil {
				d.Metrics.FallbacksTotal.WithLabelValues(p.plan.RouteType).Inc()
			}
			if d.EventBus != nil {
				d.EventBus.Publish(events.Event{
					Type:           events.EventFallbackUsed,
					RequestedModel: p.plan.RequestedModel,
					ModelID:        c.ModelID,
					ProviderID:     c.ProviderID,
					RouteType:      p.plan.RouteType,
					RouteRef:       p.plan.RouteRef,
				})
			}
		}

		attempt := 0
		for {
			attempt++

			// The cursor advances exactly once per request, before the first
			// upstream attempt of the originally selected candidate.
			if e == p.result.Selected && !cursorCommitted {
				cursorCommitted = true
				if cerr := balancer.CommitCursor(r.Context(), d.Store, p.routeKey, p.result); cerr != nil {
					d.log().Warn("cursor commit failed",
						slog.String("route", p.routeKey),
						slog.String("error", cerr.Error()))
				} else if p.result.ShouldAdvanceCursor && d.Metrics != nil {
					d.Metrics.CursorCommitsTotal.Inc()
				}
			}

			attemptStart := time.Now()
			cls, upstreamBody, streamBody := p.execute(r.Context(), c, url, outBody, headers)
			latency := time.Since(attemptStart)
			if d.Metrics != nil {
				d.Metrics.AttemptLatency.WithLabelValues(c.ProviderID, c.ModelID, string(c.TargetFormat)).
					Observe(float64(latency.Milliseconds()))
			}
			p.attempts = append(p.attempts, fmt.Sprintf("%s:%d/%s#%d", c.RequestModelID, cls.StatusCode, cls.Category, attempt))

			// Quota is charged once per candidate, and only for attempts that
			// reached the upstream. A connection failure burns no budget, so a
			// provider that was down does not come back quota-exhausted.
			if cls.Category != balancer.CategoryNetworkError && !consumed[candKey] {
				consumed[candKey] = true
				_ = ratelimit.Consume(r.Context(), d.Store, c.Provider, c.ModelID, d.now())
			}

			if cls.Category == balancer.CategoryOK {
				_ = balancer.RecordSuccess(r.Context(), d.Store, candKey)
				p.observe(c, cls.StatusCode, "", latency, attempt)
				if p.stream {
					p.respondStream(w, c, streamBody)
				} else {
					p.respondBuffered(w, c, upstreamBody)
				}
				return
			}

			// Client went away; nothing sensible left to write.
			if r.Context().Err() != nil {
				if streamBody != nil {
					_ = streamBody.Close()
				}
				return
			}

			_ = balancer.RecordFailure(r.Context(), d.Store, candKey, cls, d.Options.Circuit, d.now())
			p.observe(c, cls.StatusCode, cls.Category, latency, attempt)
			if d.EventBus != nil && cls.TrackCooldown && cls.RetryAfter > 0 {
				d.EventBus.Publish(events.Event{
					Type:       events.EventCandidateCooldown,
					ModelID:    c.ModelID,
					ProviderID: c.ProviderID,
					Category:   cls.Category,
					CooldownMs: cls.RetryAfter.Milliseconds(),
				})
			}
			last = &lastFailure{status: cls.StatusCode, category: cls.Category, message: failureMessage(cls, upstreamBody)}

			if cls.RetryOrigin && e == p.result.Selected && attempt < maxOriginAttempts {
				if d.Metrics != nil {
					d.Metrics.RetriesTotal.WithLabelValues(c.ProviderID).Inc()
				}
				d.sleep(balancer.ComputeRetryDelay(attempt))
				continue
			}
			if !cls.AllowFallback {
				p.writeTerminal(w, last)
				return
			}
			break
		}
	}

	if last == nil {
		last = &lastFailure{status: http.StatusServiceUnavailable, category: "overloaded_error", message: "no eligible upstream candidate"}
	}
	p.writeTerminal(w, last)
}

// execute performs one upstream call and classifies the outcome. On success,
// exactly one of upstreamBody (buffered) or streamBody (owned by the caller)
// is non-nil.
func (p *pipeline) execute(ctx context.Context, c *route.Candidate, url string, body []byte, headers map[string]string) (balancer.Classification, []byte, io.ReadCloser) {
	if p.stream {
		rc, err := p.d.Upstream.DoStream(ctx, url, body, headers)
		if err == nil {
			return balancer.Classification{Category: balancer.CategoryOK, StatusCode: http.StatusOK}, nil, rc
		}
		return classifyErr(err), []byte(upstreamErrBody(err)), nil
	}
	raw, err := p.d.Upstream.Do(ctx, url, body, headers)
	if err == nil {
		return balancer.Classification{Category: balancer.CategoryOK, StatusCode: http.StatusOK}, raw, nil
	}
	return classifyErr(err), []byte(upstreamErrBody(err)), nil
}

func classifyErr(err error) balancer.Classification {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return balancer.Classify(se.StatusCode, time.Duration(se.RetryAfterSecs)*time.Second)
	}
	return balancer.Classify(0, 0)
}

func upstreamErrBody(err error) string {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return se.Body
	}
	return err.Error()
}

// failureMessage prefers the upstream error text, falling back to the
// category.
func failureMessage(cls balancer.Classification, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "upstream " + cls.Category
	}
	return msg
}

func (p *pipeline) respondBuffered(w http.ResponseWriter, c *route.Candidate, raw []byte) {
	out, err := translate.Response(raw, c.TargetFormat, p.sourceFormat)
	if err != nil {
		// Relay the upstream payload untranslated rather than failing a
		// request that upstream answered.
		out = raw
	}
	p.writeDebugHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (p *pipeline) respondStream(w http.ResponseWriter, c *route.Candidate, body io.ReadCloser) {
	defer func() { _ = body.Close() }()

	p.writeDebugHeaders(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	_ = translate.CopyStream(w, flush, body, c.TargetFormat, p.sourceFormat)
}

func (p *pipeline) writeTerminal(w http.ResponseWriter, last *lastFailure) {
	p.writeDebugHeaders(w)
	status := last.status
	if status == 0 {
		status = http.StatusBadGateway
	}
	errType := last.category
	if last.category != "overloaded_error" {
		errType = errorTypeForCategory(last.category)
	}
	writeRouteError(w, errType, last.message, status)
}

// observe records one settled attempt in metrics and on the event bus.
func (p *pipeline) observe(c *route.Candidate, status int, category string, latency time.Duration, attempt int) {
	d := p.d
	if d.Metrics != nil {
		d.Metrics.RequestsTotal.WithLabelValues(
			string(p.sourceFormat), c.ProviderID, c.ModelID, strconv.Itoa(status)).Inc()
	}
	if d.EventBus == nil {
		return
	}
	ev := events.Event{
		RequestedModel: p.plan.RequestedModel,
		ModelID:        c.ModelID,
		ProviderID:     c.ProviderID,
		RouteType:      p.plan.RouteType,
		RouteRef:       p.plan.RouteRef,
		Strategy:       p.plan.RouteStrategy,
		SourceFormat:   string(p.sourceFormat),
		TargetFormat:   string(c.TargetFormat),
		Stream:         p.stream,
		Attempts:       attempt,
		LatencyMs:      float64(latency.Milliseconds()),
		StatusCode:     status,
	}
	if category == "" {
		ev.Type = events.EventRouteSuccess
	} else {
		ev.Type = events.EventRouteError
		ev.Category = category
	}
	d.EventBus.Publish(ev)
}

func (p *pipeline) writeDebugHeaders(w http.ResponseWriter) {
	if !p.d.Options.DebugRouting || p.plan == nil {
		return
	}
	h := w.Header()
	h.Set("x-llm-router-requested-model", p.plan.RequestedModel)
	h.Set("x-llm-router-route-type", p.plan.RouteType)
	h.Set("x-llm-router-route-ref", p.plan.RouteRef)
	h.Set("x-llm-router-route-strategy", p.plan.RouteStrategy)
	if p.result != nil && p.result.Selected != nil {
		h.Set("x-llm-router-selected-candidate", p.result.Selected.Candidate.RequestModelID)
	}
	if len(p.skipped) > 0 {
		h.Set("x-llm-router-skipped-candidates", strings.Join(p.skipped, ","))
	}
	if len(p.attempts) > 0 {
		h.Set("x-llm-router-attempts", strings.Join(p.attempts, ","))
	}
}
