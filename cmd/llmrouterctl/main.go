package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("llmrouterctl %s\n", version)
	case "health":
		doHealth()
	case "model", "models":
		doModels()
	case "route", "routes":
		doRoutes()
	case "usage":
		doUsage()
	case "candidate", "candidates":
		doCandidates()
	case "events":
		doEvents()
	case "hash-key":
		doHashKey(args)
	case "help", "--help", "-h":
		usageTo(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	usageTo(os.Stderr)
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `llmrouterctl — CLI for the llmrouter admin API

Usage: llmrouterctl <command> [arguments]

Environment:
  LLM_ROUTER_URL         Base URL (default: http://localhost:8080)
  LLM_ROUTER_MASTER_KEY  Bearer token for authenticated endpoints

Commands:
  health              Show server readiness and provider count
  models              List routable models and aliases
  routes              Show each alias and its resolved candidate chain
  usage               Show rate-limit bucket consumption for the current windows
  candidates          Show per-candidate cooldown and failure state
  events              Stream real-time routing events (SSE)

  hash-key <key>      Print the bcrypt hash of a master key
                      (for LLM_ROUTER_MASTER_KEY_HASH)

  version             Show version
  help                Show this help

Examples:
  llmrouterctl health
  llmrouterctl routes
  LLM_ROUTER_MASTER_KEY=sk-local llmrouterctl usage
  llmrouterctl hash-key sk-local
`)
}

// --- HTTP helpers ---

func baseURL() string {
	if u := os.Getenv("LLM_ROUTER_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080"
}

func masterKey() string {
	return os.Getenv("LLM_ROUTER_MASTER_KEY")
}

func doRequest(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	if key := masterKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return http.DefaultClient.Do(req)
}

func doGet(path string) map[string]any {
	resp, err := doRequest("GET", path)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	fatal(err)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Println(string(data))
		os.Exit(0)
	}
	return result
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func fmtNum(v any) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return "-"
}

// --- Commands ---

func doHealth() {
	data := doGet("/health")
	status, _ := data["status"].(string)
	fmt.Printf("status: %s  providers: %s  at: %v\n", status, fmtNum(data["providers"]), data["timestamp"])
}

func doModels() {
	data := doGet("/v1/models")
	models, _ := data["data"].([]any)
	if len(models) == 0 {
		fmt.Println("No models configured.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tOWNED BY")
	for _, m := range models {
		row, ok := m.(map[string]any)
		if !ok {
			continue
		}
		id, _ := row["id"].(string)
		owner, _ := row["owned_by"].(string)
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", id, owner)
	}
	_ = tw.Flush()
}

func doRoutes() {
	data := doGet("/admin/v1/routes")
	routes, _ := data["routes"].([]any)
	if len(routes) == 0 {
		fmt.Println("No aliases configured.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ALIAS\tSTRATEGY\tCANDIDATES")
	for _, r := range routes {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		alias, _ := row["alias"].(string)
		strategy, _ := row["strategy"].(string)
		var chain []string
		if cands, ok := row["candidates"].([]any); ok {
			for _, c := range cands {
				if s, ok := c.(string); ok {
					chain = append(chain, s)
				}
			}
		}
		if errMsg, _ := row["error"].(string); errMsg != "" {
			chain = append(chain, "ERROR: "+errMsg)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", alias, strategy, strings.Join(chain, " -> "))
	}
	_ = tw.Flush()
}

func doUsage() {
	data := doGet("/admin/v1/usage")
	buckets, _ := data["buckets"].([]any)
	if len(buckets) == 0 {
		fmt.Println("No rate-limit buckets configured.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tBUCKET\tWINDOW\tUSED\tREMAINING\tRESETS AT")
	for _, b := range buckets {
		row, ok := b.(map[string]any)
		if !ok {
			continue
		}
		provider, _ := row["providerId"].(string)
		bucket, _ := row["bucketId"].(string)
		window, _ := row["windowKey"].(string)
		endsAt, _ := row["endsAt"].(string)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			provider, bucket, window, fmtNum(row["used"]), fmtNum(row["remaining"]), endsAt)
	}
	_ = tw.Flush()
}

func doCandidates() {
	data := doGet("/admin/v1/candidates")
	candidates, _ := data["candidates"].([]any)
	if len(candidates) == 0 {
		fmt.Println("No candidate state recorded.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CANDIDATE\tFORMAT\tBLOCKED\tCONSEC_FAIL\tLAST FAILURE")
	for _, c := range candidates {
		row, ok := c.(map[string]any)
		if !ok {
			continue
		}
		model, _ := row["requestModel"].(string)
		format, _ := row["format"].(string)
		blocked, _ := row["blocked"].(bool)
		var fails, lastCat string
		if st, ok := row["state"].(map[string]any); ok {
			fails = fmtNum(st["consecutiveRetryableFailures"])
			lastCat, _ = st["lastFailureCategory"].(string)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", model, format, blocked, fails, lastCat)
	}
	_ = tw.Flush()
}

func doEvents() {
	resp, err := doRequest("GET", "/admin/v1/events")
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}

	fmt.Println("Streaming events (Ctrl-C to stop)...")
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range strings.Split(string(buf[:n]), "\n") {
				line = strings.TrimSpace(line)
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				var evt map[string]any
				if json.Unmarshal([]byte(payload), &evt) != nil {
					continue
				}
				evtType, _ := evt["type"].(string)
				model, _ := evt["model_id"].(string)
				provider, _ := evt["provider_id"].(string)
				ts := time.Now().Format("15:04:05")
				switch evtType {
				case "route_error":
					category, _ := evt["category"].(string)
					fmt.Printf("[%s] %s  model=%s provider=%s category=%s status=%s\n",
						ts, evtType, model, provider, category, fmtNum(evt["status_code"]))
				case "route_success":
					fmt.Printf("[%s] %s  model=%s provider=%s latency=%sms attempts=%s\n",
						ts, evtType, model, provider, fmtNum(evt["latency_ms"]), fmtNum(evt["attempts"]))
				default:
					fmt.Printf("[%s] %s  %s\n", ts, evtType, payload)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				fmt.Println("Event stream closed.")
			}
			break
		}
	}
}

func doHashKey(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: llmrouterctl hash-key <key>")
		os.Exit(1)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	fatal(err)
	fmt.Println(string(hash))
}
