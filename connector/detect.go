package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DetectResult is the outcome of backend auto-detection.
type DetectResult struct {
	Backend string   `json:"backend"`
	Version string   `json:"version,omitempty"`
	Models  []string `json:"models"`
}

// Detect probes a host:port for a known backend surface, trying the Ollama
// tags endpoint first, then the OpenAI-compatible model list, then the
// TensorRT-LLM model list. Returns nil when nothing responds.
func Detect(ctx context.Context, host string, port int, timeout time.Duration) *DetectResult {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	base := fmt.Sprintf("http://%s:%d", host, port)

	if res := detectOllama(ctx, client, base); res != nil {
		return res
	}
	if res := detectOpenAICompat(ctx, client, base); res != nil {
		return res
	}
	return detectTensorRT(ctx, client, base)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

func detectOllama(ctx context.Context, client *http.Client, base string) *DetectResult {
	var payload struct {
		Version string `json:"version"`
		Models  []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if !getJSON(ctx, client, strings.TrimRight(base, "/")+"/api/tags", &payload) {
		return nil
	}
	res := &DetectResult{Backend: "ollama", Version: payload.Version, Models: []string{}}
	for _, m := range payload.Models {
		if m.Name != "" {
			res.Models = append(res.Models, m.Name)
		}
	}
	return res
}

func detectOpenAICompat(ctx context.Context, client *http.Client, base string) *DetectResult {
	var payload struct {
		Version string `json:"version"`
		Data    []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if !getJSON(ctx, client, strings.TrimRight(base, "/")+"/v1/models", &payload) {
		return nil
	}
	res := &DetectResult{Backend: "mlx", Version: payload.Version, Models: []string{}}
	for _, m := range payload.Data {
		if m.ID != "" {
			res.Models = append(res.Models, m.ID)
		}
	}
	return res
}

func detectTensorRT(ctx context.Context, client *http.Client, base string) *DetectResult {
	var payload struct {
		Version string   `json:"version"`
		Models  []string `json:"models"`
	}
	if !getJSON(ctx, client, strings.TrimRight(base, "/")+"/models", &payload) {
		return nil
	}
	res := &DetectResult{Backend: "tensorrt", Version: payload.Version, Models: []string{}}
	for _, m := range payload.Models {
		if m != "" {
			res.Models = append(res.Models, m)
		}
	}
	return res
}
