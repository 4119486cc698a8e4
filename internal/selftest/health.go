// Package selftest checks that the agent's collaborators are reachable.
package selftest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/vector"
)

// ComponentStatus represents health of a single component
type ComponentStatus struct {
	Status  string `json:"status"` // ok, degraded, error
	Latency int64  `json:"latency_ms,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Check probes one component.
type Check struct {
	Name string
	Run  func(ctx context.Context) ComponentStatus
}

// Pinger is anything with a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports an error when p does not answer within five seconds and
// degraded when it takes longer than slow.
func PingCheck(name string, p Pinger, slow time.Duration) Check {
	return Check{Name: name, Run: func(ctx context.Context) ComponentStatus {
		start := time.Now()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			return ComponentStatus{Status: StatusError, Latency: time.Since(start).Milliseconds(), Error: err.Error()}
		}
		latency := time.Since(start)
		status := StatusOK
		if slow > 0 && latency > slow {
			status = StatusDegraded
		}
		return ComponentStatus{Status: status, Latency: latency.Milliseconds()}
	}}
}

// IndexCheck counts the entries of each search namespace. An empty index is
// degraded: searches will find nothing.
func IndexCheck(index vector.Index, namespaces ...string) Check {
	return Check{Name: "vector_index", Run: func(ctx context.Context) ComponentStatus {
		start := time.Now()
		var parts []string
		total := 0
		for _, ns := range namespaces {
			n, err := index.Count(ctx, ns)
			if err != nil {
				return ComponentStatus{Status: StatusError, Latency: time.Since(start).Milliseconds(), Error: err.Error()}
			}
			total += n
			parts = append(parts, fmt.Sprintf("%s=%d", ns, n))
		}
		status := StatusOK
		if total == 0 {
			status = StatusDegraded
		}
		return ComponentStatus{Status: status, Latency: time.Since(start).Milliseconds(), Detail: strings.Join(parts, " ")}
	}}
}

// RemoteCheck calls GET <baseURL>/health on the remote skill server.
func RemoteCheck(baseURL string, client *http.Client) Check {
	return Check{Name: "remote_skills", Run: func(ctx context.Context) ComponentStatus {
		start := time.Now()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
		if err != nil {
			return ComponentStatus{Status: StatusError, Error: err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return ComponentStatus{Status: StatusError, Latency: time.Since(start).Milliseconds(), Error: err.Error()}
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return ComponentStatus{Status: StatusError, Latency: time.Since(start).Milliseconds(), Error: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return ComponentStatus{Status: StatusOK, Latency: time.Since(start).Milliseconds(), Detail: baseURL}
	}}
}

// CredentialCheck reports which skill credentials the environment provides.
// A missing provider key is an error; a missing index credential only
// disables the search skills.
func CredentialCheck(env *config.ElfEnv) Check {
	return Check{Name: "credentials", Run: func(ctx context.Context) ComponentStatus {
		creds := env.Credentials()
		has := func(name string) bool {
			for _, c := range creds {
				if c == name {
					return true
				}
			}
			return false
		}
		detail := fmt.Sprintf("provider=%s model=%s credentials=[%s]", env.Provider, env.Model, strings.Join(creds, ","))
		switch {
		case !has(config.CredentialLLM):
			return ComponentStatus{Status: StatusError, Detail: detail, Error: "no API key for provider " + env.Provider}
		case !has(config.CredentialIndex):
			return ComponentStatus{Status: StatusDegraded, Detail: detail, Error: "no embedding credential; search skills are disabled"}
		}
		return ComponentStatus{Status: StatusOK, Detail: detail}
	}}
}

// Failed is a check that always reports err, for components that could not
// even be opened.
func Failed(name string, err error) Check {
	return Check{Name: name, Run: func(context.Context) ComponentStatus {
		return ComponentStatus{Status: StatusError, Error: err.Error()}
	}}
}

// CheckHealth runs every check concurrently.
func CheckHealth(ctx context.Context, checks ...Check) *Report {
	report := &Report{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			result := c.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			report.Components[c.Name] = result
			if result.Status == StatusError {
				report.Status = "unhealthy"
			} else if result.Status == StatusDegraded && report.Status == "healthy" {
				report.Status = "degraded"
			}
		}(c)
	}
	wg.Wait()
	return report
}
