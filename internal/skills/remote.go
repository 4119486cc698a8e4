package skills

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

	"github.com/google/uuid"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/logging"
)

// HTTPClient is the subset of *http.Client the remote executor uses.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// RequestIDHeader carries the caller's request ID to the remote surface.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body the remote surface returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StreamContentType marks an execution response written as one Event per
// line.
const StreamContentType = "application/x-ndjson"

// Event is one line of a streamed execution: a progress message, the final
// result, or the error that ended the execution.
type Event struct {
	Message *domain.Message `json:"message,omitempty"`
	Result  *Output         `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RemoteExecutor runs skills on a remote execution surface over HTTP.
type RemoteExecutor struct {
	baseURL string
	client  HTTPClient
	log     *logging.Logger
}

func NewRemoteExecutor(baseURL string) *RemoteExecutor {
	return NewRemoteExecutorWithClient(baseURL, &http.Client{Timeout: 10 * time.Minute})
}

func NewRemoteExecutorWithClient(baseURL string, client HTTPClient) *RemoteExecutor {
	return &RemoteExecutor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     logging.New("remote"),
	}
}

// Execute posts the input to /skills/{name}/execute. Progress messages the
// remote skill emits are replayed into in.Sink in order.
func (e *RemoteExecutor) Execute(ctx context.Context, name string, in Input) (Output, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Output{}, fmt.Errorf("marshal input: %w", err)
	}

	endpoint := e.baseURL + "/skills/" + url.PathEscape(name) + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Output{}, fmt.Errorf("create request: %w", err)
	}

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", StreamContentType)
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("remote %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return Output{}, fmt.Errorf("remote %s: status %d: %s", name, resp.StatusCode, er.Error)
		}
		return Output{}, fmt.Errorf("remote %s: status %d", name, resp.StatusCode)
	}

	var out Output
	if strings.HasPrefix(resp.Header.Get("Content-Type"), StreamContentType) {
		out, err = readStream(resp.Body, in.Sink)
		if err != nil {
			if ctx.Err() != nil {
				return Output{}, ctx.Err()
			}
			return Output{}, fmt.Errorf("remote %s: %w", name, err)
		}
	} else if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Output{}, fmt.Errorf("decode response: %w", err)
	}

	e.log.WithRequest(requestID).TimedEvent("remote_execute", start, map[string]interface{}{"skill": name})
	return out, nil
}

func readStream(r io.Reader, sink domain.MessageSink) (Output, error) {
	dec := json.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return Output{}, fmt.Errorf("stream ended without a result")
			}
			return Output{}, fmt.Errorf("decode event: %w", err)
		}
		switch {
		case ev.Message != nil:
			sink.Emit(*ev.Message)
		case ev.Error != "":
			return Output{}, fmt.Errorf("%s", ev.Error)
		case ev.Result != nil:
			return *ev.Result, nil
		}
	}
}
