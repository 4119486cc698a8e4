package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/skills"
)

type stubSkill struct {
	desc      skills.Descriptor
	err       error
	emit      []string
	gotInput  skills.Input
	requestID string
}

func (s *stubSkill) Descriptor() skills.Descriptor { return s.desc }

func (s *stubSkill) Execute(ctx context.Context, in skills.Input) (skills.Output, error) {
	s.gotInput = in
	s.requestID = logging.GetRequestID(ctx)
	for _, text := range s.emit {
		in.Sink.Emit(domain.NewMessage(domain.MessageSearchLogs, in.Task.ID, "Search logs", text, "🗄"))
	}
	if s.err != nil {
		return skills.Output{}, s.err
	}
	return skills.Output{Output: "found it", Parameters: &domain.Parameters{Symbol: "ACME"}}, nil
}

func newTestServer(t *testing.T, sk ...skills.Skill) *httptest.Server {
	t.Helper()
	reg := skills.NewRegistry([]string{"llm"})
	require.NoError(t, reg.Register(sk...))
	srv := New(reg, skills.NewDispatcher(reg, nil), "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(skills.RequestIDHeader))
}

func TestListSkillsReportsValidity(t *testing.T) {
	ts := newTestServer(t,
		&stubSkill{desc: skills.Descriptor{Name: "text_completion", RequiredCredentials: []string{"llm"}}},
		&stubSkill{desc: skills.Descriptor{Name: "filing_search", RequiredCredentials: []string{"index"}, Location: skills.LocationRemote}},
	)

	resp, err := http.Get(ts.URL + "/skills")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []SkillInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "text_completion", got[0].Name)
	assert.True(t, got[0].Valid)
	assert.False(t, got[1].Valid)
}

func TestExecuteRoundTripsThroughRemoteExecutor(t *testing.T) {
	stub := &stubSkill{desc: skills.Descriptor{Name: "filing_search", Location: skills.LocationRemote}}
	ts := newTestServer(t, stub)

	remote := skills.NewRemoteExecutor(ts.URL)
	ctx := logging.WithRequestID(context.Background(), "req-123")
	out, err := remote.Execute(ctx, "filing_search", skills.Input{
		Task:             domain.Task{ID: 2, Task: "Search", Skill: "filing_search"},
		DependentOutputs: "Task 1 Output: x",
		Objective:        "obj",
	})
	require.NoError(t, err)

	assert.Equal(t, "found it", out.Output)
	assert.Equal(t, "ACME", out.Parameters.Symbol)
	assert.Equal(t, "Task 1 Output: x", stub.gotInput.DependentOutputs)
	assert.Equal(t, 2, stub.gotInput.Task.ID)
	assert.Equal(t, "req-123", stub.requestID)
}

func TestExecuteReplaysMessagesThroughRemoteDispatch(t *testing.T) {
	stub := &stubSkill{
		desc: skills.Descriptor{Name: "filing_search", Location: skills.LocationRemote},
		emit: []string{"Generated query", "Generated query\nFound 2 documents"},
	}
	ts := newTestServer(t, stub)

	reg := skills.NewRegistry(nil)
	require.NoError(t, reg.Register(stub))
	in := func(got *[]domain.Message) skills.Input {
		return skills.Input{
			Task: domain.Task{ID: 4, Task: "Search", Skill: "filing_search"},
			Sink: func(m domain.Message) { *got = append(*got, m) },
		}
	}

	var local, remote []domain.Message
	_, err := skills.NewDispatcher(reg, nil).Execute(context.Background(), "filing_search", in(&local))
	require.NoError(t, err)
	out, err := skills.NewDispatcher(reg, skills.NewRemoteExecutor(ts.URL)).Execute(context.Background(), "filing_search", in(&remote))
	require.NoError(t, err)

	assert.Equal(t, "found it", out.Output)
	require.Len(t, remote, len(local))
	require.Len(t, remote, 2)
	assert.Equal(t, "Generated query", remote[0].Text)
	assert.Equal(t, "Generated query\nFound 2 documents", remote[1].Text)
	assert.Equal(t, 4, remote[1].TaskID)
	assert.Equal(t, domain.MessageSearchLogs, remote[1].Type)
}

func TestExecuteStreamsEventsThenResult(t *testing.T) {
	ts := newTestServer(t, &stubSkill{desc: skills.Descriptor{Name: "echo"}, emit: []string{"step"}})

	resp, err := http.Post(ts.URL+"/skills/echo/execute", "application/json", bytes.NewBufferString(`{"task":{"id":1}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, skills.StreamContentType, resp.Header.Get("Content-Type"))

	dec := json.NewDecoder(resp.Body)
	var first, last skills.Event
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&last))
	require.NotNil(t, first.Message)
	assert.Equal(t, "step", first.Message.Text)
	require.NotNil(t, last.Result)
	assert.Equal(t, "found it", last.Result.Output)
}

func TestExecuteUnknownSkill(t *testing.T) {
	ts := newTestServer(t, &stubSkill{desc: skills.Descriptor{Name: "text_completion"}})

	resp, err := http.Post(ts.URL+"/skills/text_complete/execute", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var er skills.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Contains(t, er.Error, "text_completion")
}

func TestExecuteBadBody(t *testing.T) {
	ts := newTestServer(t, &stubSkill{desc: skills.Descriptor{Name: "echo"}})

	resp, err := http.Post(ts.URL+"/skills/echo/execute", "application/json", bytes.NewBufferString(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteSkillFailure(t *testing.T) {
	stub := &stubSkill{desc: skills.Descriptor{Name: "echo"}, err: errors.New("index unavailable")}
	ts := newTestServer(t, stub)

	_, err := skills.NewRemoteExecutor(ts.URL).Execute(context.Background(), "echo", skills.Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestMetricsCountExecutions(t *testing.T) {
	ts := newTestServer(t,
		&stubSkill{desc: skills.Descriptor{Name: "echo"}},
		&stubSkill{desc: skills.Descriptor{Name: "broken"}, err: errors.New("boom")},
	)
	remote := skills.NewRemoteExecutor(ts.URL)
	_, err := remote.Execute(context.Background(), "echo", skills.Input{})
	require.NoError(t, err)
	_, err = remote.Execute(context.Background(), "broken", skills.Input{})
	require.Error(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "elf_skill_executions_total 2")
	assert.Contains(t, string(body), "elf_skill_errors_total 1")
	assert.Contains(t, string(body), `elf_skill_outcomes_total{skill="echo",outcome="success"} 1`)
}
