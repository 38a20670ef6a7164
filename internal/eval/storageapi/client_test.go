package storageapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evalhub/internal/eval/model"
	"evalhub/internal/eval/storageapi"
	appErr "evalhub/pkg/errors"
)

func TestGetEvaluation(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/evaluations/e1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(model.Evaluation{ID: "e1", Status: model.StatusRunning})
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	ev, err := client.GetEvaluation(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get evaluation failed: %v", err)
	}
	if ev.ID != "e1" || ev.Status != model.StatusRunning {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}
}

func TestGetEvaluationNotFound(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	if _, err := client.GetEvaluation(context.Background(), "missing"); !appErr.Is(err, appErr.EvaluationNotFound) {
		t.Fatalf("expected EvaluationNotFound, got %v", err)
	}
}

func TestGetEvaluationUpstreamFailure(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	if _, err := client.GetEvaluation(context.Background(), "e1"); !appErr.Is(err, appErr.StorageError) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestUpdateEvaluationSendsPartialFields(t *testing.T) {
	t.Parallel()
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/evaluations/e1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	fields := map[string]interface{}{"status": "running", "executor_id": "exec-1"}
	if err := client.UpdateEvaluation(context.Background(), "e1", fields); err != nil {
		t.Fatalf("update evaluation failed: %v", err)
	}
	if captured["status"] != "running" || captured["executor_id"] != "exec-1" {
		t.Fatalf("unexpected body: %v", captured)
	}
}

func TestCreateEvaluationAcceptsCreated(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/evaluations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	if err := client.CreateEvaluation(context.Background(), &model.Evaluation{ID: "e1"}); err != nil {
		t.Fatalf("create evaluation failed: %v", err)
	}
}

func TestAppendLogsMarksAppend(t *testing.T) {
	t.Parallel()
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/evaluations/e1/logs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	if err := client.AppendLogs(context.Background(), "e1", "line 1\nline 2"); err != nil {
		t.Fatalf("append logs failed: %v", err)
	}
	if captured["content"] != "line 1\nline 2" {
		t.Fatalf("unexpected content: %v", captured["content"])
	}
	if captured["append"] != true {
		t.Fatalf("expected append flag set")
	}
}

func TestAppendLogsFailureCode(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := storageapi.New(server.URL, time.Second)
	if err := client.AppendLogs(context.Background(), "e1", "line"); !appErr.Is(err, appErr.LogWriteFailed) {
		t.Fatalf("expected LogWriteFailed, got %v", err)
	}
}
