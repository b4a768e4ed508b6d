package mlflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactPaths(t *testing.T) {
	assert.Equal(t, "analysis/experiment_summaries/exp-1_summary.md", ExperimentReportPath("exp-1"))
	assert.Equal(t, "analysis/experiment_summaries/exp-1_analysis_data.json", ExperimentDataPath("exp-1"))
	assert.Equal(t, "analysis/session_summary/report.md", SessionReportPath)
	assert.Equal(t, "analysis/session_summary/data.json", SessionDataPath)
}

func TestFindAnalysisRunNeverCreates(t *testing.T) {
	created := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/runs/search":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"runs": []}`))
		case "/api/2.0/mlflow/runs/create":
			created = true
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"run": {"info": {"run_id": "new-run"}}}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	runID, err := m.FindAnalysisRun(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Empty(t, runID)
	assert.False(t, created)
}

func TestFindAnalysisRunReturnsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/2.0/mlflow/runs/search", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"runs": [{"info": {"run_id": "existing-run"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	runID, err := m.FindAnalysisRun(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "existing-run", runID)
}

func TestGetOrCreateAnalysisRunFindsExisting(t *testing.T) {
	created := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/runs/search":
			var req map[string]interface{}
			err := json.NewDecoder(r.Body).Decode(&req)
			require.NoError(t, err)
			assert.Equal(t, "tags.mlflow.runName = 'experiment_metadata'", req["filter"])

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"runs": [{"info": {"run_id": "existing-run"}}]}`))
		case "/api/2.0/mlflow/runs/create":
			created = true
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"run": {"info": {"run_id": "new-run"}}}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	runID, err := m.GetOrCreateAnalysisRun(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "existing-run", runID)
	assert.False(t, created)
}

func TestGetOrCreateAnalysisRunCreatesWhenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/runs/search":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"runs": []}`))
		case "/api/2.0/mlflow/runs/create":
			var req map[string]interface{}
			err := json.NewDecoder(r.Body).Decode(&req)
			require.NoError(t, err)
			assert.Equal(t, "exp-1", req["experiment_id"])
			assert.Equal(t, MetadataRunName, req["run_name"])

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"run": {"info": {"run_id": "new-run"}}}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	runID, err := m.GetOrCreateAnalysisRun(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "new-run", runID)
}

func TestLogStructuredAnalysisMarshalsPayload(t *testing.T) {
	var uploaded []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/2.0/mlflow-artifacts/artifacts/run-1/analysis/data.json", r.URL.Path)
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	payload := map[string]string{"status": "completed"}
	err := m.LogStructuredAnalysis(context.Background(), "run-1", "analysis/data.json", payload)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(uploaded, &decoded))
	assert.Equal(t, "completed", decoded["status"])
}

func TestDownloadAnalysisReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/mlflow-artifacts/artifacts/run-1/analysis/report.md", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# stored report"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, nil)
	m := NewArtifactManager(client, nil)

	content, err := m.DownloadAnalysisReport(context.Background(), "run-1", "analysis/report.md")
	require.NoError(t, err)
	assert.Equal(t, "# stored report", content)
}
