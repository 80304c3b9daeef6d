package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--api", srv.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "docchatctl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	for _, name := range []string{"ask", "retrieve", "ingest", "docs"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("api")
	require.NotNil(t, flag)
	assert.Equal(t, defaultAPI, flag.DefValue)
}

func TestDocsSubcommands(t *testing.T) {
	cmd := NewDocsCmd()
	for _, name := range []string{"list", "show", "chunks", "delete"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	var got chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Answer:    "Refunds are accepted within 30 days [DOC=policy.pdf|PAGE=2|CHUNK=0].",
			ModeUsed:  "fast",
			ModelUsed: "mock",
			Citations: []models.Citation{{
				DocName:    "policy.pdf",
				PageNumber: 2,
				Score:      0.82,
				Quote:      "Refunds are accepted within 30 days of purchase.",
			}},
		})
	}))
	defer srv.Close()

	out, err := run(t, srv, "ask", "--top-k", "3", "What is the refund window?")
	require.NoError(t, err)

	assert.Equal(t, "What is the refund window?", got.Question)
	require.NotNil(t, got.TopK)
	assert.Equal(t, 3, *got.TopK)
	assert.Nil(t, got.MinScore)

	assert.Contains(t, out, "Refunds are accepted within 30 days")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "policy.pdf p.2")
}

func TestAskAbstentionHasNoSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Answer:    "I couldn't find this in the documents.",
			Abstained: true,
			Citations: []models.Citation{},
		})
	}))
	defer srv.Close()

	out, err := run(t, srv, "ask", "Who won the 1998 World Cup?")
	require.NoError(t, err)
	assert.Contains(t, out, "couldn't find")
	assert.NotContains(t, out, "Sources")
}

func TestAskSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"code":"DC-API-5020","message":"Upstream provider unavailable. Retry shortly."}}`)
	}))
	defer srv.Close()

	_, err := run(t, srv, "ask", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DC-API-5020")
}

func TestRetrieveTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/retrieve", r.URL.Path)
		_ = json.NewEncoder(w).Encode(retrieveResponse{
			Question: "termination",
			TopK:     6,
			MinScore: 0.3,
			Results: []retrieveHit{{
				Score: 0.71, DocName: "contract.pdf", PageNumber: 4, ChunkIndex: 1,
				Text: "Either party may terminate with 60 days notice.",
			}},
		})
	}))
	defer srv.Close()

	out, err := run(t, srv, "retrieve", "termination")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "contract.pdf")
	assert.Contains(t, out, "0.710")
}

func TestRetrieveNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(retrieveResponse{MinScore: 0.3, Results: []retrieveHit{}})
	}))
	defer srv.Close()

	out, err := run(t, srv, "retrieve", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No chunks above 0.30")
}

func TestIngestUploadsAndWaits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ingest":
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "notes.txt", hdr.Filename)
			assert.Equal(t, "hello world", string(body))
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(ingestResponse{DocID: "d1", DocName: "notes.txt", Status: "queued"})
		case strings.HasSuffix(r.URL.Path, "/progress"):
			polls++
			prog := models.IngestProgress{DocID: "d1", Stage: "embed", Status: "processing"}
			if polls > 1 {
				prog = models.IngestProgress{DocID: "d1", Stage: "done", Status: models.DocumentIndexed, Pages: 1, ChunksTotal: 1}
			}
			_ = json.NewEncoder(w).Encode(prog)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := run(t, srv, "ingest", "--wait", "--interval", "10ms", path)
	require.NoError(t, err)
	assert.Contains(t, out, "queued as d1")
	assert.Contains(t, out, "indexed 1 pages, 1 chunks")
	assert.Equal(t, 2, polls)
}

func TestIngestReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"DC-API-4001","message":"unsupported file type"}}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	out, err := run(t, srv, "ingest", path, filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 files")
	assert.Contains(t, out, "unsupported file type")
}

func TestDocsListAndDelete(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"documents": []models.Document{
				{DocID: "d1", DocName: "handbook.pdf", Status: "indexed", PageCount: 12, ChunkCount: 40},
			}})
		case http.MethodDelete:
			deleted = strings.TrimPrefix(r.URL.Path, "/documents/")
			_ = json.NewEncoder(w).Encode(map[string]any{"doc_id": deleted, "deleted": true})
		}
	}))
	defer srv.Close()

	out, err := run(t, srv, "docs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "handbook.pdf")
	assert.Contains(t, out, "indexed")

	out, err = run(t, srv, "docs", "delete", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", deleted)
	assert.Contains(t, out, "Deleted d1")
}

func TestDocsListJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": []models.Document{}})
	}))
	defer srv.Close()

	out, err := run(t, srv, "--json", "docs", "list")
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Contains(t, parsed, "documents")
}
