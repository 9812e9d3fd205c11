package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfscout/backend/config"
	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/infrastructure/cache"
	"github.com/shelfscout/backend/internal/infrastructure/csvexport"
	"github.com/shelfscout/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	exitCode := m.Run()

	os.Exit(exitCode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://*.shelfscout.io", "http://localhost:3000"},
		},
	}
}

// setupTestRouter creates a test router without services
func setupTestRouter() *gin.Engine {
	handler := NewHandler(nil, nil, 5, zerolog.Nop())
	return SetupRouter(testConfig(), handler, zerolog.Nop())
}

// stubSource is a domain.RawListingSource returning canned records per source name
type stubSource struct {
	listings map[string][]domain.RawListing
	errs     map[string]error
}

func (s *stubSource) FetchListings(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawListing, error) {
	if err := s.errs[cfg.Name]; err != nil {
		return nil, err
	}
	return s.listings[cfg.Name], nil
}

type testServer struct {
	router *gin.Engine
	store  *cache.SnapshotStore
}

// setupTestRouterWithServices wires a real pipeline and in-memory snapshot store
func setupTestRouterWithServices(t *testing.T, source *stubSource, sources []domain.SourceConfig) *testServer {
	t.Helper()

	cfg := usecase.DefaultPipelineConfig()
	cfg.Workers = 2
	cfg.KnownBrands = []string{"coca cola", "pepsi"}
	pipeline, err := usecase.NewPipeline(cfg, zerolog.Nop())
	require.NoError(t, err)

	store := cache.NewSnapshotStore(0, 0)
	t.Cleanup(func() { store.Close() })

	var ids int32
	var minutes int32
	runs := usecase.NewRunService(
		pipeline,
		map[string]domain.RawListingSource{"feed": source},
		store,
		nil,
		usecase.RunServiceConfig{
			Sources: sources,
			NewID:   func() string { return fmt.Sprintf("run-%d", atomic.AddInt32(&ids, 1)) },
			Now: func() time.Time {
				return time.Date(2024, 5, 1, 12, int(atomic.AddInt32(&minutes, 1)), 0, 0, time.UTC)
			},
		},
		zerolog.Nop(),
	)
	trends := usecase.NewTrendService(store, zerolog.Nop())

	handler := NewHandler(runs, trends, 5, zerolog.Nop())
	return &testServer{router: SetupRouter(testConfig(), handler, zerolog.Nop()), store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

const runBody = `{"listings":[
	{"sourceId":"jumia","scrapedAt":"2024-05-01T08:00:00Z","fields":{"name":"Coca-Cola 50cl","price":"₦200","rating":4.5,"reviews":10}},
	{"sourceId":"konga","scrapedAt":"2024-05-01T08:00:00Z","fields":{"name":"Coca Cola 50 cl","price":210,"rating":4.0,"reviews":5}},
	{"sourceId":"konga","scrapedAt":"2024-05-01T08:00:00Z","fields":{"name":"Pepsi 50cl","price":"180","rating":3.5,"reviews":2}},
	{"sourceId":"jumia","scrapedAt":"2024-05-01T08:00:00Z","fields":{"name":"","price":"100"}},
	{"sourceId":"jumia","scrapedAt":"2024-05-01T08:00:00Z","fields":{"name":"Fanta 50cl","price":"call for price"}}
]}`

type runResponse struct {
	RunID    string                   `json:"runId"`
	Report   domain.RunReport         `json:"report"`
	Rankings []domain.CategoryRanking `json:"rankings"`
	Warning  string                   `json:"warning"`
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		var response map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}

		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "shelfscout-backend" {
			t.Errorf("service = %v, want shelfscout-backend", response["service"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter()

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req, _ := http.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestEndpoints_NotConfigured(t *testing.T) {
	router := setupTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/runs"},
		{"POST", "/api/v1/runs/collect"},
		{"GET", "/api/v1/runs"},
		{"GET", "/api/v1/runs/latest"},
		{"GET", "/api/v1/runs/latest/rankings"},
		{"GET", "/api/v1/runs/latest/export.csv"},
		{"GET", "/api/v1/runs/latest/search?q=cola"},
		{"DELETE", "/api/v1/runs/latest"},
		{"GET", "/api/v1/trending"},
		{"GET", "/api/v1/categories"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			req, _ := http.NewRequest(endpoint.method, endpoint.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Contains(t, w.Body.String(), "not configured")
		})
	}
}

func TestCreateRun(t *testing.T) {
	t.Run("runs the pipeline and stores the snapshot", func(t *testing.T) {
		srv := setupTestRouterWithServices(t, &stubSource{}, nil)

		w := srv.do(t, "POST", "/api/v1/runs", runBody)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp runResponse
		decode(t, w, &resp)
		assert.Equal(t, "run-1", resp.RunID)
		assert.Empty(t, resp.Warning)
		assert.Equal(t, 5, resp.Report.TotalRecords)
		assert.Equal(t, 3, resp.Report.ValidListings)
		assert.Equal(t, 2, resp.Report.RejectedRecords)
		assert.Equal(t, 1, resp.Report.RejectionsByReason[domain.ReasonMissingRequiredField])
		assert.Equal(t, 1, resp.Report.RejectionsByReason[domain.ReasonUnparsablePrice])

		require.Len(t, resp.Rankings, 1)
		assert.Equal(t, "soft-drinks", resp.Rankings[0].Category)
		require.Len(t, resp.Rankings[0].Products, 2)
		coke := resp.Rankings[0].Products[0]
		assert.Equal(t, 2, coke.Group.SourcesCount)
		assert.Equal(t, "205", coke.AvgMarketPrice.String())
		assert.Equal(t, "215.25", coke.RecommendedPrice.String())

		assert.Equal(t, 1, srv.store.Size())
	})

	t.Run("empty listings produce a stored run with a warning", func(t *testing.T) {
		srv := setupTestRouterWithServices(t, &stubSource{}, nil)

		w := srv.do(t, "POST", "/api/v1/runs", `{"listings":[]}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp runResponse
		decode(t, w, &resp)
		assert.Equal(t, domain.ErrEmptyInputRun.Error(), resp.Warning)
		assert.True(t, resp.Report.EmptyInput)
		assert.Empty(t, resp.Rankings)
		assert.Equal(t, 1, srv.store.Size())
	})

	t.Run("returns 400 for invalid body", func(t *testing.T) {
		srv := setupTestRouterWithServices(t, &stubSource{}, nil)

		for _, body := range []string{`{"listings":`, `{}`, `{"listings":"nope"}`} {
			w := srv.do(t, "POST", "/api/v1/runs", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
		assert.Equal(t, 0, srv.store.Size())
	})
}

func TestCollectRun(t *testing.T) {
	source := &stubSource{
		listings: map[string][]domain.RawListing{
			"jumia": {{SourceID: "jumia", Fields: map[string]any{"name": "Coca-Cola 50cl", "price": "200"}}},
		},
		errs: map[string]error{"konga": fmt.Errorf("%w: status 503", domain.ErrSourceFailure)},
	}
	sources := []domain.SourceConfig{
		{Name: "jumia", Kind: "feed", URL: "http://jumia.test", Enabled: true},
		{Name: "konga", Kind: "feed", URL: "http://konga.test", Enabled: true},
		{Name: "disabled", Kind: "feed", URL: "http://off.test", Enabled: false},
	}

	t.Run("partial source failure is reported", func(t *testing.T) {
		srv := setupTestRouterWithServices(t, source, sources)

		w := srv.do(t, "POST", "/api/v1/runs/collect", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp runResponse
		decode(t, w, &resp)
		assert.Equal(t, 1, resp.Report.ValidListings)
		require.Len(t, resp.Report.SourceFailures, 1)
		assert.Equal(t, "konga", resp.Report.SourceFailures[0].Source)
	})

	t.Run("only failing sources is an empty run", func(t *testing.T) {
		srv := setupTestRouterWithServices(t, source, sources[1:2])

		w := srv.do(t, "POST", "/api/v1/runs/collect", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp runResponse
		decode(t, w, &resp)
		assert.NotEmpty(t, resp.Warning)
		assert.True(t, resp.Report.EmptyInput)
		assert.Len(t, resp.Report.SourceFailures, 1)
	})
}

func TestRunQueries(t *testing.T) {
	srv := setupTestRouterWithServices(t, &stubSource{}, nil)

	w := srv.do(t, "POST", "/api/v1/runs", runBody)
	require.Equal(t, http.StatusOK, w.Code)
	var created runResponse
	decode(t, w, &created)
	cokeID := created.Rankings[0].Products[0].Group.GroupID
	pepsiID := created.Rankings[0].Products[1].Group.GroupID

	t.Run("history", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Runs []domain.RunSummary `json:"runs"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, "run-1", resp.Runs[0].RunID)
		assert.Equal(t, 2, resp.Runs[0].Groups)

		assert.Equal(t, http.StatusBadRequest, srv.do(t, "GET", "/api/v1/runs?limit=many", "").Code)
	})

	t.Run("report by id and latest", func(t *testing.T) {
		for _, id := range []string{"run-1", "latest"} {
			w := srv.do(t, "GET", "/api/v1/runs/"+id, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp RunReportResponse
			decode(t, w, &resp)
			assert.Equal(t, "run-1", resp.RunID)
			assert.Equal(t, 3, resp.Report.ValidListings)
		}

		assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/run-404", "").Code)
	})

	t.Run("rankings with k", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs/latest/rankings?k=1", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Rankings []domain.CategoryRanking `json:"rankings"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Rankings, 1)
		require.Len(t, resp.Rankings[0].Products, 1)
		assert.Equal(t, cokeID, resp.Rankings[0].Products[0].Group.GroupID)
	})

	t.Run("invalid k", func(t *testing.T) {
		for _, k := range []string{"0", "-3", "abc"} {
			w := srv.do(t, "GET", "/api/v1/runs/latest/rankings?k="+k, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, k)
		}
	})

	t.Run("category ranking", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs/run-1/rankings/soft-drinks", "")
		require.Equal(t, http.StatusOK, w.Code)

		var ranking domain.CategoryRanking
		decode(t, w, &ranking)
		assert.Equal(t, "soft-drinks", ranking.Category)
		assert.Len(t, ranking.Products, 2)

		assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/run-1/rankings/snacks", "").Code)
	})

	t.Run("groups", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs/run-1/groups", "")
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Groups []domain.ProductGroup `json:"groups"`
		}
		decode(t, w, &list)
		assert.Len(t, list.Groups, 2)

		w = srv.do(t, "GET", "/api/v1/runs/run-1/groups/"+cokeID, "")
		require.Equal(t, http.StatusOK, w.Code)
		var product domain.ScoredProduct
		decode(t, w, &product)
		assert.Equal(t, cokeID, product.Group.GroupID)

		assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/run-1/groups/unknown", "").Code)
	})

	t.Run("similar", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs/run-1/groups/"+cokeID+"/similar?k=3", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Similar []domain.SimilarProduct `json:"similar"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Similar, 1)
		assert.Equal(t, pepsiID, resp.Similar[0].Product.Group.GroupID)
	})

	t.Run("search", func(t *testing.T) {
		type searchResponse struct {
			Mode    string             `json:"mode"`
			Results []domain.SearchHit `json:"results"`
		}
		tests := []struct {
			name      string
			query     string
			want      []string
			matchedOn string
			mode      string
		}{
			{"contains is the default mode", "q=cola", []string{cokeID}, "name", "contains"},
			{"exact brand", "q=PEPSI&mode=exact", []string{pepsiID}, "brand", "exact"},
			{"fuzzy name", "q=coka+cola&mode=fuzzy", []string{cokeID}, "name", "fuzzy"},
			{"price range", "min_price=150&max_price=190", []string{pepsiID}, "", "contains"},
			{"category filter", "q=cola&category=snacks", []string{}, "", "contains"},
			{"limit", "q=soft+drinks&k=1", []string{cokeID}, "category", "contains"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := srv.do(t, "GET", "/api/v1/runs/run-1/search?"+tt.query, "")
				require.Equal(t, http.StatusOK, w.Code, w.Body.String())

				var resp searchResponse
				decode(t, w, &resp)
				assert.Equal(t, tt.mode, resp.Mode)
				ids := []string{}
				for _, hit := range resp.Results {
					ids = append(ids, hit.Product.Group.GroupID)
					if tt.matchedOn != "" {
						assert.Equal(t, tt.matchedOn, hit.MatchedOn)
					}
				}
				assert.Equal(t, tt.want, ids)
			})
		}

		for query, status := range map[string]int{
			"q=cola&mode=regex":           http.StatusBadRequest,
			"min_price=abc":               http.StatusBadRequest,
			"min_price=300&max_price=100": http.StatusBadRequest,
			"q=cola&k=0":                  http.StatusBadRequest,
		} {
			assert.Equal(t, status, srv.do(t, "GET", "/api/v1/runs/run-1/search?"+query, "").Code, query)
		}
		assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/run-404/search?q=cola", "").Code)
	})

	t.Run("taxonomy", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/categories", "")
		require.Equal(t, http.StatusOK, w.Code)

		var taxonomy domain.Taxonomy
		decode(t, w, &taxonomy)
		assert.Equal(t, usecase.DefaultRuleSet().Version, taxonomy.RulesVersion)
		assert.Contains(t, taxonomy.Categories, "soft-drinks")
		assert.Equal(t, domain.Uncategorized, taxonomy.Uncategorized)
		assert.Equal(t, taxonomy.RulesVersion, created.Report.RulesVersion)
	})

	t.Run("csv export", func(t *testing.T) {
		w := srv.do(t, "GET", "/api/v1/runs/latest/export.csv", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "scored-run-1.csv")

		records, err := csv.NewReader(w.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, csvexport.Header, records[0])
		assert.Equal(t, cokeID, records[1][0])
	})
}

func TestDeleteRun(t *testing.T) {
	srv := setupTestRouterWithServices(t, &stubSource{}, nil)
	require.Equal(t, http.StatusOK, srv.do(t, "POST", "/api/v1/runs", runBody).Code)
	require.Equal(t, http.StatusOK, srv.do(t, "POST", "/api/v1/runs", runBody).Code)

	w := srv.do(t, "DELETE", "/api/v1/runs/latest", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		RunID   string `json:"runId"`
		Deleted bool   `json:"deleted"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "run-2", resp.RunID)
	assert.True(t, resp.Deleted)
	assert.Equal(t, 1, srv.store.Size())

	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/run-2", "").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, "DELETE", "/api/v1/runs/run-2", "").Code)

	require.Equal(t, http.StatusOK, srv.do(t, "DELETE", "/api/v1/runs/run-1", "").Code)
	assert.Equal(t, 0, srv.store.Size())
	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/runs/latest", "").Code)
}

func TestTrending(t *testing.T) {
	srv := setupTestRouterWithServices(t, &stubSource{}, nil)

	t.Run("no runs", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/v1/trending", "").Code)
	})

	t.Run("single run has no trends", func(t *testing.T) {
		require.Equal(t, http.StatusOK, srv.do(t, "POST", "/api/v1/runs", runBody).Code)

		w := srv.do(t, "GET", "/api/v1/trending", "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Categories []domain.CategoryTrends `json:"categories"`
		}
		decode(t, w, &resp)
		assert.Empty(t, resp.Categories)
	})

	t.Run("second run is compared with the first", func(t *testing.T) {
		body := strings.ReplaceAll(runBody, `"reviews":10`, `"reviews":40`)
		require.Equal(t, http.StatusOK, srv.do(t, "POST", "/api/v1/runs", body).Code)

		w := srv.do(t, "GET", "/api/v1/trending?k=1", "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Categories []domain.CategoryTrends `json:"categories"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Categories, 1)
		require.Len(t, resp.Categories[0].Trends, 1)
		assert.Greater(t, resp.Categories[0].Trends[0].ReviewGrowthPct, 0.0)
	})

	t.Run("invalid k", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, srv.do(t, "GET", "/api/v1/trending?k=0", "").Code)
	})
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for dashboard origin", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://app.shelfscout.io")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.shelfscout.io" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://app.shelfscout.io")
		}
	})

	t.Run("preflight on run endpoint", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("OPTIONS", "/api/v1/runs", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic without crashing server", func(t *testing.T) {
		router := setupTestRouter()

		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req, _ := http.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

// TestJSONResponses tests that API responses are valid JSON
func TestJSONResponses(t *testing.T) {
	srv := setupTestRouterWithServices(t, &stubSource{}, nil)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/api/v1/runs"},
		{"GET", "/api/v1/runs/missing"},
		{"GET", "/api/v1/trending"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			w := srv.do(t, endpoint.method, endpoint.path, "")

			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q, want application/json; charset=utf-8", got)
			}

			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Errorf("Response should be valid JSON, got error: %v", err)
			}
		})
	}
}
