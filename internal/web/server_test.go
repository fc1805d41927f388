package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akshaychugh/betterreads/internal/auth"
	"github.com/akshaychugh/betterreads/internal/config"
	"github.com/akshaychugh/betterreads/internal/library"
)

const exportHeaderLine = "Book Id,Title,Author,ISBN,ISBN13,My Rating,Average Rating,Number of Pages,Date Read,Date Added,Exclusive Shelf,My Review"

// memoryUserStore backs the auth service in tests.
type memoryUserStore struct {
	byEmail map[string]auth.User
}

func (m *memoryUserStore) CreateUser(ctx context.Context, user auth.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return auth.ErrEmailTaken
	}
	m.byEmail[user.Email] = user
	return nil
}

func (m *memoryUserStore) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	return user, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Import.BatchSize = 100
	cfg.Import.MaxUploadBytes = 1 << 20
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := library.NewMemoryStore()
	authSvc := auth.NewService(&memoryUserStore{byEmail: make(map[string]auth.User)},
		"test-secret", time.Hour, 4)
	importer := library.NewImporter(store, 100, nil)
	stats := library.NewStatsService(store)
	return NewServer(testConfig(), authSvc, importer, stats, store, nil, stubPinger{})
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, s *Server, email string) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/auth/register", "",
		map[string]string{"email": email, "password": "hunter22"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func uploadCSV(t *testing.T, s *Server, path, token, csvBody string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	part, err := mpw.CreateFormFile("file", "goodreads_library_export.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(csvBody)); err != nil {
		t.Fatal(err)
	}
	mpw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t)
		rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		store := library.NewMemoryStore()
		authSvc := auth.NewService(&memoryUserStore{byEmail: make(map[string]auth.User)},
			"test-secret", time.Hour, 4)
		s := NewServer(testConfig(), authSvc, library.NewImporter(store, 100, nil),
			library.NewStatsService(store), store, nil, stubPinger{err: errors.New("down")})
		rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "reader@example.com")
	if token == "" {
		t.Fatal("register returned no token")
	}

	t.Run("duplicate email", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/auth/register", "",
			map[string]string{"email": "reader@example.com", "password": "x"})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("login", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/auth/login", "",
			map[string]string{"email": "Reader@Example.com", "password": "hunter22"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
	})

	t.Run("bad password", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/auth/login", "",
			map[string]string{"email": "reader@example.com", "password": "wrong"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/auth/register", "",
			map[string]string{"email": "", "password": ""})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	t.Run("no token", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/shelf-counts", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/shelf-counts", "not.a.token", nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("token cookie accepted", func(t *testing.T) {
		token := registerUser(t, s, "cookie@example.com")
		req := httptest.NewRequest(http.MethodGet, "/api/shelf-counts", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
	})
}

func TestImportEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "reader@example.com")

	body := exportHeaderLine + "\n" +
		"1,The Hobbit,J.R.R. Tolkien,,,5,4.28,310,2023/05/10,2023/01/02,read,\n" +
		"2,Dune,Frank Herbert,,,0,4.27,412,,2023/02/03,to-read,\n"

	rec := uploadCSV(t, s, "/api/import-books", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Report      library.ImportReport `json:"report"`
		ShelfCounts map[string]int       `json:"shelf_counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Report.RowsInserted != 2 {
		t.Errorf("inserted = %d, want 2", resp.Report.RowsInserted)
	}
	if resp.ShelfCounts["read"] != 1 || resp.ShelfCounts["to-read"] != 1 {
		t.Errorf("shelf_counts = %v", resp.ShelfCounts)
	}
}

func TestImportEndpoint_SchemaMismatch(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "reader@example.com")

	rec := uploadCSV(t, s, "/api/import-books", token, "Title,Author\nA,B\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != string(library.CodeSchemaMismatch) {
		t.Errorf("code = %q, want %q", resp.Code, library.CodeSchemaMismatch)
	}
	if len(resp.MissingHeaders) == 0 {
		t.Error("expected missing_headers in response")
	}
}

func TestVerifyCSVEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "reader@example.com")

	t.Run("valid header", func(t *testing.T) {
		rec := uploadCSV(t, s, "/api/verify-csv", token, exportHeaderLine+"\n")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		if !strings.Contains(rec.Body.String(), `"is_valid":true`) {
			t.Errorf("body = %s", rec.Body)
		}
	})

	t.Run("invalid header", func(t *testing.T) {
		rec := uploadCSV(t, s, "/api/verify-csv", token, "Title\n")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("no file part", func(t *testing.T) {
		var buf bytes.Buffer
		mpw := multipart.NewWriter(&buf)
		mpw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/verify-csv", &buf)
		req.Header.Set("Content-Type", mpw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestLibraryEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "reader@example.com")

	body := exportHeaderLine + "\n" +
		"1,The Hobbit,J.R.R. Tolkien,,,5,4.28,310,2023/05/10,2023/01/02,read,\n" +
		"2,Dune,Frank Herbert,,,4,4.27,412,,2023/02/03,to-read,\n" +
		"3,Emma,Jane Austen,,,3,4.03,374,2023/06/01,2023/03/04,read,\n"
	if rec := uploadCSV(t, s, "/api/import-books", token, body); rec.Code != http.StatusOK {
		t.Fatalf("import failed: %d %s", rec.Code, rec.Body)
	}

	t.Run("shelf counts", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/shelf-counts", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			ShelfCounts map[string]int `json:"shelf_counts"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ShelfCounts["read"] != 2 || resp.ShelfCounts["to-read"] != 1 {
			t.Errorf("shelf_counts = %v", resp.ShelfCounts)
		}
	})

	t.Run("library stats", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/library-stats", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var stats library.LibraryStats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatal(err)
		}
		if stats.ReadingStats.BooksRead != 2 {
			t.Errorf("books_read = %d, want 2", stats.ReadingStats.BooksRead)
		}
	})

	t.Run("imported books with filters", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/imported-books?shelf=read&sort=title", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Books []library.Book `json:"books"`
			Count int            `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Count != 2 || resp.Books[0].Title != "Emma" {
			t.Errorf("books = %+v", resp.Books)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/imported-books?limit=abc", token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("recommendations", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/recommendations", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("summary disabled", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/summary", token, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503 when no API key is configured", rec.Code)
		}
	})

	t.Run("clear books", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodDelete, "/api/books", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"deleted":3`) {
			t.Errorf("body = %s", rec.Body)
		}
	})
}

// Each user only ever sees their own books.
func TestLibraryIsolationBetweenUsers(t *testing.T) {
	s := newTestServer(t)
	tokenA := registerUser(t, s, "a@example.com")
	tokenB := registerUser(t, s, "b@example.com")

	body := exportHeaderLine + "\n1,The Hobbit,J.R.R. Tolkien,,,5,4.28,310,,,read,\n"
	if rec := uploadCSV(t, s, "/api/import-books", tokenA, body); rec.Code != http.StatusOK {
		t.Fatalf("import failed: %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/imported-books", tokenB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 0 {
		t.Errorf("user B sees %d of user A's books", resp.Count)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("fourth request should be rejected")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("other clients are not affected")
	}
}
