package httptransport_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/events"
	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/memory"
	"github.com/ErlanBelekov/bloodbank/internal/ratelimit"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	httptransport "github.com/ErlanBelekov/bloodbank/internal/transport/http"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/handler"
	"github.com/ErlanBelekov/bloodbank/internal/transport/http/middleware"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testKey = "router-test-secret-at-least-32-chars"

type api struct {
	t *testing.T
	r *gin.Engine
}

// newAPI wires the full stack over in-memory stores.
func newAPI(t *testing.T) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	users := memory.NewUserRepository()
	units := memory.NewInventoryRepository()
	tokens := token.NewService([]byte(testKey))

	authUC := usecase.NewAuthUsecase(users, tokens, bcrypt.MinCost)
	userUC := usecase.NewUserUsecase(users, bcrypt.MinCost, logger)
	invUC := usecase.NewInventoryUsecase(units, events.NewLogPublisher(logger), logger)

	r := httptransport.NewRouter(logger,
		middleware.Authenticate(tokens, users, logger, middleware.DefaultPublicPrefixes...),
		httptransport.Handlers{
			Auth:      handler.NewAuthHandler(authUC, ratelimit.Noop{}, logger),
			Users:     handler.NewUserHandler(userUC, logger),
			Inventory: handler.NewInventoryHandler(invUC, logger),
			Checker:   health.NewChecker(logger, prometheus.NewRegistry()),
		},
		false,
	)
	return &api{t: t, r: r}
}

func (a *api) do(method, path, bearer, body string) (int, map[string]any) {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (a *api) register(username, role string) (tok, id string) {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/auth/register", "",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"secret1","role":"`+role+`"}`)
	if code != http.StatusCreated {
		a.t.Fatalf("register %s: status %d body %v", username, code, body)
	}
	tok = body["token"].(string)

	code, prof := a.do(http.MethodGet, "/users/profile", tok, "")
	if code != http.StatusOK {
		a.t.Fatalf("profile %s: status %d", username, code)
	}
	return tok, prof["id"].(string)
}

func TestEndToEnd_DonorIsForbiddenFromAdminRoute(t *testing.T) {
	a := newAPI(t)
	a.register("alice", "DONOR")

	code, body := a.do(http.MethodPost, "/auth/login", "", `{"username":"alice","password":"secret1"}`)
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}
	tok := body["token"].(string)

	code, body = a.do(http.MethodPost, "/auth/verify", "", `{"token":"`+tok+`"}`)
	if code != http.StatusOK || body["role"] != "DONOR" || body["username"] != "alice" {
		t.Fatalf("verify: %d %v", code, body)
	}

	if code, _ = a.do(http.MethodGet, "/users", tok, ""); code != http.StatusForbidden {
		t.Errorf("GET /users as donor = %d, want 403", code)
	}
	if code, _ = a.do(http.MethodGet, "/users", "", ""); code != http.StatusUnauthorized {
		t.Errorf("GET /users anonymous = %d, want 401", code)
	}
}

func TestLogin_UnknownAndWrongPasswordIdentical(t *testing.T) {
	a := newAPI(t)
	a.register("alice", "DONOR")

	c1, b1 := a.do(http.MethodPost, "/auth/login", "", `{"username":"alice","password":"wrong"}`)
	c2, b2 := a.do(http.MethodPost, "/auth/login", "", `{"username":"nobody","password":"secret1"}`)

	if c1 != http.StatusUnauthorized || c1 != c2 || b1["error"] != b2["error"] {
		t.Errorf("responses differ: %d %v vs %d %v", c1, b1, c2, b2)
	}
}

func TestDeactivatedPrincipalLosesAccess(t *testing.T) {
	a := newAPI(t)
	adminTok, _ := a.register("root", "ADMIN")
	nurseTok, nurseID := a.register("nina", "NURSE")

	if code, _ := a.do(http.MethodGet, "/inventory", nurseTok, ""); code != http.StatusOK {
		t.Fatalf("nurse list inventory = %d", code)
	}
	if code, _ := a.do(http.MethodDelete, "/users/"+nurseID, adminTok, ""); code != http.StatusOK {
		t.Fatalf("deactivate = %d", code)
	}

	if code, _ := a.do(http.MethodGet, "/inventory", nurseTok, ""); code != http.StatusUnauthorized {
		t.Errorf("deactivated nurse = %d, want 401", code)
	}
	code, body := a.do(http.MethodPost, "/auth/verify", "", `{"token":"`+nurseTok+`"}`)
	if code != http.StatusOK || body["active"] != false {
		t.Errorf("verify after deactivation = %d %v, want 200 active=false", code, body)
	}
}

func TestSelfOrAdmin(t *testing.T) {
	a := newAPI(t)
	adminTok, _ := a.register("root", "ADMIN")
	aliceTok, aliceID := a.register("alice", "DONOR")
	_, bobID := a.register("bob", "DONOR")

	cases := []struct {
		name   string
		bearer string
		id     string
		want   int
	}{
		{"self", aliceTok, aliceID, http.StatusOK},
		{"other", aliceTok, bobID, http.StatusForbidden},
		{"admin", adminTok, bobID, http.StatusOK},
		{"admin missing user", adminTok, "00000000-0000-0000-0000-000000000000", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := a.do(http.MethodGet, "/users/"+tc.id, tc.bearer, ""); code != tc.want {
				t.Errorf("status = %d, want %d", code, tc.want)
			}
		})
	}

	// a donor cannot promote themselves even on their own record
	if code, _ := a.do(http.MethodPut, "/users/"+aliceID, aliceTok, `{"role":"ADMIN"}`); code != http.StatusForbidden {
		t.Errorf("self promotion = %d, want 403", code)
	}
}

func TestInventoryLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	nurseTok, _ := a.register("nina", "NURSE")
	donorTok, _ := a.register("dana", "DONOR")
	techTok, _ := a.register("tess", "TECHNICIAN")

	expiry := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	unitBody := `{"blood_type":"A+","quantity":450,"expiry_date":"` + expiry + `"}`

	if code, _ := a.do(http.MethodPost, "/inventory/add", donorTok, unitBody); code != http.StatusForbidden {
		t.Errorf("donor add = %d, want 403", code)
	}
	if code, _ := a.do(http.MethodPost, "/inventory/add", "", unitBody); code != http.StatusUnauthorized {
		t.Errorf("anonymous add = %d, want 401", code)
	}

	code, unit := a.do(http.MethodPost, "/inventory/add", nurseTok, unitBody)
	if code != http.StatusCreated {
		t.Fatalf("nurse add = %d %v", code, unit)
	}
	id := unit["id"].(string)
	if unit["status"] != "AVAILABLE" || unit["blood_type"] != "A_POSITIVE" {
		t.Errorf("unexpected unit %v", unit)
	}

	if code, _ = a.do(http.MethodPost, "/inventory/"+id+"/remove?quantity=500", nurseTok, ""); code != http.StatusConflict {
		t.Errorf("over-remove = %d, want 409", code)
	}
	if code, _ = a.do(http.MethodPost, "/inventory/"+id+"/remove?quantity=abc", nurseTok, ""); code != http.StatusBadRequest {
		t.Errorf("bad quantity = %d, want 400", code)
	}
	if code, _ = a.do(http.MethodPost, "/inventory/"+id+"/remove?quantity=50", techTok, ""); code != http.StatusForbidden {
		t.Errorf("technician remove = %d, want 403", code)
	}

	code, total := a.do(http.MethodGet, "/inventory/total/A_POSITIVE", donorTok, "")
	if code != http.StatusOK || total["total"] != float64(450) {
		t.Errorf("total = %d %v, want 450", code, total)
	}

	code, unit = a.do(http.MethodPost, "/inventory/"+id+"/remove?quantity=450", nurseTok, "")
	if code != http.StatusOK || unit["status"] != "DISCARDED" || unit["quantity"] != float64(0) {
		t.Errorf("exhaust = %d %v, want DISCARDED/0", code, unit)
	}

	code, avail := a.do(http.MethodGet, "/inventory/available", donorTok, "")
	if code != http.StatusOK || len(avail["units"].([]any)) != 0 {
		t.Errorf("available after discard = %d %v", code, avail)
	}

	if code, _ = a.do(http.MethodGet, "/inventory/"+id, donorTok, ""); code != http.StatusOK {
		t.Errorf("get unit = %d", code)
	}
	if code, _ = a.do(http.MethodGet, "/inventory/type/Z", donorTok, ""); code != http.StatusBadRequest {
		t.Errorf("bad blood type = %d, want 400", code)
	}
}

func TestSweepOverHTTP(t *testing.T) {
	a := newAPI(t)
	techTok, _ := a.register("tess", "TECHNICIAN")
	doctorTok, _ := a.register("doc", "DOCTOR")

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if code, _ := a.do(http.MethodPost, "/inventory/add", techTok, `{"blood_type":"O_NEGATIVE","quantity":200,"expiry_date":"`+past+`"}`); code != http.StatusCreated {
		t.Fatalf("add = %d", code)
	}

	if code, _ := a.do(http.MethodPost, "/inventory/sweep", doctorTok, ""); code != http.StatusForbidden {
		t.Errorf("doctor sweep = %d, want 403", code)
	}

	code, body := a.do(http.MethodPost, "/inventory/sweep", techTok, "")
	if code != http.StatusOK || body["expired"] != float64(1) {
		t.Errorf("sweep = %d %v, want 1 expired", code, body)
	}
	_, body = a.do(http.MethodPost, "/inventory/sweep", techTok, "")
	if body["expired"] != float64(0) {
		t.Errorf("second sweep expired %v, want 0", body["expired"])
	}

	code, body = a.do(http.MethodGet, "/inventory/expired", techTok, "")
	if code != http.StatusOK || len(body["units"].([]any)) != 1 {
		t.Errorf("expired listing = %d %v", code, body)
	}
}

func TestPublicRoutes(t *testing.T) {
	a := newAPI(t)

	for _, path := range []string{"/health", "/meta/roles", "/meta/blood-types"} {
		if code, _ := a.do(http.MethodGet, path, "", ""); code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, code)
		}
	}
}

func TestBulkDeactivate_PartialFailure(t *testing.T) {
	a := newAPI(t)
	adminTok, _ := a.register("root", "ADMIN")
	_, bobID := a.register("bob", "DONOR")

	code, body := a.do(http.MethodPost, "/users/bulk-deactivate", adminTok, `{"ids":["`+bobID+`","ghost"]}`)
	if code != http.StatusOK {
		t.Fatalf("bulk = %d %v", code, body)
	}
	if body["succeeded"] != float64(1) {
		t.Errorf("succeeded = %v, want 1", body["succeeded"])
	}
	failed := body["failed"].([]any)
	if len(failed) != 1 || failed[0] != "ghost" {
		t.Errorf("failed = %v, want [ghost]", failed)
	}
}

func TestSearchUsers_Filters(t *testing.T) {
	a := newAPI(t)
	for _, u := range []struct{ name, role, blood string }{
		{"nina", "NURSE", "A_POSITIVE"},
		{"dana", "DONOR", "O_NEGATIVE"},
		{"dora", "DONOR", "A_POSITIVE"},
	} {
		code, body := a.do(http.MethodPost, "/auth/register", "",
			`{"username":"`+u.name+`","email":"`+u.name+`@example.com","password":"secret1","role":"`+u.role+`","blood_type":"`+u.blood+`"}`)
		if code != http.StatusCreated {
			t.Fatalf("register %s: %d %v", u.name, code, body)
		}
	}
	tok, _ := a.register("viewer", "DOCTOR")

	names := func(body map[string]any) []string {
		var out []string
		for _, u := range body["users"].([]any) {
			out = append(out, u.(map[string]any)["username"].(string))
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"role and blood type", "?role=DONOR&blood_type=A%2B", "dora"},
		{"name substring", "?name=an", "dana"},
		{"q alias", "?q=nin", "nina"},
		{"role only", "?role=donor", "dana,dora"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := a.do(http.MethodGet, "/users/search"+tt.query, tok, "")
			if code != http.StatusOK {
				t.Fatalf("search = %d %v", code, body)
			}
			if got := strings.Join(names(body), ","); got != tt.want {
				t.Errorf("users = %s, want %s", got, tt.want)
			}
		})
	}

	if code, _ := a.do(http.MethodGet, "/users/search?blood_type=Z", tok, ""); code != http.StatusBadRequest {
		t.Errorf("bad blood type = %d, want 400", code)
	}

	code, body := a.do(http.MethodPost, "/users/search", tok, `{"role":"DONOR","page":1,"size":1}`)
	if code != http.StatusOK {
		t.Fatalf("advanced search = %d %v", code, body)
	}
	if got := strings.Join(names(body), ","); got != "dora" || body["total"] != float64(2) {
		t.Errorf("page 1 = %s total %v, want dora of 2", got, body["total"])
	}
}
