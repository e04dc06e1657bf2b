package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mlm-engine/internal/authz"
	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/metrics"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/provider"
	"github.com/mlm-engine/internal/repository"
	"github.com/mlm-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const routerTestSecret = "router-test-secret"

type routerTestEnv struct {
	engine   *gin.Engine
	repo     *repository.MemoryLedgerRepository
	operator *models.Participant
}

type routerTestResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupRouterTest(t *testing.T) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}

	repo := repository.NewMemoryLedgerRepository()
	operator := &models.Participant{
		Name:         "operator",
		ReferralCode: "OPERATOR",
		Role:         constants.ParticipantRoleAdmin,
		Status:       constants.ParticipantStatusActive,
	}
	if err := repo.CreateParticipant(operator); err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if err := authzService.GrantOperator(operator.ID); err != nil {
		t.Fatalf("grant operator failed: %v", err)
	}

	svc, err := service.NewCompensationService(repo, service.CompensationDefaultSetting(), service.LockSetting{
		Timeout:      time.Second,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new compensation service failed: %v", err)
	}
	compensationMetrics := metrics.NewCompensationMetrics()
	svc.SetObserver(compensationMetrics)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{SecretKey: routerTestSecret},
	}
	container := &provider.Container{
		Config:              cfg,
		Metrics:             compensationMetrics,
		LedgerRepo:          repo,
		AuthzService:        authzService,
		CompensationService: svc,
	}
	return &routerTestEnv{
		engine:   SetupRouter(cfg, container),
		repo:     repo,
		operator: operator,
	}
}

func (env *routerTestEnv) do(t *testing.T, method, path string, actorID uint, body interface{}) routerTestResponse {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != 0 {
		req.Header.Set("Authorization", "Bearer "+signTestActorToken(t, routerTestSecret, actorID))
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s http status want 200 got %d: %s", method, path, w.Code, w.Body.String())
	}

	var resp routerTestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp
}

func decodeRouterTestData(t *testing.T, resp routerTestResponse, target interface{}) {
	t.Helper()
	if resp.StatusCode != 0 {
		t.Fatalf("expected success, got status_code=%d msg=%s", resp.StatusCode, resp.Msg)
	}
	if err := json.Unmarshal(resp.Data, target); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
}

func TestRouterEnrollAndBusinessInfoFlow(t *testing.T) {
	env := setupRouterTest(t)

	var root models.Participant
	decodeRouterTestData(t, env.do(t, http.MethodPost, "/api/v1/admin/participants/root", env.operator.ID, gin.H{"name": "R"}), &root)

	var enrolled service.EnrollResult
	decodeRouterTestData(t, env.do(t, http.MethodPost, "/api/v1/admin/participants", env.operator.ID, gin.H{
		"name":         "A",
		"sponsor_code": root.ReferralCode,
		"side":         constants.SideLeft,
		"package": gin.H{
			"tier":           "standard",
			"monthly_amount": "1000",
			"total_months":   12,
		},
	}), &enrolled)
	if enrolled.Package == nil || enrolled.Package.CompensatedAt == nil {
		t.Fatalf("enrollment package should be compensated")
	}

	var info struct {
		LeftCarryForward string `json:"left_carry_forward"`
		LeftTeamCount    int64  `json:"left_team_count"`
	}
	decodeRouterTestData(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/participants/%d/business-info", root.ID), root.ID, nil), &info)
	if info.LeftCarryForward != "1000.00" || info.LeftTeamCount != 1 {
		t.Fatalf("unexpected business info: %+v", info)
	}

	var earnings []models.Earning
	decodeRouterTestData(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/participants/%d/earnings", root.ID), root.ID, nil), &earnings)
	if len(earnings) == 0 || earnings[0].Type != constants.EarningTypeDirect {
		t.Fatalf("root should have a direct earning, got %+v", earnings)
	}

	// 会员不能查看他人数据
	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/participants/%d/earnings", root.ID), enrolled.Participant.ID, nil)
	if resp.StatusCode != 403 {
		t.Fatalf("status_code want 403 got %d", resp.StatusCode)
	}
}

func TestRouterAdminRoutesRequireRole(t *testing.T) {
	env := setupRouterTest(t)

	member := &models.Participant{
		Name:         "member",
		ReferralCode: "MEMBER01",
		Role:         constants.ParticipantRoleMember,
		Status:       constants.ParticipantStatusActive,
	}
	if err := env.repo.CreateParticipant(member); err != nil {
		t.Fatalf("create member failed: %v", err)
	}

	if resp := env.do(t, http.MethodPost, "/api/v1/admin/recalculate", 0, nil); resp.StatusCode != 401 {
		t.Fatalf("anonymous status_code want 401 got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/v1/admin/recalculate", member.ID, nil); resp.StatusCode != 403 {
		t.Fatalf("member status_code want 403 got %d", resp.StatusCode)
	}

	var result service.RecalculateResult
	decodeRouterTestData(t, env.do(t, http.MethodPost, "/api/v1/admin/recalculate", env.operator.ID, nil), &result)
	if result.ChangedCount != 0 {
		t.Fatalf("recalculate on consistent ledger should change nothing, got %+v", result)
	}
}

func TestRouterMapsServiceErrors(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/participants/%d", env.operator.ID), env.operator.ID, nil)
	if resp.StatusCode != 403 {
		t.Fatalf("removing admin status_code want 403 got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/v1/admin/participants/999", env.operator.ID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("removing missing participant status_code want 404 got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/api/v1/admin/packages", env.operator.ID, gin.H{
		"buyer_id":       env.operator.ID,
		"monthly_amount": "-1",
		"total_months":   3,
	})
	if resp.StatusCode != 400 {
		t.Fatalf("invalid amount status_code want 400 got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/v1/admin/participants/abc", env.operator.ID, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("invalid id status_code want 400 got %d", resp.StatusCode)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := setupRouterTest(t)

	var root models.Participant
	decodeRouterTestData(t, env.do(t, http.MethodPost, "/api/v1/admin/participants/root", env.operator.ID, gin.H{"name": "R"}), &root)
	env.do(t, http.MethodPost, "/api/v1/admin/participants", env.operator.ID, gin.H{
		"name":         "A",
		"sponsor_code": root.ReferralCode,
		"side":         constants.SideRight,
		"package": gin.H{
			"monthly_amount": "200",
			"total_months":   6,
		},
	})

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `mlm_earnings_credited_total{type="direct"} 1`) {
		t.Fatalf("metrics should count direct earning, got:\n%s", w.Body.String())
	}
}
