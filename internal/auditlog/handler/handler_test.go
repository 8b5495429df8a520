package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/auditlog"
	"gatekeeper/internal/auditlog/store"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/testutil"
)

func newTestRouter(reader Reader) http.Handler {
	r := chi.NewRouter()
	New(reader, slog.Default(), nil).Register(r)
	return r
}

func seedRecord(t *testing.T, st *store.InMemory, appID id.ApplicationID, evaluatedAt time.Time) *auditlog.AuditLog {
	t.Helper()

	evidence, err := auditlog.NewDecisionEvidence(
		`[{"tool":"snyk"}]`,
		`{"application":"payment-api"}`,
		`{"allow":false}`,
		evaluatedAt,
	)
	require.NoError(t, err)

	record, err := auditlog.New(
		id.NewEvaluationID(), appID, "payment-api", "production", id.RiskTierCritical,
		false, "tier policy", []string{"Critical vulnerabilities (1) exceed maximum (0)"},
		evidence, auditlog.SeverityCounts{Critical: 1, High: 2}, 42*time.Millisecond, evaluatedAt,
	)
	require.NoError(t, err)
	require.NoError(t, st.Append(context.Background(), record))
	return record
}

func TestHandleGetByEvaluation(t *testing.T) {
	st := store.NewInMemory()
	appID := id.NewApplicationID()
	record := seedRecord(t, st, appID, time.Now())
	router := newTestRouter(st)

	w := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/evaluations/"+record.EvaluationID.String()+"/audit"))
	testutil.AssertStatusOK(t, w)

	resp := testutil.UnmarshalResponse[AuditLogResponse](t, w)
	assert.Equal(t, record.EvaluationID.String(), resp.EvaluationID)
	assert.False(t, resp.Allowed)
	assert.Equal(t, 1, resp.Counts.Critical)
	assert.Equal(t, 3, resp.Counts.Total)
	assert.Equal(t, int64(42), resp.DurationMillis)
	assert.JSONEq(t, `{"allow":false}`, string(resp.Evidence.EngineOutput))
}

func TestHandleGetByEvaluationNotFound(t *testing.T) {
	router := newTestRouter(store.NewInMemory())

	w := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/evaluations/"+id.NewEvaluationID().String()+"/audit"))
	testutil.AssertStatusAndError(t, w, http.StatusNotFound, "not_found")
}

func TestHandleGetByEvaluationBadID(t *testing.T) {
	router := newTestRouter(store.NewInMemory())

	w := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/evaluations/not-a-uuid/audit"))
	testutil.AssertStatusAndError(t, w, http.StatusBadRequest, "validation")
}

func TestHandleListByApplication(t *testing.T) {
	st := store.NewInMemory()
	appID := id.NewApplicationID()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		seedRecord(t, st, appID, base.Add(time.Duration(i)*time.Minute))
	}
	seedRecord(t, st, id.NewApplicationID(), base) // other application must not leak in
	router := newTestRouter(st)

	path := fmt.Sprintf("/applications/%s/audit-logs?limit=2", appID)
	w := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, path))
	testutil.AssertStatusOK(t, w)

	resp := testutil.UnmarshalResponse[AuditLogListResponse](t, w)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	// Newest first.
	assert.True(t, resp.Records[0].EvaluatedAt.After(resp.Records[1].EvaluatedAt))
}

func TestHandleListByApplicationBadLimit(t *testing.T) {
	router := newTestRouter(store.NewInMemory())

	path := "/applications/" + id.NewApplicationID().String() + "/audit-logs?limit=-1"
	w := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, path))
	testutil.AssertStatusAndError(t, w, http.StatusBadRequest, "validation")
}
