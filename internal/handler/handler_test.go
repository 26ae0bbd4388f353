package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/database"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"github.com/studiodesk/ffetrack/internal/service"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	store := repository.NewStore(db)
	bus := eventbus.NewChangeEventBus()
	m := metrics.New(prometheus.NewRegistry())
	items := service.NewItemService(store, bus, m, nil)
	tree := service.NewInstanceTreeService(store, bus, m, "USD")
	linking := service.NewLinkingService(store, bus, m, "USD")
	pricing := service.NewPricingService(store)
	materializer := service.NewMaterializerService(store, bus, m, "USD")
	changeLogs := service.NewChangeLogService(store)

	r := gin.New()
	api := r.Group("/api")
	api.Use(ActorMiddleware(1))
	NewTemplateHandler(service.NewTemplateService(store, bus, m)).RegisterRoutes(api)
	NewRoomHandler(service.NewRoomService(store, bus, m), materializer).RegisterRoutes(api)
	NewInstanceHandler(materializer, items, tree, pricing, changeLogs).RegisterRoutes(api)
	NewItemHandler(items, tree, linking, pricing).RegisterRoutes(api)
	NewChangeLogHandler(changeLogs).RegisterRoutes(api)
	return &testServer{router: r, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerActor, "designer@studio.test")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

// setupInstance 创建模板和房间并物化，返回实例
func (s *testServer) setupInstance(t *testing.T) model.RoomInstance {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/templates", service.CreateTemplateRequest{
		Name: "Master Bath v2",
		Sections: []service.TemplateSectionRequest{{
			Name: "Plumbing",
			Items: []service.TemplateItemRequest{
				{Name: "Vanity Faucet", Category: "Plumbing Fixtures", Required: true},
				{Name: "Shower Head"},
			},
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var template service.TemplateDetailDTO
	decodeData(t, w, &template)

	w = s.do(t, http.MethodPost, "/api/rooms", service.CreateRoomRequest{Name: "Room R", ProjectID: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room model.Room
	decodeData(t, w, &room)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/materialize", room.ID), MaterializeBody{TemplateID: &template.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var instance model.RoomInstance
	decodeData(t, w, &instance)
	return instance
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMaterializeEndpointIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	instance := s.setupInstance(t)
	require.Len(t, instance.Sections, 1)
	require.Len(t, instance.Sections[0].Items, 2)

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/materialize", instance.RoomID), MaterializeBody{TemplateID: instance.TemplateID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, errorBody(t, w)["created"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d/instance", instance.RoomID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.RoomInstance
	decodeData(t, w, &got)
	assert.Equal(t, instance.ID, got.ID)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	instance := s.setupInstance(t)
	faucet := instance.Sections[0].Items[0]

	w := s.do(t, http.MethodPut, fmt.Sprintf("/api/items/%d/state", faucet.ID), StateRequest{State: domain.StateCompleted})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, string(domain.KindInvalidTransition), body["kind"])
	assert.Equal(t, string(domain.EntityItem), body["entity"])
	assert.EqualValues(t, faucet.ID, body["id"])

	w = s.do(t, http.MethodGet, "/api/items/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/instances/%d", instance.ID), nil, headerOrgID, "2")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/instances/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/instances/1", nil, headerOrgID, "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/items/%d/visibility", faucet.ID), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/templates/%d", *instance.TemplateID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVisibilityAndExecutionEndpoints(t *testing.T) {
	s := newTestServer(t)
	instance := s.setupInstance(t)
	faucet := instance.Sections[0].Items[0]

	w := s.do(t, http.MethodPut, fmt.Sprintf("/api/items/%d/visibility", faucet.ID), VisibilityRequest{Visibility: domain.VisibilityHidden},
		headerRequestID, "req-7")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var logs []model.ChangeLog
	require.NoError(t, s.db.Where("correlation_id = ?", "req-7").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "designer@studio.test", logs[0].Actor)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/instances/%d/execution", instance.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view service.InstanceView
	decodeData(t, w, &view)
	assert.Empty(t, view.Sections[0].Items)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/instances/%d/visibility", instance.ID), VisibilityRequest{Visibility: domain.VisibilityVisible})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bulk service.BulkVisibilityResult
	decodeData(t, w, &bulk)
	assert.Equal(t, 2, bulk.Changed)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/instances/%d/progress", instance.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress service.Progress
	decodeData(t, w, &progress)
	assert.Equal(t, 1, progress.Total)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/change-logs/item/%d", faucet.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.ChangeLogPage
	decodeData(t, w, &page)
	assert.Len(t, page.Items, 2)
}

func TestOptionsAndQuoteEndpoints(t *testing.T) {
	s := newTestServer(t)
	instance := s.setupInstance(t)
	faucet := instance.Sections[0].Items[0]

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/items/%d/options", faucet.ID), map[string]interface{}{
		"name":           "Faucet Model X",
		"unit_cost":      "100",
		"quantity":       "2",
		"markup_percent": "10",
		"components":     []map[string]interface{}{{"name": "Handle", "unit_price": "20", "quantity": "3"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var spec model.InstanceItem
	decodeData(t, w, &spec)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/items/%d/promote", spec.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/instances/%d/quote", instance.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote service.InstanceQuote
	decodeData(t, w, &quote)
	require.Len(t, quote.Subtotals, 1)
	assert.Equal(t, "266", quote.Subtotals[0].GrandTotal.String())

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/instances/%d/quote/export", instance.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "quote.xlsx")
	assert.NotEmpty(t, w.Body.Bytes())

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d/link", spec.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d/options", faucet.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var options []service.OptionView
	decodeData(t, w, &options)
	assert.Empty(t, options)
}

func TestStatusOf(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindNotFound:          http.StatusNotFound,
		domain.KindForbidden:         http.StatusForbidden,
		domain.KindConflict:          http.StatusConflict,
		domain.KindInvalidArgument:   http.StatusBadRequest,
		domain.KindInvalidTransition: http.StatusUnprocessableEntity,
		domain.KindCurrencyMismatch:  http.StatusUnprocessableEntity,
		"":                           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusOf(kind), "kind=%q", kind)
	}
}
