package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/powerman/structlog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"quotations/internal/config"
	"quotations/internal/db/dbtest"
	"quotations/pkg/imagestore"
)

// performRequest sends one request through the engine, with a bearer token when given.
func performRequest(r http.Handler, method, path string, body io.Reader, token, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type part struct {
	field, filename string
	data            []byte
}

// multipartBody builds a form; parts with a filename become file parts.
func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, w.WriteField(p.field, string(p.data)))
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", "image/png")
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(8, 8, color.NRGBA{G: 255, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env: "test",
		Auth: config.AuthConfig{
			JWTSecret:  []byte("server-test-secret-0123"),
			Issuer:     "quotations-test",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Images: config.ImageConfig{
			Backend:        config.BackendLocal,
			UploadDir:      t.TempDir(),
			PublicPath:     "/uploads",
			MaxUploadBytes: 1 << 20,
			MaxDimension:   64,
		},
		CORSOrigins: []string{"http://localhost:4200"},
	}
	log := structlog.New()
	images, err := imagestore.FromConfig(context.Background(), cfg.Images, log)
	require.NoError(t, err)
	srv, err := New(cfg, dbtest.New(t), images, log)
	require.NoError(t, err)
	return srv.Router()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type itemResponse struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     *string         `json:"image"`
}

type lineResponse struct {
	ItemID uint            `json:"item_id"`
	Qty    decimal.Decimal `json:"qty"`
	Price  decimal.Decimal `json:"price"`
	Total  decimal.Decimal `json:"total"`
	Item   itemResponse    `json:"item"`
}

type quotationResponse struct {
	ID            uint            `json:"id"`
	QuoteNo       string          `json:"quote_no"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone *string         `json:"customer_phone"`
	SalesmanName  string          `json:"salesman_name"`
	Tax           decimal.Decimal `json:"tax"`
	Items         []lineResponse  `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func login(t *testing.T, r http.Handler, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "secret1"}
	resp := performRequest(r, http.MethodPost, "/auth/register", jsonBody(t, creds), "", "application/json")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	resp = performRequest(r, http.MethodPost, "/auth/login", jsonBody(t, creds), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	tok := decode[tokenResponse](t, resp)
	require.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func assertError(t *testing.T, resp *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, resp.Code, resp.Body.String())
	assert.Equal(t, kind, decode[errorBody](t, resp).Kind)
}

func TestHealthz(t *testing.T) {
	r := setupTestServer(t)
	resp := performRequest(r, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthFlow(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "alice")

	dup := performRequest(r, http.MethodPost, "/auth/register",
		jsonBody(t, map[string]string{"username": "alice", "password": "secret2"}), "", "application/json")
	assertError(t, dup, http.StatusConflict, "conflict")

	bad := performRequest(r, http.MethodPost, "/auth/login",
		jsonBody(t, map[string]string{"username": "alice", "password": "nope-nope"}), "", "application/json")
	assertError(t, bad, http.StatusUnauthorized, "unauthorized")

	form := performRequest(r, http.MethodPost, "/auth/login",
		bytes.NewBufferString("username=alice&password=secret1"), "", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusOK, form.Code, form.Body.String())

	me := performRequest(r, http.MethodGet, "/auth/me", nil, token, "")
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, me)["username"])
	assert.NotContains(t, me.Body.String(), "password")

	assertError(t, performRequest(r, http.MethodGet, "/auth/users", nil, "", ""), http.StatusUnauthorized, "unauthorized")
	assertError(t, performRequest(r, http.MethodGet, "/auth/users", nil, "garbage", ""), http.StatusUnauthorized, "unauthorized")

	users := performRequest(r, http.MethodGet, "/auth/users", nil, token, "")
	require.Equal(t, http.StatusOK, users.Code)
	assert.Len(t, decode[[]map[string]any](t, users), 1)

	assertError(t, performRequest(r, http.MethodDelete, "/auth/users/99", nil, token, ""), http.StatusNotFound, "not_found")
	id := uint(decode[map[string]any](t, me)["id"].(float64))
	del := performRequest(r, http.MethodDelete, fmt.Sprintf("/auth/users/%d", id), nil, token, "")
	assert.Equal(t, http.StatusNoContent, del.Code)
	assertError(t, performRequest(r, http.MethodGet, "/auth/me", nil, token, ""), http.StatusUnauthorized, "unauthorized")
}

func TestItemsCRUD(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "alice")

	body, ct := multipartBody(t,
		part{field: "name", data: []byte("Widget")},
		part{field: "unit_price", data: []byte("10.50")},
		part{field: "image", filename: "widget.png", data: pngBytes(t)},
	)
	resp := performRequest(r, http.MethodPost, "/items", body, token, ct)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	item := decode[itemResponse](t, resp)
	assert.Equal(t, "Widget", item.Name)
	assert.True(t, decimal.RequireFromString("10.5").Equal(item.UnitPrice))
	require.NotNil(t, item.Image)

	img := performRequest(r, http.MethodGet, *item.Image, nil, "", "")
	assert.Equal(t, http.StatusOK, img.Code, "stored image is served statically")

	dup := performRequest(r, http.MethodPost, "/items", jsonBody(t, map[string]any{"name": "widget", "unit_price": 3}), token, "application/json")
	assertError(t, dup, http.StatusConflict, "conflict")

	body, ct = multipartBody(t, part{field: "unit_price", data: []byte("12")}, part{field: "remove_image", data: []byte("true")})
	resp = performRequest(r, http.MethodPatch, fmt.Sprintf("/items/%d", item.ID), body, token, ct)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decode[itemResponse](t, resp)
	assert.Equal(t, "Widget", updated.Name)
	assert.True(t, decimal.NewFromInt(12).Equal(updated.UnitPrice))
	assert.Nil(t, updated.Image)
	assert.Equal(t, http.StatusNotFound, performRequest(r, http.MethodGet, *item.Image, nil, "", "").Code, "replaced image is removed")

	resp = performRequest(r, http.MethodPatch, fmt.Sprintf("/items/%d", item.ID), jsonBody(t, map[string]any{"name": "Gadget"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Gadget", decode[itemResponse](t, resp).Name)

	list := performRequest(r, http.MethodGet, "/items", nil, token, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]itemResponse](t, list), 1)

	assertError(t, performRequest(r, http.MethodGet, "/items/abc", nil, token, ""), http.StatusBadRequest, "validation")
	assertError(t, performRequest(r, http.MethodGet, "/items/999", nil, token, ""), http.StatusNotFound, "not_found")

	del := performRequest(r, http.MethodDelete, fmt.Sprintf("/items/%d", item.ID), nil, token, "")
	assert.Equal(t, http.StatusNoContent, del.Code)
	assertError(t, performRequest(r, http.MethodDelete, fmt.Sprintf("/items/%d", item.ID), nil, token, ""), http.StatusNotFound, "not_found")
}

func TestItemsRejectIncompleteRequests(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "alice")

	resp := performRequest(r, http.MethodPost, "/items", jsonBody(t, map[string]any{"name": "Widget"}), token, "application/json")
	assertError(t, resp, http.StatusBadRequest, "validation")
	assert.Contains(t, decode[errorBody](t, resp).Error, "unit_price")

	resp = performRequest(r, http.MethodPost, "/items", jsonBody(t, map[string]any{"name": "Widget", "unit_price": "0"}), token, "application/json")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	item := decode[itemResponse](t, resp)

	truncated := "--xyz\r\nContent-Disposition: form-data; name=\"image\"; filename=\"w.png\"\r\nContent-Type: image/png\r\n\r\n\x89PNG"
	resp = performRequest(r, http.MethodPatch, fmt.Sprintf("/items/%d", item.ID), strings.NewReader(truncated), token, "multipart/form-data; boundary=xyz")
	assertError(t, resp, http.StatusBadRequest, "validation")

	got := performRequest(r, http.MethodGet, fmt.Sprintf("/items/%d", item.ID), nil, token, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Nil(t, decode[itemResponse](t, got).Image)
}

func TestQuotationFlow(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "alice")

	data := `{"customer_name":"Acme","salesman_name":"Ravi","tax":18,
		"items":[{"item_name":"Widget","qty":3,"price":10.0},{"item_name":"Gadget","qty":1,"price":"5.25","total":5}]}`
	body, ct := multipartBody(t,
		part{field: "data", data: []byte(data)},
		part{field: "images", filename: "widget.png", data: pngBytes(t)},
	)
	resp := performRequest(r, http.MethodPost, "/quotations", body, token, ct)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	q := decode[quotationResponse](t, resp)
	assert.Regexp(t, `^Q-\d{8}-[0-9A-F]{12}$`, q.QuoteNo)
	require.Len(t, q.Items, 2)
	assert.True(t, decimal.NewFromInt(30).Equal(q.Items[0].Total))
	assert.True(t, decimal.NewFromInt(5).Equal(q.Items[1].Total))
	require.NotNil(t, q.Items[0].Item.Image, "first new item takes the first upload")
	assert.Nil(t, q.Items[1].Item.Image)
	assert.True(t, decimal.NewFromInt(35).Equal(q.Subtotal))
	assert.True(t, decimal.RequireFromString("6.30").Equal(q.TaxAmount))
	assert.True(t, decimal.RequireFromString("41.30").Equal(q.GrandTotal))

	widgetID := q.Items[0].ItemID
	path := fmt.Sprintf("/quotations/%d", q.ID)

	resp = performRequest(r, http.MethodPatch, path, jsonBody(t, map[string]any{"customer_phone": "555-0100"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	patched := decode[quotationResponse](t, resp)
	require.NotNil(t, patched.CustomerPhone)
	assert.Equal(t, "Acme", patched.CustomerName)
	assert.Len(t, patched.Items, 2)

	data = fmt.Sprintf(`{"items":[{"item_id":%d,"qty":2,"price":11,"replace_image":true}]}`, widgetID)
	body, ct = multipartBody(t,
		part{field: "data", data: []byte(data)},
		part{field: "images", filename: "widget-v2.png", data: pngBytes(t)},
	)
	resp = performRequest(r, http.MethodPatch, path, body, token, ct)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	replaced := decode[quotationResponse](t, resp)
	require.Len(t, replaced.Items, 1)
	assert.True(t, decimal.NewFromInt(22).Equal(replaced.Items[0].Total))
	assert.True(t, decimal.NewFromInt(11).Equal(replaced.Items[0].Item.UnitPrice))
	require.NotNil(t, replaced.Items[0].Item.Image)
	assert.NotEqual(t, *q.Items[0].Item.Image, *replaced.Items[0].Item.Image)

	assertError(t, performRequest(r, http.MethodDelete, fmt.Sprintf("/items/%d", widgetID), nil, token, ""), http.StatusConflict, "conflict")

	list := performRequest(r, http.MethodGet, "/quotations", nil, token, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]quotationResponse](t, list), 1)

	summary := performRequest(r, http.MethodGet, "/quotations/summary", nil, token, "")
	require.Equal(t, http.StatusOK, summary.Code, summary.Body.String())
	assert.Len(t, decode[[]map[string]any](t, summary), 1)
	assertError(t, performRequest(r, http.MethodGet, "/quotations/summary?from=2024-13", nil, token, ""), http.StatusBadRequest, "validation")

	assert.Equal(t, http.StatusNoContent, performRequest(r, http.MethodDelete, path, nil, token, "").Code)
	assertError(t, performRequest(r, http.MethodGet, path, nil, token, ""), http.StatusNotFound, "not_found")
	assert.Equal(t, http.StatusNoContent, performRequest(r, http.MethodDelete, fmt.Sprintf("/items/%d", widgetID), nil, token, "").Code)
}

func TestQuotationErrors(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "alice")

	missingRef := jsonBody(t, map[string]any{
		"customer_name": "Acme", "salesman_name": "Ravi",
		"items": []map[string]any{{"qty": 1, "price": 1}},
	})
	assertError(t, performRequest(r, http.MethodPost, "/quotations", missingRef, token, "application/json"), http.StatusBadRequest, "validation")

	unknownItem := jsonBody(t, map[string]any{
		"customer_name": "Acme", "salesman_name": "Ravi",
		"items": []map[string]any{{"item_id": 404, "qty": 1, "price": 1}},
	})
	assertError(t, performRequest(r, http.MethodPost, "/quotations", unknownItem, token, "application/json"), http.StatusNotFound, "not_found")

	body, ct := multipartBody(t,
		part{field: "data", data: []byte(`{"customer_name":"Acme","salesman_name":"Ravi","items":[{"item_name":"Doc","qty":1,"price":1}]}`)},
		part{field: "images", filename: "doc.png", data: []byte("not really a png")},
	)
	assertError(t, performRequest(r, http.MethodPost, "/quotations", body, token, ct), http.StatusBadRequest, "validation")

	assertError(t, performRequest(r, http.MethodPatch, "/quotations/77", jsonBody(t, map[string]any{"customer_name": "X"}), token, "application/json"),
		http.StatusNotFound, "not_found")
	assertError(t, performRequest(r, http.MethodPost, "/quotations", bytes.NewBufferString("{"), token, "application/json"),
		http.StatusBadRequest, "validation")

	list := performRequest(r, http.MethodGet, "/quotations", nil, token, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]quotationResponse](t, list))

	items := performRequest(r, http.MethodGet, "/items", nil, token, "")
	assert.Empty(t, decode[[]itemResponse](t, items), "failed requests leave no catalog items")
}

func TestCORSPreflight(t *testing.T) {
	r := setupTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/quotations", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
}
