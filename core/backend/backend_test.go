package backend

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicsail/anchor/core"
	"github.com/hicsail/anchor/core/access"
	"github.com/hicsail/anchor/core/client"
	"github.com/hicsail/anchor/core/store"
	"github.com/hicsail/anchor/core/store/inmem"
)

var testConfigurationJSON string = `{
	"resources": [
		{
			"resource": "widget",
			"description": "a widget with a schema, timestamps and ownership",
			"schema": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": { "type": "string", "minLength": 1 },
					"color": { "type": "string" },
					"weight": { "type": "number" }
				}
			},
			"default": { "color": "blue" },
			"settings": {
				"timestamps": true,
				"user_id": true,
				"get_scope": ["admin"],
				"post_scope": null,
				"update_scope": ["admin", "root"],
				"delete_scope": ["root"]
			}
		},
		{
			"resource": "note",
			"description": "an open resource without schema nor lifecycle settings",
			"settings": {}
		}
	]
}`

type testService struct {
	backend *Backend
	store   *inmem.Store
	client  client.Client
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	router := mux.NewRouter()
	s := inmem.New()
	b, err := New(&Builder{
		Config:               testConfigurationJSON,
		Store:                s,
		Router:               router,
		AuthorizationEnabled: true,
	})
	require.NoError(t, err)
	return &testService{
		backend: b,
		store:   s,
		client:  client.NewWithRouter(router),
	}
}

func (ts *testService) asAdmin() client.Client {
	return ts.client.WithAuthorization(&access.Authorization{
		UserID: "admin-id",
		Roles:  []string{"admin"},
	})
}

func (ts *testService) asUser() client.Client {
	return ts.client.WithAuthorization(&access.Authorization{
		UserID: "user-id",
		Roles:  []string{"user"},
	})
}

func TestUnknownResource(t *testing.T) {
	ts := newTestService(t)

	// resolution fails before authorization, hence 404 also without any roles
	status, _ := ts.client.RawGet("/api/gadgets", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.asAdmin().RawPost("/api/gadgets", store.Document{"name": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.asAdmin().RawPut("/api/gadgets/4711", store.Document{"name": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListScope(t *testing.T) {
	ts := newTestService(t)

	status, _ := ts.asUser().RawGet("/api/widget", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var page Page
	status, err := ts.asAdmin().RawGet("/api/widget", &page)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, page.TotalCount)
	assert.Equal(t, 1, page.PageNumber)
}

func TestUnauthenticated(t *testing.T) {
	ts := newTestService(t)

	// the note resource is unrestricted, but still requires an authenticated caller
	status, _ := ts.client.RawGet("/api/note", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, err := ts.asUser().RawGet("/api/note", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestCreateValidation(t *testing.T) {
	ts := newTestService(t)

	// name is required by the schema
	status, _ := ts.asUser().RawPost("/api/widget", store.Document{"color": "red"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// nothing was persisted
	var page Page
	_, err := ts.asAdmin().RawGet("/api/widget", &page)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
}

func TestCreateValidationDetails(t *testing.T) {
	ts := newTestService(t)

	status, err := ts.asUser().RawPost("/api/widget", store.Document{"name": ""}, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "details")
	assert.Contains(t, err.Error(), "name")
}

func TestCreateAnchors(t *testing.T) {
	ts := newTestService(t)

	// the engine stamps ownership from the caller, a client-supplied value is ignored
	var created store.Document
	status, err := ts.asUser().RawPost("/api/widget",
		store.Document{"name": "anvil", "userId": "somebody-else"}, &created)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	assert.NotEmpty(t, created["_id"])
	assert.NotEmpty(t, created["createdAt"])
	assert.Equal(t, "user-id", created["userId"])
	assert.Equal(t, "blue", created["color"], "default value was not applied")
}

func TestCreatedAtOrdering(t *testing.T) {
	ts := newTestService(t)

	var first, second store.Document
	_, err := ts.asUser().RawPost("/api/widget", store.Document{"name": "first"}, &first)
	require.NoError(t, err)
	_, err = ts.asUser().RawPost("/api/widget", store.Document{"name": "second"}, &second)
	require.NoError(t, err)

	assert.LessOrEqual(t, first["createdAt"].(string), second["createdAt"].(string))
}

func TestUpdateMerge(t *testing.T) {
	ts := newTestService(t)

	var created store.Document
	_, err := ts.asUser().RawPost("/api/widget", store.Document{"name": "anvil"}, &created)
	require.NoError(t, err)
	id := created["_id"].(string)

	// ownership fields in the payload are ignored, other fields merge
	var updated store.Document
	status, err := ts.asAdmin().RawPut("/api/widget/"+id,
		store.Document{"name": "anvil", "color": "red", "userId": "somebody-else", "createdAt": "1970-01-01T00:00:00.000000000Z"},
		&updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, "red", updated["color"])
	assert.Equal(t, "anvil", updated["name"])
	assert.Equal(t, "user-id", updated["userId"])
	assert.Equal(t, created["createdAt"], updated["createdAt"])
	assert.NotEmpty(t, updated["updatedAt"])

	// updatedAt is monotonic across updates
	var again store.Document
	_, err = ts.asAdmin().RawPut("/api/widget/"+id, store.Document{"name": "anvil"}, &again)
	require.NoError(t, err)
	assert.LessOrEqual(t, updated["updatedAt"].(string), again["updatedAt"].(string))
}

func TestUpdateScope(t *testing.T) {
	ts := newTestService(t)

	var created store.Document
	_, err := ts.asUser().RawPost("/api/widget", store.Document{"name": "anvil"}, &created)
	require.NoError(t, err)

	status, _ := ts.asUser().RawPut("/api/widget/"+created["_id"].(string),
		store.Document{"name": "anvil"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUpdateMissing(t *testing.T) {
	ts := newTestService(t)

	status, _ := ts.asAdmin().RawPut("/api/widget/no-such-id", store.Document{"name": "anvil"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateValidation(t *testing.T) {
	ts := newTestService(t)

	var created store.Document
	_, err := ts.asUser().RawPost("/api/widget", store.Document{"name": "anvil"}, &created)
	require.NoError(t, err)

	status, _ := ts.asAdmin().RawPut("/api/widget/"+created["_id"].(string),
		store.Document{"name": "anvil", "weight": "heavy"}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestPagination(t *testing.T) {
	ts := newTestService(t)

	for i := 0; i < 5; i++ {
		_, err := ts.asUser().RawPost("/api/note", store.Document{"index": i}, nil)
		require.NoError(t, err)
	}

	var page Page
	_, h, err := ts.asUser().RawGetWithHeader("/api/note?limit=2&page=1", nil, &page)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 1, page.PageNumber)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "5", h.Get("Pagination-Total-Count"))
	assert.Equal(t, "3", h.Get("Pagination-Page-Count"))

	// a page beyond the last one is empty, with the correct counts
	_, err = ts.asUser().RawGet("/api/note?limit=2&page=4", &page)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 4, page.PageNumber)
}

func TestListParameters(t *testing.T) {
	ts := newTestService(t)

	for _, path := range []string{
		"/api/note?limit=0",
		"/api/note?limit=101",
		"/api/note?page=0",
		"/api/note?limit=abc",
		"/api/note?unknown=1",
		"/api/note?filter=color",
	} {
		status, _ := ts.asUser().RawGet(path, nil)
		assert.Equal(t, http.StatusBadRequest, status, path)
	}
}

func TestListSortFilterFields(t *testing.T) {
	ts := newTestService(t)

	for _, doc := range []store.Document{
		{"name": "anvil", "color": "blue"},
		{"name": "bolt", "color": "red"},
		{"name": "clamp", "color": "blue"},
	} {
		_, err := ts.asUser().RawPost("/api/note", doc, nil)
		require.NoError(t, err)
	}

	var page Page
	_, err := ts.asUser().RawGet("/api/note?filter=color=blue&sort=-name&fields=name", &page)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "clamp", page.Items[0]["name"])
	assert.Equal(t, "anvil", page.Items[1]["name"])
	_, hasColor := page.Items[0]["color"]
	assert.False(t, hasColor, "projection did not strip the color field")
}

func TestCreateReturnsPersistedDocument(t *testing.T) {
	ts := newTestService(t)

	var created store.Document
	_, err := ts.asUser().RawPost("/api/note", store.Document{"text": "hello"}, &created)
	require.NoError(t, err)
	require.NotEmpty(t, created["_id"])

	// the note resource has no timestamps nor ownership configured
	_, hasCreatedAt := created["createdAt"]
	assert.False(t, hasCreatedAt)
	_, hasUserID := created["userId"]
	assert.False(t, hasUserID)
}

func TestRegistryImmutability(t *testing.T) {
	ts := newTestService(t)

	first, err := ts.backend.Collection("widget")
	require.NoError(t, err)
	second, err := ts.backend.Collection("widget")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = ts.backend.Collection("gadget")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestMalformedBody(t *testing.T) {
	ts := newTestService(t)

	status, _ := ts.asUser().RawPost("/api/note", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScopeForOperation(t *testing.T) {
	settings := resourceSettings{
		GetScope:    []string{"reader"},
		PostScope:   []string{"writer"},
		UpdateScope: []string{"editor"},
	}
	assert.Equal(t, []string{"reader"}, settings.scopeFor(core.OperationList))
	assert.Equal(t, []string{"writer"}, settings.scopeFor(core.OperationCreate))
	assert.Equal(t, []string{"editor"}, settings.scopeFor(core.OperationUpdate))
}

// failingStore fails every operation, for testing the server fault path
type failingStore struct{}

func (failingStore) Insert(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	return nil, fmt.Errorf("store is down")
}

func (failingStore) FindPage(ctx context.Context, collection string, filter store.Document,
	fields []string, sort []store.SortField, skip, limit int) ([]store.Document, int, error) {
	return nil, 0, fmt.Errorf("store is down")
}

func (failingStore) FindByIDAndUpdate(ctx context.Context, collection string, id string, set store.Document) (store.Document, error) {
	return nil, fmt.Errorf("store is down")
}

func TestStoreFailure(t *testing.T) {
	router := mux.NewRouter()
	_, err := New(&Builder{
		Config:               testConfigurationJSON,
		Store:                failingStore{},
		Router:               router,
		AuthorizationEnabled: true,
	})
	require.NoError(t, err)
	c := client.NewWithRouter(router).WithAuthorization(&access.Authorization{
		UserID: "user-id",
		Roles:  []string{"admin"},
	})

	status, _ := c.RawGet("/api/note", nil)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = c.RawPost("/api/note", store.Document{"text": "hello"}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = c.RawPut("/api/note/4711", store.Document{"text": "hello"}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestInvalidConfiguration(t *testing.T) {
	router := mux.NewRouter()

	_, err := New(&Builder{Config: "{not json", Store: inmem.New(), Router: router})
	assert.Error(t, err)

	_, err = New(&Builder{Config: `{"resources":[{"resource":"a"},{"resource":"a"}]}`,
		Store: inmem.New(), Router: router})
	assert.Error(t, err)

	_, err = New(&Builder{Config: `{"resources":[{"resource":"a","schema":{"type":42}}]}`,
		Store: inmem.New(), Router: router})
	assert.Error(t, err)

	_, err = New(&Builder{Config: `{"resources":[]}`, Router: router})
	assert.Error(t, err, "store is mandatory")
}
