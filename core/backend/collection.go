package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/hicsail/anchor/core"
	"github.com/hicsail/anchor/core/access"
	"github.com/hicsail/anchor/core/logger"
	"github.com/hicsail/anchor/core/store"
)

// timeFormat is fixed-width UTC with nanoseconds, so that the string order
// of two stamps equals their chronological order in every store.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// DefaultsHook is a resource-specific hook which applies default values to a
// document before it is validated and created. A failing hook indicates a
// defect in the resource definition and aborts the creation as a server
// fault.
type DefaultsHook func(ctx context.Context, doc store.Document) error

// Collection is the generic data-access engine for one resource. It couples
// the resource descriptor from the configuration with the backing store;
// concrete resources are configuration data, not types of their own.
type Collection struct {
	name         string
	settings     resourceSettings
	defaults     store.Document
	defaultsHook DefaultsHook
	store        store.Store
	validator    payloadValidator
	hasSchema    bool
	now          func() time.Time
}

// payloadValidator is the validation step of the pipeline
type payloadValidator interface {
	ValidateDocument(document interface{}, schemaID string) error
}

// Name returns the resource name this collection manages
func (c *Collection) Name() string {
	return c.name
}

// ListOptions parameterize a List call
type ListOptions struct {
	Filter store.Document
	Fields []string
	Sort   []store.SortField
	Limit  int
	Page   int
}

// Page is the pagination envelope of a list operation
type Page struct {
	Items      []store.Document `json:"items"`
	TotalCount int              `json:"totalCount"`
	PageCount  int              `json:"pageCount"`
	PageNumber int              `json:"pageNumber"`
}

// Validate validates a create or update payload against the resource's
// declared schema. It returns nil for resources without a schema.
func (c *Collection) Validate(doc store.Document) error {
	if !c.hasSchema {
		return nil
	}
	return c.validator.ValidateDocument(map[string]interface{}(doc), c.name)
}

// List returns one page of the collection. Filtering and sorting are passed
// through to the store unmodified; the engine contributes the page window
// arithmetic and the envelope. A page beyond the last one yields empty items
// with the correct counts.
func (c *Collection) List(ctx context.Context, opt ListOptions) (*Page, error) {
	if opt.Limit < 1 {
		return nil, fmt.Errorf("limit must be 1 or larger")
	}
	if opt.Page < 1 {
		return nil, fmt.Errorf("page must be 1 or larger")
	}
	skip := (opt.Page - 1) * opt.Limit
	items, total, err := c.store.FindPage(ctx, c.name, opt.Filter, opt.Fields, opt.Sort, skip, opt.Limit)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	return &Page{
		Items:      items,
		TotalCount: total,
		PageCount:  (total + opt.Limit - 1) / opt.Limit,
		PageNumber: opt.Page,
	}, nil
}

// Create runs the creation lifecycle: apply default values, validate, stamp
// anchor values, persist. Each step is a hard precondition for the next; a
// validation failure leaves the store untouched. The returned document is
// the persisted one, including the assigned id and the anchor values.
func (c *Collection) Create(ctx context.Context, doc store.Document, auth *access.Authorization) (store.Document, error) {
	document := store.Document{}
	for key, value := range doc {
		document[key] = value
	}

	for key, value := range c.defaults {
		if _, ok := document[key]; !ok {
			document[key] = value
		}
	}
	if c.defaultsHook != nil {
		if err := c.defaultsHook(ctx, document); err != nil {
			return nil, &StoreError{Err: fmt.Errorf("defaults hook for %s: %w", c.name, err)}
		}
	}

	if err := c.Validate(document); err != nil {
		return nil, err
	}

	// anchor values are stamped after validation, so a schema does not need
	// to know about them, and before persistence, so they are never missing
	if c.settings.Timestamps {
		if _, ok := document["createdAt"]; !ok {
			document["createdAt"] = c.now().UTC().Format(timeFormat)
		}
	}
	if c.settings.UserID && auth != nil {
		document["userId"] = auth.UserID
	}

	stored, err := c.store.Insert(ctx, c.name, document)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	return stored, nil
}

// Update applies partial as a field-level merge to the document identified
// by id and returns the fully-merged result, or store.ErrNotFound if no such
// document exists. The ownership fields _id, userId and createdAt can never
// be changed through the payload, regardless of what the schema permits.
// With timestamps enabled, updatedAt is stamped on every update.
func (c *Collection) Update(ctx context.Context, id string, partial store.Document, auth *access.Authorization) (store.Document, error) {
	if err := c.Validate(partial); err != nil {
		return nil, err
	}

	set := store.Document{}
	for key, value := range partial {
		set[key] = value
	}
	delete(set, "_id")
	delete(set, "userId")
	delete(set, "createdAt")

	if c.settings.Timestamps {
		set["updatedAt"] = c.now().UTC().Format(timeFormat)
	}

	document, err := c.store.FindByIDAndUpdate(ctx, c.name, id, set)
	if err == store.ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	return document, nil
}

// listHandler handles GET /api/{resource}
func (b *Backend) listHandler(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	collection, err := b.registry.resolve(mux.Vars(r)["resource"])
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	if _, ok := b.authorize(w, r, collection.settings.scopeFor(core.OperationList)); !ok {
		return
	}

	opt := ListOptions{
		Filter: store.Document{},
		Limit:  defaultLimit,
		Page:   1,
	}
	for key, array := range r.URL.Query() {
		if key != "filter" && len(array) > 1 {
			http.Error(w, "illegal parameter array '"+key+"'", http.StatusBadRequest)
			return
		}
		value := array[0]
		var err error
		switch key {
		case "limit":
			opt.Limit, err = strconv.Atoi(value)
			if err == nil && (opt.Limit < 1 || opt.Limit > maxLimit) {
				err = fmt.Errorf("out of range")
			}
		case "page":
			opt.Page, err = strconv.Atoi(value)
			if err == nil && opt.Page < 1 {
				err = fmt.Errorf("out of range")
			}
		case "sort":
			opt.Sort = store.ParseSort(value)
		case "fields":
			opt.Fields = store.ParseFields(value)
		case "filter":
			for _, value := range array {
				if i := strings.IndexRune(value, '='); i > 0 {
					opt.Filter[value[:i]] = value[i+1:]
				} else {
					err = fmt.Errorf("cannot parse filter, must be of type property=value")
				}
			}
		default:
			err = fmt.Errorf("unknown")
		}
		if err != nil {
			http.Error(w, "parameter '"+key+"': "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	page, err := collection.List(r.Context(), opt)
	if err != nil {
		b.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Pagination-Limit", strconv.Itoa(opt.Limit))
	w.Header().Set("Pagination-Total-Count", strconv.Itoa(page.TotalCount))
	w.Header().Set("Pagination-Page-Count", strconv.Itoa(page.PageCount))
	w.Header().Set("Pagination-Current-Page", strconv.Itoa(page.PageNumber))
	jsonData, _ := json.MarshalWithOption(page, json.DisableHTMLEscape())
	w.Write(jsonData)
}

// createHandler handles POST /api/{resource}
func (b *Backend) createHandler(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	collection, err := b.registry.resolve(mux.Vars(r)["resource"])
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	auth, ok := b.authorize(w, r, collection.settings.scopeFor(core.OperationCreate))
	if !ok {
		return
	}

	payload, ok := b.decodeAndValidate(w, r, collection)
	if !ok {
		return
	}

	document, err := collection.Create(r.Context(), payload, auth)
	if err != nil {
		b.writeError(w, r, err)
		return
	}

	jsonData, _ := json.MarshalWithOption(document, json.DisableHTMLEscape())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	w.Write(jsonData)
}

// updateHandler handles PUT /api/{resource}/{id}
func (b *Backend) updateHandler(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	collection, err := b.registry.resolve(params["resource"])
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	auth, ok := b.authorize(w, r, collection.settings.scopeFor(core.OperationUpdate))
	if !ok {
		return
	}

	payload, ok := b.decodeAndValidate(w, r, collection)
	if !ok {
		return
	}

	document, err := collection.Update(r.Context(), params["id"], payload, auth)
	if err != nil {
		b.writeError(w, r, err)
		return
	}

	jsonData, _ := json.MarshalWithOption(document, json.DisableHTMLEscape())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

// authorize is the authorization stage of the pipeline. It answers 401 and
// returns false if the caller does not satisfy the scope; the specific
// missing scope is not leaked to the caller.
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request, scope []string) (*access.Authorization, bool) {
	auth := access.AuthorizationFromContext(r.Context())
	if !b.authorizationEnabled {
		return auth, true
	}
	if auth == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return nil, false
	}
	if !auth.Satisfies(scope) {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return nil, false
	}
	return auth, true
}

// decodeAndValidate is the validation stage of the pipeline for create and
// update requests. It answers 400 for malformed JSON and 409 with field
// details for schema violations; the store is never touched in either case.
func (b *Backend) decodeAndValidate(w http.ResponseWriter, r *http.Request, collection *Collection) (store.Document, bool) {
	var payload store.Document
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json data: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if err := collection.Validate(payload); err != nil {
		b.writeError(w, r, err)
		return nil, false
	}
	return payload, true
}
