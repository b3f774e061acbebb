package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/hicsail/anchor/core/logger"
	"github.com/hicsail/anchor/core/schema"
	"github.com/hicsail/anchor/core/store"
)

// pagination window bounds for list requests
const (
	defaultLimit = 20
	maxLimit     = 100
)

// Backend is the generic resource-driven rest backend
type Backend struct {
	config               Configuration
	store                store.Store
	router               *mux.Router
	registry             registry
	authorizationEnabled bool
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all resources. This is mandatory.
	Config string
	// Store is the backing document store. This is mandatory.
	Store store.Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// AuthorizationEnabled enables the authorization gate. When disabled,
	// all operations are open to anybody; use only for tests and local
	// development.
	AuthorizationEnabled bool
	// CORS adds permissive cross-origin headers and preflight handling
	CORS bool
	// Compression adds gzip response compression
	Compression bool
}

// New realizes the actual backend. It parses the configuration, compiles the
// declared schemas, builds the static resource registry, prepares the store
// collections and adds the generic routes to the router.
func New(bb *Builder) (*Backend, error) {

	var config Configuration
	err := json.Unmarshal([]byte(bb.Config), &config)
	if err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}
	if bb.Store == nil {
		return nil, fmt.Errorf("store is missing")
	}
	if bb.Router == nil {
		return nil, fmt.Errorf("router is missing")
	}

	schemas := map[string]json.RawMessage{}
	for _, rc := range config.Resources {
		if rc.Schema != nil {
			schemas[rc.Resource] = rc.Schema
		}
	}
	validator, err := schema.NewValidator(schemas)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		config:               config,
		store:                bb.Store,
		router:               bb.Router,
		registry:             registry{},
		authorizationEnabled: bb.AuthorizationEnabled,
	}

	nillog := logger.FromContext(nil)
	for _, rc := range config.Resources {
		if rc.Resource == "" {
			return nil, fmt.Errorf("resource without a name in backend configuration")
		}
		if _, ok := b.registry[rc.Resource]; ok {
			return nil, fmt.Errorf("duplicate resource %s in backend configuration", rc.Resource)
		}
		nillog.Debugln("create resource:", rc.Resource)
		if rc.Description != "" {
			nillog.Debugln("  description:", rc.Description)
		}

		collection := &Collection{
			name:      rc.Resource,
			settings:  rc.Settings,
			store:     bb.Store,
			validator: validator,
			hasSchema: validator.HasSchema(rc.Resource),
			now:       time.Now,
		}
		if rc.Default != nil {
			if err := json.Unmarshal(rc.Default, &collection.defaults); err != nil {
				return nil, fmt.Errorf("parse error in default values of resource %s: %s", rc.Resource, err)
			}
		}
		b.registry[rc.Resource] = collection

		if ensurer, ok := bb.Store.(store.Ensurer); ok {
			if err := ensurer.EnsureCollection(context.Background(), rc.Resource); err != nil {
				return nil, fmt.Errorf("cannot prepare collection %s: %w", rc.Resource, err)
			}
		}
	}

	if bb.CORS {
		b.handleCORS()
	}
	if bb.Compression {
		b.router.Use(handlers.CompressHandler)
	}
	b.handleRoutes(b.router)
	return b, nil
}

// MustNew is like New, but panics on error
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// Router returns the mux router this backend operates on
func (b *Backend) Router() *mux.Router {
	return b.router
}

// Collection returns the collection engine for the given resource, or
// ErrResourceNotFound if the resource is not registered. The returned
// collection is the same on every call for the process lifetime.
func (b *Backend) Collection(resource string) (*Collection, error) {
	return b.registry.resolve(resource)
}

// HandleResourceDefaults installs the default-values hook for a resource.
// The hook runs at the beginning of every create, before validation.
// Install hooks at startup, before the backend serves requests.
func (b *Backend) HandleResourceDefaults(resource string, hook DefaultsHook) {
	collection, err := b.registry.resolve(resource)
	if err != nil {
		logger.FromContext(nil).Fatalf("defaults hook for %s: no such resource", resource)
		return
	}
	if collection.defaultsHook != nil {
		logger.FromContext(nil).Fatalf("defaults hook for %s already installed", resource)
		return
	}
	collection.defaultsHook = hook
}

// handleRoutes adds the three generic routes. The resource name is a route
// variable, resolved against the registry on every request, so unregistered
// names fail with 404 before authorization or validation run.
func (b *Backend) handleRoutes(router *mux.Router) {
	nillog := logger.FromContext(nil)
	nillog.Debugln("backend: handle routes")
	nillog.Debugln("  handle route: /api/{resource} GET")
	nillog.Debugln("  handle route: /api/{resource} POST")
	nillog.Debugln("  handle route: /api/{resource}/{id} PUT")

	router.HandleFunc("/api/{resource}", b.listHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/{resource}", b.createHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/{resource}/{id}", b.updateHandler).Methods(http.MethodPut)
}
