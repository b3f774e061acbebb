package access

import (
	"context"
	"testing"
)

func TestAuthorization_HasRole(t *testing.T) {

	auth := &Authorization{
		UserID: "4711",
		Roles:  []string{"researcher", "admin"},
	}

	if !auth.HasRole("admin") {
		t.Fatal("admin role not found")
	}
	if auth.HasRole("root") {
		t.Fatal("root role should not be found")
	}

	auth = nil
	if auth.HasRole("admin") {
		t.Fatal("nil authorization should not have any role")
	}
}

func TestAuthorization_EmptyScope(t *testing.T) {

	// no scope configured means no restriction, for any caller
	auth := &Authorization{Roles: []string{"someone"}}
	if !auth.Satisfies(nil) {
		t.Fatal("nil scope should be satisfied")
	}
	if !auth.Satisfies([]string{}) {
		t.Fatal("empty scope should be satisfied")
	}

	auth = nil
	if !auth.Satisfies(nil) {
		t.Fatal("nil scope should be satisfied even without authorization")
	}
}

func TestAuthorization_ScopeIntersection(t *testing.T) {

	auth := &Authorization{
		Roles: []string{"user", "researcher"},
	}

	if !auth.Satisfies([]string{"root", "admin", "researcher"}) {
		t.Fatal("researcher should satisfy scope")
	}
	if auth.Satisfies([]string{"root", "admin"}) {
		t.Fatal("disjoint roles should not satisfy scope")
	}

	// a caller without any roles satisfies nothing but the empty scope
	auth = &Authorization{UserID: "4711"}
	if auth.Satisfies([]string{"admin"}) {
		t.Fatal("caller without roles should be denied")
	}
}

func TestAuthorization_Context(t *testing.T) {

	auth := &Authorization{
		UserID: "4711",
		Roles:  []string{"admin"},
	}

	ctx := auth.ContextWithAuthorization(context.Background())
	if got := AuthorizationFromContext(ctx); got == nil || got.UserID != "4711" {
		t.Fatal("authorization lost in context")
	}

	if AuthorizationFromContext(context.Background()) != nil {
		t.Fatal("empty context should not carry an authorization")
	}
}

func TestAuthorizationCache(t *testing.T) {

	cache := NewAuthorizationCache()
	if cache.Read("token") != nil {
		t.Fatal("cache should be empty")
	}
	cache.Write("token", &Authorization{UserID: "4711"})
	auth := cache.Read("token")
	if auth == nil || auth.UserID != "4711" {
		t.Fatal("cache did not return the stored authorization")
	}
}
