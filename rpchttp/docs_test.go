package rpchttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

func getSummary(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSummaryPage(t *testing.T) {
	h := newTestHandler(t, WithServiceName("calculator"))
	rec := getSummary(t, h, "/rpc")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Result().Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/html; charset=utf-8")
	}

	body := rec.Body.String()
	for _, want := range []string{
		"calculator method summary",
		"calc.add",
		"Adds two integers",
		"a: int, b: int",
		"system.listMethods",
		// The request stub, HTML-escaped by the template.
		"&#34;method&#34;: &#34;calc.add&#34;",
		// The test form.
		"rpctest-body",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("summary page missing %q", want)
		}
	}
}

func TestSummaryPage_AccessRequirements(t *testing.T) {
	d := jsonrpc.NewDispatcher()
	err := d.Register(func(ctx context.Context, params []any) (any, error) {
		return nil, nil
	}, jsonrpc.Options{Name: "vault.read", Permission: "vault.read"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	body := getSummary(t, NewHandler(d), "/rpc").Body.String()
	if !strings.Contains(body, "login required") {
		t.Error("summary page missing the login required badge")
	}
	if !strings.Contains(body, "permission: vault.read") {
		t.Error("summary page missing the permission badge")
	}
}

func TestSummaryPage_ServiceURLFallsBackToRequestPath(t *testing.T) {
	body := getSummary(t, newTestHandler(t), "/custom/endpoint").Body.String()
	if !strings.Contains(body, "/custom/endpoint") {
		t.Error("summary page does not mention the endpoint path")
	}
}

func TestSummaryPage_Suppressed(t *testing.T) {
	rec := getSummary(t, newTestHandler(t, WithoutDocs()), "/rpc")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "API docs disabled") {
		t.Errorf("body = %q, want the docs disabled notice", rec.Body.String())
	}
}

func TestSummaryPage_TestFormSuppressed(t *testing.T) {
	rec := getSummary(t, newTestHandler(t, WithoutTestForm()), "/rpc")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "rpctest-body") {
		t.Error("summary page still renders the test form")
	}
}
