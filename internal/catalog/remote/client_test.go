package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opendatath/catalog/internal/catalog"
)

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", "  ")
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, catalog.ErrRemote) {
		t.Error("ErrUnavailable should also match ErrRemote")
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New("", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
	if c.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v", c.Timeout())
	}
}

func TestPackageShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/3/action/package_show" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "abc" {
			t.Errorf("id = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"success": true, "result": {
			"id": "abc", "title": "Air", "url": "",
			"metadata_modified": "2024-03-01T10:00:00",
			"organization": {"title": "PCD"},
			"resources": [{"name": "a.csv", "format": "csv", "url": "https://x/a.csv"}]
		}}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", "tok")
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := c.PackageShow(context.Background(), "abc")
	if err != nil {
		t.Fatalf("PackageShow() failed: %v", err)
	}
	if pkg.Title != "Air" || pkg.OrganizationTitle() != "PCD" || len(pkg.Resources) != 1 {
		t.Errorf("pkg = %+v", pkg)
	}
	if pkg.MetadataModified != "2024-03-01T10:00:00" {
		t.Errorf("MetadataModified = %q", pkg.MetadataModified)
	}
}

func TestCall_SuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": {"message": "Not found", "__type": "Not Found Error"}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	_, err := c.PackageShow(context.Background(), "nope")
	if !errors.Is(err, catalog.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}

func TestCall_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	if err := c.SiteRead(context.Background()); !errors.Is(err, catalog.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}

func TestCall_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(srv.URL, "tok", WithTimeout(50*time.Millisecond))
	start := time.Now()
	err := c.SiteRead(context.Background())
	if !errors.Is(err, catalog.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestOrganizationList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "result": ["pcd", "nso"]}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	names, err := c.OrganizationList(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "pcd" {
		t.Errorf("names = %v", names)
	}
}

func TestSiteRead(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/3/action/site_read" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"success": true, "result": true}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	if err := c.SiteRead(context.Background()); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestCall_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success": false, "error": {"__type": "Not Found Error", "message": "Not found"}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	_, err := c.PackageShow(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, catalog.ErrRemote) {
		t.Error("a missing package should not be reported as a remote failure")
	}
	if got := catalog.Kind(err); got != "not_found" {
		t.Errorf("Kind() = %q", got)
	}
}

func TestCall_NotFoundTypeOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": {"__type": "Not Found Error", "message": "Dataset not found"}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	_, err := c.PackageShow(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "Dataset not found") {
		t.Errorf("err = %v, want the catalog's message", err)
	}
}

func TestCall_HTTPErrorKeepsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success": false, "error": {"__type": "Authorization Error", "message": "Access denied"}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "tok")
	err := c.SiteRead(context.Background())
	if !errors.Is(err, catalog.ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
	if !strings.Contains(err.Error(), "HTTP 403") || !strings.Contains(err.Error(), "Access denied") {
		t.Errorf("err = %v, want status and message", err)
	}
}
