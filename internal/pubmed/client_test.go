package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

const sampleArticleXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <Article>
        <ArticleTitle>Fever management</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Fever is common.</AbstractText>
          <AbstractText Label="CONCLUSION">Rest helps recovery.</AbstractText>
        </Abstract>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	th, _ := newFakeThrottle(10)
	return NewClient("test-key", "medicine OR health", 10,
		WithBaseURLs(srv.URL+"/esearch", srv.URL+"/efetch"),
		WithThrottle(th),
	)
}

func TestFetchRecentPMIDs(t *testing.T) {
	var gotQuery url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/esearch") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"esearchresult":{"idlist":["39000001","39000002","39000003"]}}`)
	}))

	pmids, err := c.FetchRecentPMIDs(context.Background(), 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"39000001", "39000002", "39000003"}
	if !reflect.DeepEqual(pmids, want) {
		t.Errorf("pmids = %v, want %v", pmids, want)
	}

	for param, want := range map[string]string{
		"db":      "pubmed",
		"term":    "medicine OR health",
		"reldate": "7",
		"retmax":  "10",
		"retmode": "json",
		"sort":    "pub+date",
		"api_key": "test-key",
	} {
		if got := gotQuery.Get(param); got != want {
			t.Errorf("query param %s = %q, want %q", param, got, want)
		}
	}
}

func TestFetchRecentPMIDs_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	if _, err := c.FetchRecentPMIDs(context.Background(), 7, 10); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestFetchAbstract(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "39000001" {
			t.Errorf("id = %q", got)
		}
		if got := r.URL.Query().Get("retmode"); got != "xml" {
			t.Errorf("retmode = %q", got)
		}
		fmt.Fprint(w, sampleArticleXML)
	}))

	got := c.FetchAbstract(context.Background(), "39000001")
	want := "Fever is common.\nRest helps recovery."
	if got != want {
		t.Errorf("abstract = %q, want %q", got, want)
	}
}

func TestFetchAbstract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "no abstract element",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation><Article><ArticleTitle>No abstract</ArticleTitle></Article></MedlineCitation></PubmedArticle></PubmedArticleSet>`)
			},
		},
		{
			name: "malformed XML",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<PubmedArticleSet><Abstract>`)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			if got := c.FetchAbstract(context.Background(), "39000009"); got != "" {
				t.Errorf("abstract = %q, want empty", got)
			}
		})
	}
}

func TestFetchDocuments_SkipsMissingAbstracts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/esearch") {
			fmt.Fprint(w, `{"esearchresult":{"idlist":["1","2","3"]}}`)
			return
		}
		if r.URL.Query().Get("id") == "2" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, sampleArticleXML)
	}))

	docs, err := c.FetchDocuments(context.Background(), 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Meta.Source != "PubMed:1" || docs[1].Meta.Source != "PubMed:3" {
		t.Errorf("sources = %q, %q", docs[0].Meta.Source, docs[1].Meta.Source)
	}
	for _, d := range docs {
		if d.Content == "" {
			t.Errorf("empty content for %s", d.Meta.Source)
		}
	}
}

func TestFetchDocuments_SearchFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	if _, err := c.FetchDocuments(context.Background(), 7, 10); err == nil {
		t.Fatal("expected error when search fails")
	}
}

func TestExtractAbstract_CaseInsensitive(t *testing.T) {
	xmlBody := `<article><abstract><abstracttext>lower case markup</abstracttext></abstract></article>`
	got, err := extractAbstract(strings.NewReader(xmlBody))
	if err != nil {
		t.Fatal(err)
	}
	if got != "lower case markup" {
		t.Errorf("abstract = %q", got)
	}
}
