package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinIOFetcher_RequiresEndpoint(t *testing.T) {
	_, err := NewMinIOFetcher(Options{}).Download(context.Background(), "papers", "a.pdf")
	assert.Error(t, err)
}

func TestMinIOFetcher_Download(t *testing.T) {
	payload := "%PDF-1.7 fake document"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/papers/attention.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			_, _ = w.Write([]byte(payload))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
		}
	}))
	defer server.Close()

	fetcher := NewMinIOFetcher(Options{
		Endpoint:  server.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
		Region:    "us-east-1",
	})

	data, err := fetcher.Download(context.Background(), "papers", "attention.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	_, err = fetcher.Download(context.Background(), "papers", "missing.pdf")
	assert.Error(t, err)
}
