package lms_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/services/lms"
)

const rosterJSON = `{
	"external_id": "lms-101",
	"title": "Cardiology Rotation",
	"enrollment_number": "CARD-01",
	"faculty": "Cardiology",
	"teacher": {"external_id": "t-1", "email": "divya@example.test", "name": "Divya"},
	"learners": [
		{"external_id": "l-1", "email": "amina@example.test", "name": "Amina"},
		{"external_id": "l-2", "email": "ben@example.test", "name": "Ben"}
	]
}`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rosters", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"courses": [%s]}`, rosterJSON)
	})
	mux.HandleFunc("/api/v1/rosters/lms-101", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, rosterJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetchRoster(t *testing.T) {
	srv := newUpstream(t)
	client := lms.NewClient(core.LMSConfig{BaseURL: srv.URL, APIKey: "sekrit"})

	records, err := client.FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "lms-101", records[0].ExternalID)
	assert.Equal(t, "divya@example.test", records[0].Teacher.Email)
	assert.Len(t, records[0].Learners, 2)
}

func TestClientFetchCourseRoster(t *testing.T) {
	srv := newUpstream(t)
	client := lms.NewClient(core.LMSConfig{BaseURL: srv.URL, APIKey: "sekrit"})

	rec, err := client.FetchCourseRoster(context.Background(), "lms-101")
	require.NoError(t, err)
	assert.Equal(t, "CARD-01", rec.EnrollmentNumber)
	assert.Equal(t, "Cardiology Rotation", rec.Title)
}

func TestClientBadCredentials(t *testing.T) {
	srv := newUpstream(t)
	client := lms.NewClient(core.LMSConfig{BaseURL: srv.URL, APIKey: "wrong"})

	_, err := client.FetchRoster(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
