package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notion-helper/lib/batch"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	ran chan string
}

func (f fakeJobs) run(kind string) runFunc {
	return func(ctx context.Context, name string) (batch.Report, error) {
		if f.ran != nil {
			f.ran <- kind + "/" + name
		}
		switch name {
		case "missing":
			return batch.Report{}, fmt.Errorf("%w: %s job %q", errUnknownJob, kind, name)
		case "broken":
			return batch.Report{}, errors.New("database is gone")
		}
		return batch.Report{
			Succeeded: 2,
			Failures:  []batch.Failure{{ID: "page-3", Err: errors.New("not found")}},
		}, nil
	}
}

func (f fakeJobs) HasSync(name string) bool {
	return name != "missing"
}

func (f fakeJobs) HasDaily(name string) bool {
	return name != "missing"
}

func (f fakeJobs) RunSync(ctx context.Context, name string) (batch.Report, error) {
	return f.run("sync")(ctx, name)
}

func (f fakeJobs) RunDaily(ctx context.Context, name string) (batch.Report, error) {
	return f.run("daily")(ctx, name)
}

func post(t *testing.T, handler http.Handler, target, token string) (int, jobResponse) {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var res jobResponse
	if rec.Code != http.StatusUnauthorized {
		err := json.Unmarshal(rec.Body.Bytes(), &res)
		require.NoError(t, err)
	}
	return rec.Code, res
}

func TestJobEndpoints(t *testing.T) {
	handler := newMux(context.Background(), fakeJobs{}, "")

	status, res := post(t, handler, "/jobs/sync/books", "")
	require.Equal(t, http.StatusOK, status)
	expect := jobResponse{Job: "books", Succeeded: 2, Failed: 1, Errors: []string{"page-3: not found"}}
	if diff := cmp.Diff(expect, res); diff != "" {
		t.Fatal(diff)
	}

	status, res = post(t, handler, "/jobs/daily/missing", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "missing", res.Job)

	status, _ = post(t, handler, "/jobs/sync/broken", "")
	require.Equal(t, http.StatusInternalServerError, status)

	req := httptest.NewRequest(http.MethodGet, "/jobs/sync/books", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJobEndpointAsync(t *testing.T) {
	ran := make(chan string, 1)
	handler := newMux(context.Background(), fakeJobs{ran: ran}, "")

	status, res := post(t, handler, "/jobs/daily/journal?async=1", "")
	require.Equal(t, http.StatusAccepted, status)
	require.True(t, res.Accepted)

	select {
	case name := <-ran:
		require.Equal(t, "daily/journal", name)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestJobEndpointAsyncUnknownJob(t *testing.T) {
	ran := make(chan string, 1)
	handler := newMux(context.Background(), fakeJobs{ran: ran}, "")

	status, res := post(t, handler, "/jobs/sync/missing?async=1", "")
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, res.Accepted)
	require.Equal(t, "missing", res.Job)
	require.Len(t, res.Errors, 1)
	require.Empty(t, ran)
}

func TestJobEndpointsRequireToken(t *testing.T) {
	handler := newMux(context.Background(), fakeJobs{}, "secret")

	status, _ := post(t, handler, "/jobs/sync/books", "")
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = post(t, handler, "/jobs/sync/books", "secret")
	require.Equal(t, http.StatusOK, status)
}
