package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return Event{
		Summary:  "Appointment abc12345",
		Start:    time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC),
		Timezone: "UTC",
	}
}

func TestCreateEventReturnsID(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/calendars/cal-1/events", r.URL.Path)

		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		require.Equal(t, "UTC", ev.Timezone)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ev-42"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret-key", time.Second)
	id, err := c.CreateEvent(context.Background(), "cal-1", testEvent())
	require.NoError(t, err)
	require.Equal(t, "ev-42", id)
	require.Equal(t, "Bearer secret-key", gotAuth)
}

func TestCreateEventWithoutIDFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second)
	_, err := c.CreateEvent(context.Background(), "cal-1", testEvent())
	require.Error(t, err)
}

func TestDeleteEventToleratesMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second)
	err := c.DeleteEvent(context.Background(), "cal-1", "ev-gone")
	require.NoError(t, err, "deleting an already-missing event is success")
}

func TestUpdateEventMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second)
	err := c.UpdateEvent(context.Background(), "cal-1", "ev-gone", testEvent())
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestUnauthorizedMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "bad-key", time.Second)
	err := c.ValidateCredentials(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTimeoutSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", 50*time.Millisecond)
	err := c.ValidateCredentials(context.Background())
	require.Error(t, err)
}

func TestServerErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second)
	err := c.UpdateEvent(context.Background(), "cal-1", "ev-1", testEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
	require.Contains(t, err.Error(), "upstream exploded")
}
