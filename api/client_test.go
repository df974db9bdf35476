package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Options{
		BaseURL: srv.URL,
		Tokens:  func() (string, bool) { return "tok-1", true },
	})
}

func TestClient_requiresToken(t *testing.T) {
	client := NewClient(&Options{
		BaseURL: "http://unused",
		Tokens:  func() (string, bool) { return "", false },
	})
	_, err := client.ListStudyGroups(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestClient_ListStudyGroups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/groups", r.URL.Path)
		assert.Equal(t, "CS101", r.URL.Query().Get("course"))
		_ = json.NewEncoder(w).Encode([]StudyGroup{
			{ID: "g1", Name: "Algo study", Course: "CS101", Capacity: 8},
		})
	})

	groups, err := client.ListStudyGroups(context.Background(), "CS101")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Algo study", groups[0].Name)
}

func TestClient_CreateStudyGroup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var ng NewStudyGroup
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ng))
		assert.Equal(t, "Linear Algebra crew", ng.Name)
		_ = json.NewEncoder(w).Encode(StudyGroup{ID: "g2", Name: ng.Name, Course: ng.Course, Capacity: ng.Capacity})
	})

	group, err := client.CreateStudyGroup(context.Background(), NewStudyGroup{
		Name: "  Linear Algebra crew ", Course: "MATH201", Capacity: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, "g2", group.ID)
}

func TestClient_CreateStudyGroup_validation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("invalid input must not reach the server")
	})

	_, err := client.CreateStudyGroup(context.Background(), NewStudyGroup{Name: "x", Capacity: 1})
	require.Error(t, err)
	fields := core.FieldErrors(err)
	require.NotEmpty(t, fields)
	names := make(map[string]bool)
	for _, f := range fields {
		names[f.Field] = true
	}
	assert.True(t, names["course"])
	assert.True(t, names["capacity"])
}

func TestClient_TutorRequestFlow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /v1/tutor-requests":
			_ = json.NewEncoder(w).Encode(TutorRequest{ID: "r1", Status: TutorRequestPending})
		case "GET /v1/tutor-requests":
			_ = json.NewEncoder(w).Encode([]TutorRequest{{ID: "r1", Status: TutorRequestPending}})
		case "POST /v1/tutor-requests/r1/review":
			var d ReviewDecision
			_ = json.NewDecoder(r.Body).Decode(&d)
			status := TutorRequestRejected
			if d.Approve {
				status = TutorRequestApproved
			}
			_ = json.NewEncoder(w).Encode(TutorRequest{ID: "r1", Status: status})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	req, err := client.ApplyAsTutor(ctx, NewTutorRequest{Subjects: []string{"Calculus"}})
	require.NoError(t, err)
	assert.Equal(t, TutorRequestPending, req.Status)

	reqs, err := client.ListTutorRequests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	reviewed, err := client.ReviewTutorRequest(ctx, "r1", ReviewDecision{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, TutorRequestApproved, reviewed.Status)
}

func TestClient_coordinatorOnlyEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.ListTutorRequests(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClient_SubmitFeedback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var nf NewFeedback
		require.NoError(t, json.NewDecoder(r.Body).Decode(&nf))
		_ = json.NewEncoder(w).Encode(Feedback{ID: "f1", TutorID: nf.TutorID, Rating: nf.Rating})
	})

	fb, err := client.SubmitFeedback(context.Background(), NewFeedback{TutorID: "u2", Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, "f1", fb.ID)

	_, err = client.SubmitFeedback(context.Background(), NewFeedback{TutorID: "u2", Rating: 9})
	require.Error(t, err)
}

func TestClient_fieldErrorsFromServer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "a group with this name exists"})
	})

	_, err := client.CreateStudyGroup(context.Background(), NewStudyGroup{
		Name: "Algo study", Course: "CS101", Capacity: 8,
	})
	require.Error(t, err)
	fields := core.FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "name", fields[0].Field)
}
