package controllers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

type submissionView struct {
	ID           uint       `json:"id"`
	Status       string     `json:"status"`
	PhotoURL     string     `json:"photoUrl"`
	CreatedAt    time.Time  `json:"createdAt"`
	ApprovedAt   *time.Time `json:"approvedAt"`
	ChoreID      uint       `json:"choreId"`
	Title        string     `json:"title"`
	RewardAmount float64    `json:"rewardAmount"`
	KidID        uint       `json:"kidId"`
	KidName      string     `json:"kidName"`
}

func listSubmissions(t *testing.T, h *harness, token string) []submissionView {
	t.Helper()
	resp := h.do(http.MethodGet, "/api/submissions", token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		Submissions []submissionView `json:"submissions"`
	}
	resp.data(t, &out)
	return out.Submissions
}

func TestCreateSubmission(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	chore := h.addChore(f, "Dishes", "2")

	resp := h.do(http.MethodPost, "/api/submissions", k.Token, map[string]interface{}{
		"choreId": chore, "photoUrl": "/uploads/family-1-kid-1-x.jpg",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var out struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	resp.data(t, &out)
	assert.Equal(t, models.StatusPending, out.Status)

	var stored models.Submission
	require.NoError(t, h.db.First(&stored, out.ID).Error)
	assert.Equal(t, k.ID, stored.KidID)
	assert.Equal(t, chore, stored.ChoreID)
	assert.Nil(t, stored.ApprovedAt)
	assert.Nil(t, stored.ApproverID)
}

func TestCreateSubmissionPhotoAllowList(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) { o.s3Base = "https://cdn.example/" })
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	chore := h.addChore(f, "Dishes", "2")

	rejected := []string{
		"/uploads/../config/config.json",
		"/uploads/%2E%2E/secret",
		`/uploads/..\secret`,
		"https://evil.example/x.jpg",
		"https://cdn.example.evil.io/x.jpg",
		"javascript:alert(1)",
	}
	for _, ref := range rejected {
		resp := h.do(http.MethodPost, "/api/submissions", k.Token, map[string]interface{}{"choreId": chore, "photoUrl": ref})
		assert.Equal(t, http.StatusBadRequest, resp.Code, ref)
		assert.Equal(t, utils.ErrInvalidPhoto.Code, resp.env.Code, ref)
	}

	resp := h.do(http.MethodPost, "/api/submissions", k.Token, map[string]interface{}{
		"choreId": chore, "photoUrl": "https://cdn.example/families/1/kids/1/abc",
	})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestCreateSubmissionValidation(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	other := h.register("Jones")
	k := h.addKid(f, "Ada")
	foreignChore := h.addChore(other, "Not yours", "1")

	for _, body := range []string{`{}`, `{"choreId": 1}`, `{"photoUrl": "/uploads/a.jpg"}`, `{"choreId": 0, "photoUrl": "/uploads/a.jpg"}`} {
		resp := h.do(http.MethodPost, "/api/submissions", k.Token, body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}

	resp := h.do(http.MethodPost, "/api/submissions", k.Token, map[string]interface{}{
		"choreId": foreignChore, "photoUrl": "/uploads/a.jpg",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, utils.ErrChoreNotFound.Code, resp.env.Code)

	var count int64
	h.db.Model(&models.Submission{}).Count(&count)
	assert.Zero(t, count)

	resp = h.do(http.MethodPost, "/api/submissions", f.ParentToken, map[string]interface{}{
		"choreId": foreignChore, "photoUrl": "/uploads/a.jpg",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListSubmissionsByRole(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	other := h.register("Jones")
	ada := h.addKid(f, "Ada")
	bob := h.addKid(f, "Bob")
	stranger := h.addKid(other, "Eve")
	dishes := h.addChore(f, "Dishes", "2")
	vacuum := h.addChore(f, "Vacuum", "3")
	foreign := h.addChore(other, "Foreign", "1")

	first := h.submit(ada, dishes)
	second := h.submit(bob, vacuum)
	third := h.submit(ada, vacuum)
	h.submit(stranger, foreign)

	mine := listSubmissions(t, h, ada.Token)
	require.Len(t, mine, 2)
	assert.Equal(t, third, mine[0].ID, "newest first")
	assert.Equal(t, first, mine[1].ID)
	assert.Equal(t, "Vacuum", mine[0].Title)
	assert.Equal(t, float64(3), mine[0].RewardAmount)
	assert.Zero(t, mine[0].KidID, "kid listing omits kid columns")

	family := listSubmissions(t, h, f.ParentToken)
	require.Len(t, family, 3)
	assert.Equal(t, []uint{third, second, first}, []uint{family[0].ID, family[1].ID, family[2].ID})
	assert.Equal(t, "Bob", family[1].KidName)
	assert.Equal(t, bob.ID, family[1].KidID)
	assert.Equal(t, models.StatusPending, family[1].Status)
}

func TestDecideSubmission(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	id := h.submit(k, h.addChore(f, "Dishes", "2"))
	path := fmt.Sprintf("/api/submissions/%d/approve", id)

	resp := h.do(http.MethodPost, path, f.ParentToken, `{"decision": "approve"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	resp.data(t, &out)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, models.StatusApproved, out.Status)

	var stored models.Submission
	require.NoError(t, h.db.First(&stored, id).Error)
	assert.Equal(t, models.StatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)
	assert.WithinDuration(t, time.Now(), *stored.ApprovedAt, time.Minute)
	require.NotNil(t, stored.ApproverID)
	assert.Equal(t, f.ParentID, *stored.ApproverID)

	// Re-deciding is allowed; rejection clears the approval time
	resp = h.do(http.MethodPost, path, f.ParentToken, `{"decision": "reject"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	stored = models.Submission{}
	require.NoError(t, h.db.First(&stored, id).Error)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Nil(t, stored.ApprovedAt)
	require.NotNil(t, stored.ApproverID)

	// Repeating the same decision writes identical values and still succeeds
	resp = h.do(http.MethodPost, path, f.ParentToken, `{"decision": "reject"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp.data(t, &out)
	assert.Equal(t, models.StatusRejected, out.Status)
}

func TestDecideSubmissionDefaultsToApprove(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	chore := h.addChore(f, "Dishes", "2")

	for _, body := range []interface{}{`{"decision": "maybe"}`, `{}`, nil} {
		id := h.submit(k, chore)
		resp := h.do(http.MethodPost, fmt.Sprintf("/api/submissions/%d/approve", id), f.ParentToken, body)
		require.Equal(t, http.StatusOK, resp.Code)
		var stored models.Submission
		require.NoError(t, h.db.First(&stored, id).Error)
		assert.Equal(t, models.StatusApproved, stored.Status, "%v", body)
	}
}

func TestDecideSubmissionOutsideFamily(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	other := h.register("Jones")
	k := h.addKid(f, "Ada")
	id := h.submit(k, h.addChore(f, "Dishes", "2"))

	resp := h.do(http.MethodPost, fmt.Sprintf("/api/submissions/%d/approve", id), other.ParentToken, `{"decision": "approve"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, utils.ErrSubmissionNotFound.Code, resp.env.Code)

	resp = h.do(http.MethodPost, "/api/submissions/424242/approve", f.ParentToken, `{"decision": "approve"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	var stored models.Submission
	require.NoError(t, h.db.First(&stored, id).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.ApproverID)

	resp = h.do(http.MethodPost, fmt.Sprintf("/api/submissions/%d/approve", id), k.Token, `{"decision": "approve"}`)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
