package controllers_test

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

type kidView struct {
	ID         uint     `json:"id"`
	Name       string   `json:"name"`
	AvatarURL  *string  `json:"avatarUrl"`
	GoalAmount *float64 `json:"goalAmount"`
}

func listKids(t *testing.T, h *harness, token string) []kidView {
	t.Helper()
	resp := h.do(http.MethodGet, "/api/kids", token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		Kids []kidView `json:"kids"`
	}
	resp.data(t, &out)
	return out.Kids
}

func TestCreateKidIssuesHashedCode(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")

	resp := h.do(http.MethodPost, "/api/kids", f.ParentToken, `{"name": " <i>Ada</i> "}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var out struct {
		ID         uint        `json:"id"`
		Name       string      `json:"name"`
		LoginCode  string      `json:"loginCode"`
		AvatarURL  interface{} `json:"avatarUrl"`
		GoalAmount interface{} `json:"goalAmount"`
	}
	resp.data(t, &out)
	assert.Equal(t, "Ada", out.Name)
	assert.Regexp(t, regexp.MustCompile(`^KID-[0-9A-F]{10}$`), out.LoginCode)
	assert.Nil(t, out.AvatarURL)
	assert.Nil(t, out.GoalAmount)

	var stored models.Kid
	require.NoError(t, h.db.First(&stored, out.ID).Error)
	assert.Equal(t, f.ID, stored.FamilyID)
	assert.Equal(t, h.hasher.Hash(out.LoginCode), stored.LoginCode)

	// The code never comes back on reads
	resp = h.do(http.MethodGet, "/api/kids", f.ParentToken, nil)
	assert.NotContains(t, resp.Body.String(), out.LoginCode)
	assert.NotContains(t, resp.Body.String(), stored.LoginCode)
}

func TestCreateKidRequiresName(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	for _, body := range []string{`{}`, `{"name": ""}`, `{"name": "   "}`} {
		resp := h.do(http.MethodPost, "/api/kids", f.ParentToken, body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
}

func TestListKidsOrderedByNameAndScopedToFamily(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	other := h.register("Jones")
	h.addKid(f, "Zoe")
	h.addKid(f, "Ada")
	h.addKid(other, "Bob")

	kids := listKids(t, h, f.ParentToken)
	require.Len(t, kids, 2)
	assert.Equal(t, "Ada", kids[0].Name)
	assert.Equal(t, "Zoe", kids[1].Name)
}

func TestUpdateKidPartial(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	path := fmt.Sprintf("/api/kids/%d", k.ID)

	resp := h.do(http.MethodPut, path, f.ParentToken, `{"goalAmount": 12.5}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got kidView
	resp.data(t, &got)
	assert.Equal(t, "Ada", got.Name, "absent keys are left alone")
	require.NotNil(t, got.GoalAmount)
	assert.Equal(t, 12.5, *got.GoalAmount)

	resp = h.do(http.MethodPut, path, f.ParentToken, `{"name": "Ada L.", "avatarUrl": "/a.png"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	resp.data(t, &got)
	assert.Equal(t, "Ada L.", got.Name)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, "/a.png", *got.AvatarURL)
	require.NotNil(t, got.GoalAmount)

	resp = h.do(http.MethodPut, path, f.ParentToken, `{"goalAmount": null}`)
	require.Equal(t, http.StatusOK, resp.Code)
	got = kidView{}
	resp.data(t, &got)
	assert.Nil(t, got.GoalAmount, "explicit null clears the goal")
}

func TestUpdateKidValidation(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")
	path := fmt.Sprintf("/api/kids/%d", k.ID)

	for _, body := range []string{`{}`, `{"name": ""}`, `{"name": "  "}`, `{"name": null}`, `{"goalAmount": "lots"}`, `[]`} {
		resp := h.do(http.MethodPut, path, f.ParentToken, body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
}

func TestUpdateKidOtherFamilyIsNotFound(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	other := h.register("Jones")
	k := h.addKid(f, "Ada")

	resp := h.do(http.MethodPut, fmt.Sprintf("/api/kids/%d", k.ID), other.ParentToken, `{"name": "Hijacked"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, utils.ErrKidNotFound.Code, resp.env.Code)

	resp = h.do(http.MethodPut, "/api/kids/99999", f.ParentToken, `{"name": "Ghost"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	var stored models.Kid
	require.NoError(t, h.db.First(&stored, k.ID).Error)
	assert.Equal(t, "Ada", stored.Name)
}

func TestKidRoutesRequireParent(t *testing.T) {
	h := newHarness(t)
	f := h.register("Smith")
	k := h.addKid(f, "Ada")

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/kids", k.Token, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/kids", k.Token, `{"name":"x"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/kids", "", nil).Code)
}
