package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestSignupLoginMeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	status, body := env.do(t, http.MethodGet, token, "/auth/me", nil, "")
	if status != http.StatusOK {
		t.Fatalf("me returned %d: %s", status, body)
	}
	var me struct {
		Email    string `json:"email"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != "reader@example.com" || !me.IsActive {
		t.Fatalf("unexpected me payload: %s", body)
	}
}

func TestSignupNeverEchoesPassword(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.postJSON(t, "", "/auth/signup", map[string]string{
		"email":    "reader@example.com",
		"password": "Sup3rSecret",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", status, body)
	}
	raw := strings.ToLower(string(body))
	if strings.Contains(raw, "sup3rsecret") || strings.Contains(raw, "password") {
		t.Fatalf("signup response leaks credentials: %s", body)
	}
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")

	status, body := env.postJSON(t, "", "/auth/signup", map[string]string{
		"email":    "Reader@Example.com",
		"password": "An0therPass",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate signup returned %d: %s", status, body)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != "USER_EMAIL_EXISTS" {
		t.Fatalf("unexpected error code %q", resp.Code)
	}
}

func TestSignupRejectsWeakPasswordAndBadEmail(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.postJSON(t, "", "/auth/signup", map[string]string{
		"email":    "reader@example.com",
		"password": "short",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("weak password returned %d", status)
	}
	status, _ = env.postJSON(t, "", "/auth/signup", map[string]string{
		"email":    "not-an-email",
		"password": "Sup3rSecret",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("bad email returned %d", status)
	}
}

// A login failure must look the same whether the email is unknown or
// the password is wrong.
func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")

	responses := make([]string, 0, 2)
	statuses := make([]int, 0, 2)
	for _, creds := range []url.Values{
		{"username": {"nobody@example.com"}, "password": {"Sup3rSecret"}},
		{"username": {"reader@example.com"}, "password": {"WrongPass1"}},
	} {
		resp, err := http.PostForm(env.srv.URL+"/auth/login", creds)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		var out struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode error response: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
		responses = append(responses, out.Error+"|"+out.Code)
	}
	if statuses[0] != http.StatusUnauthorized || statuses[1] != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %v", statuses)
	}
	if responses[0] != responses[1] {
		t.Fatalf("failure responses differ: %q vs %q", responses[0], responses[1])
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	status, body := env.do(t, http.MethodPost, token, "/auth/logout", nil, "")
	if status != http.StatusOK {
		t.Fatalf("logout returned %d: %s", status, body)
	}
	status, _ = env.do(t, http.MethodGet, token, "/auth/me", nil, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", status)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	payload, _ := json.Marshal(map[string]string{"full_name": "Ada Lovelace"})
	status, body := env.do(t, http.MethodPut, token, "/auth/me", strings.NewReader(string(payload)), "application/json")
	if status != http.StatusOK {
		t.Fatalf("update me returned %d: %s", status, body)
	}
	var me struct {
		FullName string `json:"full_name"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.FullName != "Ada Lovelace" {
		t.Fatalf("full_name = %q", me.FullName)
	}

	// password change takes effect on the next login
	payload, _ = json.Marshal(map[string]string{"password": "N3wSecretPw"})
	status, body = env.do(t, http.MethodPut, token, "/auth/me", strings.NewReader(string(payload)), "application/json")
	if status != http.StatusOK {
		t.Fatalf("password change returned %d: %s", status, body)
	}
	env.login(t, "reader@example.com", "N3wSecretPw")
	resp, err := http.PostForm(env.srv.URL+"/auth/login", url.Values{
		"username": {"reader@example.com"},
		"password": {"Sup3rSecret"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", resp.StatusCode)
	}
}

func TestPreferencesReplace(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "reader@example.com", "Sup3rSecret")
	token := env.login(t, "reader@example.com", "Sup3rSecret")

	payload, _ := json.Marshal(map[string]any{
		"items": []map[string]string{
			{"key": "genre", "value": "science fiction"},
			{"key": "language", "value": "en"},
		},
	})
	status, body := env.do(t, http.MethodPut, token, "/auth/me/preferences", strings.NewReader(string(payload)), "application/json")
	if status != http.StatusOK {
		t.Fatalf("put preferences returned %d: %s", status, body)
	}

	status, body = env.do(t, http.MethodGet, token, "/auth/me/preferences", nil, "")
	if status != http.StatusOK {
		t.Fatalf("get preferences returned %d: %s", status, body)
	}
	var out struct {
		Items []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || len(out.Items) != 2 {
		t.Fatalf("unexpected preferences: %s", body)
	}
}
