package tests

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("user%d", i)
		email := fmt.Sprintf("user%d@mail.com", i)
		password := fmt.Sprintf("user%d_password", i)

		client := env.newClient()
		if err := client.signup(name, "tester", email, password); err != nil {
			t.Fatal(err)
		}

		err := client.signup(name, "tester", email, password)
		if statusOf(err) != http.StatusConflict {
			t.Fatalf("duplicate signup should fail with conflict, got %v", err)
		}

		_, err = client.login("unknown@mail.com", password)
		if statusOf(err) != http.StatusNotFound {
			t.Fatalf("login with unknown email should fail with not found, got %v", err)
		}

		_, err = client.login(email, "wrong_password")
		if statusOf(err) != http.StatusUnauthorized {
			t.Fatalf("login with wrong password should fail with unauthorized, got %v", err)
		}

		login, err := client.login(email, password)
		if err != nil {
			t.Fatal(err)
		}
		if login.Token == "" {
			t.Fatal("login should return a token")
		}

		info, err := client.profile()
		if err != nil {
			t.Fatal(err)
		}
		if info.FirstName != name || info.Email != email || info.Id.String() != client.userId || info.LoginSource != "email" {
			t.Fatalf("invalid info %v", info)
		}
	}
}

func TestSignupEmailIsCaseInsensitive(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	if err := client.signup("abc", "tester", "abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}

	err := client.signup("abc", "tester", "ABC@Mail.com", "other_password")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("signup with same email in different case should conflict, got %v", err)
	}

	// Mixed case at login resolves to the same account.
	login, err := client.login("ABC@MAIL.COM", "abc_password")
	if err != nil {
		t.Fatal(err)
	}
	if login.User.Email != "abc@mail.com" {
		t.Fatalf("expected normalized email, got %v", login.User.Email)
	}
}

func TestPasswordNeverInResponses(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	if err := client.signup("abc", "tester", "abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.login("abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}

	for _, endpoint := range []string{"/user/profile", "/user/", "/user/" + client.userId} {
		body, err := client.Get(endpoint).DoRaw()
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(strings.ToLower(string(body)), "password") {
			t.Fatalf("response from %v contains password field: %v", endpoint, string(body))
		}
	}
}

func TestGoogleLoginCreatesAccount(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	token := env.google.idToken(t, "google-sub-1", "fed@mail.com", "Fed", "Erated")

	login, err := client.loginFederated("google", token)
	if err != nil {
		t.Fatal(err)
	}
	if login.User.Email != "fed@mail.com" || login.User.FirstName != "Fed" || login.User.LoginSource != "google" {
		t.Fatalf("invalid user %v", login.User)
	}

	// A second login with the same subject resolves to the same account.
	again, err := client.loginFederated("google", token)
	if err != nil {
		t.Fatal(err)
	}
	if again.User.Id != login.User.Id {
		t.Fatalf("repeat login created a second account: %v vs %v", again.User.Id, login.User.Id)
	}

	users, err := client.listUsers(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if users.Metadata.TotalCount != 1 {
		t.Fatalf("expected exactly one account, got %d", users.Metadata.TotalCount)
	}
}

func TestFederatedLoginLinksToLocalAccountByEmail(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	if err := client.signup("abc", "tester", "abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}
	local, err := client.login("abc@mail.com", "abc_password")
	if err != nil {
		t.Fatal(err)
	}

	token := env.google.idToken(t, "google-sub-abc", "abc@mail.com", "Abc", "Tester")
	federated, err := client.loginFederated("google", token)
	if err != nil {
		t.Fatal(err)
	}

	if federated.User.Id != local.User.Id {
		t.Fatalf("federated login should link to the existing account, got %v vs %v", federated.User.Id, local.User.Id)
	}
	if federated.User.LoginSource != "google" {
		t.Fatalf("expected login source google, got %v", federated.User.LoginSource)
	}

	// The password path still works after linking.
	if _, err := client.login("abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}
}

func TestFederatedLoginFollowsEmailChange(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	first, err := client.loginFederated("google", env.google.idToken(t, "google-sub-x", "old@mail.com", "Old", "Name"))
	if err != nil {
		t.Fatal(err)
	}

	// Same subject, new email. The account is found by subject and its
	// stored email is replaced.
	second, err := client.loginFederated("google", env.google.idToken(t, "google-sub-x", "new@mail.com", "Old", "Name"))
	if err != nil {
		t.Fatal(err)
	}

	if second.User.Id != first.User.Id {
		t.Fatalf("email change created a second account: %v vs %v", second.User.Id, first.User.Id)
	}
	if second.User.Email != "new@mail.com" {
		t.Fatalf("expected updated email, got %v", second.User.Email)
	}

	users, err := client.listUsers(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if users.Metadata.TotalCount != 1 {
		t.Fatalf("expected exactly one account, got %d", users.Metadata.TotalCount)
	}
}

func TestAppleLoginKeepsStoredNames(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	if err := client.signup("Abc", "Tester", "abc@mail.com", "abc_password"); err != nil {
		t.Fatal(err)
	}

	// Apple identity tokens omit name claims.
	login, err := client.loginFederated("apple", env.apple.idToken(t, "apple-sub-1", "abc@mail.com", "", ""))
	if err != nil {
		t.Fatal(err)
	}

	if login.User.FirstName != "Abc" || login.User.LastName != "Tester" {
		t.Fatalf("names should be preserved, got %v", login.User)
	}
	if login.User.LoginSource != "apple" {
		t.Fatalf("expected login source apple, got %v", login.User.LoginSource)
	}
}

func TestInvalidProviderTokenIsRejected(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()

	// Token signed by the apple stub presented as a google login.
	_, err := client.loginFederated("google", env.apple.idToken(t, "sub", "x@mail.com", "", ""))
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("token from wrong issuer should be unauthorized, got %v", err)
	}

	_, err = client.loginFederated("google", "not-a-token")
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("malformed token should be unauthorized, got %v", err)
	}

	_, err = client.loginFederated("facebook", "whatever")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("unknown login source should be rejected, got %v", err)
	}

	// No account was created by any of the failed attempts.
	users, err := client.listUsers(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if users.Metadata.TotalCount != 0 {
		t.Fatalf("expected no accounts, got %d", users.Metadata.TotalCount)
	}
}

func TestUpdateUser(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	info, err := client.updateUser(client.userId, map[string]string{"firstname": "Updated"})
	if err != nil {
		t.Fatal(err)
	}
	if info.FirstName != "Updated" {
		t.Fatalf("expected updated name, got %v", info.FirstName)
	}

	if _, err := client.updateUser(client.userId, map[string]string{"password": "new_password"}); err != nil {
		t.Fatal(err)
	}

	_, err = client.login("abc@mail.com", "abc_password")
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := client.login("abc@mail.com", "new_password"); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	if err := client.deleteUser(client.userId); err != nil {
		t.Fatal(err)
	}

	// The account is gone for every lookup path.
	_, err := client.login("abc@mail.com", "abc_password")
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("login for deleted account should be not found, got %v", err)
	}

	_, err = client.profile()
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("existing token should be rejected after deletion, got %v", err)
	}

	_, err = client.getUser(client.userId)
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted account should not be fetchable, got %v", err)
	}
}

func TestDeletedAccountEmailCanBeReused(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")
	firstId := client.userId

	if err := client.deleteUser(client.userId); err != nil {
		t.Fatal(err)
	}

	// A federated login with the deleted account's email creates a fresh
	// account instead of failing or resurrecting the old one.
	fresh := env.newClient()
	login, err := fresh.loginFederated("google", env.google.idToken(t, "google-sub-abc", "abc@mail.com", "Abc", "Tester"))
	if err != nil {
		t.Fatal(err)
	}
	if login.User.Id.String() == firstId {
		t.Fatal("deleted account should not be resurrected")
	}

	users, err := fresh.listUsers(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if users.Metadata.TotalCount != 1 {
		t.Fatalf("expected one active account, got %d", users.Metadata.TotalCount)
	}

	// Local signup with a deleted account's email is also allowed.
	if err := fresh.deleteUser(login.User.Id.String()); err != nil {
		t.Fatal(err)
	}
	again := env.newClient()
	if err := again.signup("abc", "tester", "abc@mail.com", "new_password"); err != nil {
		t.Fatal(err)
	}
}

func TestListUsersPagination(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 5; i++ {
		env.newUser(t, fmt.Sprintf("user%d", i))
	}

	client := env.newClient()
	if _, err := client.login("user0@mail.com", "user0_password"); err != nil {
		t.Fatal(err)
	}

	page, err := client.listUsers(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.List) != 2 || page.Metadata.TotalCount != 5 || page.Metadata.TotalPages != 3 {
		t.Fatalf("invalid page %+v", page)
	}

	last, err := client.listUsers(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last.List) != 1 {
		t.Fatalf("expected one user on last page, got %d", len(last.List))
	}
}
