// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/docstore"
)

var resetLink = regexp.MustCompile(`resetPassword/([0-9a-f]{64})`)

var _ = Describe("Accounts", func() {
	It("signs up, logs in and rejects bad credentials", func() {
		member("Laura Wilson", "Laura@Example.com", auth.RoleUser)

		code, body := call(http.MethodPost, "/api/v1/users/login", "", map[string]any{
			"email": "laura@example.com", "password": "pass1234",
		})
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["token"]).NotTo(BeEmpty())

		code, body = call(http.MethodPost, "/api/v1/users/login", "", map[string]any{
			"email": "laura@example.com", "password": "wrong-pass",
		})
		Expect(code).To(Equal(http.StatusUnauthorized))
		Expect(body["message"]).To(Equal("Incorrect email or password"))
	})

	It("enforces unique emails through the database index", func() {
		member("Laura Wilson", "laura@example.com", auth.RoleUser)
		code, _ := call(http.MethodPost, "/api/v1/users/signup", "", map[string]any{
			"name": "Laura Again", "email": "laura@example.com", "password": "pass1234", "passwordConfirm": "pass1234",
		})
		Expect(code).To(Equal(http.StatusConflict))
	})

	It("resets a forgotten password once", func() {
		member("Laura Wilson", "laura@example.com", auth.RoleUser)

		code, _ := call(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]any{"email": "laura@example.com"})
		Expect(code).To(Equal(http.StatusOK))
		m := resetLink.FindStringSubmatch(env.mail.last().Text)
		Expect(m).To(HaveLen(2))

		reset := map[string]any{"password": "newpass123", "passwordConfirm": "newpass123"}
		code, body := call(http.MethodPatch, "/api/v1/users/resetPassword/"+m[1], "", reset)
		Expect(code).To(Equal(http.StatusOK), "%v", body)

		code, _ = call(http.MethodPatch, "/api/v1/users/resetPassword/"+m[1], "", reset)
		Expect(code).To(Equal(http.StatusBadRequest))

		code, _ = call(http.MethodPost, "/api/v1/users/login", "", map[string]any{
			"email": "laura@example.com", "password": "newpass123",
		})
		Expect(code).To(Equal(http.StatusOK))
	})

	It("deactivates an account", func() {
		token := member("Laura Wilson", "laura@example.com", auth.RoleUser)
		code, _ := call(http.MethodDelete, "/api/v1/users/deleteMe", token, nil)
		Expect(code).To(Equal(http.StatusNoContent))

		code, _ = call(http.MethodGet, "/api/v1/users/me", token, nil)
		Expect(code).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("Tours", func() {
	var admin string

	BeforeEach(func() {
		admin = member("Admin User", "admin@example.com", auth.RoleAdmin)
		for i, difficulty := range []string{"easy", "easy", "medium", "difficult"} {
			code, body := call(http.MethodPost, "/api/v1/tours", admin, tourBody(
				fmt.Sprintf("The Forest Hiker %d", i+1), float64(100*(i+1)), difficulty,
				"2021-04-25T09:00:00Z", fmt.Sprintf("2021-%02d-20T09:00:00Z", 6+i%2),
			))
			Expect(code).To(Equal(http.StatusCreated), "%v", body)
		}
	})

	It("filters, sorts and paginates in SQL", func() {
		code, body := call(http.MethodGet, "/api/v1/tours?difficulty=easy&sort=-price", "", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["results"]).To(Equal(2.0))
		first := dig(body, "data", "data").([]any)[0].(map[string]any)
		Expect(first["name"]).To(Equal("The Forest Hiker 2"))

		code, body = call(http.MethodGet, "/api/v1/tours?price[gte]=200&sort=price&page=2&limit=2", "", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["results"]).To(Equal(1.0))

		code, body = call(http.MethodGet, "/api/v1/tours?fields=name&limit=1", "", nil)
		Expect(code).To(Equal(http.StatusOK))
		item := dig(body, "data", "data").([]any)[0].(map[string]any)
		Expect(item).To(HaveKey("name"))
		Expect(item).NotTo(HaveKey("price"))
	})

	It("updates and deletes a tour", func() {
		_, body := call(http.MethodGet, "/api/v1/tours?name="+url.QueryEscape("The Forest Hiker 1"), "", nil)
		id := dig(body, "data", "data").([]any)[0].(map[string]any)["id"].(string)

		code, body := call(http.MethodPatch, "/api/v1/tours/"+id, admin, map[string]any{"name": "The Snow Adventurer"})
		Expect(code).To(Equal(http.StatusOK), "%v", body)
		Expect(dig(body, "data", "data", "slug")).To(Equal("the-snow-adventurer"))

		code, _ = call(http.MethodDelete, "/api/v1/tours/"+id, admin, nil)
		Expect(code).To(Equal(http.StatusNoContent))
		code, _ = call(http.MethodGet, "/api/v1/tours/"+id, "", nil)
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("rejects a stored discount at or above the price", func() {
		_, body := call(http.MethodGet, "/api/v1/tours?name="+url.QueryEscape("The Forest Hiker 2"), "", nil)
		id := dig(body, "data", "data").([]any)[0].(map[string]any)["id"].(string)

		_, err := env.tours.UpdateByID(env.ctx, id, docstore.Document{"priceDiscount": 250.0})
		Expect(errors.Is(err, docstore.ErrConstraint)).To(BeTrue(), "%v", err)

		_, err = env.tours.UpdateByID(env.ctx, id, docstore.Document{"priceDiscount": 150.0})
		Expect(err).NotTo(HaveOccurred())
		_, err = env.tours.UpdateByID(env.ctx, id, docstore.Document{"price": 120.0})
		Expect(errors.Is(err, docstore.ErrConstraint)).To(BeTrue(), "%v", err)
	})

	It("aggregates stats per difficulty", func() {
		code, body := call(http.MethodGet, "/api/v1/tours/tour-stats", "", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(dig(body, "data", "stats")).To(HaveLen(3))
	})

	It("builds a monthly plan", func() {
		code, body := call(http.MethodGet, "/api/v1/tours/monthly-plan/2021", admin, nil)
		Expect(code).To(Equal(http.StatusOK), "%v", body)
		first := dig(body, "data", "plan").([]any)[0].(map[string]any)
		Expect(first["month"]).To(Equal(4.0))
		Expect(first["numTourStarts"]).To(Equal(4.0))
	})

	It("keeps tour ratings in sync with nested reviews", func() {
		_, body := call(http.MethodGet, "/api/v1/tours?name="+url.QueryEscape("The Forest Hiker 3"), "", nil)
		id := dig(body, "data", "data").([]any)[0].(map[string]any)["id"].(string)
		alice := member("Alice", "alice@example.com", auth.RoleUser)
		bob := member("Bob", "bob@example.com", auth.RoleUser)

		path := "/api/v1/tours/" + id + "/reviews"
		code, body := call(http.MethodPost, path, alice, map[string]any{"review": "Loved it", "rating": 5})
		Expect(code).To(Equal(http.StatusCreated), "%v", body)
		code, _ = call(http.MethodPost, path, bob, map[string]any{"review": "Good", "rating": 3})
		Expect(code).To(Equal(http.StatusCreated))
		code, _ = call(http.MethodPost, path, bob, map[string]any{"review": "Again", "rating": 1})
		Expect(code).To(Equal(http.StatusConflict))

		_, body = call(http.MethodGet, "/api/v1/tours/"+id, "", nil)
		Expect(dig(body, "data", "data", "ratingsQuantity")).To(Equal(2.0))
		Expect(dig(body, "data", "data", "ratingsAverage")).To(Equal(4.0))

		code, body = call(http.MethodGet, path, bob, nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["results"]).To(Equal(2.0))
	})
})
