// Package www serves the dispatch office JSON API and its live event stream.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/cowaramupagencies/gas/customers"
	"github.com/cowaramupagencies/gas/engine"
)

type Handlers struct {
	engine    *engine.Engine
	sessions  *sessions.CookieStore
	customers *customers.Directory
	eventHub  *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:    eng,
		sessions:  newSessionStore(eng.AppConfig().Web.SessionSecret),
		customers: customers.NewDirectory(eng.DB()),
		eventHub:  hub,
	}
	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.With(h.requireAuth).Get("/events", hub.SSEHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Post("/login", h.apiLogin)
		r.Post("/logout", h.apiLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/orders", h.apiListOrders)
			r.Post("/orders", h.apiCreateOrder)
			r.Get("/orders/undelivered", h.apiUndeliveredOrders)
			r.Get("/orders/{id}", h.apiGetOrder)
			r.Put("/orders/{id}", h.apiEditOrder)
			r.Delete("/orders/{id}", h.apiDeleteOrder)
			r.Post("/orders/{id}/assign", h.apiAssignOrder)
			r.Post("/orders/{id}/detach", h.apiDetachOrder)
			r.Put("/orders/{id}/date", h.apiSetDeliveryDate)
			r.Post("/orders/{id}/delivery", h.apiToggleDelivery)
			r.Post("/orders/{id}/reschedule", h.apiRescheduleOrder)

			r.Get("/runs", h.apiRunsForDate)
			r.Post("/runs", h.apiCreateRun)
			r.Get("/runs/generated", h.apiGeneratedRuns)
			r.Get("/runs/capacity", h.apiRunCapacities)
			r.Get("/runs/{id}", h.apiGetRun)
			r.Delete("/runs/{id}", h.apiRemoveRun)
			r.Get("/runs/{id}/state", h.apiRunState)
			r.Post("/runs/{id}/manifest", h.apiGenerateManifest)
			r.Get("/runs/{id}/manifests", h.apiListRunManifests)
			r.Post("/runs/{id}/complete", h.apiCompleteRun)

			r.Get("/manifests/{id}", h.apiGetManifest)

			r.Get("/week", h.apiWeekOverview)
			r.Get("/stock", h.apiStockSummary)
			r.Get("/customers", h.apiSearchCustomers)
			r.Get("/customers/{id}", h.apiGetCustomer)
			r.Get("/audit", h.apiAuditLog)
			r.Post("/messaging/reconnect", h.apiReconnectMessaging)
		})
	})

	return r, hub.Stop
}
