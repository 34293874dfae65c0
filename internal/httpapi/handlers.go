package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shopledger/backend/internal/domain"
)

func (a *API) handleListItemGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.service.ListItemGroups(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_groups": groups})
}

func (a *API) handleCreateItemGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemGroupCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	group, err := a.service.CreateItemGroup(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item_group": group})
}

func (a *API) handleUpdateItemGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemGroupUpdateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	group, err := a.service.UpdateItemGroup(r.Context(), chi.URLParam(r, "groupID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_group": group})
}

func (a *API) handleDeleteItemGroup(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteItemGroup(r.Context(), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemUpdateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	item, err := a.service.UpdateItem(r.Context(), chi.URLParam(r, "itemID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.LowStockItems(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "customerID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	resp, err := a.service.CustomerInvoices(r.Context(), chi.URLParam(r, "customerID"), status)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePurchaseHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.ListPurchaseHistory(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_history": history})
}

func (a *API) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.CreateCart(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": cart})
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req domain.CartAddItemRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	cart, err := a.service.AddCartItem(r.Context(), chi.URLParam(r, "cartID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.RemoveCartItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "lineID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.ClearCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invoices, err := a.service.ListInvoices(r.Context(), domain.InvoiceFilter{
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Status:     strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Limit:      parsePositiveLimit(q.Get("limit"), 100, 500),
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	invoice, err := a.service.GenerateInvoice(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	resp, err := a.service.RecordPayment(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"), "from")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"), "to")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	history, err := a.service.PaymentHistory(r.Context(), domain.PaymentFilter{
		InvoiceID:  strings.TrimSpace(q.Get("invoice_id")),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		From:       from,
		To:         to,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleListDealers(w http.ResponseWriter, r *http.Request) {
	dealers, err := a.service.ListDealers(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dealers": dealers})
}

func (a *API) handleCreateDealer(w http.ResponseWriter, r *http.Request) {
	var req domain.DealerCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	dealer, err := a.service.CreateDealer(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"dealer": dealer})
}

func (a *API) handleGetDealer(w http.ResponseWriter, r *http.Request) {
	dealer, err := a.service.GetDealer(r.Context(), chi.URLParam(r, "dealerID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dealer": dealer})
}

func (a *API) handleUpdateDealer(w http.ResponseWriter, r *http.Request) {
	var req domain.DealerUpdateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	dealer, err := a.service.UpdateDealer(r.Context(), chi.URLParam(r, "dealerID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dealer": dealer})
}

func (a *API) handleDealerSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DealerSummary(r.Context(), chi.URLParam(r, "dealerID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListDealerPayments(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	payments, err := a.service.ListDealerPayments(r.Context(), chi.URLParam(r, "dealerID"), orderID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handleRecordDealerPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.DealerPaymentRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	payment, err := a.service.RecordDealerPayment(r.Context(), chi.URLParam(r, "dealerID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handleListDealerOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := a.service.ListDealerOrders(r.Context(), domain.DealerOrderFilter{
		DealerID: strings.TrimSpace(q.Get("dealer_id")),
		Status:   domain.DealerOrderStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateDealerOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.DealerOrderCreateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	order, err := a.service.CreateDealerOrder(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleGetDealerOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetDealerOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderPaymentStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.OrderPaymentStatus(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDeliverOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.DeliverOrderRequest
	if err := a.decodeOptional(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	order, err := a.service.MarkDelivered(r.Context(), chi.URLParam(r, "orderID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelOrderRequest
	if err := a.decodeOptional(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	order, err := a.service.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// handleSync takes the idempotency key from the body or, failing that, the
// Idempotency-Key header.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	var payload domain.SyncPayload
	if err := a.decode(w, r, &payload); err != nil {
		a.metrics.ObserveSync("rejected")
		writeError(w, a.logger, err)
		return
	}
	if strings.TrimSpace(payload.IdempotencyKey) == "" {
		payload.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	resp, err := a.service.SyncClientData(r.Context(), payload)
	if err != nil {
		a.metrics.ObserveSync("error")
		writeError(w, a.logger, err)
		return
	}
	if resp.Replayed {
		a.metrics.ObserveSync("replayed")
	} else {
		a.metrics.ObserveSync("applied")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.service.Snapshot(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
