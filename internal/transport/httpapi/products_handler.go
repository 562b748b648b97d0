package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

func (h *handler) checkStock(w http.ResponseWriter, r *http.Request) {
	var req stockCheckRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, h.logger, &domain.ValidationError{Field: "items", Message: "at least one item is required", Err: domain.ErrItemsRequired})
		return
	}

	report, err := h.ledger.CheckBatch(r.Context(), toStockLines(req.Items))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// getProduct отдаёт только активные товары; снятый с продажи товар считается отсутствующим.
func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err == nil && !product.IsActive {
		err = domain.ErrProductNotFound
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toProductResponse(product))
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(auth.ActorFrom(r.Context())); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req productRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := h.now()
	product := domain.Product{ID: h.newID(), IsActive: true, CreatedAt: now, UpdatedAt: now}
	req.apply(&product)
	if errs := product.Validate(); len(errs) > 0 {
		writeError(w, h.logger, errors.Join(errs...))
		return
	}
	if err := h.products.Create(r.Context(), product); err != nil {
		writeError(w, h.logger, fmt.Errorf("create product: %w", err))
		return
	}

	h.logger.WithFields(log.Fields{"product_id": product.ID, "stock": product.Stock}).Info("product created")
	writeData(w, http.StatusCreated, toProductResponse(product))
}

// updateProduct меняет только переданные поля. Stock пишется отдельно и только если передан:
// это абсолютное значение (приёмка товара на склад).
func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(auth.ActorFrom(r.Context())); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req productRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	product, err := h.products.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.apply(&product)
	product.UpdatedAt = h.now()
	if errs := product.Validate(); len(errs) > 0 {
		writeError(w, h.logger, errors.Join(errs...))
		return
	}
	if err := h.products.Update(ctx, product); err != nil {
		writeError(w, h.logger, fmt.Errorf("update product: %w", err))
		return
	}
	if req.Stock != nil {
		if err := h.products.SetStock(ctx, product.ID, *req.Stock, product.UpdatedAt); err != nil {
			writeError(w, h.logger, fmt.Errorf("set product stock: %w", err))
			return
		}
	}

	saved, err := h.products.Get(ctx, product.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.WithFields(log.Fields{
		"product_id": saved.ID,
		"stock":      saved.Stock,
		"stock_set":  req.Stock != nil,
	}).Info("product updated")
	writeData(w, http.StatusOK, toProductResponse(saved))
}

// deleteProduct снимает товар с продажи; запись остаётся, чтобы заказы могли вернуть сток.
func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(auth.ActorFrom(r.Context())); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.products.Deactivate(ctx, id, h.now()); err != nil {
		writeError(w, h.logger, fmt.Errorf("deactivate product: %w", err))
		return
	}
	product, err := h.products.Get(ctx, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.WithField("product_id", product.ID).Info("product deactivated")
	writeData(w, http.StatusOK, toProductResponse(product))
}

func requireAdmin(actor domain.Actor) error {
	if actor.IsGuest() {
		return domain.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
