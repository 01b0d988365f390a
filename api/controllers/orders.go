package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/api/responses"
	"github.com/parcelhive/parcelhive-backend/api/validators"
	orderssvc "github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

type createOrderRequest struct {
	RecipientPhone    string               `json:"recipient_phone" validate:"required"`
	SendingLockerID   uuid.UUID            `json:"sending_locker_id" validate:"required"`
	ReceivingLockerID uuid.UUID            `json:"receiving_locker_id" validate:"required"`
	Parcel            orderssvc.ParcelSpec `json:"parcel" validate:"required"`
}

type trackOrderResponse struct {
	OrderID           uuid.UUID         `json:"order_id"`
	Status            enums.OrderStatus `json:"status"`
	SendingLockerID   uuid.UUID         `json:"sending_locker_id"`
	ReceivingLockerID uuid.UUID         `json:"receiving_locker_id"`
	Size              enums.CellSize    `json:"size"`
	WeightKG          float64           `json:"weight_kg"`
	Latitude          *float64          `json:"latitude,omitempty"`
	Longitude         *float64          `json:"longitude,omitempty"`
}

// OrderCreate claims sending and receiving cells and opens a new order.
func OrderCreate(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		senderID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.CreateOrder(r.Context(), orderssvc.CreateOrderInput{
			SenderID:          senderID,
			RecipientPhone:    body.RecipientPhone,
			SendingLockerID:   body.SendingLockerID,
			ReceivingLockerID: body.ReceivingLockerID,
			Parcel:            body.Parcel,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// OrderList returns the caller's orders, newest first, cursor-paginated.
func OrderList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListOrdersForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// OrderGet returns the relational detail of one order. Only participants and
// admins may read it.
func OrderGet(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		detail, err := loadAuthorizedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, detail)
	}
}

// OrderTrack serves the cache projection of one order, falling back to the
// relational store when the projection is cold.
func OrderTrack(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		if _, err := loadAuthorizedOrder(r, svc); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CachedRecord(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, trackOrderResponse{
			OrderID:           record.OrderID,
			Status:            record.Status,
			SendingLockerID:   record.SendingLockerID,
			ReceivingLockerID: record.ReceivingLockerID,
			Size:              record.Size,
			WeightKG:          record.WeightKG,
			Latitude:          record.Latitude,
			Longitude:         record.Longitude,
		})
	}
}

// OrderCancel cancels an order still waiting at the sending locker. Allowed
// from Packaging and Waiting; later stages have parcels in motion.
func OrderCancel(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		detail, err := loadAuthorizedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch detail.Status {
		case enums.OrderStatusPackaging, enums.OrderStatusWaiting:
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be canceled"))
			return
		}

		if err := svc.AdvanceStatus(r.Context(), detail.ID, detail.Status, enums.OrderStatusCanceled); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCanceled)})
	}
}

// AdminOrderDelete removes an order with its parcel, freeing any claimed cells.
func AdminOrderDelete(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := pathUUID(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteOrder(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// loadAuthorizedOrder fetches the order named in the URL and verifies the
// caller participates in it. Admins bypass the participation check.
func loadAuthorizedOrder(r *http.Request, svc orderssvc.Service) (*orderssvc.OrderDetail, error) {
	orderID, err := pathUUID(chi.URLParam(r, "orderID"))
	if err != nil {
		return nil, err
	}
	userID, err := currentUserID(r)
	if err != nil {
		return nil, err
	}
	role, err := currentRole(r)
	if err != nil {
		return nil, err
	}

	detail, err := svc.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}

	if role == enums.MemberRoleAdmin {
		return detail, nil
	}
	if detail.SenderID == userID || detail.RecipientID == userID {
		return detail, nil
	}
	if detail.ShipperID != nil && *detail.ShipperID == userID {
		return detail, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this order")
}
