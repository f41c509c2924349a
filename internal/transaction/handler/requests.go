package handler

import (
	"time"

	"pushgate/internal/transaction/models"
)

type LoginRequest struct {
	Email string `json:"email"`
}

type LoginResponse struct {
	TransactionID string `json:"transactionId"`
}

type VerifyRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	TransactionID string     `json:"transactionId"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

func toStatusResponse(txn *models.Transaction) StatusResponse {
	return StatusResponse{
		TransactionID: txn.ID.String(),
		Status:        txn.Status.String(),
		CreatedAt:     txn.CreatedAt,
		ResolvedAt:    txn.ResolvedAt,
	}
}
