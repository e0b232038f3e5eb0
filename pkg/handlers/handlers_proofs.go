package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/models"
	"github.com/arnavshah/volunteer-portal-go/pkg/proofs"
)

// MyProofs lists the calling volunteer's proofs, newest first
func (h *Handler) MyProofs(c *gin.Context) {
	list, err := h.Proofs.ListForVolunteer(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponses(list))
}

const multipartOverhead = 64 << 10

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (h *Handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", h.MaxUploadBytes)})
}

// UploadProof accepts a multipart "file" as evidence for an event
func (h *Handler) UploadProof(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}

	if h.MaxUploadBytes > 0 {
		// room for the multipart envelope around the file
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		if bodyTooLarge(err) {
			h.tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if h.MaxUploadBytes > 0 && header.Size > h.MaxUploadBytes {
		h.tooLarge(c)
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	proof, err := h.Proofs.Submit(c.Request.Context(), currentAccount(c).ID, eventID, proofs.Evidence{
		Data:     data,
		Filename: header.Filename,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewProofResponse(*proof))
}

// DeleteProof removes the calling volunteer's pending proof
func (h *Handler) DeleteProof(c *gin.Context) {
	proofID, ok := idParam(c, "proofId")
	if !ok {
		return
	}
	if err := h.Proofs.Delete(c.Request.Context(), proofID, currentAccount(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proof deleted"})
}

// ReviewQueue lists proofs for the calling coordinator's events
func (h *Handler) ReviewQueue(c *gin.Context) {
	list, err := h.Proofs.ListForCoordinator(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponses(list))
}

// ApproveProof approves a pending proof
func (h *Handler) ApproveProof(c *gin.Context) {
	proofID, ok := idParam(c, "proofId")
	if !ok {
		return
	}
	proof, err := h.Proofs.Approve(c.Request.Context(), proofID, currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProofResponse(*proof))
}

// RejectProof rejects a pending proof with a reason
func (h *Handler) RejectProof(c *gin.Context) {
	proofID, ok := idParam(c, "proofId")
	if !ok {
		return
	}
	var req models.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	proof, err := h.Proofs.Reject(c.Request.Context(), proofID, currentAccount(c).ID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProofResponse(*proof))
}

// RegenerateCertificate replaces the certificate of an approved proof
func (h *Handler) RegenerateCertificate(c *gin.Context) {
	proofID, ok := idParam(c, "proofId")
	if !ok {
		return
	}
	cert, err := h.Proofs.RegenerateCertificate(c.Request.Context(), proofID, currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

// ListVolunteers returns every volunteer for coordinators
func (h *Handler) ListVolunteers(c *gin.Context) {
	list, err := h.Directory.ListVolunteers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func proofResponses(list []database.Proof) []models.ProofResponse {
	out := make([]models.ProofResponse, len(list))
	for i, p := range list {
		out[i] = models.NewProofResponse(p)
	}
	return out
}
