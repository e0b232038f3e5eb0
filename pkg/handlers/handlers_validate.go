package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// VerifyCertificate checks a verification code. Unknown codes return valid=false with 200.
func (h *Handler) VerifyCertificate(c *gin.Context) {
	v, err := h.Certificates.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// DownloadCertificate streams the certificate PDF to its volunteer or the event's coordinator
func (h *Handler) DownloadCertificate(c *gin.Context) {
	account := currentAccount(c)
	cert, data, err := h.Certificates.Download(c.Request.Context(), c.Param("certificateId"), account.Role, account.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+cert.CertificateID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
