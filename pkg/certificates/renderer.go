package certificates

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/auth"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
)

// IssueRequest carries everything printed on a certificate
type IssueRequest struct {
	Volunteer database.Volunteer
	Event     database.Event
	Proof     database.Proof
}

// Issued describes a rendered and stored certificate artifact
type Issued struct {
	CertificateID    string
	ArtifactLocator  string
	VerificationCode string
}

// Renderer renders a certificate and stores its artifact
type Renderer interface {
	Issue(ctx context.Context, req IssueRequest) (*Issued, error)
}

// DocumentRenderer renders PDF certificates with a QR code of the verify URL into storage
type DocumentRenderer struct {
	store   storage.Storage
	secret  string
	baseURL string
	now     func() time.Time
}

// NewDocumentRenderer creates a DocumentRenderer. secret keys the verification codes.
func NewDocumentRenderer(store storage.Storage, secret, baseURL string) *DocumentRenderer {
	return &DocumentRenderer{
		store:   store,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Issue renders the certificate and stores it
func (r *DocumentRenderer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	certID := NewCertificateID()
	code := auth.SignVerificationCode(r.secret, certID+":"+uuid.NewString())

	points := req.Event.Points
	if req.Proof.PointsAwarded != nil {
		points = *req.Proof.PointsAwarded
	}

	doc, err := r.render(certificateData{
		CertificateID: certID,
		VolunteerName: req.Volunteer.Name,
		EventTitle:    req.Event.Title,
		Category:      req.Event.Category,
		EventDate:     req.Event.EventDate.Format("January 2, 2006"),
		Points:        points,
		IssuedAt:      r.now(),
		VerifyURL:     r.baseURL + "/api/certificates/verify/" + code,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.RenderError, "failed to render certificate")
	}

	locator, err := r.store.Store(ctx, doc, certID+".pdf")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.StorageError, "failed to store certificate")
	}

	return &Issued{CertificateID: certID, ArtifactLocator: locator, VerificationCode: code}, nil
}

type certificateData struct {
	CertificateID string
	VolunteerName string
	EventTitle    string
	Category      string
	EventDate     string
	Points        int
	IssuedAt      time.Time
	VerifyURL     string
}

func (r *DocumentRenderer) render(d certificateData) ([]byte, error) {
	qr, err := qrcode.Encode(d.VerifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Certificate "+d.CertificateID, false)
	pdf.SetSubject(tr(fmt.Sprintf("%s, %s, %d points", d.VolunteerName, d.EventTitle, d.Points)), false)
	pdf.SetCreator("volunteer-portal", false)
	pdf.SetCreationDate(d.IssuedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(47, 93, 138)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(14, 14, w-28, h-28, "D")

	line := func(style string, size float64, height float64, text string) {
		pdf.SetFont("Helvetica", style, size)
		pdf.CellFormat(0, height, tr(text), "", 1, "C", false, 0, "")
	}

	pdf.SetY(32)
	pdf.SetTextColor(47, 93, 138)
	line("B", 30, 16, "CERTIFICATE OF PARTICIPATION")
	pdf.SetTextColor(40, 40, 40)
	line("", 14, 12, "This is to certify that")
	line("B", 26, 16, d.VolunteerName)
	line("", 14, 10, "has successfully participated in")
	line("B", 20, 12, d.EventTitle)
	line("I", 12, 8, d.Category+" - "+d.EventDate)
	line("", 14, 12, fmt.Sprintf("and was awarded %d points.", d.Points))

	const qrSize = 38.0
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", w-30-qrSize, h-30-qrSize, qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, d.VerifyURL)

	pdf.SetTextColor(90, 90, 90)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(30, h-50)
	pdf.CellFormat(0, 6, "Certificate ID: "+d.CertificateID, "", 2, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued: "+d.IssuedAt.Format("January 2, 2006"), "", 2, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Scan the code to verify this certificate", "", 2, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewCertificateID returns a short human-readable identifier such as CERT-1A2B3C4D5E6F
func NewCertificateID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CERT-" + strings.ToUpper(id[:12])
}
