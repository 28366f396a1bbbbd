package pdf

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"unveil/internal/models"
)

// Generator — интерфейс (удобно мокать в тестах)
type Generator interface {
	CaseDossier(w io.Writer, c *models.Case, generatedAt time.Time) error
}

// DocumentGenerator рисует досье по делу. Если TTF не найден, используется
// встроенный Helvetica с перекодировкой в cp1252.
type DocumentGenerator struct {
	FontPath string // путь до TTF, например "assets/fonts/DejaVuSans.ttf"
}

func NewDocumentGenerator(fontPath string) *DocumentGenerator {
	return &DocumentGenerator{FontPath: fontPath}
}

// doc — состояние одного документа: выбранный шрифт и перекодировщик.
type doc struct {
	pdf  *gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (g *DocumentGenerator) CaseDossier(w io.Writer, c *models.Case, generatedAt time.Time) error {
	if c == nil {
		return fmt.Errorf("case dossier: nil case")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	d := g.setup(pdf)

	pdf.SetTitle(d.tr(fmt.Sprintf("Case #%d", c.ID)), false)
	pdf.SetAuthor("Unveil", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(d.font, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// ===== Заголовок
	pdf.SetFont(d.font, "B", 18)
	pdf.CellFormat(0, 10, "CASE DOSSIER", "", 1, "C", false, 0, "")
	pdf.SetFont(d.font, "", 11)
	sub := fmt.Sprintf("Case #%06d  reported %s", c.ID, c.CreatedAt.UTC().Format("02.01.2006"))
	pdf.CellFormat(0, 7, sub, "", 1, "C", false, 0, "")
	d.hr()
	pdf.Ln(2)

	// ===== Кого касается
	d.sectionTitle("Subject")
	d.kvLine("Name", c.Name)
	d.kvLine("Email", c.Email)
	d.kvLine("Phone", c.Phone)
	d.kvLine("Company", c.Company)
	d.kvLine("Actions", c.Actions)
	pdf.Ln(1)
	d.hr()

	// ===== Вердикт
	v := c.Summary()
	d.sectionTitle("Community verdict")
	d.kvLine("Status", v.Status)
	d.kvLine("Score", fmt.Sprintf("%+d", v.Score))
	d.kvLine("Votes", fmt.Sprintf("%d (guilty %d / not guilty %d)", v.TotalVotes, v.GuiltyVotes, v.NotGuiltyVotes))
	d.kvLine("Confidence", fmt.Sprintf("%.1f%%", v.Confidence))
	if c.LastVotedAt != nil {
		d.kvLine("Last vote", c.LastVotedAt.UTC().Format("02.01.2006 15:04 MST"))
	}
	pdf.Ln(1)
	d.hr()

	// ===== Описание
	d.sectionTitle("Description")
	pdf.SetFont(d.font, "", 11)
	pdf.MultiCell(0, 6, d.tr(c.Description), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont(d.font, "", 8)
	pdf.MultiCell(0, 4, fmt.Sprintf("Generated %s. The verdict reflects community votes only and is not a legal finding.",
		generatedAt.UTC().Format(time.RFC1123)), "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("case dossier: %w", err)
	}
	return nil
}

func (g *DocumentGenerator) setup(pdf *gofpdf.Fpdf) *doc {
	if g.FontPath != "" {
		if _, err := os.Stat(g.FontPath); err == nil {
			// AddUTF8Font принимает путь до TTF
			pdf.AddUTF8Font("DejaVu", "", g.FontPath)
			pdf.AddUTF8Font("DejaVu", "B", g.FontPath)
			return &doc{pdf: pdf, font: "DejaVu", tr: func(s string) string { return s }}
		}
	}
	return &doc{pdf: pdf, font: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// === вспомогательное ===
func (d *doc) sectionTitle(s string) {
	d.pdf.SetFont(d.font, "B", 12)
	d.pdf.CellFormat(0, 7, d.tr(s), "", 1, "L", false, 0, "")
	d.pdf.SetFont(d.font, "", 11)
}

func (d *doc) kvLine(key, val string) {
	if strings.TrimSpace(val) == "" {
		val = "-"
	}
	d.pdf.SetFont(d.font, "B", 11)
	d.pdf.CellFormat(35, 6, d.tr(key+":"), "", 0, "L", false, 0, "")
	d.pdf.SetFont(d.font, "", 11)
	d.pdf.MultiCell(0, 6, d.tr(val), "", "L", false)
}

func (d *doc) hr() {
	y := d.pdf.GetY() + 1.5
	d.pdf.SetLineWidth(0.2)
	d.pdf.Line(20, y, 190, y)
	d.pdf.SetY(y + 2)
}
