// Package export renders a project's receipt photos into a PDF, one A4 page
// per photo.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	"golang.org/x/sync/errgroup"

	"receipts/internal/cache"
	"receipts/internal/core"
)

var (
	ErrNoReceipts       = errors.New("no receipts with images for this project")
	ErrUnsupportedImage = errors.New("unsupported image format")
)

const (
	pageMargin   = 15.0
	titleY       = 20.0
	captionY     = 30.0
	imageTop     = 50.0
	maxFetches   = 4
	captionLineH = 6.0
)

// Fetcher downloads an image by its public id.
type Fetcher interface {
	Fetch(ctx context.Context, publicID string) ([]byte, error)
}

type Exporter struct {
	images Fetcher
	loader *cache.Loader[[]byte]
}

// NewExporter fetches images through c when it is non-nil.
func NewExporter(images Fetcher, c cache.Cache[[]byte]) *Exporter {
	x := &Exporter{images: images}
	if c != nil {
		x.loader = cache.NewLoader(c)
	}
	return x
}

// FileName is the download name for a project's receipts PDF.
func FileName(p core.Project) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, p.Name)
	return name + "_receipt.pdf"
}

func (x *Exporter) fetch(ctx context.Context, id string) ([]byte, error) {
	if x.loader == nil {
		return x.images.Fetch(ctx, id)
	}
	return x.loader.Get(ctx, id, func(ctx context.Context) ([]byte, error) {
		return x.images.Fetch(ctx, id)
	})
}

func imageType(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "JPG", nil
	case "image/png":
		return "PNG", nil
	case "image/gif":
		return "GIF", nil
	}
	return "", ErrUnsupportedImage
}

// ProjectReceipts writes the receipts PDF for p to w and returns the number
// of pages. entries may contain other projects' entries; only p's receipts
// with images are exported.
func (x *Exporter) ProjectReceipts(ctx context.Context, w io.Writer, p core.Project, entries []core.Entry) (int, error) {
	pages := core.ReceiptPages(core.ProjectEntries(p.ID, entries))
	if len(pages) == 0 {
		return 0, ErrNoReceipts
	}

	images := make([][]byte, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetches)
	for i, page := range pages {
		g.Go(func() error {
			data, err := x.fetch(gctx, page.ImageID)
			if err != nil {
				return fmt.Errorf("fetch receipt %s: %w", page.ImageID, err)
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Project - "+p.Name, true)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := doc.GetPageSize()

	for i, page := range pages {
		doc.AddPage()

		doc.SetFont("Helvetica", "", 16)
		doc.Text(pageMargin, titleY, tr("Project - "+p.Name))

		doc.SetFont("Helvetica", "", 12)
		doc.SetXY(pageMargin, captionY-captionLineH/2)
		doc.MultiCell(pageW-2*pageMargin, captionLineH, tr(Caption(page)), "", "L", false)

		kind, err := imageType(images[i])
		if err != nil {
			return 0, fmt.Errorf("receipt %s: %w", page.ImageID, err)
		}
		name := fmt.Sprintf("receipt-%d", i)
		opts := fpdf.ImageOptions{ImageType: kind}
		info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(images[i]))
		if doc.Err() {
			return 0, fmt.Errorf("receipt %s: %w", page.ImageID, doc.Error())
		}

		contentW := pageW - 2*pageMargin
		contentH := pageH - imageTop - pageMargin
		ratio := min(contentW/info.Width(), contentH/info.Height())
		imgW, imgH := info.Width()*ratio, info.Height()*ratio
		doc.ImageOptions(name, (pageW-imgW)/2, imageTop, imgW, imgH, false, opts, 0, "")
	}

	if err := doc.Output(w); err != nil {
		return 0, fmt.Errorf("write pdf: %w", err)
	}
	return len(pages), nil
}

// Caption is the line printed above a receipt photo.
func Caption(p core.ReceiptPage) string {
	return fmt.Sprintf("Date: %s | Description: %s | Amount: %s", p.Date, p.Description, FormatUSD(p.Price))
}

// FormatUSD renders m as $1,234.56.
func FormatUSD(m core.Money) string {
	s := m.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
