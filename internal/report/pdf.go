package report

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed report.css
var styleCSS string

const renderTimeout = 30 * time.Second

var scenarioHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Scenario:[^<]*)\s*</h2>`)

// Renderer turns a markdown report into a PDF document.
type Renderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

// PrintOptions controls page geometry and the footer of a rendered report.
// Sizes are in inches.
type PrintOptions struct {
	PaperWidth   float64
	PaperHeight  float64
	MarginTop    float64
	MarginBottom float64
	MarginSide   float64
	// FooterLabel precedes the page counter in the footer.
	FooterLabel string
	Timeout     time.Duration
}

// LetterPrintOptions is US Letter with room for the page footer.
func LetterPrintOptions() PrintOptions {
	return PrintOptions{
		PaperWidth:   8.5,
		PaperHeight:  11,
		MarginTop:    0.5,
		MarginBottom: 0.75,
		MarginSide:   0.5,
		FooterLabel:  "SAFE Scenario Report",
		Timeout:      renderTimeout,
	}
}

// A4PrintOptions keeps the Letter margins on A4 paper.
func A4PrintOptions() PrintOptions {
	o := LetterPrintOptions()
	o.PaperWidth, o.PaperHeight = 8.27, 11.69
	return o
}

// PaperOptions maps a paper name to its print options.
func PaperOptions(name string) (PrintOptions, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "letter":
		return LetterPrintOptions(), nil
	case "a4":
		return A4PrintOptions(), nil
	}
	return PrintOptions{}, fmt.Errorf("unknown paper size %q (use letter or a4)", name)
}

func (o PrintOptions) footer() string {
	label := ""
	if o.FooterLabel != "" {
		label = html.EscapeString(o.FooterLabel) + " &middot; "
	}
	return `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
		label + `Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
}

func (o PrintOptions) params() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(o.footer()).
		WithPaperWidth(o.PaperWidth).
		WithPaperHeight(o.PaperHeight).
		WithMarginTop(o.MarginTop).
		WithMarginBottom(o.MarginBottom).
		WithMarginLeft(o.MarginSide).
		WithMarginRight(o.MarginSide)
}

type ChromiumPDFRenderer struct {
	chromePath string
	print      PrintOptions
}

func NewChromiumPDFRenderer(opts PrintOptions) *ChromiumPDFRenderer {
	if opts.PaperWidth <= 0 || opts.PaperHeight <= 0 {
		opts = LetterPrintOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = renderTimeout
	}
	return &ChromiumPDFRenderer{chromePath: detectChromePath(), print: opts}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	htmlDoc, err := BuildHTML(markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.print.Timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := r.print.params().Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

// BuildHTML converts the markdown report into a standalone print page.
func BuildHTML(markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>SAFE Scenario Report</title>" +
		"<style>" + styleCSS + "\n" +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
		"@media print{ @page{size:auto;margin:12mm;} }" +
		"</style></head><body><main class='report'>" +
		applyPrintLayoutHooks(content.String()) +
		"</main></body></html>", nil
}

// applyPrintLayoutHooks starts every scenario section on a fresh page
// except the first, which follows the summary table.
func applyPrintLayoutHooks(contentHTML string) string {
	first := true
	return scenarioHeading.ReplaceAllStringFunc(contentHTML, func(m string) string {
		if first {
			first = false
			return m
		}
		sub := scenarioHeading.FindStringSubmatch(m)
		return "<h2" + sub[1] + ` data-page-break-before="true">` + sub[2] + "</h2>"
	})
}

func detectChromePath() string {
	if p := strings.TrimSpace(os.Getenv("CHROME_PATH")); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
