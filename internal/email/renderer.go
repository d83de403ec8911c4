// Package email renders the transactional emails sent by the order worker:
// order confirmations for one-time purchases and welcome messages for new
// subscriptions. Templates are compiled once at startup; rendering is pure
// and never touches the network.
package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"fruitbox/internal/external"
	"fruitbox/internal/types"
)

// orderSubject and subscriptionSubject are the subject lines for the two
// confirmation emails. The order ID keeps support threads searchable.
const (
	orderSubject        = "Your FruitBox order %s is confirmed"
	subscriptionSubject = "Welcome to your FruitBox subscription"
)

// templateData is the view model shared by the HTML and text templates.
type templateData struct {
	CustomerName  string
	OrderID       string
	PlanName      string
	Recurring     bool
	Items         []templateItem
	Total         string
	StorefrontURL string
}

type templateItem struct {
	Name      string
	Quantity  int
	LineTotal string
}

// Renderer builds ready-to-send messages from order events.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template

	fromAddress   string
	fromName      string
	storefrontURL string
}

// RendererConfig holds the sender identity and storefront link baked into
// every rendered message.
type RendererConfig struct {
	FromAddress   string
	FromName      string
	StorefrontURL string
}

// NewRenderer compiles the confirmation templates. Template compilation only
// fails on a programming error, so the worker fails fast at startup.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	html, err := htmltemplate.New("confirmation").Parse(confirmationHTML)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML template: %w", err)
	}
	text, err := texttemplate.New("confirmation").Parse(confirmationText)
	if err != nil {
		return nil, fmt.Errorf("parsing text template: %w", err)
	}
	return &Renderer{
		html:          html,
		text:          text,
		fromAddress:   cfg.FromAddress,
		fromName:      cfg.FromName,
		storefrontURL: cfg.StorefrontURL,
	}, nil
}

// RenderOrderConfirmation produces the message for an order.created or
// subscription.created event.
func (r *Renderer) RenderOrderConfirmation(eventID string, payload types.OrderCreatedPayload) (external.EmailMessage, error) {
	data := templateData{
		CustomerName:  payload.CustomerName,
		OrderID:       payload.OrderID,
		PlanName:      payload.PlanName,
		Recurring:     payload.Recurring,
		Total:         payload.Total.StringFixed(2),
		StorefrontURL: r.storefrontURL,
	}
	for _, item := range payload.Items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		data.Items = append(data.Items, templateItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			LineTotal: line.StringFixed(2),
		})
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, data); err != nil {
		return external.EmailMessage{}, fmt.Errorf("rendering HTML body: %w", err)
	}
	if err := r.text.Execute(&textBuf, data); err != nil {
		return external.EmailMessage{}, fmt.Errorf("rendering text body: %w", err)
	}

	subject := fmt.Sprintf(orderSubject, payload.OrderID)
	if payload.Recurring {
		subject = subscriptionSubject
	}

	return external.EmailMessage{
		To:          payload.CustomerEmail,
		ToName:      payload.CustomerName,
		From:        r.fromAddress,
		FromName:    r.fromName,
		Subject:     subject,
		BodyHTML:    htmlBuf.String(),
		BodyText:    textBuf.String(),
		ReferenceID: eventID,
	}, nil
}

const confirmationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h1>Thanks, {{.CustomerName}}!</h1>
  {{if .Recurring -}}
  <p>Your <strong>{{.PlanName}}</strong> subscription is active. Your first box ships within 3 business days, and a fresh one follows every month.</p>
  {{- else -}}
  <p>Your <strong>{{.PlanName}}</strong> order <strong>{{.OrderID}}</strong> is confirmed and being packed.</p>
  {{- end}}
  <table cellpadding="6">
    {{range .Items -}}
    <tr><td>{{.Quantity}} &times; {{.Name}}</td><td align="right">&euro;{{.LineTotal}}</td></tr>
    {{end -}}
    <tr><td><strong>Total</strong></td><td align="right"><strong>&euro;{{.Total}}</strong></td></tr>
  </table>
  <p><a href="{{.StorefrontURL}}">Manage your boxes</a></p>
</body>
</html>
`

const confirmationText = `Thanks, {{.CustomerName}}!

{{if .Recurring -}}
Your {{.PlanName}} subscription is active. Your first box ships within 3 business days, and a fresh one follows every month.
{{- else -}}
Your {{.PlanName}} order {{.OrderID}} is confirmed and being packed.
{{- end}}

{{range .Items -}}
  {{.Quantity}} x {{.Name}} ... EUR {{.LineTotal}}
{{end -}}
  Total ............. EUR {{.Total}}

Manage your boxes: {{.StorefrontURL}}
`
