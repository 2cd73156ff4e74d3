package receipt

import (
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/pkg/money"
)

// Data is everything printed on a receipt. Amounts are already computed by
// the caller; the renderer does no arithmetic beyond formatting.
type Data struct {
	SchoolName      string
	ReceiptNumber   string
	StudentName     string
	AdmissionNumber string
	ClassName       string
	TermName        string
	SessionName     string
	PaymentMethod   string
	Reference       string
	PaymentDate     time.Time
	ReceivedBy      string

	InvoiceTotal decimal.Decimal
	PaidBefore   decimal.Decimal
	ThisPayment  decimal.Decimal
	Outstanding  decimal.Decimal
}

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(data Data) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, data.SchoolName, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Payment receipt", props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date: "+data.PaymentDate.In(clock.Lagos).Format("02 Jan 2006"), props.Text{Top: 5}),
			text.New("Method: "+methodLabel(data.PaymentMethod), props.Text{Top: 10}),
			text.New("Reference: "+orDash(data.Reference), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New(data.StudentName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("Admission no: "+data.AdmissionNumber, props.Text{Top: 5, Align: align.Right}),
			text.New(data.ClassName, props.Text{Top: 10, Align: align.Right}),
			text.New(data.TermName+" "+data.SessionName, props.Text{Top: 15, Align: align.Right}),
		),
	)

	m.AddRow(2, line.NewCol(12))
	amountRow(m, "Invoice total", data.InvoiceTotal, false)
	amountRow(m, "Paid before", data.PaidBefore, false)
	amountRow(m, "This payment", data.ThisPayment, true)
	amountRow(m, "Outstanding", data.Outstanding, true)

	if data.ReceivedBy != "" {
		m.AddRow(12, text.NewCol(12, "Received by "+data.ReceivedBy, props.Text{Size: 9, Top: 4}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func amountRow(m core.Maroto, label string, amount decimal.Decimal, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, label, props.Text{Size: 10, Style: style}),
		text.NewCol(3, money.Format(amount), props.Text{Size: 10, Style: style, Align: align.Right}),
	)
}

func methodLabel(method string) string {
	switch method {
	case "online_gateway":
		return "Online payment"
	case "bank_transfer":
		return "Bank transfer"
	case "cash":
		return "Cash"
	case "waiver":
		return "Waiver"
	default:
		return method
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
